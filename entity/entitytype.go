package entity

import "context"

// 依赖倒置，表达信号机对需求来源、配时来源与灯具硬件的接口需求

// Demand 一次观测得到的交通需求
type Demand struct {
	Counts         DirectionCounts // 各方向车辆数
	EmergencyCount int             // 紧急车辆数
	EmergencyAxis  *Axis           // 紧急车辆所在相位组（未知时为nil）
}

// 需求来源：视觉检测或需求仿真
type IDemandSource interface {
	Demand() Demand
}

// 配时来源：信号机每个完整周期开始时拉取一次
type IPlanSource interface {
	NextPlan(ctx context.Context) (TrafficPhase, error)
}

// 灯具硬件回调，返回错误时信号机进入全向红闪保护
type ILightSink interface {
	SetLight(d Direction, s LightState) error
}

// ILightSink的函数适配
type LightSinkFunc func(d Direction, s LightState) error

func (f LightSinkFunc) SetLight(d Direction, s LightState) error {
	return f(d, s)
}

// IPlanSource的函数适配
type PlanSourceFunc func(ctx context.Context) (TrafficPhase, error)

func (f PlanSourceFunc) NextPlan(ctx context.Context) (TrafficPhase, error) {
	return f(ctx)
}
