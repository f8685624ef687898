package junction

import (
	"context"

	"github.com/tsinghua-fib-lab/signalsim/entity"
	"github.com/tsinghua-fib-lab/signalsim/entity/demand"
	"github.com/tsinghua-fib-lab/signalsim/entity/junction/trafficlight"
)

// 依赖倒置，表达junction对需求仿真与信号机实现的接口需求

// 需求仿真接口
type IDemandSimulator interface {
	entity.IDemandSource
	Tick(dt float64)                // 推进仿真
	Counts() demand.ZoneCounts      // 各区域分车型计数
	Statistics() demand.Statistics  // 仿真统计
	Detections() []demand.Detection // 检测记录
	SetScenario(name string) error  // 手动指定场景
	ClearScenario()                 // 恢复自动选择场景
	Scenario() (demand.Profile, bool)
	Len() int // 画面内车辆数
}

// 信号机读取接口
type IControllerGetter interface {
	CurrentStates() map[entity.Direction]entity.LightState // 各方向灯色
	Statistics() trafficlight.Statistics                   // 运行统计
	ActivePlan() (entity.TrafficPhase, bool)               // 当前方案
	Running() bool                                         // 是否运行
}

// 信号机接口
type IController interface {
	IControllerGetter
	Start(ctx context.Context) error // 启动循环
	Stop()                           // 停止循环（结束于全向红闪）

	OverrideEmergency(dir entity.Direction, seconds int) error    // 紧急车辆抢占
	EmergencyVehicle(dir entity.Direction) (bool, error)          // 检测到紧急车辆（按配置自动抢占）
	SetEmergencyMode(on bool)                                     // 全向红闪保护锁定
	SetManualTiming(dir entity.Direction, green int) (int, error) // 手动配时
	EnableOptimization(on bool)                                   // 启停配时优化
}

var (
	_ IDemandSimulator = (*demand.Simulator)(nil)
	_ IController      = (*trafficlight.Controller)(nil)
)
