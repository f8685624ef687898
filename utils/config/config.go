package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
)

var (
	ErrNoIntersection  = errors.New("config: no intersection configured")
	ErrDuplicatedID    = errors.New("config: duplicated intersection id")
	ErrInvalidTiming   = errors.New("config: invalid traffic light timing")
	ErrInvalidInterval = errors.New("config: step interval must be positive")
	ErrInvalidControl  = errors.New("config: control values must be positive")
)

// 默认值，与路口现场常用配时一致
const (
	defaultInterval       = 1.
	defaultMaxSteps       = 300
	defaultPollInterval   = 0.1
	defaultTimeScale      = 1.
	defaultMinGreen       = 15
	defaultMaxGreen       = 90
	defaultYellow         = 3
	defaultAllRed         = 1
	defaultRedClearance   = 2
	defaultProcessingRate = 2.
	defaultEmergencyMul   = 2.
	defaultEmergencyBonus = 20
	defaultEmergencyPen   = 10
	defaultEmergencyGreen = 30
	defaultNSGreen        = 30
	defaultEWGreen        = 25
	defaultHistorySize    = 1000
	defaultBaseRate       = 0.1
	defaultListen         = ":51102"
)

// RuntimeConfig 运行时配置
// 功能：保存补全默认值并校验后的配置
type RuntimeConfig struct {
	All Config       // 全部配置
	C   Control      // 全局控制配置
	TL  TrafficLight // 信号配时配置
}

// NewRuntimeConfig 根据配置生成运行时配置
// 功能：补全缺省字段并校验配置一致性
// 参数：config-原始配置对象
// 返回：运行时配置指针与校验错误
// 算法说明：
// 1. 对所有为零值的字段填入默认值
// 2. 校验配时常量：最短绿灯为正且不大于最长绿灯，黄灯为正
// 3. 校验步长、最大补推进步数、轮询间隔与时间缩放均为正
// 4. 校验路口列表非空且ID不重复
func NewRuntimeConfig(config Config) (*RuntimeConfig, error) {
	applyDefaults(&config)

	tl := config.TrafficLight
	if tl.MinGreen <= 0 || tl.MaxGreen < tl.MinGreen || tl.Yellow <= 0 || tl.AllRed < 0 || tl.RedClearance < 0 {
		return nil, fmt.Errorf("%w: min_green=%d max_green=%d yellow=%d", ErrInvalidTiming, tl.MinGreen, tl.MaxGreen, tl.Yellow)
	}
	ctl := config.Control
	if ctl.Step.Interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if ctl.Step.MaxSteps <= 0 || ctl.PollInterval <= 0 || ctl.TimeScale <= 0 {
		return nil, fmt.Errorf("%w: max_steps=%d poll_interval=%v time_scale=%v",
			ErrInvalidControl, ctl.Step.MaxSteps, ctl.PollInterval, ctl.TimeScale)
	}
	if len(config.Intersections) == 0 {
		return nil, ErrNoIntersection
	}
	if dup := lo.FindDuplicatesBy(config.Intersections, func(i Intersection) int32 { return i.ID }); len(dup) > 0 {
		return nil, fmt.Errorf("%w: %d", ErrDuplicatedID, dup[0].ID)
	}

	return &RuntimeConfig{
		All: config,
		C:   config.Control,
		TL:  config.TrafficLight,
	}, nil
}

// applyDefaults 补全缺省字段
func applyDefaults(c *Config) {
	setDefault(&c.Control.Step.Interval, defaultInterval)
	setDefault(&c.Control.Step.MaxSteps, defaultMaxSteps)
	setDefault(&c.Control.PollInterval, defaultPollInterval)
	setDefault(&c.Control.TimeScale, defaultTimeScale)

	tl := &c.TrafficLight
	setDefault(&tl.MinGreen, defaultMinGreen)
	setDefault(&tl.MaxGreen, defaultMaxGreen)
	setDefault(&tl.Yellow, defaultYellow)
	setDefault(&tl.AllRed, defaultAllRed)
	setDefault(&tl.RedClearance, defaultRedClearance)
	setDefault(&tl.ProcessingRate, defaultProcessingRate)
	setDefault(&tl.EmergencyMultiplier, defaultEmergencyMul)
	setDefault(&tl.EmergencyBonus, defaultEmergencyBonus)
	setDefault(&tl.EmergencyPenalty, defaultEmergencyPen)
	setDefault(&tl.EmergencyGreen, defaultEmergencyGreen)
	setDefault(&tl.DefaultNSGreen, defaultNSGreen)
	setDefault(&tl.DefaultEWGreen, defaultEWGreen)
	setDefault(&tl.HistorySize, defaultHistorySize)
	if tl.EmergencyOverride == nil {
		tl.EmergencyOverride = lo.ToPtr(true)
	}

	setDefault(&c.Simulation.BaseRate, defaultBaseRate)
	setDefault(&c.Server.Listen, defaultListen)

	for i := range c.Intersections {
		in := &c.Intersections[i]
		if in.Seed == 0 {
			in.Seed = uint64(in.ID)
		}
		if in.Name == "" {
			in.Name = fmt.Sprintf("INT%03d", in.ID)
		}
		if in.Optimization == nil {
			in.Optimization = lo.ToPtr(true)
		}
	}
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// PollInterval 相位等待的轮询间隔
func (rc *RuntimeConfig) PollInterval() time.Duration {
	return time.Duration(rc.C.PollInterval * float64(time.Second))
}

// PlanSecond 一个计划秒对应的真实时长
func (rc *RuntimeConfig) PlanSecond() time.Duration {
	return time.Duration(rc.C.TimeScale * float64(time.Second))
}
