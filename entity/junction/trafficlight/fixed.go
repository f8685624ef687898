package trafficlight

import (
	"time"

	"github.com/google/uuid"
	"github.com/tsinghua-fib-lab/signalsim/entity"
)

const fixedPlanName = "fixed_default"

// FixedPlan 固定配时方案
// 功能：在未启用配时优化或优化不可用时使用的固定周期
// 参数：cfg-优化参数（提供黄灯与清空时间），nsGreen、ewGreen-两组绿灯时长，now-创建时间
func FixedPlan(cfg OptimizerConfig, nsGreen, ewGreen int, now time.Time) entity.TrafficPhase {
	timing := func(a entity.Axis, green int) entity.LightTiming {
		return entity.LightTiming{
			Axis:       a,
			Green:      green,
			Yellow:     cfg.Yellow,
			Confidence: 1,
			Priority:   entity.PriorityNormal,
			Reasoning:  "Fixed timing",
		}
	}
	phase := entity.TrafficPhase{
		ID:         uuid.NewString(),
		Name:       fixedPlanName,
		NorthSouth: timing(entity.NorthSouth, nsGreen),
		EastWest:   timing(entity.EastWest, ewGreen),
		Clearance:  cfg.Clearance,
		CreatedAt:  now,
	}
	phase.Rebalance()
	return phase
}
