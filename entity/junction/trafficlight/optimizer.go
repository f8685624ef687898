// 提供基于交通需求的配时优化算法
// 按南北、东西两个相位组的需求比例分配绿灯时长，并叠加时段规律、天气与紧急车辆的修正
package trafficlight

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signalsim/clock"
	"github.com/tsinghua-fib-lab/signalsim/entity"
	"github.com/tsinghua-fib-lab/signalsim/utils/config"
)

// OptimizerConfig 配时优化参数（时长单位：秒）
type OptimizerConfig struct {
	MinGreen            int     // 最短绿灯
	MaxGreen            int     // 最长绿灯
	Yellow              int     // 黄灯
	Clearance           int     // 一个周期内的清空时间之和，计入周期时长
	ProcessingRate      float64 // 绿灯期间每秒通行车辆数
	EmergencyMultiplier float64 // 紧急车辆方向绿灯上限 = MaxGreen * EmergencyMultiplier
	EmergencyBonus      int     // 紧急车辆方向绿灯增量
	EmergencyPenalty    int     // 另一方向绿灯减量
}

// OptimizerConfigFrom 从信号配时配置生成优化参数
// 说明：每个相位组之前有一次全红清空、之后有一次红灯清空，因此一个周期的清空时间为2*(AllRed+RedClearance)
func OptimizerConfigFrom(tl config.TrafficLight) OptimizerConfig {
	return OptimizerConfig{
		MinGreen:            tl.MinGreen,
		MaxGreen:            tl.MaxGreen,
		Yellow:              tl.Yellow,
		Clearance:           2 * (tl.AllRed + tl.RedClearance),
		ProcessingRate:      tl.ProcessingRate,
		EmergencyMultiplier: tl.EmergencyMultiplier,
		EmergencyBonus:      tl.EmergencyBonus,
		EmergencyPenalty:    tl.EmergencyPenalty,
	}
}

// DefaultOptimizerConfig 默认优化参数
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		MinGreen:            15,
		MaxGreen:            90,
		Yellow:              3,
		Clearance:           6,
		ProcessingRate:      2,
		EmergencyMultiplier: 2,
		EmergencyBonus:      20,
		EmergencyPenalty:    10,
	}
}

// Request 一次配时优化的输入
type Request struct {
	Counts         entity.DirectionCounts `json:"counts"`
	EmergencyCount int                    `json:"emergency_count"`
	Weather        entity.Weather         `json:"weather"`
	EmergencyAxis  *entity.Axis           `json:"emergency_axis,omitempty"` // 紧急车辆所在相位组，未知时为nil
}

// RequestFromDemand 由需求观测构造优化输入
func RequestFromDemand(d entity.Demand, w entity.Weather) Request {
	return Request{
		Counts:         d.Counts,
		EmergencyCount: d.EmergencyCount,
		Weather:        w,
		EmergencyAxis:  d.EmergencyAxis,
	}
}

// 各时段的历史需求比例（南北, 东西）
var patternRatios = map[clock.Period][entity.NumAxes]float64{
	clock.PeriodMorningRush: {0.7, 0.3},
	clock.PeriodEveningRush: {0.3, 0.7},
	clock.PeriodNormal:      {0.5, 0.5},
	clock.PeriodNight:       {0.4, 0.6},
	clock.PeriodWeekend:     {0.45, 0.55},
}

// Optimizer 配时优化器
// 功能：根据各方向车辆数、紧急车辆数与天气计算一个完整周期的配时方案
// 说明：除读取时钟外没有状态，可并发调用
type Optimizer struct {
	cfg   OptimizerConfig
	clock *clock.Clock
}

// NewOptimizer 创建配时优化器
// 参数：cfg-优化参数，c-时钟（nil时使用系统时间）
func NewOptimizer(cfg OptimizerConfig, c *clock.Clock) *Optimizer {
	return &Optimizer{cfg: cfg, clock: c}
}

// Config 优化参数
func (o *Optimizer) Config() OptimizerConfig {
	return o.cfg
}

// PredictOptimalTiming 计算最优配时
// 功能：为南北、东西两个相位组分配绿灯时长，生成完整的配时方案
// 参数：req-各方向车辆数、紧急车辆数、天气
// 返回：配时方案，名称为"<时段>_optimized"
// 算法说明：
// 1. 无车时两组均取最短绿灯
// 2. 按需求比例与时段历史比例各占一半混合，得到两组的分配比例
// 3. 按总需求选择基础周期（≤5:60s，≤15:90s，≤25:120s，其余150s），扣除两次黄灯后按比例分配，并限制在[最短绿灯, 最长绿灯]
// 4. 乘以天气系数（只会延长）
// 5. 有紧急车辆时，紧急车辆所在相位组增加绿灯（不超过最长绿灯的倍数上限），另一组减少绿灯（不低于最短绿灯）
// 6. 每组红灯时长 = 另一组绿灯 + 黄灯
func (o *Optimizer) PredictOptimalTiming(req Request) entity.TrafficPhase {
	now := o.clock.Now()
	period := clock.PeriodOf(now)
	cfg := o.cfg

	nsDemand := req.Counts.Axis(entity.NorthSouth)
	ewDemand := req.Counts.Axis(entity.EastWest)
	total := nsDemand + ewDemand

	var greens [entity.NumAxes]int
	var reasoning string
	if total == 0 {
		greens = [entity.NumAxes]int{cfg.MinGreen, cfg.MinGreen}
		reasoning = "No traffic detected, using minimal timing"
	} else {
		pattern := patternRatios[period]
		ratios := [entity.NumAxes]float64{
			(float64(nsDemand)/float64(total) + pattern[entity.NorthSouth]) / 2,
			(float64(ewDemand)/float64(total) + pattern[entity.EastWest]) / 2,
		}
		available := baseCycle(total) - 2*cfg.Yellow
		for _, a := range entity.Axes {
			greens[a] = lo.Clamp(int(float64(available)*ratios[a]), cfg.MinGreen, cfg.MaxGreen)
		}
		reasoning = fmt.Sprintf("Proportional timing: NS=%.2f, EW=%.2f, Total vehicles=%d", ratios[entity.NorthSouth], ratios[entity.EastWest], total)
	}

	factor := req.Weather.Factor()
	for _, a := range entity.Axes {
		greens[a] = int(float64(greens[a]) * factor)
	}

	priority := entity.PriorityNormal
	if req.EmergencyCount > 0 {
		priority = entity.PriorityEmergency
		axis := emergencyAxis(req)
		limit := int(float64(cfg.MaxGreen) * cfg.EmergencyMultiplier)
		greens[axis] = min(limit, greens[axis]+cfg.EmergencyBonus)
		greens[axis.Other()] = max(cfg.MinGreen, greens[axis.Other()]-cfg.EmergencyPenalty)
		reasoning += " | Emergency priority applied"
	}

	phase := entity.TrafficPhase{
		ID:         uuid.NewString(),
		Name:       period.String() + "_optimized",
		Clearance:  cfg.Clearance,
		Efficiency: o.efficiency(req.Counts, greens),
		CreatedAt:  now,
	}
	timing := func(a entity.Axis) entity.LightTiming {
		return entity.LightTiming{
			Axis:       a,
			Green:      greens[a],
			Yellow:     cfg.Yellow,
			Confidence: confidence(req.Counts.Axis(a), total),
			Priority:   priority,
			Reasoning:  reasoning,
		}
	}
	phase.NorthSouth, phase.EastWest = timing(entity.NorthSouth), timing(entity.EastWest)
	phase.Rebalance()
	return phase
}

// baseCycle 按总需求选择基础周期
func baseCycle(total int) int {
	switch {
	case total <= 5:
		return 60
	case total <= 15:
		return 90
	case total <= 25:
		return 120
	default:
		return 150
	}
}

// emergencyAxis 紧急车辆所在相位组
// 说明：未给出时，北向有车则认为在南北向，否则在东西向
func emergencyAxis(req Request) entity.Axis {
	if req.EmergencyAxis != nil {
		return *req.EmergencyAxis
	}
	if req.Counts[entity.North] > 0 {
		return entity.NorthSouth
	}
	return entity.EastWest
}

// confidence 配时置信度，车辆越多越可信，10辆以上饱和
func confidence(demand, total int) float64 {
	if total == 0 {
		return 0.5
	}
	return min(0.95, 0.7+min(1.0, float64(demand)/10)*0.2+0.1)
}

// efficiency 效率评分：绿灯期间可通行车辆数占总需求的比例
func (o *Optimizer) efficiency(counts entity.DirectionCounts, greens [entity.NumAxes]int) float64 {
	total := counts.Total()
	if total == 0 {
		return 0.8
	}
	served := lo.SumBy(entity.Axes[:], func(a entity.Axis) float64 {
		return min(float64(counts.Axis(a)), float64(greens[a])*o.cfg.ProcessingRate)
	})
	return min(1.0, served/float64(total))
}

// Change 相位组下一次灯色变化的预测
type Change struct {
	Next    entity.LightState `json:"next"`
	Seconds int               `json:"seconds"`
}

// NextChange 预测两个相位组的下一次灯色变化
// 参数：phase-当前配时方案（nil时按南北绿灯、东西红灯各30秒估计），states-两个相位组的当前灯色
// 返回：每个相位组的下一灯色与距离变化的秒数
// 说明：绿灯之后为黄灯，黄灯之后为红灯，其余状态之后为绿灯
func (o *Optimizer) NextChange(phase *entity.TrafficPhase, states map[entity.Axis]entity.LightState) map[entity.Axis]Change {
	if phase == nil {
		return map[entity.Axis]Change{
			entity.NorthSouth: {Next: entity.Green, Seconds: 30},
			entity.EastWest:   {Next: entity.Red, Seconds: 30},
		}
	}
	out := make(map[entity.Axis]Change, entity.NumAxes)
	for _, a := range entity.Axes {
		t := phase.Timing(a)
		switch states[a] {
		case entity.Green:
			out[a] = Change{Next: entity.Yellow, Seconds: t.Green}
		case entity.Yellow:
			out[a] = Change{Next: entity.Red, Seconds: t.Yellow}
		default:
			other := phase.Timing(a.Other())
			out[a] = Change{Next: entity.Green, Seconds: other.Green + other.Yellow}
		}
	}
	return out
}

// ScheduleEntry 配时计划表中的一项
type ScheduleEntry struct {
	Hour            string  `json:"hour"`
	NorthSouthGreen int     `json:"north_south_green"`
	EastWestGreen   int     `json:"east_west_green"`
	CycleTime       int     `json:"cycle_time"`
	Efficiency      float64 `json:"efficiency"`
	Pattern         string  `json:"pattern"`
}

// 各时段的典型车辆数，用于生成计划表
var typicalCounts = map[clock.Period]entity.DirectionCounts{
	clock.PeriodMorningRush: {8, 6, 12, 10},
	clock.PeriodEveningRush: {8, 6, 12, 10},
	clock.PeriodNight:       {1, 1, 2, 1},
	clock.PeriodNormal:      {4, 3, 5, 4},
	clock.PeriodWeekend:     {4, 3, 5, 4},
}

// ExportSchedule 生成按小时的配时计划表
// 功能：以每小时的典型车辆数计算当天各整点的配时
// 参数：hours-小时数（最多24），day-日期（决定是否为周末）
// 返回：按小时排列的计划表
func (o *Optimizer) ExportSchedule(hours int, day time.Time) []ScheduleEntry {
	hours = lo.Clamp(hours, 0, 24)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return lo.Times(hours, func(h int) ScheduleEntry {
		at := start.Add(time.Duration(h) * time.Hour)
		hourly := NewOptimizer(o.cfg, clock.NewManual(at))
		phase := hourly.PredictOptimalTiming(Request{Counts: typicalCounts[clock.PeriodOf(at)]})
		return ScheduleEntry{
			Hour:            fmt.Sprintf("%02d:00", h),
			NorthSouthGreen: phase.NorthSouth.Green,
			EastWestGreen:   phase.EastWest.Green,
			CycleTime:       phase.TotalCycle,
			Efficiency:      phase.Efficiency,
			Pattern:         phase.Name,
		}
	})
}
