package junction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/signalsim/clock"
	"github.com/tsinghua-fib-lab/signalsim/entity"
	"github.com/tsinghua-fib-lab/signalsim/entity/demand"
	"github.com/tsinghua-fib-lab/signalsim/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/signalsim/utils/config"
)

var (
	ErrUnknownWeather = errors.New("unknown weather")
)

// Statistics 路口统计
type Statistics struct {
	ID                int32                   `json:"id"`
	Name              string                  `json:"name"`
	Weather           entity.Weather          `json:"weather"`
	Controller        trafficlight.Statistics `json:"controller"`
	Demand            demand.Statistics       `json:"demand"`
	LastCounts        entity.DirectionCounts  `json:"last_counts"` // 最近一次拉取方案时的各方向车辆数
	LastEmergency     int                     `json:"last_emergency"`
	EmergencyDispatch uint64                  `json:"emergency_dispatch"` // 按检测到的紧急车辆发起的抢占次数
}

// Info 路口概况
type Info struct {
	ID                  int32          `json:"id"`
	Name                string         `json:"name"`
	Weather             entity.Weather `json:"weather"`
	Scenario            string         `json:"scenario"`
	ManualScenario      bool           `json:"manual_scenario"`
	Running             bool           `json:"running"`
	OptimizationEnabled bool           `json:"optimization_enabled"`
	EmergencyMode       bool           `json:"emergency_mode"`
}

// Junction 路口
// 功能：组装一个路口的需求仿真、配时优化与信号机，作为信号机的配时来源
// 说明：每次信号机拉取方案时，按距上次拉取经过的计划时间推进需求仿真，再以当前需求与天气计算配时
type Junction struct {
	id    int32
	name  string
	clock *clock.Clock

	interval   float64       // 仿真步长（秒）
	maxSteps   int           // 单次最多推进步数
	planSecond time.Duration // 一个计划秒的真实时长

	simulator  IDemandSimulator
	optimizer  *trafficlight.Optimizer
	controller IController

	mtx         sync.Mutex
	weather     entity.Weather
	lastAdvance time.Time
	pending     float64 // 尚未推进的仿真秒数
	lastDemand  entity.Demand
	dispatched  map[string]struct{} // 已经发起过抢占的紧急车辆
	dispatches  uint64

	log *logrus.Entry
}

// newJunction 创建路口
// 参数：rc-运行时配置，in-路口配置，clk-时钟，optimizer-配时优化器，opts-信号机附加选项
func newJunction(
	rc *config.RuntimeConfig,
	in config.Intersection,
	clk *clock.Clock,
	optimizer *trafficlight.Optimizer,
	opts ...trafficlight.Option,
) *Junction {
	j := &Junction{
		id:          in.ID,
		name:        in.Name,
		clock:       clk,
		interval:    rc.C.Step.Interval,
		maxSteps:    rc.C.Step.MaxSteps,
		planSecond:  rc.PlanSecond(),
		optimizer:   optimizer,
		lastAdvance: clk.Now(),
		dispatched:  make(map[string]struct{}),
		log:         log.WithField("junction", in.ID),
	}

	sim := demand.New(in.Name, in.Seed, demand.WithClock(clk), demand.WithBaseRate(rc.All.Simulation.BaseRate))
	if in.Scenario != "" {
		if err := sim.SetScenario(in.Scenario); err != nil {
			j.log.Warnf("ignore scenario of %s: %v", in.Name, err)
		}
	}
	j.simulator = sim

	if in.Weather != "" {
		if err := j.SetWeather(in.Weather); err != nil {
			j.log.Warnf("ignore weather of %s: %v", in.Name, err)
		}
	}

	base := []trafficlight.Option{
		trafficlight.WithClock(clk),
		trafficlight.WithPlanSecond(rc.PlanSecond()),
		trafficlight.WithPollInterval(rc.PollInterval()),
	}
	j.controller = trafficlight.NewController(in.ID, rc.TL, j, lo.FromPtrOr(in.Optimization, true), append(base, opts...)...)
	return j
}

// ID 路口ID
func (j *Junction) ID() int32 { return j.id }

// Name 路口名称
func (j *Junction) Name() string { return j.name }

// Controller 信号机
func (j *Junction) Controller() IController { return j.controller }

// Simulator 需求仿真器
func (j *Junction) Simulator() IDemandSimulator { return j.simulator }

// Start 启动信号机
func (j *Junction) Start(ctx context.Context) error {
	return j.controller.Start(ctx)
}

// Stop 停止信号机，结束于全向红闪
func (j *Junction) Stop() {
	j.controller.Stop()
}

// NextPlan 计算下一个周期的配时方案，实现entity.IPlanSource
// 功能：推进需求仿真，对新出现的紧急车辆发起抢占，再以当前需求与天气计算最优配时
func (j *Junction) NextPlan(ctx context.Context) (entity.TrafficPhase, error) {
	if err := ctx.Err(); err != nil {
		return entity.TrafficPhase{}, err
	}
	j.mtx.Lock()
	j.advanceLocked()
	d := j.simulator.Demand()
	w := j.weather
	j.lastDemand = d
	emergencies := j.newEmergenciesLocked()
	j.mtx.Unlock()

	for _, dir := range emergencies {
		ok, err := j.controller.EmergencyVehicle(dir)
		if err != nil {
			j.log.Warnf("emergency vehicle from %v not preempted: %v", dir, err)
			continue
		}
		if ok {
			j.mtx.Lock()
			j.dispatches++
			j.mtx.Unlock()
		}
	}

	plan := j.optimizer.PredictOptimalTiming(trafficlight.RequestFromDemand(d, w))
	j.log.Debugf("plan %s: NS %ds, EW %ds, demand %v, weather %v",
		plan.Name, plan.NorthSouth.Green, plan.EastWest.Green, d.Counts.Map(), w)
	return plan, nil
}

// advanceLocked 按经过的计划时间推进需求仿真（调用方持锁）
// 算法说明：
// 1. 经过的真实时间换算为计划秒，与上次剩余的时间累加
// 2. 按整步推进，不足一步的部分留到下次
// 3. 长时间未推进时最多推进maxSteps步，丢弃其余时间
func (j *Junction) advanceLocked() {
	now := j.clock.Now()
	elapsed := now.Sub(j.lastAdvance)
	j.lastAdvance = now
	if elapsed <= 0 {
		return
	}
	j.pending += float64(elapsed) / float64(j.planSecond)
	steps := int(j.pending / j.interval)
	if steps == 0 {
		return
	}
	j.pending -= float64(steps) * j.interval
	if steps > j.maxSteps {
		j.log.Debugf("simulation lagged %d steps, advancing %d", steps, j.maxSteps)
		steps = j.maxSteps
		j.pending = 0
	}
	for range steps {
		j.simulator.Tick(j.interval)
	}
}

// newEmergenciesLocked 新出现的紧急车辆的来车方向（调用方持锁）
func (j *Junction) newEmergenciesLocked() []entity.Direction {
	seen := make(map[string]struct{})
	var dirs []entity.Direction
	for _, det := range j.simulator.Detections() {
		if det.Class != entity.Emergency {
			continue
		}
		seen[det.VehicleID] = struct{}{}
		if _, ok := j.dispatched[det.VehicleID]; !ok {
			dirs = append(dirs, det.Direction)
		}
	}
	j.dispatched = seen
	return lo.Uniq(dirs)
}

// Counts 推进仿真后的各区域车辆计数
func (j *Junction) Counts() demand.ZoneCounts {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	j.advanceLocked()
	return j.simulator.Counts()
}

// Detections 推进仿真后的检测记录
func (j *Junction) Detections() []demand.Detection {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	j.advanceLocked()
	return j.simulator.Detections()
}

// Weather 当前天气
func (j *Junction) Weather() entity.Weather {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	return j.weather
}

// SetWeather 设置天气，下一个周期生效
// 返回：未知天气返回ErrUnknownWeather，天气保持不变
func (j *Junction) SetWeather(s string) error {
	w, ok := entity.ParseWeather(s)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownWeather, s)
	}
	j.mtx.Lock()
	defer j.mtx.Unlock()
	j.weather = w
	j.log.Infof("weather set to %v (factor %.1f)", w, w.Factor())
	return nil
}

// SetScenario 设置需求场景，空字符串表示恢复按时段自动选择
func (j *Junction) SetScenario(name string) (demand.Profile, bool, error) {
	if name == "" {
		j.simulator.ClearScenario()
	} else if err := j.simulator.SetScenario(name); err != nil {
		return demand.Profile{}, false, err
	}
	p, manual := j.simulator.Scenario()
	return p, manual, nil
}

// States 当前各方向灯色与两个相位组的下一次变化预测
func (j *Junction) States() (map[entity.Direction]entity.LightState, map[entity.Axis]trafficlight.Change) {
	states := j.controller.CurrentStates()
	axisStates := map[entity.Axis]entity.LightState{
		entity.NorthSouth: states[entity.North],
		entity.EastWest:   states[entity.East],
	}
	var next map[entity.Axis]trafficlight.Change
	if plan, ok := j.controller.ActivePlan(); ok {
		next = j.optimizer.NextChange(&plan, axisStates)
	} else {
		next = j.optimizer.NextChange(nil, axisStates)
	}
	return states, next
}

// Statistics 路口统计
func (j *Junction) Statistics() Statistics {
	j.mtx.Lock()
	j.advanceLocked()
	st := Statistics{
		ID:                j.id,
		Name:              j.name,
		Weather:           j.weather,
		Demand:            j.simulator.Statistics(),
		LastCounts:        j.lastDemand.Counts,
		LastEmergency:     j.lastDemand.EmergencyCount,
		EmergencyDispatch: j.dispatches,
	}
	j.mtx.Unlock()
	st.Controller = j.controller.Statistics()
	return st
}

// Info 路口概况
func (j *Junction) Info() Info {
	p, manual := j.simulator.Scenario()
	st := j.controller.Statistics()
	return Info{
		ID:                  j.id,
		Name:                j.name,
		Weather:             j.Weather(),
		Scenario:            p.Name,
		ManualScenario:      manual,
		Running:             st.Running,
		OptimizationEnabled: st.OptimizationEnabled,
		EmergencyMode:       st.EmergencyMode,
	}
}
