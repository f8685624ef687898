package trafficlight

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
	"github.com/tsinghua-fib-lab/signalsim/utils/config"
	"github.com/tsinghua-fib-lab/signalsim/utils/container"
)

var (
	ErrAlreadyRunning   = errors.New("controller already running")
	ErrNotRunning       = errors.New("controller not running")
	ErrInvalidDuration  = errors.New("preemption duration must be positive")
	ErrEmergencyLatched = errors.New("controller latched in emergency mode")
	ErrUnsafeState      = errors.New("conflicting green for both axes")
	ErrPhasePanic       = errors.New("panic while executing phase")

	// 相位等待被抢占或保护锁定打断，不是故障
	errInterrupted = errors.New("phase interrupted")
)

const recentCycles = 10

// CycleRecord 一个完整周期的执行记录
type CycleRecord struct {
	Cycle           uint64          `json:"cycle"`
	PlanID          string          `json:"plan_id"`
	PlanName        string          `json:"plan_name"`
	NorthSouthGreen int             `json:"north_south_green"`
	EastWestGreen   int             `json:"east_west_green"`
	Yellow          int             `json:"yellow"`
	Priority        entity.Priority `json:"priority"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
}

// Statistics 信号机运行统计
type Statistics struct {
	JunctionID          int32                                  `json:"junction_id"`
	TotalCycles         uint64                                 `json:"total_cycles"`
	EmergencyOverrides  uint64                                 `json:"emergency_overrides"`
	Faults              uint64                                 `json:"faults"`
	StalePlans          uint64                                 `json:"stale_plans"`
	Running             bool                                   `json:"running"`
	OptimizationEnabled bool                                   `json:"optimization_enabled"`
	EmergencyMode       bool                                   `json:"emergency_mode"`
	Preempting          bool                                   `json:"preempting"`
	ActiveAxis          entity.Axis                            `json:"active_axis"`
	CurrentStates       map[entity.Direction]entity.LightState `json:"current_states"`
	UptimeSeconds       float64                                `json:"uptime_seconds"`
	LastFault           string                                 `json:"last_fault,omitempty"`
	RecentCycles        []CycleRecord                          `json:"recent_cycles"`
}

// Controller 单路口信号机
// 功能：按配时方案循环执行全红清空、绿灯、黄灯、红灯清空，支持紧急车辆抢占与全向红闪保护
// 说明：
// 1. 每个路口一个实例，循环在独立的goroutine中执行，配时方案在每个完整周期开始时拉取一次
// 2. 所有灯色变化都经过持锁的apply，两个相位组不会同时放行
// 3. 相位等待按轮询间隔检查停止、抢占与保护锁定，停止后必定处于全向红闪
type Controller struct {
	junctionID int32
	tl         config.TrafficLight
	optCfg     OptimizerConfig
	planner    entity.IPlanSource
	sink       entity.ILightSink
	clock      *clock.Clock
	poll       time.Duration // 轮询间隔
	second     time.Duration // 一个计划秒的真实时长

	mtx          sync.Mutex
	states       [entity.NumDirections]entity.LightState
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}
	startedAt    time.Time
	preemptUntil time.Time // 抢占结束时刻（真实时间），零值表示没有抢占
	preemptDir   entity.Direction
	preempts     uint64        // 抢占次数，相位执行期间变化即视为被打断
	released     uint64        // 已完成黄灯过渡的抢占序号
	wake         chan struct{} // 抢占或锁定时唤醒正在等待的循环
	latched      bool          // 全向红闪保护锁定
	optimization bool
	fixed        entity.TrafficPhase  // 固定配时方案，手动配时会修改它
	active       *entity.TrafficPhase // 当前周期使用的方案
	activeAxis   entity.Axis          // 下一个（或正在）放行的相位组

	totalCycles        uint64
	emergencyOverrides uint64
	faults             uint64
	stalePlans         uint64
	lastFault          string
	history            *container.Ring[CycleRecord]

	log *logrus.Entry
}

// Option 信号机选项
type Option func(*Controller)

// WithLightSink 指定灯具硬件回调
func WithLightSink(s entity.ILightSink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithClock 指定时钟，用于方案时间戳与运行时长
func WithClock(clk *clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithPollInterval 指定相位等待的轮询间隔
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.poll = d
		}
	}
}

// WithPlanSecond 指定一个计划秒对应的真实时长，用于加速运行
func WithPlanSecond(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.second = d
		}
	}
}

// NewController 创建信号机
// 参数：junctionID-路口ID，tl-信号配时配置（已补全默认值），planner-配时来源（nil时只使用固定配时），optimization-是否启用配时优化，opts-选项
// 返回：信号机指针，初始状态为全向红灯
func NewController(junctionID int32, tl config.TrafficLight, planner entity.IPlanSource, optimization bool, opts ...Option) *Controller {
	c := &Controller{
		junctionID:   junctionID,
		tl:           tl,
		optCfg:       OptimizerConfigFrom(tl),
		planner:      planner,
		poll:         100 * time.Millisecond,
		second:       time.Second,
		optimization: optimization,
		activeAxis:   entity.NorthSouth,
		history:      container.NewRing[CycleRecord](tl.HistorySize),
		wake:         make(chan struct{}, 1),
		log:          log.WithField("junction", junctionID),
	}
	for _, o := range opts {
		o(c)
	}
	c.fixed = FixedPlan(c.optCfg, tl.DefaultNSGreen, tl.DefaultEWGreen, c.clock.Now())
	for i := range c.states {
		c.states[i] = entity.Red
	}
	return c
}

// Start 启动信号机循环
// 参数：ctx-上下文，取消时循环退出并与Stop一样置为全向红闪
// 返回：已在运行时返回ErrAlreadyRunning
func (c *Controller) Start(ctx context.Context) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}
	if !c.latched {
		if err := c.applyLocked(uniform(entity.Red)); err != nil {
			c.faultLocked(err)
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	c.startedAt = c.clock.Now()
	c.preemptUntil = time.Time{}
	c.released = c.preempts
	go c.loop(ctx, c.done)
	c.log.Info("controller started")
	return nil
}

// Stop 停止信号机循环
// 功能：取消循环并等待其退出，最后将四个方向都置为红闪
// 说明：循环在一个轮询间隔内响应停止；未运行时也会设置全向红闪
func (c *Controller) Stop() {
	c.mtx.Lock()
	cancel, done, running := c.cancel, c.done, c.running
	c.mtx.Unlock()
	if running {
		cancel()
		<-done
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.running = false
	c.preemptUntil = time.Time{}
	if err := c.applyLocked(uniform(entity.FlashingRed)); err != nil {
		c.log.Errorf("set flashing red on stop: %v", err)
	}
	if running {
		c.log.Info("controller stopped")
	}
}

// exit 循环退出时的清理：无论因Stop还是ctx取消退出，都结束抢占并置为全向红闪
func (c *Controller) exit() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.running = false
	c.preemptUntil = time.Time{}
	c.released = c.preempts
	if err := c.applyLocked(uniform(entity.FlashingRed)); err != nil {
		c.states = uniform(entity.FlashingRed)
		c.log.Errorf("set flashing red on exit: %v", err)
	}
	c.log.Debug("controller loop exited")
}

// Running 是否正在运行
func (c *Controller) Running() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.running
}

// OverrideEmergency 紧急车辆抢占
// 功能：立即将指定方向置为绿灯、其余方向置为红灯，保持seconds秒后从全红清空恢复正常循环
// 参数：dir-优先方向，seconds-抢占时长（计划秒）
// 返回：未运行返回ErrNotRunning，时长非正返回ErrInvalidDuration，保护锁定时返回ErrEmergencyLatched
func (c *Controller) OverrideEmergency(dir entity.Direction, seconds int) error {
	if !dir.Valid() {
		return entity.ErrInvalidDirection
	}
	if seconds <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDuration, seconds)
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if !c.running {
		return ErrNotRunning
	}
	if c.latched {
		return ErrEmergencyLatched
	}
	next := uniform(entity.Red)
	next[dir] = entity.Green
	if err := c.applyLocked(next); err != nil {
		c.faultLocked(err)
		return err
	}
	c.preemptUntil = time.Now().Add(time.Duration(seconds) * c.second)
	c.preemptDir = dir
	c.preempts++
	c.emergencyOverrides++
	c.notifyLocked()
	c.log.Warnf("emergency override: %v green for %ds", dir, seconds)
	return nil
}

// EmergencyVehicle 检测到紧急车辆
// 功能：配置允许自动抢占时，以默认抢占时长为该方向抢占
// 返回：是否发起了抢占，以及抢占错误
func (c *Controller) EmergencyVehicle(dir entity.Direction) (bool, error) {
	c.log.Warnf("emergency vehicle detected: %v", dir)
	if c.tl.EmergencyOverride == nil || !*c.tl.EmergencyOverride {
		return false, nil
	}
	if err := c.OverrideEmergency(dir, c.tl.EmergencyGreen); err != nil {
		return false, err
	}
	return true, nil
}

// SetEmergencyMode 设置或解除全向红闪保护锁定
// 说明：锁定期间循环保持全向红闪，解除后从全红清空重新开始
func (c *Controller) SetEmergencyMode(on bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if on == c.latched {
		return
	}
	c.latched = on
	if on {
		c.emergencyOverrides++
		c.preemptUntil = time.Time{}
		c.released = c.preempts
		if err := c.applyLocked(uniform(entity.FlashingRed)); err != nil {
			c.log.Errorf("set flashing red: %v", err)
		}
		c.notifyLocked()
		c.log.Warn("emergency mode activated, all lights flashing red")
	} else {
		c.log.Info("emergency mode cleared")
	}
}

// SetManualTiming 手动设置方向所在相位组的绿灯时长
// 功能：修改固定配时方案，并立即修改当前方案，直到下一次拉取优化方案
// 返回：限制在[最短绿灯, 最长绿灯]之后实际生效的值
func (c *Controller) SetManualTiming(dir entity.Direction, green int) (int, error) {
	if !dir.Valid() {
		return 0, entity.ErrInvalidDirection
	}
	green = lo.Clamp(green, c.tl.MinGreen, c.tl.MaxGreen)
	axis := dir.Axis()
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.fixed.SetGreen(axis, green)
	if c.active != nil {
		c.active.SetGreen(axis, green)
	}
	c.log.Infof("manual timing set: %v = %ds", axis, green)
	return green, nil
}

// EnableOptimization 启用或停用配时优化，停用时使用固定配时
func (c *Controller) EnableOptimization(on bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.optimization = on
	c.log.Infof("optimization enabled: %v", on)
}

// CurrentStates 当前各方向灯色快照
func (c *Controller) CurrentStates() map[entity.Direction]entity.LightState {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.statesLocked()
}

func (c *Controller) statesLocked() map[entity.Direction]entity.LightState {
	m := make(map[entity.Direction]entity.LightState, entity.NumDirections)
	for _, d := range entity.Directions {
		m[d] = c.states[d]
	}
	return m
}

// ActivePlan 当前周期使用的方案
// 返回：方案与是否存在（尚未执行过周期时为false）
func (c *Controller) ActivePlan() (entity.TrafficPhase, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.active == nil {
		return entity.TrafficPhase{}, false
	}
	return *c.active, true
}

// FixedPlan 固定配时方案
func (c *Controller) FixedPlan() entity.TrafficPhase {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.fixed
}

// Statistics 运行统计
func (c *Controller) Statistics() Statistics {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	st := Statistics{
		JunctionID:          c.junctionID,
		TotalCycles:         c.totalCycles,
		EmergencyOverrides:  c.emergencyOverrides,
		Faults:              c.faults,
		StalePlans:          c.stalePlans,
		Running:             c.running,
		OptimizationEnabled: c.optimization,
		EmergencyMode:       c.latched,
		Preempting:          c.preemptingLocked(),
		ActiveAxis:          c.activeAxis,
		CurrentStates:       c.statesLocked(),
		LastFault:           c.lastFault,
		RecentCycles:        c.history.Last(recentCycles),
	}
	if c.running {
		st.UptimeSeconds = c.clock.Now().Sub(c.startedAt).Seconds()
	}
	return st
}

// uniform 四个方向相同的灯色
func uniform(s entity.LightState) [entity.NumDirections]entity.LightState {
	return [entity.NumDirections]entity.LightState{s, s, s, s}
}

// moving 允许车辆通行的灯色
func moving(s entity.LightState) bool {
	return s == entity.Green || s == entity.Yellow
}

// applyLocked 设置四个方向的灯色（调用方持锁）
// 功能：所有灯色变化的唯一入口，保证变化严格串行且两个相位组不会同时放行
// 返回：冲突放行返回ErrUnsafeState；硬件回调失败返回其错误
// 算法说明：先向硬件下发停止通行的方向，再下发放行的方向
func (c *Controller) applyLocked(next [entity.NumDirections]entity.LightState) error {
	var open [entity.NumAxes]bool
	for _, d := range entity.Directions {
		if moving(next[d]) {
			open[d.Axis()] = true
		}
	}
	if open[entity.NorthSouth] && open[entity.EastWest] {
		return fmt.Errorf("%w: %v", ErrUnsafeState, next)
	}
	prev := c.states
	c.states = next
	for _, pass := range []bool{false, true} {
		for _, d := range entity.Directions {
			if next[d] == prev[d] || moving(next[d]) != pass {
				continue
			}
			if err := c.setLight(d, next[d]); err != nil {
				return fmt.Errorf("set %v %v: %w", d, next[d], err)
			}
			c.log.Debugf("%v: %v", d, next[d])
		}
	}
	return nil
}

// setLight 调用硬件回调，回调panic时转换为错误
func (c *Controller) setLight(d entity.Direction, s entity.LightState) (err error) {
	if c.sink == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: light sink: %v", ErrPhasePanic, r)
		}
	}()
	return c.sink.SetLight(d, s)
}

func (c *Controller) preemptingLocked() bool {
	return !c.preemptUntil.IsZero() && time.Now().Before(c.preemptUntil)
}

// interruptedLocked 相位自gen之后是否被抢占或锁定打断
// 说明：比较抢占序号而不是只看抢占是否仍在进行，短于一个轮询间隔的抢占也不会被漏掉
func (c *Controller) interruptedLocked(gen uint64) bool {
	return c.latched || c.preemptingLocked() || c.preempts != gen
}

func (c *Controller) notifyLocked() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// faultLocked 故障保护（调用方持锁）
// 功能：立即进入全向红闪并锁定，记录故障
func (c *Controller) faultLocked(cause error) {
	c.faults++
	c.emergencyOverrides++
	c.latched = true
	c.preemptUntil = time.Time{}
	c.lastFault = cause.Error()
	c.log.Errorf("phase fault, switching to flashing red: %v", cause)
	if err := c.applyLocked(uniform(entity.FlashingRed)); err != nil {
		// 硬件不可用时仍以内部状态为准
		c.states = uniform(entity.FlashingRed)
		c.log.Errorf("set flashing red after fault: %v", err)
	}
}

func (c *Controller) fault(cause error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.faultLocked(cause)
}

// apply 循环内的灯色变化，相位自gen之后被打断时返回errInterrupted
func (c *Controller) apply(gen uint64, next [entity.NumDirections]entity.LightState) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.interruptedLocked(gen) {
		return errInterrupted
	}
	return c.applyLocked(next)
}

// loop 信号机主循环
func (c *Controller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.exit()
	for ctx.Err() == nil {
		c.mtx.Lock()
		latched, preempting, gen := c.latched, c.preemptingLocked(), c.preempts
		c.mtx.Unlock()
		switch {
		case latched:
			c.sleep(ctx, c.poll)
		case preempting:
			c.holdPreemption(ctx)
		default:
			if err := c.releasePreemption(ctx, gen); err != nil {
				if !errors.Is(err, errInterrupted) && ctx.Err() == nil {
					c.fault(err)
				}
				continue
			}
			c.runCycle(ctx, gen)
		}
	}
}

// holdPreemption 等待抢占结束
func (c *Controller) holdPreemption(ctx context.Context) {
	for {
		c.mtx.Lock()
		preempting, latched, until := c.preemptingLocked(), c.latched, c.preemptUntil
		c.mtx.Unlock()
		if !preempting || latched || !c.sleep(ctx, min(time.Until(until), c.poll)) {
			return
		}
	}
}

// releasePreemption 抢占结束后的过渡
// 功能：优先方向仍为绿灯时先黄灯yellow秒，再交给正常循环从全红清空开始
// 返回：没有待过渡的抢占时返回nil；过渡中被新的抢占或锁定打断返回errInterrupted
func (c *Controller) releasePreemption(ctx context.Context, gen uint64) error {
	c.mtx.Lock()
	if c.released == gen {
		c.mtx.Unlock()
		return nil
	}
	c.released = gen
	dir := c.preemptDir
	green := c.states[dir] == entity.Green
	c.mtx.Unlock()

	if green {
		next := uniform(entity.Red)
		next[dir] = entity.Yellow
		if err := c.apply(gen, next); err != nil {
			return err
		}
		if err := c.wait(ctx, gen, c.tl.Yellow); err != nil {
			return err
		}
	}
	c.log.Infof("emergency override for %v released", dir)
	return nil
}

// sleep 等待d，被抢占或锁定唤醒时提前返回true，ctx取消时返回false
func (c *Controller) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.wake:
		return true
	case <-t.C:
		return true
	}
}

// wait 等待seconds个计划秒
// 说明：每个轮询间隔（或被唤醒时）检查一次抢占与锁定，相位自gen之后被打断返回errInterrupted，ctx取消返回ctx.Err()
func (c *Controller) wait(ctx context.Context, gen uint64, seconds int) error {
	deadline := time.Now().Add(time.Duration(seconds) * c.second)
	for {
		c.mtx.Lock()
		interrupted := c.interruptedLocked(gen)
		c.mtx.Unlock()
		if interrupted {
			return errInterrupted
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if !c.sleep(ctx, min(remaining, c.poll)) {
			return ctx.Err()
		}
	}
}

// runCycle 执行一个完整周期：拉取方案后依次放行两个相位组
// 说明：执行中的任何错误或panic都会触发故障保护，不在相位中途重试
func (c *Controller) runCycle(ctx context.Context, gen uint64) {
	defer func() {
		if r := recover(); r != nil {
			c.fault(fmt.Errorf("%w: %v", ErrPhasePanic, r))
		}
	}()

	started := c.clock.Now()
	plan, err := c.nextPlan(ctx)
	if err != nil {
		return
	}
	if err := plan.Validate(); err != nil {
		c.fault(err)
		return
	}

	for range entity.NumAxes {
		c.mtx.Lock()
		axis := c.activeAxis
		c.mtx.Unlock()
		if err := c.runAxis(ctx, gen, axis); err != nil {
			switch {
			case errors.Is(err, errInterrupted), ctx.Err() != nil:
			default:
				c.fault(err)
			}
			return
		}
		c.mtx.Lock()
		c.activeAxis = axis.Other()
		c.mtx.Unlock()
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.totalCycles++
	used := plan
	if c.active != nil {
		used = *c.active
	}
	c.history.Push(CycleRecord{
		Cycle:           c.totalCycles,
		PlanID:          used.ID,
		PlanName:        used.Name,
		NorthSouthGreen: used.NorthSouth.Green,
		EastWestGreen:   used.EastWest.Green,
		Yellow:          used.NorthSouth.Yellow,
		Priority:        max(used.NorthSouth.Priority, used.EastWest.Priority),
		StartedAt:       started,
		FinishedAt:      c.clock.Now(),
	})
}

// runAxis 放行一个相位组：全红清空、绿灯、黄灯、红灯清空
func (c *Controller) runAxis(ctx context.Context, gen uint64, axis entity.Axis) error {
	if err := c.apply(gen, uniform(entity.Red)); err != nil {
		return err
	}
	if err := c.wait(ctx, gen, c.tl.AllRed); err != nil {
		return err
	}

	// 绿灯时长在放行时读取，使手动配时对当前周期生效
	c.mtx.Lock()
	timing := c.active.Timing(axis)
	c.mtx.Unlock()
	c.log.Debugf("green phase: %v for %ds", axis, timing.Green)

	for _, step := range []struct {
		state   entity.LightState
		seconds int
	}{
		{entity.Green, timing.Green},
		{entity.Yellow, timing.Yellow},
		{entity.Red, c.tl.RedClearance},
	} {
		next := uniform(entity.Red)
		for _, d := range axis.Directions() {
			next[d] = step.state
		}
		if err := c.apply(gen, next); err != nil {
			return err
		}
		if err := c.wait(ctx, gen, step.seconds); err != nil {
			return err
		}
	}
	return nil
}

// nextPlan 拉取本周期的配时方案
// 说明：停用优化或没有配时来源时使用固定配时；配时来源出错时沿用上一个方案（没有则用固定配时）
func (c *Controller) nextPlan(ctx context.Context) (entity.TrafficPhase, error) {
	c.mtx.Lock()
	optimization := c.optimization && c.planner != nil
	plan := c.fixed
	last := c.active
	c.mtx.Unlock()

	if optimization {
		p, err := c.planner.NextPlan(ctx)
		switch {
		case err == nil:
			plan = p
		case ctx.Err() != nil:
			return entity.TrafficPhase{}, ctx.Err()
		default:
			c.mtx.Lock()
			c.stalePlans++
			c.mtx.Unlock()
			if last != nil {
				plan = *last
			}
			c.log.Warnf("plan source failed, reusing %s plan: %v", plan.Name, err)
		}
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.active = &plan
	return plan, nil
}
