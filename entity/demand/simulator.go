package demand

import (
	"fmt"
	"math"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/signalsim/clock"
	"github.com/tsinghua-fib-lab/signalsim/entity"
	"github.com/tsinghua-fib-lab/signalsim/utils/container"
	"github.com/tsinghua-fib-lab/signalsim/utils/randengine"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultBaseRate = 0.1 // 每个方向每次Tick的基础生成概率

	pixelPerKmh     = 0.5   // 车速到像素速度的换算
	positionJitter  = 2.0   // 位置抖动标准差（像素）
	speedNoise      = 5.0   // 车速噪声标准差（km/h）
	minSpeed        = 5.0   // 最低车速（km/h）
	exitRadius      = 50.0  // 到达出口的判定半径（像素）
	boundsMargin    = 100.0 // 画面外允许的边距（像素）
	sizeVariation   = 0.2   // 检测框尺寸的随机浮动比例
	confidenceNoise = 0.1
	minConfidence   = 0.5
	maxConfidence   = 0.99
	evictRatio      = 0.8 // 超出上限时保留的比例
	minRetained     = 10
)

// 各方向的入口与出口
var (
	entryPoints = [entity.NumDirections][]Point{
		entity.North: {{480, 50}, {580, 50}, {680, 50}},
		entity.South: {{1440, 1030}, {1540, 1030}, {1640, 1030}},
		entity.East:  {{1870, 270}, {1870, 370}, {1870, 470}},
		entity.West:  {{50, 810}, {50, 910}, {50, 1010}},
	}
	exitPoints = [entity.NumDirections][]Point{
		entity.North: {{480, 500}, {580, 500}, {680, 500}},
		entity.South: {{1440, 580}, {1540, 580}, {1640, 580}},
		entity.East:  {{1000, 270}, {1000, 370}, {1000, 470}},
		entity.West:  {{900, 810}, {900, 910}, {900, 1010}},
	}
)

// DensityLevel 拥堵等级
type DensityLevel string

const (
	DensityLow    DensityLevel = "low"
	DensityMedium DensityLevel = "medium"
	DensityHigh   DensityLevel = "high"
)

// DensityOf 按车辆总数划分拥堵等级
func DensityOf(total int) DensityLevel {
	switch {
	case total < 15:
		return DensityLow
	case total < 30:
		return DensityMedium
	default:
		return DensityHigh
	}
}

// Statistics 仿真统计
type Statistics struct {
	Total          int                         `json:"total"`
	ByClass        map[entity.VehicleClass]int `json:"by_class"`
	AverageSpeed   float64                     `json:"average_speed"`
	SpeedStdDev    float64                     `json:"speed_std_dev"`
	EmergencyCount int                         `json:"emergency_count"`
	Density        DensityLevel                `json:"density"`
	Scenario       string                      `json:"scenario"`
	Manual         bool                        `json:"manual"`
	Generated      uint64                      `json:"generated"`
}

// Simulator 交通需求仿真器
// 功能：在1920x1080的画面坐标内持续生成、移动与移除四个方向的车辆，为配时优化提供需求输入
// 说明：所有方法并发安全，不会阻塞；给定种子与手动时钟时结果可复现
type Simulator struct {
	mtx sync.Mutex

	name     string
	clock    *clock.Clock
	rng      *randengine.Engine
	baseRate float64
	weights  []float64

	vehicles []*Vehicle
	seq      uint64 // 已生成车辆数
	manual   *Profile

	log *logrus.Entry
}

// Option 仿真器选项
type Option func(*Simulator)

// WithClock 指定时钟，默认使用真实时钟
func WithClock(c *clock.Clock) Option {
	return func(s *Simulator) { s.clock = c }
}

// WithBaseRate 指定基础生成概率
func WithBaseRate(rate float64) Option {
	return func(s *Simulator) {
		if rate > 0 {
			s.baseRate = rate
		}
	}
}

// New 创建交通需求仿真器
// 参数：name-路口名称（用于车辆ID与日志），seed-随机数种子，opts-选项
// 返回：仿真器指针
func New(name string, seed uint64, opts ...Option) *Simulator {
	s := &Simulator{
		name:     name,
		rng:      randengine.New(seed),
		baseRate: DefaultBaseRate,
		weights:  classWeights(),
		log:      log.WithField("junction", name),
	}
	for _, o := range opts {
		o(s)
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	return s
}

// SetScenario 手动指定需求场景
// 功能：切换到指定场景，直到ClearScenario为止不再按时段自动选择
// 参数：name-场景名称
// 返回：未知场景返回ErrUnknownScenario，当前场景保持不变
func (s *Simulator) SetScenario(name string) error {
	p, err := LookupProfile(name)
	if err != nil {
		return err
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.manual = &p
	s.log.Infof("scenario set to %s (density=%.1f, speed=%.1f, max=%d)", name, p.Density, p.SpeedFactor, p.MaxVehicles)
	return nil
}

// ClearScenario 恢复按时段自动选择场景
func (s *Simulator) ClearScenario() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.manual = nil
	s.log.Info("scenario selection back to automatic")
}

// Scenario 当前场景
// 返回：场景，以及是否为手动指定
func (s *Simulator) Scenario() (Profile, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.profile(), s.manual != nil
}

// AvailableScenarios 可选场景名称
func (s *Simulator) AvailableScenarios() []string {
	return Scenarios()
}

func (s *Simulator) profile() Profile {
	if s.manual != nil {
		return *s.manual
	}
	return profileForPeriod(s.clock.Period())
}

// Tick 推进仿真一步
// 功能：移动已有车辆、移除离开的车辆、生成新车辆、淘汰超出上限的最早车辆
// 参数：dt-步长（秒）
// 算法说明：
// 1. 每辆车沿行驶方向移动speed*0.5*dt像素，并叠加位置抖动
// 2. 超出画面边距或到达本方向任一出口附近的车辆被移除
// 3. 每个方向以baseRate*density的概率生成一辆新车
// 4. 车辆数超过上限时，按生成顺序淘汰最早的车辆，保留max(上限*0.8, 10)辆
func (s *Simulator) Tick(dt float64) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	profile := s.profile()

	kept := s.vehicles[:0]
	for _, v := range s.vehicles {
		s.move(v, dt)
		if !departed(v) {
			kept = append(kept, v)
		}
	}
	clear(s.vehicles[len(kept):])
	s.vehicles = kept

	p := s.baseRate * profile.Density
	for _, d := range entity.Directions {
		if s.rng.PTrue(p) {
			s.vehicles = append(s.vehicles, s.spawn(d, profile))
		}
	}

	if len(s.vehicles) > profile.MaxVehicles {
		s.evict(max(int(float64(profile.MaxVehicles)*evictRatio), minRetained))
	}
}

func (s *Simulator) move(v *Vehicle, dt float64) {
	dist := v.Speed * pixelPerKmh * dt
	switch v.Direction {
	case entity.North:
		v.Position.Y += dist
	case entity.South:
		v.Position.Y -= dist
	case entity.East:
		v.Position.X -= dist
	case entity.West:
		v.Position.X += dist
	}
	v.Position.X += s.rng.Gauss(0, positionJitter)
	v.Position.Y += s.rng.Gauss(0, positionJitter)
	v.BBox = centeredRect(v.Position, v.BBox.Width(), v.BBox.Height())
}

// departed 车辆是否已离开画面或到达出口
func departed(v *Vehicle) bool {
	p := v.Position
	if p.X < -boundsMargin || p.X > FrameWidth+boundsMargin ||
		p.Y < -boundsMargin || p.Y > FrameHeight+boundsMargin {
		return true
	}
	return lo.SomeBy(exitPoints[v.Direction], func(e Point) bool {
		return p.Dist(e) < exitRadius
	})
}

func (s *Simulator) spawn(d entity.Direction, profile Profile) *Vehicle {
	class := entity.VehicleClasses[s.rng.DiscreteDistribution(s.weights)]
	param := classParams[class]
	pos := randengine.Choice(s.rng, entryPoints[d])

	speed := s.rng.Uniform(param.speedRange[0], param.speedRange[1])*profile.SpeedFactor + s.rng.Gauss(0, speedNoise)
	w := s.rng.UniformInt(int(param.size[0]*(1-sizeVariation)), int(param.size[0]*(1+sizeVariation)))
	h := s.rng.UniformInt(int(param.size[1]*(1-sizeVariation)), int(param.size[1]*(1+sizeVariation)))
	conf := lo.Clamp(param.confidence+s.rng.Gauss(0, confidenceNoise), minConfidence, maxConfidence)

	s.seq++
	v := &Vehicle{
		ID:         fmt.Sprintf("SIM_%s_%06d", s.name, s.seq),
		Class:      class,
		Position:   pos,
		Speed:      math.Max(minSpeed, speed),
		Direction:  d,
		BBox:       centeredRect(pos, float64(w), float64(h)),
		Confidence: conf,
		CreatedAt:  s.clock.Now(),
		seq:        s.seq,
	}
	if class == entity.Emergency {
		s.log.Debugf("emergency vehicle %s spawned from %s", v.ID, d)
	}
	return v
}

// evict 淘汰最早生成的车辆，保留keep辆
func (s *Simulator) evict(keep int) {
	n := len(s.vehicles) - keep
	if n <= 0 {
		return
	}
	pq := container.NewPriorityQueue[*Vehicle](len(s.vehicles))
	for _, v := range s.vehicles {
		pq.Push(v, float64(v.seq))
	}
	pq.Heapify()
	evicted := lo.SliceToMap(pq.Drain(n), func(v *Vehicle) (*Vehicle, struct{}) {
		return v, struct{}{}
	})
	s.vehicles = lo.Reject(s.vehicles, func(v *Vehicle, _ int) bool {
		_, ok := evicted[v]
		return ok
	})
	s.log.Debugf("evicted %d oldest vehicles, %d remain", n, len(s.vehicles))
}

// Counts 各区域分车型计数
// 说明：不在任何区域内的车辆不计数
func (s *Simulator) Counts() ZoneCounts {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	zc := newZoneCounts()
	for _, v := range s.vehicles {
		if d, ok := zoneOf(v.Position); ok {
			zc[d].ByClass[v.Class]++
			zc[d].Total++
		}
	}
	return zc
}

// Demand 当前需求，实现entity.IDemandSource
func (s *Simulator) Demand() entity.Demand {
	return s.Counts().Demand()
}

// Statistics 仿真统计
// 功能：统计车辆总数、分车型数量、车速均值与标准差、紧急车辆数与拥堵等级
func (s *Simulator) Statistics() Statistics {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	profile := s.profile()
	st := Statistics{
		Total:     len(s.vehicles),
		ByClass:   lo.CountValuesBy(s.vehicles, func(v *Vehicle) entity.VehicleClass { return v.Class }),
		Density:   DensityOf(len(s.vehicles)),
		Scenario:  profile.Name,
		Manual:    s.manual != nil,
		Generated: s.seq,
	}
	st.EmergencyCount = st.ByClass[entity.Emergency]
	if len(s.vehicles) > 0 {
		speeds := lo.Map(s.vehicles, func(v *Vehicle, _ int) float64 { return v.Speed })
		st.AverageSpeed = stat.Mean(speeds, nil)
		if len(speeds) > 1 {
			st.SpeedStdDev = stat.StdDev(speeds, nil)
		}
	}
	return st
}

// Detections 以检测记录的形式输出当前车辆
func (s *Simulator) Detections() []Detection {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	now := s.clock.Now()
	return lo.Map(s.vehicles, func(v *Vehicle, _ int) Detection {
		return Detection{
			VehicleID:  v.ID,
			Class:      v.Class,
			Confidence: v.Confidence,
			BBox:       v.BBox,
			Center:     v.Position,
			Area:       v.BBox.Area(),
			Speed:      v.Speed,
			Direction:  v.Direction,
			Timestamp:  now,
		}
	})
}

// Vehicles 当前车辆的副本
func (s *Simulator) Vehicles() []Vehicle {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return lo.Map(s.vehicles, func(v *Vehicle, _ int) Vehicle { return *v })
}

// Len 当前车辆数
func (s *Simulator) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.vehicles)
}
