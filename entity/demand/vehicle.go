package demand

import (
	"math"
	"time"

	"github.com/tsinghua-fib-lab/signalsim/entity"
)

// Point 画面坐标（像素）
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist 两点距离
func (p Point) Dist(o Point) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Rect 矩形区域，边界包含在内
type Rect struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Contains 点是否在矩形内（含边界）
func (r Rect) Contains(p Point) bool {
	return r.X1 <= p.X && p.X <= r.X2 && r.Y1 <= p.Y && p.Y <= r.Y2
}

// Width 宽度
func (r Rect) Width() float64 { return r.X2 - r.X1 }

// Height 高度
func (r Rect) Height() float64 { return r.Y2 - r.Y1 }

// Area 面积
func (r Rect) Area() float64 { return r.Width() * r.Height() }

// centeredRect 以c为中心、宽高为w、h的矩形
func centeredRect(c Point, w, h float64) Rect {
	return Rect{X1: c.X - w/2, Y1: c.Y - h/2, X2: c.X + w/2, Y2: c.Y + h/2}
}

// Vehicle 仿真车辆
// 功能：记录一辆仿真车辆的类别、位置、速度、行驶方向与检测框
// 说明：只由Simulator创建与修改，对外只提供副本
type Vehicle struct {
	ID         string              `json:"id"`
	Class      entity.VehicleClass `json:"class"`
	Position   Point               `json:"position"`
	Speed      float64             `json:"speed"` // km/h
	Direction  entity.Direction    `json:"direction"`
	BBox       Rect                `json:"bbox"`
	Confidence float64             `json:"confidence"` // 模拟的检测置信度
	CreatedAt  time.Time           `json:"created_at"`

	seq uint64 // 生成序号，用于淘汰最早的车辆
}

// Detection 检测记录，与视觉检测模块的输出格式一致
type Detection struct {
	VehicleID  string              `json:"vehicle_id"`
	Class      entity.VehicleClass `json:"class"`
	Confidence float64             `json:"confidence"`
	BBox       Rect                `json:"bbox"`
	Center     Point               `json:"center"`
	Area       float64             `json:"area"`
	Speed      float64             `json:"speed"`
	Direction  entity.Direction    `json:"direction"`
	Timestamp  time.Time           `json:"timestamp"`
}

// 车辆类别参数
type classParam struct {
	weight     float64    // 生成概率
	speedRange [2]float64 // 车速范围（km/h）
	size       [2]float64 // 检测框名义宽高（像素）
	confidence float64    // 基础检测置信度
}

var classParams = [entity.NumVehicleClasses]classParam{
	entity.Car:        {weight: 0.70, speedRange: [2]float64{20, 60}, size: [2]float64{120, 80}, confidence: 0.85},
	entity.Truck:      {weight: 0.08, speedRange: [2]float64{15, 45}, size: [2]float64{200, 120}, confidence: 0.95},
	entity.Bus:        {weight: 0.05, speedRange: [2]float64{20, 50}, size: [2]float64{250, 140}, confidence: 0.85},
	entity.Motorcycle: {weight: 0.15, speedRange: [2]float64{25, 70}, size: [2]float64{60, 40}, confidence: 0.85},
	entity.Bicycle:    {weight: 0.015, speedRange: [2]float64{10, 25}, size: [2]float64{40, 30}, confidence: 0.75},
	entity.Emergency:  {weight: 0.005, speedRange: [2]float64{40, 80}, size: [2]float64{130, 90}, confidence: 0.85},
}

// classWeights 按VehicleClasses顺序排列的生成概率
func classWeights() []float64 {
	w := make([]float64, entity.NumVehicleClasses)
	for i, c := range entity.VehicleClasses {
		w[i] = classParams[c].weight
	}
	return w
}
