package demand

import (
	"github.com/tsinghua-fib-lab/signalsim/entity"
)

// 画面尺寸（像素）
const (
	FrameWidth  = 1920
	FrameHeight = 1080
)

// 四个方向的检测区域，判断时按北、东、南、西的顺序取第一个命中的区域
var (
	zones = [entity.NumDirections]Rect{
		entity.North: {X1: 0, Y1: 0, X2: 960, Y2: 540},
		entity.East:  {X1: 960, Y1: 0, X2: 1920, Y2: 540},
		entity.South: {X1: 960, Y1: 540, X2: 1920, Y2: 1080},
		entity.West:  {X1: 0, Y1: 540, X2: 960, Y2: 1080},
	}
	zoneOrder = [entity.NumDirections]entity.Direction{entity.North, entity.East, entity.South, entity.West}
)

// Zone 方向对应的检测区域
func Zone(d entity.Direction) Rect {
	return zones[d]
}

// zoneOf 点所在的检测区域
// 返回：方向与是否命中，不在任何区域内时返回false
func zoneOf(p Point) (entity.Direction, bool) {
	for _, d := range zoneOrder {
		if zones[d].Contains(p) {
			return d, true
		}
	}
	return 0, false
}

// ZoneCount 单个区域内的车辆计数
type ZoneCount struct {
	ByClass map[entity.VehicleClass]int `json:"by_class"`
	Total   int                         `json:"total"`
}

// ZoneCounts 四个区域的车辆计数，按方向下标
type ZoneCounts [entity.NumDirections]ZoneCount

func newZoneCounts() ZoneCounts {
	var zc ZoneCounts
	for i := range zc {
		zc[i].ByClass = make(map[entity.VehicleClass]int, entity.NumVehicleClasses)
	}
	return zc
}

// Totals 各方向总车辆数
func (zc ZoneCounts) Totals() entity.DirectionCounts {
	var c entity.DirectionCounts
	for i, z := range zc {
		c[i] = z.Total
	}
	return c
}

// Emergency 紧急车辆统计
// 返回：紧急车辆总数，以及有紧急车辆的方向（按Directions顺序）
func (zc ZoneCounts) Emergency() (int, []entity.Direction) {
	total := 0
	var dirs []entity.Direction
	for _, d := range entity.Directions {
		if n := zc[d].ByClass[entity.Emergency]; n > 0 {
			total += n
			dirs = append(dirs, d)
		}
	}
	return total, dirs
}

// Demand 转换为配时优化的需求输入
// 功能：汇总各方向车辆数与紧急车辆，并确定紧急车辆所在的相位组
// 算法说明：紧急车辆较多的相位组优先，数量相同时取南北向
func (zc ZoneCounts) Demand() entity.Demand {
	d := entity.Demand{Counts: zc.Totals()}
	var perAxis [entity.NumAxes]int
	for _, dir := range entity.Directions {
		n := zc[dir].ByClass[entity.Emergency]
		d.EmergencyCount += n
		perAxis[dir.Axis()] += n
	}
	if d.EmergencyCount > 0 {
		axis := entity.NorthSouth
		if perAxis[entity.EastWest] > perAxis[entity.NorthSouth] {
			axis = entity.EastWest
		}
		d.EmergencyAxis = &axis
	}
	return d
}
