package entity

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidPlan = errors.New("invalid timing plan")

// LightTiming 单个相位组的配时
// 说明：时长单位为秒；Red恒等于另一相位组的Green+Yellow
type LightTiming struct {
	Axis       Axis     `json:"axis"`
	Green      int      `json:"green"`
	Yellow     int      `json:"yellow"`
	Red        int      `json:"red"`
	Confidence float64  `json:"confidence"`
	Priority   Priority `json:"priority"`
	Reasoning  string   `json:"reasoning"`
}

// TrafficPhase 一个完整周期的配时方案
// 说明：TotalCycle = 两组绿灯 + 两组黄灯 + Clearance
type TrafficPhase struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	NorthSouth LightTiming `json:"north_south"`
	EastWest   LightTiming `json:"east_west"`
	Clearance  int         `json:"clearance"`
	TotalCycle int         `json:"total_cycle"`
	Efficiency float64     `json:"efficiency"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Timing 获取相位组的配时
func (p *TrafficPhase) Timing(a Axis) LightTiming {
	if a == NorthSouth {
		return p.NorthSouth
	}
	return p.EastWest
}

func (p *TrafficPhase) timing(a Axis) *LightTiming {
	if a == NorthSouth {
		return &p.NorthSouth
	}
	return &p.EastWest
}

// SetGreen 修改相位组的绿灯时长，并重新推导两组红灯时长与周期
func (p *TrafficPhase) SetGreen(a Axis, green int) {
	p.timing(a).Green = green
	p.Rebalance()
}

// Rebalance 根据绿灯、黄灯与清空时间重新推导红灯时长与周期时长
func (p *TrafficPhase) Rebalance() {
	p.NorthSouth.Red = p.EastWest.Green + p.EastWest.Yellow
	p.EastWest.Red = p.NorthSouth.Green + p.NorthSouth.Yellow
	p.TotalCycle = p.NorthSouth.Green + p.NorthSouth.Yellow + p.EastWest.Green + p.EastWest.Yellow + p.Clearance
}

// Validate 检查方案是否满足配时不变量
// 返回：不满足时返回包装了ErrInvalidPlan的错误
func (p *TrafficPhase) Validate() error {
	for _, a := range Axes {
		t := p.Timing(a)
		if t.Green <= 0 || t.Yellow <= 0 {
			return fmt.Errorf("%w: %v green=%d yellow=%d", ErrInvalidPlan, a, t.Green, t.Yellow)
		}
		other := p.Timing(a.Other())
		if t.Red != other.Green+other.Yellow {
			return fmt.Errorf("%w: %v red=%d, want %d", ErrInvalidPlan, a, t.Red, other.Green+other.Yellow)
		}
	}
	if p.Clearance < 0 {
		return fmt.Errorf("%w: negative clearance %d", ErrInvalidPlan, p.Clearance)
	}
	sum := p.NorthSouth.Green + p.NorthSouth.Yellow + p.EastWest.Green + p.EastWest.Yellow + p.Clearance
	if p.TotalCycle != sum {
		return fmt.Errorf("%w: total cycle %d, want %d", ErrInvalidPlan, p.TotalCycle, sum)
	}
	return nil
}
