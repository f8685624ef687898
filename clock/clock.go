package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock 时钟
// 功能：为需求仿真、配时优化与信号机提供统一的当前时间，支持真实时钟与手动时钟
// 说明：手动时钟只在Set/Advance时变化，用于测试与回放
type Clock struct {
	mtx    sync.RWMutex
	manual bool
	t      time.Time // 手动时钟的当前时间
	start  time.Time // 创建时刻，用于计算运行时长
}

// New 创建真实时钟
func New() *Clock {
	return &Clock{start: time.Now()}
}

// NewManual 创建手动时钟
// 参数：t-初始时间
func NewManual(t time.Time) *Clock {
	return &Clock{manual: true, t: t, start: t}
}

// Now 获取当前时间
func (c *Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if c.manual {
		return c.t
	}
	return time.Now()
}

// Uptime 自创建以来经过的时间
func (c *Clock) Uptime() time.Duration {
	return c.Now().Sub(c.start)
}

// Set 设置手动时钟的时间，对真实时钟无效
func (c *Clock) Set(t time.Time) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.manual {
		c.t = t
	}
}

// Advance 推进手动时钟，对真实时钟无效
func (c *Clock) Advance(d time.Duration) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.manual {
		c.t = c.t.Add(d)
	}
}

// Period 当前时段
func (c *Clock) Period() Period {
	return PeriodOf(c.Now())
}

// String 获取时钟的字符串表示
// 返回：HH:MM:SS格式的当前时间
func (c *Clock) String() string {
	t := c.Now()
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}
