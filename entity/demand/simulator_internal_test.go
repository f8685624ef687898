package demand

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/signalsim/clock"
	"github.com/tsinghua-fib-lab/signalsim/entity"
)

func TestMoveAlongDirection(t *testing.T) {
	s := New("T", 1, WithClock(clock.NewManual(time.Now())))
	for _, d := range entity.Directions {
		start := entryPoints[d][0]
		v := &Vehicle{Direction: d, Speed: 40, Position: start, BBox: centeredRect(start, 100, 60)}
		s.move(v, 1)
		dx, dy := v.Position.X-start.X, v.Position.Y-start.Y
		switch d {
		case entity.North:
			assert.InDelta(t, 20, dy, 10)
		case entity.South:
			assert.InDelta(t, -20, dy, 10)
		case entity.East:
			assert.InDelta(t, -20, dx, 10)
		case entity.West:
			assert.InDelta(t, 20, dx, 10)
		}
		assert.InDelta(t, 100, v.BBox.Width(), 1e-9)
	}
}

func TestDeparted(t *testing.T) {
	assert.False(t, departed(&Vehicle{Direction: entity.North, Position: Point{480, 300}}))
	assert.True(t, departed(&Vehicle{Direction: entity.North, Position: Point{490, 480}}))
	// 其他方向的出口不算
	assert.False(t, departed(&Vehicle{Direction: entity.South, Position: Point{490, 480}}))
	assert.True(t, departed(&Vehicle{Direction: entity.West, Position: Point{FrameWidth + 101, 500}}))
	assert.True(t, departed(&Vehicle{Direction: entity.East, Position: Point{-101, 500}}))
}

func TestZoneOf(t *testing.T) {
	d, ok := zoneOf(Point{100, 100})
	assert.True(t, ok)
	assert.Equal(t, entity.North, d)
	// 边界上的点归属先判断的区域
	d, ok = zoneOf(Point{960, 540})
	assert.True(t, ok)
	assert.Equal(t, entity.North, d)
	d, _ = zoneOf(Point{1500, 800})
	assert.Equal(t, entity.South, d)
	_, ok = zoneOf(Point{-5, 100})
	assert.False(t, ok)
}

func TestClassWeightsSumToOne(t *testing.T) {
	sum := 0.
	for _, w := range classWeights() {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}
