package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/signalsim/clock"
)

func TestPeriodOf(t *testing.T) {
	// 2026-10-19 为周一
	day := func(h int) time.Time { return time.Date(2026, 10, 19, h, 30, 0, 0, time.Local) }
	cases := map[int]clock.Period{
		3:  clock.PeriodNight,
		7:  clock.PeriodMorningRush,
		9:  clock.PeriodMorningRush,
		12: clock.PeriodNormal,
		18: clock.PeriodEveningRush,
		22: clock.PeriodNight,
	}
	for h, want := range cases {
		assert.Equal(t, want, clock.PeriodOf(day(h)), "hour %d", h)
	}
	sat := time.Date(2026, 10, 24, 8, 0, 0, 0, time.Local)
	assert.Equal(t, clock.PeriodWeekend, clock.PeriodOf(sat))
	assert.Equal(t, "weekend", clock.PeriodWeekend.String())
}

func TestManualClock(t *testing.T) {
	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.Local)
	c := clock.NewManual(start)
	assert.Equal(t, start, c.Now())
	assert.Equal(t, clock.PeriodMorningRush, c.Period())

	c.Advance(90 * time.Minute)
	assert.Equal(t, "09:30:00", c.String())
	assert.Equal(t, 90*time.Minute, c.Uptime())

	c.Set(start.Add(10 * time.Hour))
	assert.Equal(t, clock.PeriodEveningRush, c.Period())
}
