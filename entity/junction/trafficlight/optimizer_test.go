package trafficlight_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/signalsim/clock"
	"github.com/tsinghua-fib-lab/signalsim/entity"
	"github.com/tsinghua-fib-lab/signalsim/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/signalsim/utils/randengine"
)

var (
	monday   = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	saturday = time.Date(2024, 1, 13, 12, 0, 0, 0, time.UTC)
)

func newOptimizer(at time.Time) *trafficlight.Optimizer {
	return trafficlight.NewOptimizer(trafficlight.DefaultOptimizerConfig(), clock.NewManual(at))
}

func counts(n, s, e, w int) entity.DirectionCounts {
	var c entity.DirectionCounts
	c[entity.North], c[entity.South], c[entity.East], c[entity.West] = n, s, e, w
	return c
}

func assertInvariants(t *testing.T, p entity.TrafficPhase) {
	t.Helper()
	require.NoError(t, p.Validate())
	assert.Equal(t, p.EastWest.Green+p.EastWest.Yellow, p.NorthSouth.Red)
	assert.Equal(t, p.NorthSouth.Green+p.NorthSouth.Yellow, p.EastWest.Red)
}

func TestPredictProportional(t *testing.T) {
	p := newOptimizer(monday).PredictOptimalTiming(trafficlight.Request{Counts: counts(18, 12, 6, 4)})
	assertInvariants(t, p)
	assert.Equal(t, 90, p.NorthSouth.Green)
	assert.Equal(t, 54, p.EastWest.Green)
	assert.Greater(t, p.NorthSouth.Green, p.EastWest.Green)
	assert.Equal(t, 3, p.NorthSouth.Yellow)
	assert.Equal(t, 90+3+54+3+6, p.TotalCycle)
	assert.Equal(t, "normal_day_optimized", p.Name)
	assert.Equal(t, entity.PriorityNormal, p.NorthSouth.Priority)
	assert.Equal(t, monday, p.CreatedAt)
	assert.NotEmpty(t, p.ID)
	assert.InDelta(t, 0.95, p.NorthSouth.Confidence, 1e-9)
	assert.InDelta(t, 0.95, p.EastWest.Confidence, 1e-9)
	assert.InDelta(t, 1.0, p.Efficiency, 1e-9)
}

func TestPredictNoTraffic(t *testing.T) {
	p := newOptimizer(monday).PredictOptimalTiming(trafficlight.Request{})
	assertInvariants(t, p)
	assert.Equal(t, 15, p.NorthSouth.Green)
	assert.Equal(t, 15, p.EastWest.Green)
	assert.Equal(t, 15+15+2*3+6, p.TotalCycle)
	assert.InDelta(t, 0.5, p.NorthSouth.Confidence, 1e-9)
	assert.InDelta(t, 0.8, p.Efficiency, 1e-9)
}

func TestPredictEmergency(t *testing.T) {
	o := newOptimizer(monday)
	base := o.PredictOptimalTiming(trafficlight.Request{Counts: counts(5, 4, 8, 6)})
	assert.Equal(t, 50, base.NorthSouth.Green)
	assert.Equal(t, 63, base.EastWest.Green)

	p := o.PredictOptimalTiming(trafficlight.Request{Counts: counts(5, 4, 8, 6), EmergencyCount: 1})
	assertInvariants(t, p)
	assert.Equal(t, base.NorthSouth.Green+20, p.NorthSouth.Green)
	assert.Equal(t, base.EastWest.Green-10, p.EastWest.Green)
	assert.Equal(t, entity.PriorityEmergency, p.NorthSouth.Priority)
	assert.Equal(t, entity.PriorityEmergency, p.EastWest.Priority)
	assert.Contains(t, p.NorthSouth.Reasoning, "Emergency priority applied")

	ew := entity.EastWest
	p = o.PredictOptimalTiming(trafficlight.Request{Counts: counts(5, 4, 8, 6), EmergencyCount: 1, EmergencyAxis: &ew})
	assert.Equal(t, 83, p.EastWest.Green)
	assert.Equal(t, 40, p.NorthSouth.Green)

	// 北向无车时默认东西向
	p = o.PredictOptimalTiming(trafficlight.Request{Counts: counts(0, 4, 8, 6), EmergencyCount: 1})
	assert.Greater(t, p.EastWest.Green, o.PredictOptimalTiming(trafficlight.Request{Counts: counts(0, 4, 8, 6)}).EastWest.Green)
}

func TestPredictEmergencyCap(t *testing.T) {
	p := newOptimizer(monday).PredictOptimalTiming(trafficlight.Request{
		Counts: counts(30, 30, 0, 0), EmergencyCount: 2, Weather: entity.WeatherIce,
	})
	assert.Equal(t, 180, p.NorthSouth.Green)
	assert.Equal(t, 54, p.EastWest.Green)
}

func TestPredictWeather(t *testing.T) {
	o := newOptimizer(monday)
	severity := []entity.Weather{entity.WeatherNormal, entity.WeatherRain, entity.WeatherFog, entity.WeatherHeavyRain, entity.WeatherSnow, entity.WeatherIce}
	c := counts(7, 3, 9, 2)
	normal := o.PredictOptimalTiming(trafficlight.Request{Counts: c})
	prev := normal
	for _, w := range severity[1:] {
		p := o.PredictOptimalTiming(trafficlight.Request{Counts: c, Weather: w})
		assertInvariants(t, p)
		assert.GreaterOrEqual(t, p.NorthSouth.Green, prev.NorthSouth.Green, w)
		assert.GreaterOrEqual(t, p.EastWest.Green, prev.EastWest.Green, w)
		assert.GreaterOrEqual(t, p.NorthSouth.Green, normal.NorthSouth.Green, w)
		prev = p
	}
	assert.Equal(t, int(float64(normal.NorthSouth.Green)*1.8), prev.NorthSouth.Green)
}

func TestPredictEdgeCases(t *testing.T) {
	o := newOptimizer(monday)
	tie := o.PredictOptimalTiming(trafficlight.Request{Counts: counts(5, 5, 5, 5)})
	assert.Equal(t, tie.NorthSouth.Green, tie.EastWest.Green)

	single := o.PredictOptimalTiming(trafficlight.Request{Counts: counts(10, 0, 0, 0)})
	assert.Equal(t, 63, single.NorthSouth.Green)
	assert.Equal(t, 21, single.EastWest.Green)

	rush := newOptimizer(monday.Add(-4 * time.Hour)).PredictOptimalTiming(trafficlight.Request{Counts: counts(5, 5, 5, 5)})
	assert.Equal(t, "morning_rush_optimized", rush.Name)
	assert.Greater(t, rush.NorthSouth.Green, rush.EastWest.Green)
}

func TestPredictProperties(t *testing.T) {
	rng := randengine.New(2024)
	for _, at := range []time.Time{monday, saturday, monday.Add(-4 * time.Hour), monday.Add(6 * time.Hour), monday.Add(11 * time.Hour)} {
		o := newOptimizer(at)
		for i := 0; i < 200; i++ {
			c := counts(rng.UniformInt(0, 30), rng.UniformInt(0, 30), rng.UniformInt(0, 30), rng.UniformInt(0, 30))
			p := o.PredictOptimalTiming(trafficlight.Request{Counts: c})
			assertInvariants(t, p)
			for _, a := range entity.Axes {
				g := p.Timing(a).Green
				assert.GreaterOrEqual(t, g, 15)
				assert.LessOrEqual(t, g, 90)
			}
			assert.LessOrEqual(t, p.Efficiency, 1.0)

			// 单方向车辆数增加不会缩短该方向的绿灯
			for _, d := range entity.Directions {
				more := c
				more[d]++
				q := o.PredictOptimalTiming(trafficlight.Request{Counts: more})
				assert.GreaterOrEqual(t, q.Timing(d.Axis()).Green, p.Timing(d.Axis()).Green)
			}

			// 紧急车辆严格延长优先方向的绿灯
			for _, a := range entity.Axes {
				e := o.PredictOptimalTiming(trafficlight.Request{Counts: c, EmergencyCount: 1, EmergencyAxis: &a})
				assert.Greater(t, e.Timing(a).Green, p.Timing(a).Green)
				assert.LessOrEqual(t, e.Timing(a).Green, 180)
			}
		}
	}
}

func TestNextChange(t *testing.T) {
	o := newOptimizer(monday)
	p := o.PredictOptimalTiming(trafficlight.Request{Counts: counts(18, 12, 6, 4)})
	got := o.NextChange(&p, map[entity.Axis]entity.LightState{
		entity.NorthSouth: entity.Green,
		entity.EastWest:   entity.Red,
	})
	assert.Equal(t, trafficlight.Change{Next: entity.Yellow, Seconds: 90}, got[entity.NorthSouth])
	assert.Equal(t, trafficlight.Change{Next: entity.Green, Seconds: 93}, got[entity.EastWest])

	got = o.NextChange(&p, map[entity.Axis]entity.LightState{entity.EastWest: entity.Yellow})
	assert.Equal(t, trafficlight.Change{Next: entity.Red, Seconds: 3}, got[entity.EastWest])
	assert.Equal(t, trafficlight.Change{Next: entity.Green, Seconds: 57}, got[entity.NorthSouth])

	got = o.NextChange(nil, nil)
	assert.Equal(t, trafficlight.Change{Next: entity.Green, Seconds: 30}, got[entity.NorthSouth])
	assert.Equal(t, trafficlight.Change{Next: entity.Red, Seconds: 30}, got[entity.EastWest])
}

func TestExportSchedule(t *testing.T) {
	o := newOptimizer(monday)
	s := o.ExportSchedule(24, monday)
	require.Len(t, s, 24)
	assert.Equal(t, "00:00", s[0].Hour)
	assert.Equal(t, "night_optimized", s[3].Pattern)
	assert.Equal(t, "morning_rush_optimized", s[8].Pattern)
	assert.Equal(t, "normal_day_optimized", s[12].Pattern)
	assert.Equal(t, "evening_rush_optimized", s[18].Pattern)
	for _, e := range s {
		assert.Equal(t, e.NorthSouthGreen+e.EastWestGreen+6+6, e.CycleTime)
	}

	weekend := o.ExportSchedule(30, saturday)
	require.Len(t, weekend, 24)
	assert.Equal(t, "weekend_optimized", weekend[8].Pattern)
	assert.Empty(t, o.ExportSchedule(0, monday))
}

func TestFixedPlan(t *testing.T) {
	p := trafficlight.FixedPlan(trafficlight.DefaultOptimizerConfig(), 30, 25, monday)
	assertInvariants(t, p)
	assert.Equal(t, "fixed_default", p.Name)
	assert.Equal(t, 30+3+25+3+6, p.TotalCycle)
}
