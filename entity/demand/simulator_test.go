package demand_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/signalsim/clock"
	"github.com/tsinghua-fib-lab/signalsim/entity"
	"github.com/tsinghua-fib-lab/signalsim/entity/demand"
)

var (
	monday   = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	saturday = time.Date(2024, 1, 13, 12, 0, 0, 0, time.UTC)
)

// newSaturated 每次Tick每个方向必然生成一辆车的仿真器
func newSaturated(t *testing.T, seed uint64) *demand.Simulator {
	s := demand.New("T", seed, demand.WithClock(clock.NewManual(monday)), demand.WithBaseRate(1))
	require.NoError(t, s.SetScenario(demand.ScenarioHeavyTraffic))
	return s
}

func TestSetScenario(t *testing.T) {
	s := demand.New("T", 1, demand.WithClock(clock.NewManual(monday)))
	p, manual := s.Scenario()
	assert.Equal(t, demand.ScenarioNormalDay, p.Name)
	assert.False(t, manual)

	require.NoError(t, s.SetScenario(demand.ScenarioAccident))
	p, manual = s.Scenario()
	assert.Equal(t, demand.ScenarioAccident, p.Name)
	assert.Equal(t, 60, p.MaxVehicles)
	assert.True(t, manual)

	err := s.SetScenario("rush_hour")
	require.ErrorIs(t, err, demand.ErrUnknownScenario)
	assert.Contains(t, err.Error(), demand.ScenarioRushHourMorning)
	p, _ = s.Scenario()
	assert.Equal(t, demand.ScenarioAccident, p.Name)

	s.ClearScenario()
	p, manual = s.Scenario()
	assert.Equal(t, demand.ScenarioNormalDay, p.Name)
	assert.False(t, manual)
}

func TestAutomaticScenario(t *testing.T) {
	c := clock.NewManual(saturday)
	s := demand.New("T", 1, demand.WithClock(c))
	cases := []struct {
		at   time.Time
		want string
	}{
		{saturday.Add(-4 * time.Hour), demand.ScenarioWeekend},
		{monday.Add(-4 * time.Hour), demand.ScenarioRushHourMorning},
		{monday.Add(6 * time.Hour), demand.ScenarioRushHourEvening},
		{monday.Add(11 * time.Hour), demand.ScenarioNight},
		{monday.Add(-9 * time.Hour), demand.ScenarioNight},
		{monday, demand.ScenarioNormalDay},
	}
	for _, tc := range cases {
		c.Set(tc.at)
		p, _ := s.Scenario()
		assert.Equal(t, tc.want, p.Name, tc.at)
	}
}

func TestAvailableScenarios(t *testing.T) {
	names := demand.New("T", 1).AvailableScenarios()
	assert.Len(t, names, 9)
	assert.IsIncreasing(t, names)
}

func TestTickEvictsOldest(t *testing.T) {
	s := newSaturated(t, 7)
	// 静止车辆不会到达出口，21步后共84辆，超过上限80，保留64辆
	for i := 0; i < 21; i++ {
		s.Tick(0)
	}
	st := s.Statistics()
	assert.EqualValues(t, 84, st.Generated)
	require.Equal(t, 64, s.Len())
	for i, v := range s.Vehicles() {
		assert.Equal(t, fmt.Sprintf("SIM_T_%06d", i+21), v.ID)
	}
}

func TestTickRespectsCap(t *testing.T) {
	s := newSaturated(t, 3)
	p, _ := s.Scenario()
	for i := 0; i < 200; i++ {
		s.Tick(0.5)
		assert.LessOrEqual(t, s.Len(), p.MaxVehicles)
	}
}

func TestVehicleAttributes(t *testing.T) {
	s := newSaturated(t, 11)
	for i := 0; i < 15; i++ {
		s.Tick(0)
	}
	vs := s.Vehicles()
	require.Len(t, vs, 60)
	for _, v := range vs {
		assert.GreaterOrEqual(t, v.Speed, 5.0)
		assert.GreaterOrEqual(t, v.Confidence, 0.5)
		assert.LessOrEqual(t, v.Confidence, 0.99)
		assert.True(t, v.Direction.Valid())
		assert.Equal(t, monday, v.CreatedAt)
		assert.InDelta(t, v.Position.X, (v.BBox.X1+v.BBox.X2)/2, 1e-9)
	}
}

func TestVehiclesReturnsCopies(t *testing.T) {
	s := newSaturated(t, 5)
	s.Tick(0)
	vs := s.Vehicles()
	vs[0].Speed = -1
	vs[0].ID = "changed"
	again := s.Vehicles()
	assert.NotEqual(t, "changed", again[0].ID)
	assert.Positive(t, again[0].Speed)
}

func TestDeterministic(t *testing.T) {
	a, b := newSaturated(t, 42), newSaturated(t, 42)
	for i := 0; i < 50; i++ {
		a.Tick(0.5)
		b.Tick(0.5)
	}
	if diff := cmp.Diff(a.Vehicles(), b.Vehicles(), cmpopts.IgnoreUnexported(demand.Vehicle{})); diff != "" {
		t.Errorf("vehicles differ (-a +b):\n%s", diff)
	}
}

func TestCountsByZone(t *testing.T) {
	s := newSaturated(t, 9)
	for i := 0; i < 5; i++ {
		s.Tick(0)
	}
	zc := s.Counts()
	totals := zc.Totals()
	for _, d := range entity.Directions {
		assert.Equal(t, 5, totals[d], d)
		sum := 0
		for _, n := range zc[d].ByClass {
			sum += n
		}
		assert.Equal(t, zc[d].Total, sum)
	}
	assert.Equal(t, s.Len(), totals.Total())
}

func TestStatistics(t *testing.T) {
	s := newSaturated(t, 13)
	st := s.Statistics()
	assert.Zero(t, st.Total)
	assert.Zero(t, st.AverageSpeed)
	assert.Equal(t, demand.DensityLow, st.Density)
	assert.True(t, st.Manual)

	for i := 0; i < 10; i++ {
		s.Tick(0)
	}
	st = s.Statistics()
	assert.Equal(t, 40, st.Total)
	assert.Equal(t, demand.DensityHigh, st.Density)
	assert.Equal(t, demand.ScenarioHeavyTraffic, st.Scenario)
	sum := 0
	for _, n := range st.ByClass {
		sum += n
	}
	assert.Equal(t, st.Total, sum)
	assert.Equal(t, st.ByClass[entity.Emergency], st.EmergencyCount)
	assert.Greater(t, st.AverageSpeed, 5.0)
	assert.Positive(t, st.SpeedStdDev)
}

func TestDensityOf(t *testing.T) {
	assert.Equal(t, demand.DensityLow, demand.DensityOf(0))
	assert.Equal(t, demand.DensityLow, demand.DensityOf(14))
	assert.Equal(t, demand.DensityMedium, demand.DensityOf(15))
	assert.Equal(t, demand.DensityMedium, demand.DensityOf(29))
	assert.Equal(t, demand.DensityHigh, demand.DensityOf(30))
}

func TestDetections(t *testing.T) {
	s := newSaturated(t, 17)
	s.Tick(0)
	ds := s.Detections()
	require.Len(t, ds, 4)
	for _, d := range ds {
		assert.InDelta(t, d.BBox.Area(), d.Area, 1e-9)
		assert.Equal(t, monday, d.Timestamp)
	}
}

func TestZoneCountsDemand(t *testing.T) {
	var zc demand.ZoneCounts
	zc[entity.North] = demand.ZoneCount{Total: 4}
	zc[entity.East] = demand.ZoneCount{Total: 3, ByClass: map[entity.VehicleClass]int{entity.Car: 2, entity.Emergency: 1}}
	d := zc.Demand()
	assert.Equal(t, entity.DirectionCounts{4, 0, 3, 0}, d.Counts)
	assert.Equal(t, 1, d.EmergencyCount)
	require.NotNil(t, d.EmergencyAxis)
	assert.Equal(t, entity.EastWest, *d.EmergencyAxis)

	n, dirs := zc.Emergency()
	assert.Equal(t, 1, n)
	assert.Equal(t, []entity.Direction{entity.East}, dirs)

	assert.Nil(t, demand.ZoneCounts{}.Demand().EmergencyAxis)
}
