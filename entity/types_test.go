package entity_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/signalsim/entity"
)

func TestParseDirection(t *testing.T) {
	d, err := entity.ParseDirection(" East ")
	require.NoError(t, err)
	assert.Equal(t, entity.East, d)
	assert.Equal(t, entity.EastWest, d.Axis())

	_, err = entity.ParseDirection("up")
	assert.ErrorIs(t, err, entity.ErrInvalidDirection)
	assert.False(t, entity.Direction(7).Valid())
	_, err = entity.Direction(-1).MarshalText()
	assert.ErrorIs(t, err, entity.ErrInvalidDirection)
}

func TestAxis(t *testing.T) {
	assert.Equal(t, entity.EastWest, entity.NorthSouth.Other())
	assert.Equal(t, entity.NorthSouth, entity.EastWest.Other())
	assert.Equal(t, [2]entity.Direction{entity.East, entity.West}, entity.EastWest.Directions())
	for _, d := range entity.Directions {
		assert.Contains(t, d.Axis().Directions(), d)
	}
}

func TestDirectionCounts(t *testing.T) {
	c := entity.DirectionCounts{1, 2, 3, 4}
	assert.Equal(t, 3, c.Axis(entity.NorthSouth))
	assert.Equal(t, 7, c.Axis(entity.EastWest))
	assert.Equal(t, 10, c.Total())
	assert.Equal(t, map[entity.Direction]int{entity.North: 1, entity.South: 2, entity.East: 3, entity.West: 4}, c.Map())
}

func TestParseWeather(t *testing.T) {
	w, ok := entity.ParseWeather("HEAVY_RAIN")
	assert.True(t, ok)
	assert.Equal(t, entity.WeatherHeavyRain, w)
	assert.InDelta(t, 1.5, w.Factor(), 1e-9)

	w, ok = entity.ParseWeather("tornado")
	assert.False(t, ok)
	assert.Equal(t, entity.WeatherNormal, w)
	assert.InDelta(t, 1.0, entity.Weather(42).Factor(), 1e-9)
}

// 枚举以名称出现在JSON中，未知天气回落为normal
func TestEnumJSON(t *testing.T) {
	type message struct {
		Direction entity.Direction                       `json:"direction"`
		Weather   entity.Weather                         `json:"weather"`
		States    map[entity.Direction]entity.LightState `json:"states"`
		Classes   map[entity.VehicleClass]int            `json:"classes"`
		Priority  entity.Priority                        `json:"priority"`
	}
	in := message{
		Direction: entity.West,
		Weather:   entity.WeatherFog,
		States:    map[entity.Direction]entity.LightState{entity.North: entity.FlashingRed},
		Classes:   map[entity.VehicleClass]int{entity.Emergency: 2},
		Priority:  entity.PriorityEmergency,
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"direction":"west","weather":"fog","states":{"north":"flashing_red"},"classes":{"emergency":2},"priority":"emergency"}`, string(b))

	var out message
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)

	require.NoError(t, json.Unmarshal([]byte(`{"weather":"hail"}`), &out))
	assert.Equal(t, entity.WeatherNormal, out.Weather)
	assert.Error(t, json.Unmarshal([]byte(`{"direction":"up"}`), &out))
}

func phase(nsGreen, ewGreen int) entity.TrafficPhase {
	p := entity.TrafficPhase{
		NorthSouth: entity.LightTiming{Axis: entity.NorthSouth, Green: nsGreen, Yellow: 3},
		EastWest:   entity.LightTiming{Axis: entity.EastWest, Green: ewGreen, Yellow: 3},
		Clearance:  6,
		CreatedAt:  time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	p.Rebalance()
	return p
}

func TestTrafficPhase(t *testing.T) {
	p := phase(40, 20)
	require.NoError(t, p.Validate())
	assert.Equal(t, 23, p.NorthSouth.Red)
	assert.Equal(t, 43, p.EastWest.Red)
	assert.Equal(t, 40+3+20+3+6, p.TotalCycle)
	assert.Equal(t, 20, p.Timing(entity.EastWest).Green)

	p.SetGreen(entity.EastWest, 30)
	require.NoError(t, p.Validate())
	assert.Equal(t, 33, p.NorthSouth.Red)
	assert.Equal(t, 40+3+30+3+6, p.TotalCycle)
}

func TestTrafficPhaseValidate(t *testing.T) {
	for name, mutate := range map[string]func(p *entity.TrafficPhase){
		"zero green":     func(p *entity.TrafficPhase) { p.NorthSouth.Green = 0 },
		"zero yellow":    func(p *entity.TrafficPhase) { p.EastWest.Yellow = 0 },
		"red mismatch":   func(p *entity.TrafficPhase) { p.NorthSouth.Red++ },
		"negative clear": func(p *entity.TrafficPhase) { p.Clearance = -1; p.TotalCycle -= 7 },
		"cycle mismatch": func(p *entity.TrafficPhase) { p.TotalCycle = 1 },
	} {
		p := phase(30, 25)
		mutate(&p)
		assert.ErrorIs(t, p.Validate(), entity.ErrInvalidPlan, name)
	}
}
