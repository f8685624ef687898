package entity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidEnum      = errors.New("invalid enum value")
)

// Direction 进口方向
type Direction int

const (
	North Direction = iota
	South
	East
	West
	NumDirections = 4
)

// Directions 全部方向，固定顺序
var Directions = [NumDirections]Direction{North, South, East, West}

var directionNames = [NumDirections]string{"north", "south", "east", "west"}

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionNames[d]
}

// Valid 是否为合法方向
func (d Direction) Valid() bool {
	return d >= North && d <= West
}

// Axis 方向所属的相位组
func (d Direction) Axis() Axis {
	if d == North || d == South {
		return NorthSouth
	}
	return EastWest
}

// ParseDirection 解析方向名（大小写不敏感）
// 返回：方向与错误，未知名称返回ErrInvalidDirection
func ParseDirection(s string) (Direction, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range directionNames {
		if n == name {
			return Direction(i), nil
		}
	}
	return North, fmt.Errorf("%w: %q (valid: %v)", ErrInvalidDirection, s, directionNames)
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDirection, int(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Axis 相位组：同组两个方向始终同色
type Axis int

const (
	NorthSouth Axis = iota
	EastWest
	NumAxes = 2
)

// Axes 全部相位组
var Axes = [NumAxes]Axis{NorthSouth, EastWest}

var axisNames = [NumAxes]string{"north_south", "east_west"}

func (a Axis) String() string {
	if a != NorthSouth && a != EastWest {
		return fmt.Sprintf("axis(%d)", int(a))
	}
	return axisNames[a]
}

// Other 另一相位组
func (a Axis) Other() Axis {
	return 1 - a
}

// Directions 相位组包含的两个方向
func (a Axis) Directions() [2]Direction {
	if a == NorthSouth {
		return [2]Direction{North, South}
	}
	return [2]Direction{East, West}
}

func (a Axis) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Axis) UnmarshalText(b []byte) error {
	for i, n := range axisNames {
		if n == strings.ToLower(string(b)) {
			*a = Axis(i)
			return nil
		}
	}
	return fmt.Errorf("%w: axis %q", ErrInvalidEnum, string(b))
}

// DirectionCounts 各方向的车辆数
type DirectionCounts [NumDirections]int

// Axis 相位组的车辆数之和
func (c DirectionCounts) Axis(a Axis) int {
	ds := a.Directions()
	return c[ds[0]] + c[ds[1]]
}

// Total 全部车辆数
func (c DirectionCounts) Total() int {
	return c[North] + c[South] + c[East] + c[West]
}

// Map 转换为以方向名为键的映射，用于日志与对外接口
func (c DirectionCounts) Map() map[Direction]int {
	m := make(map[Direction]int, NumDirections)
	for _, d := range Directions {
		m[d] = c[d]
	}
	return m
}

// VehicleClass 车辆类别
type VehicleClass int

const (
	Car VehicleClass = iota
	Truck
	Bus
	Motorcycle
	Bicycle
	Emergency
	NumVehicleClasses = 6
)

// VehicleClasses 全部车辆类别
var VehicleClasses = [NumVehicleClasses]VehicleClass{Car, Truck, Bus, Motorcycle, Bicycle, Emergency}

var vehicleClassNames = [NumVehicleClasses]string{"car", "truck", "bus", "motorcycle", "bicycle", "emergency"}

func (v VehicleClass) String() string {
	if v < 0 || v >= NumVehicleClasses {
		return fmt.Sprintf("vehicle_class(%d)", int(v))
	}
	return vehicleClassNames[v]
}

func (v VehicleClass) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *VehicleClass) UnmarshalText(b []byte) error {
	for i, n := range vehicleClassNames {
		if n == string(b) {
			*v = VehicleClass(i)
			return nil
		}
	}
	return fmt.Errorf("%w: vehicle class %q", ErrInvalidEnum, string(b))
}

// LightState 信号灯状态
type LightState int

const (
	Red LightState = iota
	Yellow
	Green
	FlashingRed
	FlashingYellow
	Off
)

var lightStateNames = [...]string{"red", "yellow", "green", "flashing_red", "flashing_yellow", "off"}

func (s LightState) String() string {
	if s < 0 || int(s) >= len(lightStateNames) {
		return fmt.Sprintf("light_state(%d)", int(s))
	}
	return lightStateNames[s]
}

func (s LightState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LightState) UnmarshalText(b []byte) error {
	for i, n := range lightStateNames {
		if n == string(b) {
			*s = LightState(i)
			return nil
		}
	}
	return fmt.Errorf("%w: light state %q", ErrInvalidEnum, string(b))
}

// Priority 配时优先级
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityEmergency
)

var priorityNames = [...]string{"normal", "high", "emergency"}

func (p Priority) String() string {
	if p < 0 || int(p) >= len(priorityNames) {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	for i, n := range priorityNames {
		if n == string(b) {
			*p = Priority(i)
			return nil
		}
	}
	return fmt.Errorf("%w: priority %q", ErrInvalidEnum, string(b))
}
