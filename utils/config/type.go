package config

// ControlStep 仿真步长配置
// 功能：定义需求仿真器每一步推进的仿真时间
type ControlStep struct {
	Interval float64 `yaml:"interval"`            // 每步的时间间隔（秒）
	MaxSteps int     `yaml:"max_steps,omitempty"` // 单次拉取计划时最多补推进的步数
}

// Control 全局控制配置
// 功能：定义仿真推进、信号机轮询与时间缩放参数
// 说明：time_scale表示一个计划秒对应的真实秒数，1为实时，0.1表示10倍速
type Control struct {
	Step         ControlStep `yaml:"step"`
	PollInterval float64     `yaml:"poll_interval,omitempty"` // 相位等待的轮询间隔（秒）
	TimeScale    float64     `yaml:"time_scale,omitempty"`    // 时间缩放
}

// TrafficLight 信号配时配置
// 功能：定义配时优化与相位执行所需的全部时间常量（单位：秒）
type TrafficLight struct {
	MinGreen       int     `yaml:"min_green,omitempty"`       // 最短绿灯
	MaxGreen       int     `yaml:"max_green,omitempty"`       // 最长绿灯
	Yellow         int     `yaml:"yellow,omitempty"`          // 黄灯
	AllRed         int     `yaml:"all_red,omitempty"`         // 全红清空
	RedClearance   int     `yaml:"red_clearance,omitempty"`   // 红灯清空
	ProcessingRate float64 `yaml:"processing_rate,omitempty"` // 通行能力（辆/秒）

	EmergencyMultiplier float64 `yaml:"emergency_multiplier,omitempty"` // 紧急车辆绿灯上限倍数（相对最长绿灯）
	EmergencyBonus      int     `yaml:"emergency_bonus,omitempty"`      // 紧急车辆方向绿灯增量
	EmergencyPenalty    int     `yaml:"emergency_penalty,omitempty"`    // 另一方向绿灯减量
	EmergencyGreen      int     `yaml:"emergency_green,omitempty"`      // 紧急抢占默认时长
	EmergencyOverride   *bool   `yaml:"emergency_override,omitempty"`   // 检测到紧急车辆时是否自动抢占

	DefaultNSGreen int `yaml:"default_ns_green,omitempty"` // 固定配时南北绿灯
	DefaultEWGreen int `yaml:"default_ew_green,omitempty"` // 固定配时东西绿灯

	HistorySize int `yaml:"history_size,omitempty"` // 周期历史记录容量
}

// Simulation 需求仿真配置
type Simulation struct {
	BaseRate float64 `yaml:"base_rate,omitempty"` // 每个方向每步生成车辆的基础概率
}

// Intersection 单个路口配置
type Intersection struct {
	ID           int32  `yaml:"id"`
	Name         string `yaml:"name"`
	Seed         uint64 `yaml:"seed,omitempty"`         // 随机种子，为0时使用ID
	Weather      string `yaml:"weather,omitempty"`      // 初始天气
	Scenario     string `yaml:"scenario,omitempty"`     // 手动指定的需求场景，为空则按时间自动选择
	Optimization *bool  `yaml:"optimization,omitempty"` // 是否启用配时优化，默认启用
}

// Server RPC服务配置
type Server struct {
	Listen string `yaml:"listen,omitempty"`
}

// Config YAML配置文件的根结构
type Config struct {
	Control       Control        `yaml:"control"`
	TrafficLight  TrafficLight   `yaml:"traffic_light"`
	Simulation    Simulation     `yaml:"simulation"`
	Intersections []Intersection `yaml:"intersections"`
	Server        Server         `yaml:"server"`
}
