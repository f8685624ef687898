package entity

import "strings"

// Weather 天气状况
type Weather int

const (
	WeatherNormal Weather = iota
	WeatherRain
	WeatherHeavyRain
	WeatherFog
	WeatherSnow
	WeatherIce
)

// 天气名称与配时放大系数，系数只会延长配时
var weatherTable = [...]struct {
	name   string
	factor float64
}{
	WeatherNormal:    {"normal", 1.0},
	WeatherRain:      {"rain", 1.3},
	WeatherHeavyRain: {"heavy_rain", 1.5},
	WeatherFog:       {"fog", 1.4},
	WeatherSnow:      {"snow", 1.6},
	WeatherIce:       {"ice", 1.8},
}

func (w Weather) String() string {
	if w < 0 || int(w) >= len(weatherTable) {
		return weatherTable[WeatherNormal].name
	}
	return weatherTable[w].name
}

// Factor 配时放大系数，非法值按1.0处理
func (w Weather) Factor() float64 {
	if w < 0 || int(w) >= len(weatherTable) {
		return 1.0
	}
	return weatherTable[w].factor
}

// ParseWeather 解析天气名（大小写不敏感）
// 返回：天气与是否识别成功，未知名称返回WeatherNormal与false
func ParseWeather(s string) (Weather, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, w := range weatherTable {
		if w.name == name {
			return Weather(i), true
		}
	}
	return WeatherNormal, false
}

func (w Weather) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText 未知天气回落为normal，不报错
func (w *Weather) UnmarshalText(b []byte) error {
	*w, _ = ParseWeather(string(b))
	return nil
}
