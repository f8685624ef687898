package clock

import "time"

// Period 一天中的交通时段
type Period int

const (
	PeriodNormal      Period = iota // 平峰
	PeriodMorningRush               // 早高峰 7:00-9:59
	PeriodEveningRush               // 晚高峰 17:00-19:59
	PeriodNight                     // 夜间 22:00-6:59
	PeriodWeekend                   // 周末全天
)

var periodNames = [...]string{
	PeriodNormal:      "normal_day",
	PeriodMorningRush: "morning_rush",
	PeriodEveningRush: "evening_rush",
	PeriodNight:       "night",
	PeriodWeekend:     "weekend",
}

func (p Period) String() string {
	if p < 0 || int(p) >= len(periodNames) {
		return "unknown"
	}
	return periodNames[p]
}

// PeriodOf 根据时刻判断交通时段
// 功能：按星期与小时划分时段，周末优先于其他时段
// 参数：t-时刻
// 返回：所属时段
func PeriodOf(t time.Time) Period {
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return PeriodWeekend
	}
	switch h := t.Hour(); {
	case 7 <= h && h <= 9:
		return PeriodMorningRush
	case 17 <= h && h <= 19:
		return PeriodEveningRush
	case h >= 22 || h <= 6:
		return PeriodNight
	default:
		return PeriodNormal
	}
}
