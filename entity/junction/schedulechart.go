package junction

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signalsim/entity/junction/trafficlight"
)

// getScheduleChart 处理 GET /api/schedule/chart?date=YYYY-MM-DD
// 以堆叠柱状图展示当天每个整点的南北、东西绿灯时长
func (m *JunctionManager) getScheduleChart(w http.ResponseWriter, r *http.Request) {
	day := m.clock.Now()
	if s := r.URL.Query().Get("date"); s != "" {
		var err error
		if day, err = time.ParseInLocation(dateLayout, s, day.Location()); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "date must be YYYY-MM-DD"})
			return
		}
	}
	schedule := m.optimizer.ExportSchedule(24, day)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Signal Timing Schedule", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Signal Timing Schedule", Subtitle: day.Format(dateLayout)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "green (s)"}),
	)
	green := func(f func(e trafficlight.ScheduleEntry) int) []opts.BarData {
		return lo.Map(schedule, func(e trafficlight.ScheduleEntry, _ int) opts.BarData {
			return opts.BarData{Value: f(e), Name: e.Pattern}
		})
	}
	bar.SetXAxis(lo.Map(schedule, func(e trafficlight.ScheduleEntry, _ int) string { return e.Hour })).
		AddSeries("north_south", green(func(e trafficlight.ScheduleEntry) int { return e.NorthSouthGreen }),
			charts.WithBarChartOpts(opts.BarChart{Stack: "green"})).
		AddSeries("east_west", green(func(e trafficlight.ScheduleEntry) int { return e.EastWestGreen }),
			charts.WithBarChartOpts(opts.BarChart{Stack: "green"}))

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: fmt.Sprintf("render error: %v", err)})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
