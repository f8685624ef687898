package task

import (
	"flag"
	"time"
)

var (
	heartBeatInterval = flag.Float64("log.heartbeat_interval", 60, "心跳日志间隔秒数")
)

func heartbeatInterval() time.Duration {
	if *heartBeatInterval <= 0 {
		return time.Minute
	}
	return time.Duration(*heartBeatInterval * float64(time.Second))
}

// heartbeat 心跳日志
// 功能：输出每个路口的周期数、抢占次数、故障次数与当前需求，便于现场巡检
func (ctx *Context) heartbeat() {
	log.Infof("HEARTBEAT run %s, %s, period %v", ctx.runID, ctx.clock, ctx.clock.Period())
	for _, j := range ctx.junctionManager.Junctions() {
		st := j.Statistics()
		entry := log.WithField("junction", st.ID)
		if st.Controller.EmergencyMode {
			entry.Warnf("%s latched in emergency mode: %s", st.Name, st.Controller.LastFault)
			continue
		}
		entry.Infof("%s cycles=%d overrides=%d faults=%d stale=%d vehicles=%d(%s) scenario=%s weather=%v",
			st.Name, st.Controller.TotalCycles, st.Controller.EmergencyOverrides, st.Controller.Faults,
			st.Controller.StalePlans, st.Demand.Total, st.Demand.Density, st.Demand.Scenario, st.Weather)
	}
}
