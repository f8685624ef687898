package junction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signalsim/entity"
	"github.com/tsinghua-fib-lab/signalsim/entity/demand"
	"github.com/tsinghua-fib-lab/signalsim/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/signalsim/utils"
	"github.com/tsinghua-fib-lab/signalsim/utils/jsoncodec"
)

// ServiceName 路口服务名
const ServiceName = "signalsim.v1.JunctionService"

// 各RPC的路径
const (
	PredictOptimalTimingProcedure = "/" + ServiceName + "/PredictOptimalTiming"
	GetCurrentStatesProcedure     = "/" + ServiceName + "/GetCurrentStates"
	OverrideEmergencyProcedure    = "/" + ServiceName + "/OverrideEmergency"
	GetStatisticsProcedure        = "/" + ServiceName + "/GetStatistics"
	SetScenarioProcedure          = "/" + ServiceName + "/SetScenario"
	SetWeatherProcedure           = "/" + ServiceName + "/SetWeather"
	SetManualTimingProcedure      = "/" + ServiceName + "/SetManualTiming"
	EnableOptimizationProcedure   = "/" + ServiceName + "/EnableOptimization"
	SetEmergencyModeProcedure     = "/" + ServiceName + "/SetEmergencyMode"
	ExportScheduleProcedure       = "/" + ServiceName + "/ExportSchedule"
	ListJunctionsProcedure        = "/" + ServiceName + "/ListJunctions"
)

const dateLayout = "2006-01-02"

type PredictOptimalTimingRequest struct {
	Counts         map[entity.Direction]int `json:"counts"`
	EmergencyCount int                      `json:"emergency_count"`
	Weather        string                   `json:"weather,omitempty"` // 未知天气按normal计算
	EmergencyAxis  *entity.Axis             `json:"emergency_axis,omitempty"`
}

type PredictOptimalTimingResponse struct {
	Phase entity.TrafficPhase `json:"phase"`
}

type JunctionRequest struct {
	JunctionID int32 `json:"junction_id"`
}

type GetCurrentStatesResponse struct {
	JunctionID int32                                  `json:"junction_id"`
	Running    bool                                   `json:"running"`
	States     map[entity.Direction]entity.LightState `json:"states"`
	NextChange map[entity.Axis]trafficlight.Change    `json:"next_change"`
	ActivePlan *entity.TrafficPhase                   `json:"active_plan,omitempty"`
}

type OverrideEmergencyRequest struct {
	JunctionID int32            `json:"junction_id"`
	Direction  entity.Direction `json:"direction"`
	Seconds    int              `json:"seconds,omitempty"` // 为0时使用配置的默认抢占时长
}

type OverrideEmergencyResponse struct {
	Direction entity.Direction `json:"direction"`
	Seconds   int              `json:"seconds"`
}

type GetStatisticsResponse struct {
	Statistics Statistics `json:"statistics"`
}

type SetScenarioRequest struct {
	JunctionID int32  `json:"junction_id"`
	Scenario   string `json:"scenario"` // 为空时恢复按时段自动选择
}

type SetScenarioResponse struct {
	Profile   demand.Profile `json:"profile"`
	Manual    bool           `json:"manual"`
	Available []string       `json:"available"`
}

type SetWeatherRequest struct {
	JunctionID int32  `json:"junction_id"`
	Weather    string `json:"weather"`
}

type SetWeatherResponse struct {
	Weather entity.Weather `json:"weather"`
	Factor  float64        `json:"factor"`
}

type SetManualTimingRequest struct {
	JunctionID int32            `json:"junction_id"`
	Direction  entity.Direction `json:"direction"`
	Green      int              `json:"green"`
}

type SetManualTimingResponse struct {
	Axis  entity.Axis `json:"axis"`
	Green int         `json:"green"` // 限制到[最短绿灯, 最长绿灯]后的实际值
}

type EnableRequest struct {
	JunctionID int32 `json:"junction_id"`
	Enabled    bool  `json:"enabled"`
}

type EnableResponse struct {
	Enabled bool `json:"enabled"`
}

type ExportScheduleRequest struct {
	Hours int    `json:"hours,omitempty"` // 为0时导出24小时
	Date  string `json:"date,omitempty"`  // YYYY-MM-DD，为空时使用当天
}

type ExportScheduleResponse struct {
	Date     string                       `json:"date"`
	Schedule []trafficlight.ScheduleEntry `json:"schedule"`
}

type ListJunctionsRequest struct {
	IDs []int32 `json:"ids,omitempty"` // 为空时返回全部
}

type ListJunctionsResponse struct {
	Junctions []Info `json:"junctions"`
}

// Register 将Junction管理器注册到路由
// 功能：以connect协议（JSON编码）挂载路口服务的全部RPC，并挂载只读的REST查询接口
// 参数：r-路由，opts-附加的connect处理器选项
func (m *JunctionManager) Register(r chi.Router, opts ...connect.HandlerOption) {
	opts = append([]connect.HandlerOption{jsoncodec.HandlerOption()}, opts...)
	r.Handle(PredictOptimalTimingProcedure, connect.NewUnaryHandler(PredictOptimalTimingProcedure, m.PredictOptimalTiming, opts...))
	r.Handle(GetCurrentStatesProcedure, connect.NewUnaryHandler(GetCurrentStatesProcedure, m.GetCurrentStates, opts...))
	r.Handle(OverrideEmergencyProcedure, connect.NewUnaryHandler(OverrideEmergencyProcedure, m.OverrideEmergency, opts...))
	r.Handle(GetStatisticsProcedure, connect.NewUnaryHandler(GetStatisticsProcedure, m.GetStatistics, opts...))
	r.Handle(SetScenarioProcedure, connect.NewUnaryHandler(SetScenarioProcedure, m.SetScenario, opts...))
	r.Handle(SetWeatherProcedure, connect.NewUnaryHandler(SetWeatherProcedure, m.SetWeather, opts...))
	r.Handle(SetManualTimingProcedure, connect.NewUnaryHandler(SetManualTimingProcedure, m.SetManualTiming, opts...))
	r.Handle(EnableOptimizationProcedure, connect.NewUnaryHandler(EnableOptimizationProcedure, m.EnableOptimization, opts...))
	r.Handle(SetEmergencyModeProcedure, connect.NewUnaryHandler(SetEmergencyModeProcedure, m.SetEmergencyMode, opts...))
	r.Handle(ExportScheduleProcedure, connect.NewUnaryHandler(ExportScheduleProcedure, m.ExportSchedule, opts...))
	r.Handle(ListJunctionsProcedure, connect.NewUnaryHandler(ListJunctionsProcedure, m.ListJunctions, opts...))

	r.Get("/api/junctions", m.getJunctions)
	r.Get("/api/junctions/{id}/detections", m.getDetections)
	r.Get("/api/schedule/chart", m.getScheduleChart)
}

// rpcError 将内部错误映射为connect错误码
func rpcError(err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, ErrJunctionNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, entity.ErrInvalidDirection),
		errors.Is(err, entity.ErrInvalidEnum),
		errors.Is(err, ErrUnknownWeather),
		errors.Is(err, demand.ErrUnknownScenario),
		errors.Is(err, trafficlight.ErrInvalidDuration):
		code = connect.CodeInvalidArgument
	case errors.Is(err, trafficlight.ErrNotRunning),
		errors.Is(err, trafficlight.ErrAlreadyRunning),
		errors.Is(err, trafficlight.ErrEmergencyLatched):
		code = connect.CodeFailedPrecondition
	default:
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}

// PredictOptimalTiming RPC接口：按给定需求计算配时方案
// 说明：不涉及任何路口，只调用配时优化器；车辆数不能为负
func (m *JunctionManager) PredictOptimalTiming(
	ctx context.Context, in *connect.Request[PredictOptimalTimingRequest],
) (*connect.Response[PredictOptimalTimingResponse], error) {
	req := in.Msg
	var counts entity.DirectionCounts
	for d, n := range req.Counts {
		if n < 0 {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("negative count %d for %v", n, d))
		}
		counts[d] = n
	}
	if req.EmergencyCount < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("negative emergency count %d", req.EmergencyCount))
	}
	w, ok := entity.ParseWeather(req.Weather)
	if !ok && req.Weather != "" {
		log.Warnf("unknown weather %q, using normal", req.Weather)
	}
	phase := m.optimizer.PredictOptimalTiming(trafficlight.Request{
		Counts:         counts,
		EmergencyCount: req.EmergencyCount,
		Weather:        w,
		EmergencyAxis:  req.EmergencyAxis,
	})
	return connect.NewResponse(&PredictOptimalTimingResponse{Phase: phase}), nil
}

// GetCurrentStates RPC接口：获取路口各方向灯色与下一次变化预测
func (m *JunctionManager) GetCurrentStates(
	ctx context.Context, in *connect.Request[JunctionRequest],
) (*connect.Response[GetCurrentStatesResponse], error) {
	j, err := m.GetOrError(in.Msg.JunctionID)
	if err != nil {
		return nil, rpcError(err)
	}
	states, next := j.States()
	res := &GetCurrentStatesResponse{
		JunctionID: j.id,
		Running:    j.controller.Running(),
		States:     states,
		NextChange: next,
	}
	if plan, ok := j.controller.ActivePlan(); ok {
		res.ActivePlan = &plan
	}
	return connect.NewResponse(res), nil
}

// OverrideEmergency RPC接口：紧急车辆抢占
// 说明：信号机未运行或处于保护锁定时返回FailedPrecondition
func (m *JunctionManager) OverrideEmergency(
	ctx context.Context, in *connect.Request[OverrideEmergencyRequest],
) (*connect.Response[OverrideEmergencyResponse], error) {
	req := in.Msg
	j, err := m.GetOrError(req.JunctionID)
	if err != nil {
		return nil, rpcError(err)
	}
	seconds := lo.Ternary(req.Seconds == 0, m.rc.TL.EmergencyGreen, req.Seconds)
	if err := j.controller.OverrideEmergency(req.Direction, seconds); err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(&OverrideEmergencyResponse{Direction: req.Direction, Seconds: seconds}), nil
}

// GetStatistics RPC接口：获取路口统计
func (m *JunctionManager) GetStatistics(
	ctx context.Context, in *connect.Request[JunctionRequest],
) (*connect.Response[GetStatisticsResponse], error) {
	j, err := m.GetOrError(in.Msg.JunctionID)
	if err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(&GetStatisticsResponse{Statistics: j.Statistics()}), nil
}

// SetScenario RPC接口：设置路口的需求场景
func (m *JunctionManager) SetScenario(
	ctx context.Context, in *connect.Request[SetScenarioRequest],
) (*connect.Response[SetScenarioResponse], error) {
	req := in.Msg
	j, err := m.GetOrError(req.JunctionID)
	if err != nil {
		return nil, rpcError(err)
	}
	p, manual, err := j.SetScenario(req.Scenario)
	if err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(&SetScenarioResponse{
		Profile:   p,
		Manual:    manual,
		Available: demand.Scenarios(),
	}), nil
}

// SetWeather RPC接口：设置路口天气，下一个周期生效
func (m *JunctionManager) SetWeather(
	ctx context.Context, in *connect.Request[SetWeatherRequest],
) (*connect.Response[SetWeatherResponse], error) {
	req := in.Msg
	j, err := m.GetOrError(req.JunctionID)
	if err != nil {
		return nil, rpcError(err)
	}
	if err := j.SetWeather(req.Weather); err != nil {
		return nil, rpcError(err)
	}
	w := j.Weather()
	return connect.NewResponse(&SetWeatherResponse{Weather: w, Factor: w.Factor()}), nil
}

// SetManualTiming RPC接口：手动设置方向所在相位组的绿灯时长
func (m *JunctionManager) SetManualTiming(
	ctx context.Context, in *connect.Request[SetManualTimingRequest],
) (*connect.Response[SetManualTimingResponse], error) {
	req := in.Msg
	j, err := m.GetOrError(req.JunctionID)
	if err != nil {
		return nil, rpcError(err)
	}
	green, err := j.controller.SetManualTiming(req.Direction, req.Green)
	if err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(&SetManualTimingResponse{Axis: req.Direction.Axis(), Green: green}), nil
}

// EnableOptimization RPC接口：启用或停用配时优化
func (m *JunctionManager) EnableOptimization(
	ctx context.Context, in *connect.Request[EnableRequest],
) (*connect.Response[EnableResponse], error) {
	j, err := m.GetOrError(in.Msg.JunctionID)
	if err != nil {
		return nil, rpcError(err)
	}
	j.controller.EnableOptimization(in.Msg.Enabled)
	return connect.NewResponse(&EnableResponse{Enabled: in.Msg.Enabled}), nil
}

// SetEmergencyMode RPC接口：设置或解除全向红闪保护锁定
func (m *JunctionManager) SetEmergencyMode(
	ctx context.Context, in *connect.Request[EnableRequest],
) (*connect.Response[EnableResponse], error) {
	j, err := m.GetOrError(in.Msg.JunctionID)
	if err != nil {
		return nil, rpcError(err)
	}
	j.controller.SetEmergencyMode(in.Msg.Enabled)
	return connect.NewResponse(&EnableResponse{Enabled: in.Msg.Enabled}), nil
}

// ExportSchedule RPC接口：导出按小时的配时计划表
func (m *JunctionManager) ExportSchedule(
	ctx context.Context, in *connect.Request[ExportScheduleRequest],
) (*connect.Response[ExportScheduleResponse], error) {
	req := in.Msg
	if req.Hours < 0 || req.Hours > 24 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("hours must be in [0, 24], got %d", req.Hours))
	}
	hours := lo.Ternary(req.Hours == 0, 24, req.Hours)
	now := m.clock.Now()
	day := now
	if req.Date != "" {
		var err error
		if day, err = time.ParseInLocation(dateLayout, req.Date, now.Location()); err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
	}
	return connect.NewResponse(&ExportScheduleResponse{
		Date:     day.Format(dateLayout),
		Schedule: m.optimizer.ExportSchedule(hours, day),
	}), nil
}

// ListJunctions RPC接口：获取路口概况
// 说明：ids中存在未知路口时返回NotFound
func (m *JunctionManager) ListJunctions(
	ctx context.Context, in *connect.Request[ListJunctionsRequest],
) (*connect.Response[ListJunctionsResponse], error) {
	junctions, failedIDs := utils.Find(m.data, m.junctions, in.Msg.IDs)
	if len(failedIDs) > 0 {
		return nil, rpcError(fmt.Errorf("%w: ids %v", ErrJunctionNotFound, failedIDs))
	}
	return connect.NewResponse(&ListJunctionsResponse{
		Junctions: lo.Map(junctions, func(j *Junction, _ int) Info { return j.Info() }),
	}), nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("write response: %v", err)
	}
}

// getJunctions 处理 GET /api/junctions
func (m *JunctionManager) getJunctions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, lo.Map(m.junctions, func(j *Junction, _ int) Info { return j.Info() }))
}

// getDetections 处理 GET /api/junctions/{id}/detections
// 返回路口当前画面内全部车辆的检测记录
func (m *JunctionManager) getDetections(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid junction id"})
		return
	}
	j, err := m.GetOrError(int32(id))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, j.Detections())
}
