package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/tsinghua-fib-lab/signalsim/clock"
	"github.com/tsinghua-fib-lab/signalsim/entity/junction"
	"github.com/tsinghua-fib-lab/signalsim/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/signalsim/utils/config"
)

const shutdownTimeout = 5 * time.Second

// waitForServerReady 等待服务器就绪
// 功能：通过HTTP请求检查服务器是否已经启动并可以响应
// 参数：addr-服务器地址，retryCount-重试次数，interval-重试间隔
// 返回：错误信息，如果服务器就绪则返回nil
func waitForServerReady(addr string, retryCount int, interval time.Duration) error {
	client := &http.Client{
		Timeout: interval,
	}
	for range retryCount {
		resp, err := client.Get(addr)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("server `%v` did not become ready after %d retries", addr, retryCount)
}

// Context 信号控制任务上下文
// 功能：包含一次运行的所有组件：配置、时钟、路口管理器与HTTP服务
// 说明：各路口相互独立，任务只负责启动、对外提供RPC与最终停止
type Context struct {
	// 本次运行的ID，出现在健康检查与心跳日志中
	runID string
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock *clock.Clock
	// 运行时配置
	runtimeConfig *config.RuntimeConfig
	// Junction管理器
	junctionManager *junction.JunctionManager

	// HTTP服务（connect RPC与REST查询）
	router   chi.Router
	server   *http.Server
	listener net.Listener
	serveCh  chan error
}

// NewContext 创建新的任务上下文
// 功能：校验配置，创建时钟与全部路口，组装HTTP路由
// 参数：
//   - c: 配置对象
//   - opts: 附加到每个信号机的选项（如灯具硬件回调）
//
// 返回：初始化完成的Context实例与配置错误
// 算法说明：
// 1. 补全默认值并校验配置
// 2. 创建路口管理器并并行初始化所有路口
// 3. 注册CORS中间件、健康检查与路口服务
func NewContext(c config.Config, opts ...trafficlight.Option) (*Context, error) {
	rc, err := config.NewRuntimeConfig(c)
	if err != nil {
		return nil, err
	}
	ctx := &Context{
		runID:         uuid.NewString(),
		clock:         clock.New(),
		runtimeConfig: rc,
		serveCh:       make(chan error, 1),
	}
	ctx.junctionManager = junction.NewManager(rc, ctx.clock)
	ctx.junctionManager.Init(opts...)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Grpc-Status", "Grpc-Message", "Connect-Protocol-Version"},
	}))
	r.Get("/healthz", ctx.healthz)
	ctx.junctionManager.Register(r)
	ctx.router = r
	ctx.server = &http.Server{Handler: r}
	return ctx, nil
}

func (ctx *Context) RunID() string {
	return ctx.runID
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

func (ctx *Context) JunctionManager() *junction.JunctionManager {
	return ctx.junctionManager
}

// Handler HTTP处理器，包含全部RPC与查询接口
func (ctx *Context) Handler() http.Handler {
	return ctx.router
}

// Addr 实际监听地址，Run之前为空
func (ctx *Context) Addr() string {
	if ctx.listener == nil {
		return ""
	}
	return ctx.listener.Addr().String()
}

type health struct {
	Status    string  `json:"status"`
	RunID     string  `json:"run_id"`
	Uptime    float64 `json:"uptime_seconds"`
	Junctions int     `json:"junctions"`
	Running   int     `json:"running"`
}

// healthz 处理 GET /healthz
func (ctx *Context) healthz(w http.ResponseWriter, r *http.Request) {
	running := 0
	for _, j := range ctx.junctionManager.Junctions() {
		if j.Controller().Running() {
			running++
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(health{
		Status:    "ok",
		RunID:     ctx.runID,
		Uptime:    ctx.clock.Uptime().Seconds(),
		Junctions: len(ctx.junctionManager.Junctions()),
		Running:   running,
	})
}

// healthURL 健康检查地址，监听全部网卡时通过回环地址访问
func healthURL(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok && tcp.IP.IsUnspecified() {
		return fmt.Sprintf("http://127.0.0.1:%d/healthz", tcp.Port)
	}
	return "http://" + addr.String() + "/healthz"
}

// Listen 监听服务地址，Run会在未监听时自动调用
func (ctx *Context) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	ctx.listener = ln
	return nil
}

// Run 运行
// 功能：启动HTTP服务与全部信号机，周期性输出心跳日志，直到runCtx取消或服务异常退出
// 返回：服务异常退出或信号机启动失败时的错误，正常停止返回nil
// 说明：返回前所有信号机都已停止并处于全向红闪
func (ctx *Context) Run(runCtx context.Context) error {
	if ctx.listener == nil {
		if err := ctx.Listen(ctx.runtimeConfig.All.Server.Listen); err != nil {
			return err
		}
	}
	go func() {
		ctx.serveCh <- ctx.server.Serve(ctx.listener)
	}()
	if err := waitForServerReady(healthURL(ctx.listener.Addr()), 50, 100*time.Millisecond); err != nil {
		ctx.Close()
		return err
	}
	log.Infof("run %s serving at %s", ctx.runID, ctx.Addr())

	if err := ctx.junctionManager.StartAll(runCtx); err != nil {
		ctx.Close()
		return err
	}

	ticker := time.NewTicker(heartbeatInterval())
	defer ticker.Stop()
	var err error
loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case err = <-ctx.serveCh:
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			break loop
		case <-ticker.C:
			ctx.heartbeat()
		}
	}
	log.Infof("run %s complete", ctx.runID)
	ctx.Close()
	return err
}

// Close 停止全部信号机并关闭HTTP服务，可重复调用
func (ctx *Context) Close() {
	if ctx.closed.Swap(true) {
		return
	}
	ctx.junctionManager.StopAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := ctx.server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("server shutdown: %v", err)
	}
	// 尚未Serve时监听不受Shutdown管理
	if ctx.listener != nil {
		ctx.listener.Close()
	}
}
