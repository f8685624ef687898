package junction

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signalsim/clock"
	"github.com/tsinghua-fib-lab/signalsim/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/signalsim/utils/config"
)

var (
	ErrJunctionNotFound = errors.New("junction not found")
)

// Junction管理器
type JunctionManager struct {
	rc    *config.RuntimeConfig
	clock *clock.Clock

	optimizer *trafficlight.Optimizer // 无状态，供RPC直接计算配时

	data      map[int32]*Junction
	junctions []*Junction
}

// NewManager 创建Junction管理器实例
// 功能：初始化Junction管理器，创建内部数据结构
// 参数：rc-运行时配置，clk-时钟
// 返回：新创建的Junction管理器实例
func NewManager(rc *config.RuntimeConfig, clk *clock.Clock) *JunctionManager {
	return &JunctionManager{
		rc:        rc,
		clock:     clk,
		optimizer: trafficlight.NewOptimizer(trafficlight.OptimizerConfigFrom(rc.TL), clk),
		data:      make(map[int32]*Junction),
		junctions: make([]*Junction, 0),
	}
}

// Init 根据配置初始化所有路口
// 功能：为每个配置的路口创建需求仿真器、优化器与信号机，并建立ID索引
// 参数：opts-附加到每个信号机的选项（如灯色输出）
// 说明：各路口相互独立，使用并行处理创建；路口按ID升序排列
func (m *JunctionManager) Init(opts ...trafficlight.Option) {
	m.junctions = parallel.GoMap(m.rc.All.Intersections, func(in config.Intersection) *Junction {
		return newJunction(m.rc, in, m.clock, m.optimizer, opts...)
	})
	slices.SortFunc(m.junctions, func(a, b *Junction) int { return int(a.id) - int(b.id) })
	m.data = lo.SliceToMap(m.junctions, func(j *Junction) (int32, *Junction) {
		return j.id, j
	})
	log.Infof("%d junctions initialized", len(m.junctions))
}

// Get 根据ID获取Junction实例
// 功能：通过Junction ID查找对应的Junction对象，如果不存在则panic
// 参数：id-Junction的唯一标识符
// 返回：对应的Junction实例，如果不存在则panic
func (m *JunctionManager) Get(id int32) *Junction {
	if junction, ok := m.data[id]; !ok {
		log.Panicf("no id %d in junction data", id)
		return nil
	} else {
		return junction
	}
}

// GetOrError 根据ID获取Junction实例（带错误处理）
// 功能：通过Junction ID查找对应的Junction对象，如果不存在则返回错误
// 参数：id-Junction的唯一标识符
// 返回：Junction实例和错误信息，如果不存在则返回nil和ErrJunctionNotFound
func (m *JunctionManager) GetOrError(id int32) (*Junction, error) {
	if junction, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("%w: id %d", ErrJunctionNotFound, id)
	} else {
		return junction, nil
	}
}

// Junctions 全部路口（按ID升序）
func (m *JunctionManager) Junctions() []*Junction {
	return m.junctions
}

// Optimizer 管理器持有的配时优化器
func (m *JunctionManager) Optimizer() *trafficlight.Optimizer {
	return m.optimizer
}

// StartAll 启动全部路口的信号机
// 返回：所有启动失败的路口错误合并后的结果
func (m *JunctionManager) StartAll(ctx context.Context) error {
	errs := parallel.GoMap(m.junctions, func(j *Junction) error {
		if err := j.Start(ctx); err != nil {
			return fmt.Errorf("junction %d: %w", j.id, err)
		}
		return nil
	})
	return errors.Join(errs...)
}

// StopAll 停止全部路口的信号机，每个路口都结束于全向红闪
func (m *JunctionManager) StopAll() {
	parallel.GoFor(m.junctions, func(j *Junction) { j.Stop() })
}
