// 随机数引擎，包装了golang.org/x/exp/rand，提供交通需求生成所需的常用分布
package randengine

import (
	"flag"
	"log"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于在不改配置的情况下调整随机数序列
)

// Engine 随机数引擎（非线程安全，由持有者负责加锁）
// 功能：提供可复现的随机数生成，支持离散分布、均匀分布、正态分布与伯努利试验
type Engine struct {
	*rand.Rand
}

// New 创建随机数引擎
// 功能：使用种子（加上种子偏移量）初始化一个随机数引擎
// 参数：seed-随机数种子
// 返回：随机数引擎指针
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// DiscreteDistribution 按给定权重生成下标
// 功能：根据权重数组生成离散分布的随机下标
// 参数：weight-权重数组，每个元素表示对应下标的权重（无需归一化）
// 返回：随机生成的下标（0到len(weight)-1）
// 算法说明：
// 1. 计算总权重并在[0, 总权重)范围内取随机数
// 2. 累加权重，返回第一个累积值超过随机数的下标
func (e *Engine) DiscreteDistribution(weight []float64) int {
	random := .0
	for _, w := range weight {
		random += w
	}
	random *= e.Float64()
	sum := 0.
	for i, w := range weight {
		sum += w
		if sum > random {
			return i
		}
	}
	log.Panicf("randengine: DiscreteDistribution: sum: %f random: %f", sum, random)
	return -1
}

// PTrue 以指定概率返回true
// 功能：伯努利试验
// 参数：p-返回true的概率
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}

// Uniform 生成[low, high)区间内的均匀分布随机浮点数
func (e *Engine) Uniform(low, high float64) float64 {
	return low + (high-low)*e.Float64()
}

// UniformInt 生成[low, high]闭区间内的均匀分布随机整数
// 说明：high < low 时返回low
func (e *Engine) UniformInt(low, high int) int {
	if high <= low {
		return low
	}
	return low + e.Intn(high-low+1)
}

// Gauss 生成正态分布随机数
// 参数：mean-均值，std-标准差
func (e *Engine) Gauss(mean, std float64) float64 {
	return mean + std*e.NormFloat64()
}

// Choice 从切片中等概率选取一个元素
// 说明：空切片会panic，调用方需保证非空
func Choice[T any](e *Engine, items []T) T {
	if len(items) == 0 {
		log.Panic("randengine: Choice from empty slice")
	}
	return items[e.Intn(len(items))]
}
