package container

import "sync"

// Ring 定长环形缓冲区
// 功能：保存最近的N条记录，写满后覆盖最旧的记录，避免长时间运行下历史无限增长
// 说明：并发安全
type Ring[T any] struct {
	mtx   sync.RWMutex
	data  []T
	start int // 最旧记录的下标
	size  int
	total int // 累计写入次数
}

// NewRing 创建环形缓冲区
// 参数：capacity-容量，小于1时按1处理
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{data: make([]T, capacity)}
}

// Push 写入一条记录
func (r *Ring[T]) Push(v T) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.total++
	if r.size < len(r.data) {
		r.data[(r.start+r.size)%len(r.data)] = v
		r.size++
		return
	}
	// 已满，覆盖最旧记录
	r.data[r.start] = v
	r.start = (r.start + 1) % len(r.data)
}

// Len 当前保存的记录数
func (r *Ring[T]) Len() int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.size
}

// Cap 容量
func (r *Ring[T]) Cap() int {
	return len(r.data)
}

// Total 累计写入次数（包括已被覆盖的记录）
func (r *Ring[T]) Total() int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.total
}

// Last 获取最近的n条记录
// 返回：从旧到新排列的记录副本，n<=0或超过长度时返回全部
func (r *Ring[T]) Last(n int) []T {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]T, n)
	offset := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.data[(r.start+offset+i)%len(r.data)]
	}
	return out
}
