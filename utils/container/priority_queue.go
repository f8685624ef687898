package container

import "container/heap"

// entry 优先队列中的单个元素
type entry[T any] struct {
	value    T
	priority float64 // 数值越小越先出队
	index    int     // 在堆中的下标，由heap.Interface维护
}

// entries 实现heap.Interface的小顶堆
type entries[T any] []*entry[T]

func (q entries[T]) Len() int { return len(q) }

func (q entries[T]) Less(i, j int) bool {
	return q[i].priority < q[j].priority
}

func (q entries[T]) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *entries[T]) Push(x any) {
	e := x.(*entry[T])
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *entries[T]) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil // 避免内存泄漏
	e.index = -1
	*q = old[:n-1]
	return e
}

// PriorityQueue 优先队列（小顶堆）
// 功能：按优先级数值从小到大弹出元素，用于淘汰最早生成的车辆等场景
// 说明：批量加入时先用Push追加再调用Heapify，逐个加入时使用HeapPush
type PriorityQueue[T any] struct {
	queue entries[T]
}

// NewPriorityQueue 创建优先队列
// 参数：capacity-预分配容量
func NewPriorityQueue[T any](capacity int) *PriorityQueue[T] {
	return &PriorityQueue[T]{queue: make(entries[T], 0, capacity)}
}

// Len 当前元素个数
func (q *PriorityQueue[T]) Len() int {
	return len(q.queue)
}

// Push 追加元素但不维护堆性质，批量追加后需调用Heapify
func (q *PriorityQueue[T]) Push(value T, priority float64) {
	q.queue = append(q.queue, &entry[T]{value: value, priority: priority, index: len(q.queue)})
}

// Heapify 重建堆
func (q *PriorityQueue[T]) Heapify() {
	heap.Init(&q.queue)
}

// HeapPush 加入元素并维护堆性质
func (q *PriorityQueue[T]) HeapPush(value T, priority float64) {
	heap.Push(&q.queue, &entry[T]{value: value, priority: priority})
}

// HeapPop 弹出优先级数值最小的元素
func (q *PriorityQueue[T]) HeapPop() (value T, priority float64) {
	e := heap.Pop(&q.queue).(*entry[T])
	return e.value, e.priority
}

// Drain 按优先级顺序弹出前n个元素（n超过长度时弹出全部）
// 返回：弹出的元素，顺序为优先级数值从小到大
func (q *PriorityQueue[T]) Drain(n int) []T {
	if n > q.Len() {
		n = q.Len()
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		v, _ := q.HeapPop()
		out = append(out, v)
	}
	return out
}
