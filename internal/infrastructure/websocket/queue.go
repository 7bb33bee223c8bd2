package websocket

import "sync"

// Queue 接收队列：读协程 Push，处理协程整批 Drain
// 临界区只做切片追加或交换
type Queue struct {
	mu        sync.Mutex
	items     []RawFrame
	ready     chan struct{}
	softLimit int
}

// NewQueue 创建队列；softLimit <= 0 表示不限制
func NewQueue(softLimit int) *Queue {
	return &Queue{
		items:     make([]RawFrame, 0, 64),
		ready:     make(chan struct{}, 1),
		softLimit: softLimit,
	}
}

// Push 追加一帧，返回因超出软上限而丢弃的最旧帧数
func (q *Queue) Push(f RawFrame) int {
	q.mu.Lock()
	q.items = append(q.items, f)
	dropped := 0
	if q.softLimit > 0 && len(q.items) > q.softLimit {
		dropped = len(q.items) - q.softLimit
		q.items = append(q.items[:0], q.items[dropped:]...)
	}
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return dropped
}

// Drain 取出全部待处理帧，buf 用作新的底层存储（可为 nil）
// 返回的切片归调用方所有，按接收顺序排列
func (q *Queue) Drain(buf []RawFrame) []RawFrame {
	clear(buf)
	q.mu.Lock()
	out := q.items
	q.items = buf[:0]
	q.mu.Unlock()
	return out
}

// Ready 有新帧时可读
func (q *Queue) Ready() <-chan struct{} { return q.ready }

// Len 当前待处理帧数
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
