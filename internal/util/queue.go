package util

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrQueueClosed = errors.New("queue closed or cleared")
var ErrQueueTimeout = errors.New("queue pop timeout")
var ErrQueueEmpty = errors.New("queue empty (non-blocking pop)")
var ErrQueueCtxDone = errors.New("queue ctx done")

// Queue 基于 chan 的并发安全队列，Clear 会唤醒所有阻塞中的 Pop
type Queue[T any] struct {
	mu     sync.Mutex
	ch     chan T
	cap    int
	closed bool
}

func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{
		ch:  make(chan T, capacity),
		cap: capacity,
	}
}

// Push 队列满时阻塞，直到有空位、ctx 结束或 10s 超时
func (q *Queue[T]) Push(ctx context.Context, val T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	ch := q.ch
	q.mu.Unlock()

	timer := time.NewTimer(10 * time.Second)
	defer timer.Stop()
	select {
	case ch <- val:
		return nil
	case <-ctx.Done():
		return ErrQueueCtxDone
	case <-timer.C:
		return errors.New("push timeout (10s)")
	}
}

// Pop
// timeout=0: 阻塞直到有数据、队列被清空或 ctx 结束
// timeout<0: 非阻塞
// timeout>0: 最多等待 timeout
func (q *Queue[T]) Pop(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return zero, ErrQueueClosed
	}
	ch := q.ch
	q.mu.Unlock()

	var timeoutC <-chan time.Time
	switch {
	case timeout < 0:
		select {
		case v, ok := <-ch:
			if !ok {
				return zero, ErrQueueClosed
			}
			return v, nil
		default:
			return zero, ErrQueueEmpty
		}
	case timeout > 0:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case v, ok := <-ch:
		if !ok {
			return zero, ErrQueueClosed
		}
		return v, nil
	case <-timeoutC:
		return zero, ErrQueueTimeout
	case <-ctx.Done():
		return zero, ErrQueueCtxDone
	}
}

// Clear 丢弃未消费的数据
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	oldCh := q.ch
	q.ch = make(chan T, q.cap)
	close(oldCh)
	q.mu.Unlock()
}

// Close 之后所有 Push/Pop 都返回 ErrQueueClosed
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
}
