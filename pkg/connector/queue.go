// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"sync"
)

// frameQueue is an unbounded FIFO of raw event frames. Push never blocks, so
// the reader keeps delivering API responses while the processor is busy.
type frameQueue struct {
	mu     sync.Mutex
	frames [][]byte
	notify chan struct{}

	// warnAt is the backlog size at which onBacklog fires.
	warnAt    int
	warned    bool
	onBacklog func(n int)
}

func newFrameQueue(warnAt int) *frameQueue {
	return &frameQueue{
		frames: make([][]byte, 0, warnAt),
		notify: make(chan struct{}, 1),
		warnAt: warnAt,
	}
}

// Push appends a frame and wakes the consumer.
func (q *frameQueue) Push(data []byte) {
	q.mu.Lock()
	q.frames = append(q.frames, data)
	n := len(q.frames)
	fire := q.warnAt > 0 && n >= q.warnAt && !q.warned
	if fire {
		q.warned = true
	}
	q.mu.Unlock()

	if fire && q.onBacklog != nil {
		q.onBacklog(n)
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes the oldest frame, waiting for one to arrive. It returns false
// once ctx is done.
func (q *frameQueue) Pop(ctx context.Context) ([]byte, bool) {
	for {
		if data, ok := q.tryPop(); ok {
			return data, true
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-q.notify:
		}
	}
}

func (q *frameQueue) tryPop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return nil, false
	}
	data := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	if len(q.frames) == 0 {
		q.warned = false
		q.frames = q.frames[:0:0]
	}
	return data, true
}

// Len returns the number of queued frames.
func (q *frameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
