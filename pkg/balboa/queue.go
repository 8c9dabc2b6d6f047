// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package balboa

import "sync"

// SendQueue holds outbound messages until a bus grant lets the client
// transmit. Strict FIFO, no priorities, no coalescing. Unbounded: callers
// that enqueue faster than grants arrive will grow memory; the queue does
// not prevent that.
//
// Enqueue may be called from any goroutine; TakeNext is called only by the
// receive loop inside the grant transition, so at most one message is in
// flight per grant.
type SendQueue struct {
	mu      sync.Mutex
	pending []Message
}

// NewSendQueue creates an empty queue.
func NewSendQueue() *SendQueue {
	return &SendQueue{}
}

// Enqueue appends a message to the tail. Never blocks.
func (q *SendQueue) Enqueue(m Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, m)
}

// TakeNext pops the head, reporting false when the queue is empty.
func (q *SendQueue) TakeNext() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, false
	}
	m := q.pending[0]
	q.pending = q.pending[1:]
	return m, true
}

// Len reports the number of waiting messages.
func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
