// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package balboa

import (
	"sync"
	"testing"
)

func TestSendQueue_FIFO(t *testing.T) {
	var q SendQueue

	q.Enqueue(ToggleItemRequest{Item: ItemPump1})
	q.Enqueue(ToggleItemRequest{Item: ItemLight1})
	q.Enqueue(SetTemperatureRequest{Temperature: 100})

	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}

	m, ok := q.TakeNext()
	if !ok || m != (ToggleItemRequest{Item: ItemPump1}) {
		t.Errorf("TakeNext() = %v, %v, want pump toggle", m, ok)
	}
	m, ok = q.TakeNext()
	if !ok || m != (ToggleItemRequest{Item: ItemLight1}) {
		t.Errorf("TakeNext() = %v, %v, want light toggle", m, ok)
	}
	m, ok = q.TakeNext()
	if !ok || m != (SetTemperatureRequest{Temperature: 100}) {
		t.Errorf("TakeNext() = %v, %v, want set temperature", m, ok)
	}

	if q.Len() != 0 {
		t.Errorf("Len() after drain = %d, want 0", q.Len())
	}
}

func TestSendQueue_Empty(t *testing.T) {
	var q SendQueue
	if m, ok := q.TakeNext(); ok {
		t.Errorf("TakeNext() on empty queue = %v, true, want false", m)
	}
}

func TestSendQueue_DuplicatesKept(t *testing.T) {
	// Two identical toggles are two distinct bus messages: toggles are
	// edge-triggered and the queue must never coalesce them.
	var q SendQueue
	q.Enqueue(ToggleItemRequest{Item: ItemPump1})
	q.Enqueue(ToggleItemRequest{Item: ItemPump1})
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
}

func TestSendQueue_Concurrent(t *testing.T) {
	var q SendQueue
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Enqueue(NothingToSend{})
			}
		}()
	}
	wg.Wait()

	n := 0
	for {
		if _, ok := q.TakeNext(); !ok {
			break
		}
		n++
	}
	if n != 800 {
		t.Errorf("drained %d messages, want 800", n)
	}
}
