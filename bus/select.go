package bus

import (
	"sync"
	"time"
)

// Processor is anything that can be woken by the bus's global wait list: a
// Subscriber (see the resource package) wraps one or more Subscriptions and
// reports whether it currently has an event ready to hand out.
type Processor interface {
	// Ready reports whether this processor has at least one pending event.
	Ready() bool
}

// Hub is the concrete form of spec §4.6's "global processor list guarded
// by a shared mutex+condvar": one broadcast channel that every blocked
// Select call waits on, closed and replaced on every Notify. Closing a
// channel is Go's idiomatic broadcast-to-all-waiters primitive and avoids
// the goroutine-per-waiter leak a literal sync.Cond-with-timeout would
// need, while keeping the same "wake everyone, let them recheck" contract.
type Hub struct {
	mu   sync.Mutex
	wake chan struct{}
}

func NewHub() *Hub {
	return &Hub{wake: make(chan struct{})}
}

// Notify wakes every blocked Select call. Resource/subscriber code calls
// this after delivering an event (or after Stop), never while holding a
// resource or subscriber lock.
func (h *Hub) Notify() {
	h.mu.Lock()
	old := h.wake
	h.wake = make(chan struct{})
	h.mu.Unlock()
	close(old)
}

func (h *Hub) waitChan() chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.wake
}

// Select blocks until one of the given processors is Ready, the timeout
// elapses (timeout <= 0 means wait forever), or interrupted() reports
// true. It returns the first ready processor found, or nil on
// timeout/interruption.
func (h *Hub) Select(timeout time.Duration, interrupted func() bool, procs []Processor) Processor {
	var deadline time.Time
	hasTimeout := timeout > 0
	if hasTimeout {
		deadline = time.Now().Add(timeout)
	}

	for {
		for _, p := range procs {
			if p.Ready() {
				return p
			}
		}
		if interrupted != nil && interrupted() {
			return nil
		}

		wake := h.waitChan()
		if !hasTimeout {
			<-wake
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-wake:
			timer.Stop()
		case <-timer.C:
			return nil
		}
	}
}
