// Package timerwheel implements the single-list timer thread of spec
// §4.8: one sorted list of timer records, a dedicated goroutine that
// sleeps until the earliest fires (or a mutation wakes it, or
// shutdown), with callbacks run outside the wheel's own lock so they
// may legally reschedule themselves. The self-rearming time.Timer
// idiom is grounded on the teacher's measureWorker
// (services/hal/worker.go: drainTimer + timer.Reset-on-every-loop).
package timerwheel

import (
	"sort"
	"sync"
	"time"
)

// Callback is invoked when a timer fires. now is the fire time in ms.
type Callback func(now int64)

type record struct {
	id       uint64
	fireAtMs int64
	interval int64 // 0 = one-shot
	creator  any
	cb       Callback
}

// Wheel is the timer wheel. Zero value is not usable; use New.
type Wheel struct {
	mu      sync.Mutex
	records []*record
	nextID  uint64
	wake    chan struct{}
	stopped bool
	done    chan struct{}
}

func New() *Wheel {
	w := &Wheel{wake: make(chan struct{}, 1), done: make(chan struct{})}
	go w.run()
	return w
}

// Add installs a one-shot timer firing at atMs, owned by creator
// (creator is later usable with DelByCreator). Returns an id usable
// with Del.
func (w *Wheel) Add(atMs int64, creator any, cb Callback) uint64 {
	return w.addRecord(atMs, 0, creator, cb)
}

// AddInterval installs a repeating timer with the given interval in
// ms, owned by creator. If interval is a power of two, the first fire
// is realigned to the next integral multiple of interval (spec §4.8).
func (w *Wheel) AddInterval(intervalMs int64, creator any, cb Callback) uint64 {
	first := time.Now().UnixMilli() + intervalMs
	if isPowerOfTwo(intervalMs) {
		first = alignUp(first, intervalMs)
	}
	return w.addRecord(first, intervalMs, creator, cb)
}

func (w *Wheel) addRecord(atMs, interval int64, creator any, cb Callback) uint64 {
	w.mu.Lock()
	w.nextID++
	id := w.nextID
	r := &record{id: id, fireAtMs: atMs, interval: interval, creator: creator, cb: cb}
	w.records = append(w.records, r)
	sortRecords(w.records)
	w.mu.Unlock()
	w.signal()
	return id
}

// Del removes the timer with the given id, if still present.
func (w *Wheel) Del(id uint64) {
	w.mu.Lock()
	for i, r := range w.records {
		if r.id == id {
			w.records = append(w.records[:i], w.records[i+1:]...)
			break
		}
	}
	w.mu.Unlock()
	w.signal()
}

// DelByCreator removes every timer owned by creator (spec §4.8: "used
// for shutdown of subsystems that installed anonymous callbacks").
func (w *Wheel) DelByCreator(creator any) {
	w.mu.Lock()
	kept := w.records[:0]
	for _, r := range w.records {
		if r.creator != creator {
			kept = append(kept, r)
		}
	}
	w.records = kept
	w.mu.Unlock()
	w.signal()
}

// Signal wakes the wheel's thread after an external mutation (spec
// §4.8 condition (b)). Add/AddInterval/Del/DelByCreator already call
// this internally; exported for callers driving the wheel's notion of
// "now" externally in tests.
func (w *Wheel) Signal() { w.signal() }

func (w *Wheel) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Len reports the number of pending timers, for metrics/introspection.
func (w *Wheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}

// Stop shuts the wheel's goroutine down. Pending timers are dropped.
func (w *Wheel) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()
	close(w.done)
}

func (w *Wheel) run() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		w.mu.Lock()
		var due *record
		if len(w.records) > 0 {
			due = w.records[0]
		}
		w.mu.Unlock()

		var wait time.Duration
		if due == nil {
			wait = time.Hour
		} else {
			wait = time.Until(time.UnixMilli(due.fireAtMs))
			if wait < 0 {
				wait = 0
			}
		}
		if !timer.Stop() {
			drainTimer(timer)
		}
		timer.Reset(wait)

		select {
		case <-w.done:
			return
		case <-w.wake:
			continue
		case <-timer.C:
			w.fireDue()
		}
	}
}

func (w *Wheel) fireDue() {
	now := time.Now().UnixMilli()

	w.mu.Lock()
	var fired []*record
	kept := w.records[:0]
	for _, r := range w.records {
		if r.fireAtMs <= now {
			fired = append(fired, r)
		} else {
			kept = append(kept, r)
		}
	}
	w.records = kept
	w.mu.Unlock()

	for _, r := range fired {
		r.cb(now)
		if r.interval > 0 {
			next := now + r.interval
			if isPowerOfTwo(r.interval) {
				next = alignUp(next, r.interval)
			}
			w.mu.Lock()
			r.fireAtMs = next
			w.records = append(w.records, r)
			sortRecords(w.records)
			w.mu.Unlock()
		}
	}
}

func sortRecords(rs []*record) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].fireAtMs < rs[j].fireAtMs })
}

func drainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}

func isPowerOfTwo(n int64) bool { return n > 0 && n&(n-1) == 0 }

func alignUp(ms, interval int64) int64 {
	return ((ms + interval - 1) / interval) * interval
}
