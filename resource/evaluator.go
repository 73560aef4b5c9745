package resource

import (
	"sort"
	"time"

	"home2l/request"
	"home2l/value"
)

// ScheduleFunc is how the evaluator asks to be re-invoked at a future
// time; Registry.Scheduler is normally wired to the timer wheel
// package by the runtime (spec §4.4 step 6, §4.8).
type ScheduleFunc func(uri string, atMs int64)

// SetRequest installs or replaces the request under (resource, id),
// atomically, then re-evaluates (spec §3: "at most one request per
// (resource, id) pair"; §4.4: "called whenever the request list is
// mutated"). For a persistent resource this is written to the config
// backend before the request takes visible effect (spec §4.9).
func (r *Resource) SetRequest(req *request.Request) {
	r.setRequest(req, true)
}

func (r *Resource) setRequest(req *request.Request, persist bool) {
	r.mu.Lock()
	req.Convert(r.currentTypeLocked())
	for i, existing := range r.reqs {
		if existing.ID == req.ID {
			r.reqs = append(r.reqs[:i], r.reqs[i+1:]...)
			break
		}
	}
	r.reqs = append(r.reqs, req)
	isPersistent := r.persistent
	r.mu.Unlock()

	if persist && isPersistent && r.reg.Persistence != nil {
		r.reg.Persistence.SaveRequest(r.uri, req)
	}

	Evaluate(r, time.Now().UnixMilli())
}

// DelRequest removes the request with the given id unconditionally.
// It takes no t1: the t1 carried by a wire-level DEL frame is not
// consulted.
func (r *Resource) DelRequest(id string) {
	r.mu.Lock()
	for i, existing := range r.reqs {
		if existing.ID == id {
			r.reqs = append(r.reqs[:i], r.reqs[i+1:]...)
			break
		}
	}
	isPersistent := r.persistent
	r.mu.Unlock()

	if isPersistent && r.reg.Persistence != nil {
		r.reg.Persistence.DeleteRequest(r.uri, id)
	}

	Evaluate(r, time.Now().UnixMilli())
}

// Requests returns a snapshot copy of the current request list, for
// inspection (INFO queries) — never the live slice.
func (r *Resource) Requests() []request.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]request.Request, len(r.reqs))
	for i, p := range r.reqs {
		out[i] = *p
	}
	return out
}

func (r *Resource) currentTypeLocked() value.BaseType {
	if r.current.Type != value.TNone {
		return r.current.Type
	}
	return r.dtype.Base
}

// Evaluate computes the driven value for r at nowMs and passes it to
// the owning driver's DriveValue on every call, with the resource lock
// released (spec §4.4).
// It returns the next wakeup time, 0 if none is needed.
func Evaluate(r *Resource, nowMs int64) int64 {
	r.mu.Lock()
	if r.dtype.Base == value.TTrigger {
		next, fired, vs := evaluateTrigger(r, nowMs)
		r.mu.Unlock()
		if fired {
			r.publish(ValueStateChanged, vs)
		}
		if r.reg.Scheduler != nil && next > 0 {
			r.reg.Scheduler(r.uri, next)
		}
		return next
	}

	live := make([]*request.Request, 0, len(r.reqs))
	for _, req := range r.reqs {
		if req.Expired(nowMs) {
			continue
		}
		shifted := req.ShiftRepeat(nowMs)
		*req = shifted
		live = append(live, req)
	}
	r.reqs = live

	winner := pickWinner(live, nowMs)
	driven := value.UnknownOf(r.dtype.Base)
	if winner != nil {
		driven = winner.Value
	}

	if winner != nil && winner.Hysteresis > 0 {
		if suppressed, keep := hysteresisSuppress(live, winner, nowMs, r.lastDriven); suppressed {
			driven = keep
		}
	}

	next := nextWakeup(live, nowMs)

	drv := r.driver
	r.lastDriven = driven
	r.mu.Unlock()

	if drv != nil {
		drv.DriveValue(r, driven)
	}
	if r.reg.Scheduler != nil && next > 0 {
		r.reg.Scheduler(r.uri, next)
	}
	return next
}

// pickWinner returns the active request with the highest priority;
// ties are broken by list order, i.e. the most recently Set one wins
// (spec §4.4 step 3; SetRequest appends, so "last in list" == "most
// recent").
func pickWinner(reqs []*request.Request, nowMs int64) *request.Request {
	var winner *request.Request
	for _, req := range reqs {
		if req.Incompatible || !req.Active(nowMs) {
			continue
		}
		if winner == nil || req.Priority >= winner.Priority {
			winner = req
		}
	}
	return winner
}

// hysteresisSuppress implements spec §4.4 step 4: scan all other
// compatible requests for edges in (now, now+hysteresis]; if any
// then-winner at such an edge would differ in value from the current
// winner, suppress the change by keeping currentDriven — the value
// actually last passed to drv.DriveValue, not the prospective new
// winner's value — until the edge passes.
func hysteresisSuppress(reqs []*request.Request, winner *request.Request, nowMs int64, currentDriven value.ValueState) (bool, value.ValueState) {
	edges := collectEdges(reqs, nowMs, nowMs+winner.Hysteresis)
	for _, edge := range edges {
		then := pickWinner(reqs, edge)
		var thenVal value.ValueState
		if then != nil {
			thenVal = then.Value
		}
		if !thenVal.Equals(winner.Value) {
			return true, currentDriven
		}
	}
	return false, value.ValueState{}
}

func collectEdges(reqs []*request.Request, from, to int64) []int64 {
	set := map[int64]struct{}{}
	for _, req := range reqs {
		if req.T0 > from && req.T0 <= to {
			set[req.T0] = struct{}{}
		}
		if req.T1 != 0 && req.T1 != request.NeverExpire && req.T1 > from && req.T1 <= to {
			set[req.T1] = struct{}{}
		}
	}
	edges := make([]int64, 0, len(set))
	for t := range set {
		edges = append(edges, t)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i] < edges[j] })
	return edges
}

// nextWakeup returns the earliest t0 or t1 strictly greater than now
// across all requests (spec §4.4 step 6), or 0 if none exists.
func nextWakeup(reqs []*request.Request, nowMs int64) int64 {
	var next int64
	consider := func(t int64) {
		if t > nowMs && (next == 0 || t < next) {
			next = t
		}
	}
	for _, req := range reqs {
		consider(req.T0)
		if req.T1 != 0 && req.T1 != request.NeverExpire {
			consider(req.T1)
		}
	}
	return next
}

// evaluateTrigger implements spec §4.4's trigger path: find the
// earliest request whose t0 has elapsed, consume (non-repeating) or
// reschedule (repeating) it, and drive a fresh trigger value. Must be
// called with r.mu held; returns (next wakeup, whether a trigger
// fired, the fired ValueState) so the caller can publish after
// unlocking.
func evaluateTrigger(r *Resource, nowMs int64) (int64, bool, value.ValueState) {
	var earliest *request.Request
	var earliestIdx int
	for i, req := range r.reqs {
		if req.T0 > nowMs {
			continue
		}
		if earliest == nil || req.T0 < earliest.T0 {
			earliest = req
			earliestIdx = i
		}
	}
	if earliest == nil {
		return nextWakeup(r.reqs, nowMs), false, value.ValueState{}
	}

	if earliest.Repeat > 0 {
		shifted := earliest.ShiftRepeat(nowMs + 1)
		*earliest = shifted
	} else {
		r.reqs = append(r.reqs[:earliestIdx], r.reqs[earliestIdx+1:]...)
	}

	r.triggerSeq++
	vs := value.SetTrigger(r.triggerSeq)
	r.current = vs

	return nextWakeup(r.reqs, nowMs), true, vs
}
