package resource

import (
	"testing"
	"time"

	"home2l/bus"
	"home2l/request"
	"home2l/value"
)

type recordingDriver struct {
	driven []value.ValueState
}

func (d *recordingDriver) DriveValue(r *Resource, desired value.ValueState) {
	d.driven = append(d.driven, desired)
}

func newTestRegistry() *Registry {
	return NewRegistry(bus.NewBus(16), 0)
}

func TestIdempotentRegistration(t *testing.T) {
	reg := newTestRegistry()
	drv := &recordingDriver{}
	dt := value.DisplayType{Base: value.TBool}

	r, err := reg.Register(drv, "/host/h/demo/x", "x", dt, true)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	seq1 := r.RegSeq()

	r.Unregister()
	r2, err := reg.Register(drv, "/host/h/demo/x", "x", dt, true)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if r2 != r {
		t.Fatal("expected same opaque handle across unregister/register")
	}
	if r2.RegSeq() != seq1+2 {
		t.Fatalf("expected regSeq to advance by 2 per cycle, got %d -> %d", seq1, r2.RegSeq())
	}
}

func TestRequestReplacement(t *testing.T) {
	reg := newTestRegistry()
	drv := &recordingDriver{}
	dt := value.DisplayType{Base: value.TInt}
	r, _ := reg.Register(drv, "/host/h/demo/x", "x", dt, true)

	r.SetRequest(&request.Request{ID: "a", Value: value.SetInt(1), T0: 0})
	r.SetRequest(&request.Request{ID: "a", Value: value.SetInt(2), T0: 0})

	reqs := r.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected exactly one request, got %d", len(reqs))
	}
	if got, _ := reqs[0].Value.GetInt(); got != 2 {
		t.Fatalf("expected replacement value 2, got %d", got)
	}
}

func TestPriorityAndRecencyWinner(t *testing.T) {
	reg := newTestRegistry()
	drv := &recordingDriver{}
	dt := value.DisplayType{Base: value.TInt}
	r, _ := reg.Register(drv, "/host/h/demo/x", "x", dt, true)

	now := time.Now().UnixMilli()
	r.SetRequest(&request.Request{ID: "low", Value: value.SetInt(1), Priority: 1, T0: now - 1000, T1: 0})
	r.SetRequest(&request.Request{ID: "high-old", Value: value.SetInt(2), Priority: 10, T0: now - 1000, T1: 0})
	r.SetRequest(&request.Request{ID: "high-new", Value: value.SetInt(3), Priority: 10, T0: now - 500, T1: 0})

	Evaluate(r, now)

	last := drv.driven[len(drv.driven)-1]
	if got, _ := last.GetInt(); got != 3 {
		t.Fatalf("expected most-recently-set top-priority request (3) to win, got %d", got)
	}
}

func TestTriggerMonotonicity(t *testing.T) {
	reg := newTestRegistry()
	dt := value.DisplayType{Base: value.TTrigger}
	r, _ := reg.Register(nil, "/host/h/demo/t", "t", dt, true)

	r.ReportTrigger()
	first := r.Current().Int
	r.ReportTrigger()
	second := r.Current().Int
	r.ReportTrigger()
	third := r.Current().Int

	if !(second > first && third > second) {
		t.Fatalf("expected strictly increasing sequence, got %d, %d, %d", first, second, third)
	}
}

func TestTriggerRequestConsumed(t *testing.T) {
	reg := newTestRegistry()
	dt := value.DisplayType{Base: value.TTrigger}
	r, _ := reg.Register(nil, "/host/h/demo/t", "t", dt, true)

	now := time.Now().UnixMilli()
	r.SetRequest(&request.Request{ID: "once", T0: now - 1000})

	if len(r.Requests()) != 0 {
		t.Fatalf("expected the non-repeating trigger request to be consumed, got %d left", len(r.Requests()))
	}

	before := r.Current().Int
	Evaluate(r, now+10)
	after := r.Current().Int
	if after != before {
		t.Fatalf("second evaluation must not fire again: before=%d after=%d", before, after)
	}
}

func TestReportValueCoalescesUnchangedValue(t *testing.T) {
	reg := newTestRegistry()
	dt := value.DisplayType{Base: value.TInt}
	r, _ := reg.Register(nil, "/host/h/demo/x", "x", dt, false)
	conn := reg.bus.NewConnection("watcher")
	sub := conn.Subscribe(bus.T("h", "demo", "x"))

	_ = r.ReportValueState(value.SetInt(5))
	<-sub.Channel() // initial change

	_ = r.ReportValueState(value.SetInt(5))
	select {
	case ev := <-sub.Channel():
		t.Fatalf("unexpected event for unchanged value: %+v", ev)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestUnregisteredGetPromotedInPlace(t *testing.T) {
	reg := newTestRegistry()
	orphan, err := reg.Get("/host/h/demo/y")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if orphan.IsRegistered() {
		t.Fatal("freshly allocated resource must be unregistered")
	}

	drv := &recordingDriver{}
	promoted, err := reg.Register(drv, "/host/h/demo/y", "y", value.DisplayType{Base: value.TBool}, true)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if promoted != orphan {
		t.Fatal("Register must promote the same object returned by Get")
	}
}

func TestAliasResolutionLoopDetected(t *testing.T) {
	reg := newTestRegistry()
	reg.SetAlias("a", "/alias/b")
	reg.SetAlias("b", "/alias/a")

	if _, err := reg.Get("/alias/a"); err == nil {
		t.Fatal("expected loop detection to fail resolution")
	}
}

func TestOrphanCeilingEnforced(t *testing.T) {
	reg := NewRegistry(bus.NewBus(16), 2)
	if _, err := reg.Get("/host/h/demo/a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := reg.Get("/host/h/demo/b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := reg.Get("/host/h/demo/c"); err == nil {
		t.Fatal("expected ceiling to be enforced on the third orphan")
	}
}

func TestHysteresisHoldsDrivenValueUntilEdgePasses(t *testing.T) {
	reg := newTestRegistry()
	drv := &recordingDriver{}
	dt := value.DisplayType{Base: value.TInt}
	r, _ := reg.Register(drv, "/host/h/demo/x", "x", dt, true)

	now := time.Now().UnixMilli()

	// A long-lived, low-priority request alone: establishes the
	// presently-driven value A=1 (spec §4.4 step 4's "whatever value
	// is presently being driven").
	r.SetRequest(&request.Request{ID: "low", Value: value.SetInt(1), Priority: 1, T0: now - 10000, T1: 0})
	if got, _ := drv.driven[len(drv.driven)-1].GetInt(); got != 1 {
		t.Fatalf("expected initial driven value 1, got %d", got)
	}

	// A higher-priority request with value B=2 arrives, but it expires
	// 100ms from now with a 1000ms hysteresis window: re-evaluating
	// reveals an edge (its own expiry) within (now, now+1000] where the
	// winner reverts to the low-priority request's value 1. Per spec
	// §4.4 step 4 this must suppress the flip to 2 and keep driving 1.
	r.SetRequest(&request.Request{ID: "high", Value: value.SetInt(2), Priority: 10, T0: now - 10000, T1: now + 100, Hysteresis: 1000})
	if got, _ := drv.driven[len(drv.driven)-1].GetInt(); got != 1 {
		t.Fatalf("expected hysteresis to suppress the flip to 2 and keep driving 1, got %d", got)
	}

	// Once the high-priority request's own expiry edge has passed,
	// only the low-priority request remains active; the driven value
	// is unaffected, matching scenario S2's "driven value does not
	// change until the window has passed".
	Evaluate(r, now+150)
	if got, _ := drv.driven[len(drv.driven)-1].GetInt(); got != 1 {
		t.Fatalf("expected value 1 to still be driven once the high-priority request expired, got %d", got)
	}

	// driven[0] is the drive made at registration, before any request
	// existed, so it carries the unknown state; every later drive is 1.
	if drv.driven[0].State != value.Unknown {
		t.Fatalf("driven[0] = %v, expected the unknown value driven at registration", drv.driven[0])
	}
	for i, vs := range drv.driven[1:] {
		if got, _ := vs.GetInt(); got != 1 {
			t.Fatalf("driven[%d] = %d, expected 1 throughout: the buggy evaluator would have driven 2 the instant the high-priority request was set", i+1, got)
		}
	}
}

func TestHysteresisAllowsChangeWithNoReversalEdge(t *testing.T) {
	reg := newTestRegistry()
	drv := &recordingDriver{}
	dt := value.DisplayType{Base: value.TInt}
	r, _ := reg.Register(drv, "/host/h/demo/x", "x", dt, true)

	now := time.Now().UnixMilli()

	r.SetRequest(&request.Request{ID: "low", Value: value.SetInt(1), Priority: 1, T0: now - 10000, T1: 0})
	if got, _ := drv.driven[len(drv.driven)-1].GetInt(); got != 1 {
		t.Fatalf("expected initial driven value 1, got %d", got)
	}

	// A higher-priority, never-expiring request with a different value
	// and Hysteresis>0: there is no edge within the hysteresis window
	// that would revert the winner, so the change must take effect
	// immediately rather than being suppressed forever.
	r.SetRequest(&request.Request{ID: "high", Value: value.SetInt(2), Priority: 10, T0: now - 10000, T1: 0, Hysteresis: 1000})
	if got, _ := drv.driven[len(drv.driven)-1].GetInt(); got != 2 {
		t.Fatalf("expected the unsuppressed winner's value 2 to be driven, got %d", got)
	}
}

func TestAllAndCountsReflectOrphanAndRegisteredResources(t *testing.T) {
	reg := newTestRegistry()
	if _, err := reg.Get("/host/h/demo/orphan"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := reg.Register(nil, "/host/h/demo/live", "live", value.DisplayType{Base: value.TInt}, false); err != nil {
		t.Fatalf("register: %v", err)
	}

	total, orphans := reg.Counts()
	if total != 2 || orphans != 1 {
		t.Fatalf("expected 2 total / 1 orphan, got total=%d orphans=%d", total, orphans)
	}

	all := reg.All()
	if len(all) != 2 {
		t.Fatalf("expected All to list both resources, got %d", len(all))
	}
	if all[0].URI() > all[1].URI() {
		t.Fatal("expected All to be sorted by URI")
	}
}
