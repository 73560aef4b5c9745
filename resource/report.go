package resource

import (
	"home2l/errcode"
	"home2l/value"
)

// ReportValueState mutates the current value (driver -> resource) and,
// only if anything observable changed, emits a ValueStateChanged event
// (spec §4.3). Trigger resources always emit, never coalesce. An
// incompatible reported type is refused with a TypeMismatch error and
// no event is emitted.
func (r *Resource) ReportValueState(vs value.ValueState) error {
	r.mu.Lock()
	if r.current.Type != value.TNone && r.current.Type != vs.Type && vs.Type != value.TNone {
		if _, ok := vs.Convert(r.current.Type); !ok {
			r.mu.Unlock()
			return errcode.Withf(errcode.TypeMismatch, "resource.report_value",
				"incompatible reported type for "+r.uri)
		}
	}
	changed := vs.Type == value.TTrigger || !r.current.Equals(vs)
	r.current = vs
	r.mu.Unlock()

	if changed {
		r.publish(ValueStateChanged, vs)
	}
	return nil
}

func (r *Resource) ReportValue(v value.ValueState) error { return r.ReportValueState(v) }

// ReportUnknown marks the resource's value unknown.
func (r *Resource) ReportUnknown() {
	r.mu.Lock()
	t := r.current.Type
	r.mu.Unlock()
	_ = r.ReportValueState(value.UnknownOf(t))
}

// ReportBusy marks the resource busy, retaining its previous payload
// (spec §4.5 "publish busy with the old payload until the driver
// reports back").
func (r *Resource) ReportBusy() {
	r.mu.Lock()
	vs := r.current.Busy()
	r.current = vs
	r.mu.Unlock()
	r.publish(ValueStateChanged, vs)
}

// ReportTrigger increments the trigger sequence and always emits
// (spec §3: "trigger values ... consecutive ReportTrigger() calls must
// increment it; equality of trigger values means 'same event'").
func (r *Resource) ReportTrigger() {
	r.mu.Lock()
	r.triggerSeq++
	vs := value.SetTrigger(r.triggerSeq)
	r.current = vs
	r.mu.Unlock()
	r.publish(ValueStateChanged, vs)
}
