package driver

import (
	"home2l/resource"
	"home2l/value"
)

// DemoDirect is a minimal direct-dispatch driver (spec §4.5): its
// DriveValue runs synchronously on the evaluator's own goroutine and
// must not block, so it just reports the desired value back.
type DemoDirect struct {
	handle *Handle
	res    *resource.Resource
}

func (d *DemoDirect) Init(h *Handle) error {
	d.handle = h
	r, err := h.Register(d, "/host/demo/demo/demoBool", "demoBool", value.DisplayType{Name: "bool", Base: value.TBool}, true)
	if err != nil {
		return err
	}
	d.res = r
	return nil
}

func (d *DemoDirect) Stop() {}

func (d *DemoDirect) DriveValue(r *resource.Resource, desired value.ValueState) {
	_ = r.ReportValueState(desired)
}

// DemoEvent is a minimal event-queue-backed driver: DriveValue is
// handled on the worker goroutine started in Init, simulating a
// device that takes a moment to settle.
type DemoEvent struct {
	*EventDriverBase
	handle *Handle
	res    *resource.Resource
}

func NewDemoEvent(mode PublishMode) *DemoEvent {
	return &DemoEvent{EventDriverBase: NewEventDriverBase(mode, 16)}
}

func (d *DemoEvent) Init(h *Handle) error {
	d.handle = h
	r, err := h.Register(d, "/host/demo/demo/demoTrigger", "demoTrigger", value.DisplayType{Name: "trigger", Base: value.TTrigger}, true)
	if err != nil {
		return err
	}
	d.res = r
	go d.Run(func(res *resource.Resource, desired value.ValueState) {
		_ = res.ReportValueState(desired)
	})
	return nil
}
