package driver

import (
	"home2l/resource"
	"home2l/value"
)

// PublishMode controls what an event driver's DriveValue publishes
// before the driver's own worker thread has actually realized the
// value (spec §4.5).
type PublishMode int

const (
	// PublishOptimistic immediately publishes the desired value.
	PublishOptimistic PublishMode = iota
	// PublishBusy immediately publishes busy, retaining the old payload.
	PublishBusy
	// PublishUnknown publishes nothing; callers wait for the driver.
	PublishUnknown
)

type driveReq struct {
	res     *resource.Resource
	desired value.ValueState
}

// EventDriverBase is embedded by event-queue-backed drivers (spec
// §4.5): DriveValue posts to qLen and returns immediately; a worker
// goroutine drains the queue on its own thread, grounded on the
// teacher's measureWorker (services/hal/worker.go) request/collect
// loop shape.
type EventDriverBase struct {
	Mode  PublishMode
	queue chan driveReq
	done  chan struct{}
}

func NewEventDriverBase(mode PublishMode, qLen int) *EventDriverBase {
	if qLen <= 0 {
		qLen = 16
	}
	return &EventDriverBase{Mode: mode, queue: make(chan driveReq, qLen), done: make(chan struct{})}
}

// DriveValue satisfies resource.Driver. It never blocks: a full queue
// drops the oldest pending drive request, same non-blocking-delivery
// contract as the bus (spec §1 Non-goals).
func (e *EventDriverBase) DriveValue(r *resource.Resource, desired value.ValueState) {
	switch e.Mode {
	case PublishOptimistic:
		_ = r.ReportValueState(desired)
	case PublishBusy:
		r.ReportBusy()
	case PublishUnknown:
	}

	select {
	case e.queue <- driveReq{r, desired}:
	default:
		select {
		case <-e.queue:
		default:
		}
		select {
		case e.queue <- driveReq{r, desired}:
		default:
		}
	}
}

// Run starts the worker loop; apply is called once per drive request
// on the worker's own goroutine, off the evaluator's caller thread.
// It returns when Stop is called.
func (e *EventDriverBase) Run(apply func(r *resource.Resource, desired value.ValueState)) {
	for {
		select {
		case <-e.done:
			return
		case req := <-e.queue:
			apply(req.res, req.desired)
		}
	}
}

// Stop posts a poison signal and lets Run return (spec §5: "Each event
// driver is stopped by posting a poison event and joining its thread").
func (e *EventDriverBase) Stop() {
	close(e.done)
}
