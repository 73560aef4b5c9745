// Package resource implements the Resource & subscription data model of
// spec §3/§4.3/§4.4: per-resource state, the request list, subscriber
// links, and the request evaluator that drives a resource's value.
package resource

import (
	"sync"

	"home2l/bus"
	"home2l/request"
	"home2l/value"
)

// Driver is the minimal callback surface a resource needs from its
// owning driver (spec §4.5). The full driver contract, including the
// init/stop lifecycle and the event-driver worker, lives in package
// driver; Resource only ever needs DriveValue, so it is declared here
// to avoid an import cycle (driver imports resource, not vice versa).
type Driver interface {
	DriveValue(r *Resource, desired value.ValueState)
}

// EventKind distinguishes the four event kinds carried on the bus
// (spec §4.6): ValueStateChanged, Connected, Disconnected, Timer.
// DriveValue is internal to event drivers and is not published here.
type EventKind int

const (
	ValueStateChanged EventKind = iota
	Connected
	Disconnected
	TimerFired
)

// Event is the payload carried by bus.Event.Payload for resource
// notifications: it references its source resource and a ValueState
// snapshot (spec §4.6).
type Event struct {
	Kind     EventKind
	URI      string
	Resource *Resource
	State    value.ValueState
}

// Resource is the per-URI kernel object described by spec §3. It is
// never destroyed while the process lives; Unregister only flips its
// registered flag and bumps regSeq, returning it to the orphan pool.
type Resource struct {
	mu sync.Mutex

	uri      string
	hostID   string
	driverID string
	localID  string

	dtype    value.DisplayType
	writable bool

	registered bool
	regSeq     uint64 // even=unregistered, odd=registered (spec §3)

	driver Driver // set iff this is a local (driver-owned) resource
	host   string // set iff this is a remote mirror (host-owned)

	current    value.ValueState
	lastDriven value.ValueState // last value actually passed to drv.DriveValue (spec §4.4 step 4: hysteresis holds this, not the prospective winner)
	reqs       []*request.Request

	persistent     bool
	everRegistered bool // spec §4.3: persistence/default-request resolution runs once
	triggerSeq     int64

	reg *Registry
}

// URI returns the resource's canonical URI.
func (r *Resource) URI() string { return r.uri }

// RegSeq returns the current registration-epoch counter.
func (r *Resource) RegSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.regSeq
}

// IsRegistered reports whether the resource is currently registered
// (regSeq odd) as opposed to sitting in the orphan pool.
func (r *Resource) IsRegistered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registered
}

// Current returns the last known ValueState.
func (r *Resource) Current() value.ValueState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Writable reports whether this resource accepts requests.
func (r *Resource) Writable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writable
}

// DisplayType returns the resource's declared display type.
func (r *Resource) DisplayType() value.DisplayType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dtype
}

// topic is the resource's bus.Topic, built from its URI parts on each call.
func (r *Resource) topic() bus.Topic {
	return bus.T(r.hostID, r.driverID, r.localID)
}

// Topic exposes the resource's bus topic, for callers outside this
// package that need it for subscription or introspection (the admin
// debug surface's subscriber-count dump, spec §4.7).
func (r *Resource) Topic() bus.Topic { return r.topic() }

// publish emits an Event on the registry's bus under this resource's
// topic, retained so late subscribers catch up immediately (spec
// §4.6/§8 property 7). Must be called with r.mu NOT held (spec §5:
// the resource lock is released before any subscriber callback runs;
// bus.Publish only ever touches the bus's own mutex).
func (r *Resource) publish(kind EventKind, state value.ValueState) {
	ev := r.reg.conn.NewEvent(r.topic(), Event{Kind: kind, URI: r.uri, Resource: r, State: state}, true)
	r.reg.conn.Publish(ev)
}
