// Package driver implements the plug-in contract of spec §4.5: two
// driver flavors (direct-dispatch and event-queue-backed) behind a
// bounded initialization-phase registry, grounded on the teacher's
// builder registry (services/hal/registry.go, panic-on-duplicate) and
// its measurement worker's self-rearming timer idiom
// (services/hal/worker.go).
package driver

import (
	"fmt"
	"sync"

	"home2l/resource"
	"home2l/value"
)

// Driver is what init/stop lifecycle code needs from a registered
// driver (spec §6 "driver interface seen from outside the core").
type Driver interface {
	resource.Driver
	Init(h *Handle) error
	Stop()
}

// Handle is what a driver's Init receives: a way to register the
// resources it owns and to report their values back.
type Handle struct {
	ID  string
	reg *resource.Registry
}

// Register promotes/creates uri as owned by this driver's Handle.
func (h *Handle) Register(drv resource.Driver, uri, localID string, dtype value.DisplayType, writable bool) (*resource.Resource, error) {
	return h.reg.Register(drv, uri, localID, dtype, writable)
}

// Registry is the bounded init-phase plug-in registry of spec §4.5:
// drivers register only before Start(); Stop() tears them down in
// reverse registration order.
type Registry struct {
	mu      sync.Mutex
	started bool
	order   []string
	byID    map[string]Driver
	handles map[string]*Handle
	res     *resource.Registry
}

func NewRegistry(res *resource.Registry) *Registry {
	return &Registry{byID: map[string]Driver{}, handles: map[string]*Handle{}, res: res}
}

// RegisterDriver installs drv under id during the init phase. It
// panics on a duplicate id or on a call after Start(), matching the
// teacher's "catch mistakes at start-up" convention for bounded
// plug-in registries (spec §4.5: "registration is rejected" after
// start — here rejection is a panic because it is a programming-
// contract violation, spec §7 RegistrationConflict).
func (dr *Registry) RegisterDriver(id string, drv Driver) *Handle {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	if dr.started {
		panic(fmt.Sprintf("driver: %q registered after Start()", id))
	}
	if _, exists := dr.byID[id]; exists {
		panic(fmt.Sprintf("driver: %q already registered", id))
	}
	h := &Handle{ID: id, reg: dr.res}
	dr.byID[id] = drv
	dr.handles[id] = h
	dr.order = append(dr.order, id)
	return h
}

// Start closes the init phase and calls every driver's Init, in
// registration order.
func (dr *Registry) Start() error {
	dr.mu.Lock()
	dr.started = true
	order := append([]string(nil), dr.order...)
	dr.mu.Unlock()

	for _, id := range order {
		drv := dr.byID[id]
		if err := drv.Init(dr.handles[id]); err != nil {
			return fmt.Errorf("driver %q init: %w", id, err)
		}
	}
	return nil
}

// Stop calls every driver's Stop in reverse registration order (spec §4.5).
func (dr *Registry) Stop() {
	dr.mu.Lock()
	order := append([]string(nil), dr.order...)
	dr.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		dr.byID[order[i]].Stop()
	}
}
