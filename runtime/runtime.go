// Package runtime wires the kernel's subsystems into a single Runtime
// object, replacing the original's global singletons with an explicit
// instance (spec §9 Design Notes). Grounded on ManuGH-xg2g's
// internal/daemon.App: an errgroup-supervised Run(ctx) that starts
// every background subsystem and returns when any of them fails or ctx
// is cancelled.
package runtime

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"home2l/admin"
	"home2l/bus"
	"home2l/driver"
	"home2l/rcconfig"
	"home2l/rclog"
	"home2l/remote"
	"home2l/resource"
	"home2l/timerwheel"
)

// Config controls a single Runtime's construction.
type Config struct {
	HostID                string
	ConfigPath            string
	PersistPath           string // env-dictionary path; "" disables persistence
	OrphanCeiling         int
	BusQueueLen           int
	ListenAddr            string // "" disables the inbound remote server
	OS, Machine, Instance string
	Tags                  []string

	AdminAddr    string // "" disables the admin/debug HTTP surface
	AdminRateRPS int    // requests/minute per client IP on the admin surface; 0 = unlimited
}

// Runtime owns every long-lived kernel object for one process: the
// event bus, the resource registry, the driver plug-in registry, the
// timer wheel, the config bridge, and the inbound remote server (spec
// §9).
type Runtime struct {
	cfg Config

	Bus          *bus.Bus
	Resources    *resource.Registry
	Drivers      *driver.Registry
	Timers       *timerwheel.Wheel
	ConfigHolder *rcconfig.Holder
	EnvDict      *rcconfig.EnvDict
	Server       *remote.Server
	Admin        *admin.Server

	hostProxies []*remote.HostProxy
}

// hostLister adapts Runtime's host proxy slice to admin.HostLister
// without exposing remote.HostProxy's ConnState type to package admin.
type hostLister struct{ rt *Runtime }

func (h hostLister) HostStates() map[string]int {
	out := make(map[string]int, len(h.rt.hostProxies))
	for _, p := range h.rt.hostProxies {
		out[p.HostID] = int(p.State())
	}
	return out
}

// New constructs a Runtime: bus, registries and timer wheel are always
// created; the config holder, persistence backend and inbound server
// are created only if cfg names a path/address for them.
func New(cfg Config) (*Runtime, error) {
	rt := &Runtime{cfg: cfg}

	rt.Bus = bus.NewBus(cfg.BusQueueLen)
	rt.Resources = resource.NewRegistry(rt.Bus, cfg.OrphanCeiling)
	rt.Drivers = driver.NewRegistry(rt.Resources)
	rt.Timers = timerwheel.New()
	wireScheduler(rt.Resources, rt.Timers)

	if cfg.PersistPath != "" {
		d, err := rcconfig.NewEnvDict(cfg.PersistPath)
		if err != nil {
			return nil, fmt.Errorf("runtime: persistence: %w", err)
		}
		rt.EnvDict = d
		rt.Resources.Persistence = d
	}

	if cfg.ConfigPath != "" {
		loader := rcconfig.NewLoader(cfg.OS, cfg.Machine, cfg.Instance, cfg.Tags...)
		holder, err := rcconfig.NewHolder(loader, cfg.ConfigPath, rt.Resources)
		if err != nil {
			return nil, fmt.Errorf("runtime: config: %w", err)
		}
		rt.ConfigHolder = holder
	}

	if cfg.ListenAddr != "" {
		rt.Server = remote.NewServer(cfg.ListenAddr, rt.Resources, rt.Bus)
	}

	if cfg.AdminAddr != "" {
		rt.Admin = admin.New(admin.Config{Addr: cfg.AdminAddr, RateLimitRPS: cfg.AdminRateRPS},
			rt.Resources, rt.Timers, hostLister{rt: rt})
	}

	return rt, nil
}

// wireScheduler connects the request evaluator's wakeup requests to
// the timer wheel: each resource gets at most one pending wakeup timer
// at a time, keyed by its URI as the timer's creator (spec §4.4 step
// 6, §4.8).
func wireScheduler(reg *resource.Registry, w *timerwheel.Wheel) {
	reg.Scheduler = func(uri string, atMs int64) {
		w.DelByCreator(uri)
		w.Add(atMs, uri, func(now int64) {
			if r, ok := reg.Lookup(uri); ok {
				resource.Evaluate(r, now)
			}
		})
	}
}

// ConnectHost adds an outbound connection to a remote host, mirroring
// its resources under /host/<hostID>/... (spec §4.7).
func (rt *Runtime) ConnectHost(hostID, addr string, backoff *remote.Backoff) *remote.HostProxy {
	p := remote.NewHostProxy(hostID, addr, rt.Resources, backoff)
	rt.hostProxies = append(rt.hostProxies, p)
	return p
}

// Run starts every configured subsystem and blocks until ctx is
// cancelled or a fatal error occurs in any of them (spec §9; grounded
// on ManuGH-xg2g's daemon.App.Run).
func (rt *Runtime) Run(ctx context.Context) error {
	logger := rclog.WithComponent("runtime")
	g, ctx := errgroup.WithContext(ctx)

	if err := rt.Drivers.Start(); err != nil {
		return fmt.Errorf("runtime: driver start: %w", err)
	}

	if rt.ConfigHolder != nil {
		if err := rt.ConfigHolder.StartWatcher(ctx); err != nil {
			logger.Warn().Err(err).Msg("config watcher failed to start; continuing without hot reload")
		}
	}

	if rt.Server != nil {
		g.Go(func() error { return rt.Server.Serve(ctx) })
	}

	if rt.Admin != nil {
		g.Go(func() error { return rt.Admin.Serve(ctx) })
	}

	for _, p := range rt.hostProxies {
		p := p
		g.Go(func() error {
			p.Run(ctx)
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	err := g.Wait()
	rt.shutdown()
	return err
}

func (rt *Runtime) shutdown() {
	rt.Drivers.Stop()
	rt.Timers.Stop()
	if rt.ConfigHolder != nil {
		rt.ConfigHolder.Stop()
	}
	if rt.Server != nil {
		rt.Server.Close()
	}
	if rt.Admin != nil {
		_ = rt.Admin.Close()
	}
	for _, p := range rt.hostProxies {
		p.Stop()
	}
	rt.Bus.Stop()
}
