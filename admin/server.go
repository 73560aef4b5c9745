// Package admin implements the kernel's read-only debug/ops HTTP
// surface (spec §4.7, SPEC_FULL.md DOMAIN STACK): a chi router serving
// a human-readable mirror of the wire protocol's INFO query, process
// health, Prometheus metrics, and a live event stream over WebSocket.
// It is never a second control path — SetRequest/DelRequest only ever
// happen over the wire protocol in package remote.
package admin

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"home2l/resource"
	"home2l/timerwheel"
)

// Server is the admin HTTP surface. Construct with New, start with
// Serve (run in its own goroutine, e.g. by the runtime's errgroup),
// stop with Close.
type Server struct {
	reg     *resource.Registry
	timers  *timerwheel.Wheel
	hosts   HostLister
	httpSrv *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// HostLister reports the connection state of every remote host proxy,
// for the metrics endpoint's per-host gauge (spec §4.7). Declared here
// to avoid an import cycle with package remote; the runtime's host
// table adapter implements it.
type HostLister interface {
	HostStates() map[string]int
}

// Config controls the admin server's construction.
type Config struct {
	Addr string

	// RateLimitRPS bounds requests per minute per client IP (0 disables
	// rate limiting, which should only be used in tests).
	RateLimitRPS int
}

// New builds an admin Server bound to reg's resources and w's pending
// timer count; hosts may be nil if the process has no outbound host
// connections.
func New(cfg Config, reg *resource.Registry, w *timerwheel.Wheel, hosts HostLister) *Server {
	registerCollectors(reg, w, hosts)

	s := &Server{reg: reg, timers: w, hosts: hosts}
	r := chi.NewRouter()

	if cfg.RateLimitRPS > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitRPS, time.Minute))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/resources", s.handleResources)
	r.Get("/resource/{uri}/info", s.handleResourceInfo)
	r.Handle("/metrics", metricsHandler())
	r.Get("/ws", s.handleWS)

	s.httpSrv = &http.Server{Addr: cfg.Addr, Handler: r}
	return s
}

// Serve runs the admin HTTP server until ctx is cancelled, mirroring
// remote.Server.Serve's shutdown shape.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// BoundAddr returns the listener's actual address (useful when Addr
// was "host:0" and the OS picked the port). Empty until Serve has
// started listening.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close immediately closes the listener, for callers that already
// have their own shutdown deadline (tests, or a Run loop outside ctx).
func (s *Server) Close() error {
	return s.httpSrv.Close()
}
