package remote

import (
	"context"
	"testing"
	"time"

	"home2l/bus"
	"home2l/resource"
	"home2l/value"
)

func TestServerHostProxySubscribeAndReceiveValue(t *testing.T) {
	serverBus := bus.NewBus(16)
	serverReg := resource.NewRegistry(serverBus, 0)
	r, err := serverReg.Register(nil, "/host/srv/demo/x", "x", value.DisplayType{Base: value.TInt}, false)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	_ = r.ReportValueState(value.SetInt(7))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer("127.0.0.1:0", serverReg, serverBus)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	addr := waitForAddr(t, srv)

	clientReg := resource.NewRegistry(bus.NewBus(16), 0)
	backoff := NewBackoff(10*time.Millisecond, 50*time.Millisecond, 2)
	proxy := NewHostProxy("srv", addr, clientReg, backoff)
	go proxy.Run(ctx)

	waitForState(t, proxy, Connected, 2*time.Second)
	proxy.Subscribe("/host/srv/demo/x")

	mirrored, err := clientReg.Get("/host/srv/demo/x")
	if err != nil {
		t.Fatalf("get mirror: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, ok := mirrored.Current().GetInt(); ok && v == 7 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	got, ok := mirrored.Current().GetInt()
	if !ok || got != 7 {
		t.Fatalf("expected mirrored value 7, got %v ok=%v", got, ok)
	}

	proxy.Stop()
	srv.Close()
	<-serveErr
}

func waitForAddr(t *testing.T, s *Server) string {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a := s.BoundAddr(); a != "" {
			return a
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server never bound a listener")
	return ""
}

func waitForState(t *testing.T, p *HostProxy, want ConnState, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("proxy never reached state %v, stuck at %v", want, p.State())
}
