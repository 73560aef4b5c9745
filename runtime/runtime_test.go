package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"home2l/request"
	"home2l/resource"
	"home2l/value"
)

func TestNewBuildsBareRuntimeWithNoConfigOrServer(t *testing.T) {
	rt, err := New(Config{HostID: "h", BusQueueLen: 16})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if rt.ConfigHolder != nil || rt.Server != nil || rt.EnvDict != nil {
		t.Fatal("expected no config/server/persistence wired without paths")
	}
	if rt.Resources == nil || rt.Drivers == nil || rt.Timers == nil {
		t.Fatal("expected core subsystems always constructed")
	}
	rt.Timers.Stop()
}

func TestNewLoadsConfigAndRegistersSignal(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "resources.conf")
	if err := os.WriteFile(confPath, []byte("S h a bool\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	rt, err := New(Config{
		HostID: "h", BusQueueLen: 16,
		ConfigPath: confPath,
		OS:         "linux", Machine: "h", Instance: "main",
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer rt.Timers.Stop()

	r, err := rt.Resources.Get("/host/h/signal/a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !r.IsRegistered() {
		t.Fatal("expected config-declared signal to be registered")
	}
}

type recordingDriver struct {
	driven chan value.ValueState
}

func (d *recordingDriver) DriveValue(r *resource.Resource, desired value.ValueState) {
	select {
	case d.driven <- desired:
	default:
	}
}

func TestSchedulerWiresEvaluatorWakeupsToTimerWheel(t *testing.T) {
	rt, err := New(Config{HostID: "h", BusQueueLen: 16})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer rt.Timers.Stop()

	drv := &recordingDriver{driven: make(chan value.ValueState, 8)}
	dt := value.DisplayType{Base: value.TBool}
	r, err := rt.Resources.Register(drv, "/host/h/d/x", "x", dt, true)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	now := time.Now().UnixMilli()
	future := request.Request{ID: "a", Value: value.SetBool(true), T0: now + 30}
	r.SetRequest(&future)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case vs := <-drv.driven:
			if b, ok := vs.GetBool(); ok && b {
				return // the scheduled wakeup fired and drove the future request's value
			}
		case <-deadline:
			t.Fatal("expected the timer wheel to fire the scheduled wakeup and drive the future request")
		}
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	rt, err := New(Config{HostID: "h", BusQueueLen: 16, ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
