package rcconfig

import (
	"testing"

	"home2l/bus"
	"home2l/resource"
)

func TestApplyRegistersSignalsAliasesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	root := writeTemp(t, dir, "resources.conf", `
S myhouse temp float
alias.kitchenTemp = /host/myhouse/signal/temp
/host/myhouse/signal/temp ! 21.5
`)

	l := NewLoader("linux", "myhouse", "main")
	cfg, err := l.Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	reg := resource.NewRegistry(bus.NewBus(16), 0)
	if err := ApplyToRegistry(reg, cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}

	r, err := reg.Get("/alias/kitchenTemp")
	if err != nil {
		t.Fatalf("get via alias: %v", err)
	}
	if !r.IsRegistered() {
		t.Fatal("expected signal resource to be registered")
	}
	if got, ok := r.Current().GetFloat(); !ok || got != 21.5 {
		t.Fatalf("expected default request to have driven 21.5, got %v ok=%v", got, ok)
	}
}

func TestApplyInstallsPersistentGlobsFromRcPersistentKV(t *testing.T) {
	dir := t.TempDir()
	root := writeTemp(t, dir, "resources.conf", `
rc.persistent = /host/myhouse/signal/*
S myhouse temp float
`)
	l := NewLoader("linux", "myhouse", "main")
	cfg, err := l.Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	reg := resource.NewRegistry(bus.NewBus(16), 0)
	if err := ApplyToRegistry(reg, cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !reg.IsPersistent("/host/myhouse/signal/temp") {
		t.Fatal("expected rc.persistent glob to mark the signal resource persistent")
	}
}

func TestHolderLoadsAndAppliesOnConstruction(t *testing.T) {
	dir := t.TempDir()
	root := writeTemp(t, dir, "resources.conf", "S h a bool\n")

	reg := resource.NewRegistry(bus.NewBus(16), 0)
	l := NewLoader("linux", "h", "main")
	h, err := NewHolder(l, root, reg)
	if err != nil {
		t.Fatalf("new holder: %v", err)
	}
	if len(h.Current().Signals) != 1 {
		t.Fatalf("expected 1 signal in snapshot, got %+v", h.Current().Signals)
	}
	if _, ok := reg.Lookup("/host/h/signal/a"); !ok {
		t.Fatal("expected signal resource registered in registry")
	}
}

func TestHolderReloadPicksUpChange(t *testing.T) {
	dir := t.TempDir()
	root := writeTemp(t, dir, "resources.conf", "S h a bool\n")

	reg := resource.NewRegistry(bus.NewBus(16), 0)
	l := NewLoader("linux", "h", "main")
	h, err := NewHolder(l, root, reg)
	if err != nil {
		t.Fatalf("new holder: %v", err)
	}

	writeTemp(t, dir, "resources.conf", "S h a bool\nS h b bool\n")
	if err := h.Reload(nil); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(h.Current().Signals) != 2 {
		t.Fatalf("expected 2 signals after reload, got %+v", h.Current().Signals)
	}
}
