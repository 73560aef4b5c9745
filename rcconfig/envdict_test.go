package rcconfig

import (
	"os"
	"path/filepath"
	"testing"

	"home2l/request"
	"home2l/value"
)

func TestEnvDictSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.env")
	d, err := NewEnvDict(path)
	if err != nil {
		t.Fatalf("new env dict: %v", err)
	}

	req := request.Request{ID: "cron", Value: value.SetInt(7), Priority: 1, T0: 1000}
	d.SaveRequest("/host/h/d/x", &req)

	reloaded, err := NewEnvDict(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	reqs := reloaded.LoadRequests("/host/h/d/x")
	if len(reqs) != 1 || reqs[0].ID != "cron" {
		t.Fatalf("unexpected reloaded requests: %+v", reqs)
	}
	if got, _ := reqs[0].Value.GetInt(); got != 7 {
		t.Fatalf("unexpected value: %v", got)
	}
}

func TestEnvDictDeleteRemovesKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.env")
	d, err := NewEnvDict(path)
	if err != nil {
		t.Fatalf("new env dict: %v", err)
	}
	req := request.Request{ID: "a", Value: value.SetBool(true), T0: 1}
	d.SaveRequest("/host/h/d/x", &req)
	d.DeleteRequest("/host/h/d/x", "a")

	if got := d.LoadRequests("/host/h/d/x"); len(got) != 0 {
		t.Fatalf("expected no persisted requests after delete, got %+v", got)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back file: %v", err)
	}
	if len(raw) != 0 {
		t.Fatalf("expected empty persisted file after deleting the only key, got %q", raw)
	}
}

func TestEnvDictIgnoresOtherURIs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.env")
	d, _ := NewEnvDict(path)
	d.SaveRequest("/host/h/d/x", &request.Request{ID: "a", Value: value.SetInt(1), T0: 1})
	d.SaveRequest("/host/h/d/y", &request.Request{ID: "a", Value: value.SetInt(2), T0: 1})

	got := d.LoadRequests("/host/h/d/x")
	if len(got) != 1 {
		t.Fatalf("expected only x's request, got %+v", got)
	}
}
