package rclog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestConfigureDefaultsServiceName(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf})
	WithComponent("resource").Info().Msg("hello")

	var fields map[string]any
	if err := json.Unmarshal(buf.Bytes(), &fields); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if fields["service"] != "home2l" {
		t.Fatalf("expected default service home2l, got %v", fields["service"])
	}
	if fields["component"] != "resource" {
		t.Fatalf("expected component resource, got %v", fields["component"])
	}
}

func TestWithComponentTagsDistinctSubsystems(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Service: "kerneltest"})

	WithComponent("driver").Warn().Msg("a")
	WithComponent("timer").Error().Msg("b")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), buf.String())
	}
	var first, second map[string]any
	_ = json.Unmarshal([]byte(lines[0]), &first)
	_ = json.Unmarshal([]byte(lines[1]), &second)
	if first["component"] != "driver" || second["component"] != "timer" {
		t.Fatalf("unexpected components: %v / %v", first["component"], second["component"])
	}
	if first["service"] != "kerneltest" || second["service"] != "kerneltest" {
		t.Fatalf("expected service kerneltest on both lines")
	}
}

func TestConfigureRejectsBadLevelSilently(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Level: "not-a-level"})
	WithComponent("config").Info().Msg("still works")
	if buf.Len() == 0 {
		t.Fatal("expected a log line even with an invalid level string")
	}
}
