package rcconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return p
}

func TestLoadSignalsAliasesAndAttrs(t *testing.T) {
	dir := t.TempDir()
	root := writeTemp(t, dir, "resources.conf", `
# comment line
S myhouse temp float
alias.kitchenTemp = /host/myhouse/signal/temp

/host/myhouse/signal/temp ! 21.5 *1
`)

	l := NewLoader("linux", "myhouse", "main")
	cfg, err := l.Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Signals) != 1 || cfg.Signals[0].Name != "temp" || cfg.Signals[0].Type != "float" {
		t.Fatalf("unexpected signals: %+v", cfg.Signals)
	}
	if cfg.Aliases["kitchenTemp"] != "/host/myhouse/signal/temp" {
		t.Fatalf("unexpected alias: %v", cfg.Aliases)
	}
	attr, ok := cfg.URIAttrs["/host/myhouse/signal/temp"]
	if !ok || !attr.Persistent || attr.Default == nil {
		t.Fatalf("unexpected uri attr: %+v ok=%v", attr, ok)
	}
	if got, _ := attr.Default.Value.GetFloat(); got != 21.5 {
		t.Fatalf("unexpected default value: %v", got)
	}
}

func TestSectionGuardActivation(t *testing.T) {
	dir := t.TempDir()
	root := writeTemp(t, dir, "resources.conf", `
[linux]
S h a bool

[windows]
S h b bool

[linux&desktop]
S h c bool

[other,linux]
S h d bool
`)

	l := NewLoader("linux", "h", "main")
	cfg, err := l.Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var names []string
	for _, s := range cfg.Signals {
		names = append(names, s.Name)
	}
	want := map[string]bool{"a": true, "d": true}
	for _, n := range names {
		if !want[n] {
			t.Fatalf("unexpected active signal %q in %v", n, names)
		}
	}
	if len(names) != 2 {
		t.Fatalf("expected exactly 2 active signals (a, d), got %v", names)
	}
}

func TestNegatedTagExcludesSection(t *testing.T) {
	dir := t.TempDir()
	root := writeTemp(t, dir, "resources.conf", `
[!headless]
S h gui bool
`)
	l := NewLoader("linux", "h", "headless")
	cfg, err := l.Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Signals) != 0 {
		t.Fatalf("expected section excluded by !headless, got %+v", cfg.Signals)
	}
}

func TestIncludeSplicesAnotherFile(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "extra.conf", "S h extra bool\n")
	root := writeTemp(t, dir, "resources.conf", "include.extra = extra.conf\n")

	l := NewLoader("linux", "h", "main")
	cfg, err := l.Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Signals) != 1 || cfg.Signals[0].Name != "extra" {
		t.Fatalf("expected spliced signal, got %+v", cfg.Signals)
	}
}

func TestMalformedLineIsConfigError(t *testing.T) {
	dir := t.TempDir()
	root := writeTemp(t, dir, "resources.conf", "not a valid line at all\n")
	l := NewLoader("linux", "h", "main")
	if _, err := l.Load(root); err == nil {
		t.Fatal("expected a ConfigError for a malformed line")
	}
}

func TestMissingFileIsConfigError(t *testing.T) {
	l := NewLoader("linux", "h", "main")
	if _, err := l.Load("/nonexistent/resources.conf"); err == nil {
		t.Fatal("expected a ConfigError for a missing file")
	}
}
