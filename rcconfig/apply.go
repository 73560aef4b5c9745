package rcconfig

import (
	"fmt"
	"strings"

	"home2l/errcode"
	"home2l/resource"
	"home2l/value"
)

// signalEcho is the driver behind every config-declared signal
// resource (spec §GLOSSARY "Signal": "a local resource with no
// driver"). It has nothing to drive towards except what was asked, so
// DriveValue just reports the desired value straight back, the same
// echo-through shape as driver.DemoDirect.
type signalEcho struct{}

func (signalEcho) DriveValue(r *resource.Resource, desired value.ValueState) {
	_ = r.ReportValueState(desired)
}

var sharedSignalEcho = signalEcho{}

// ApplyToRegistry installs everything a ParsedConfig contributes: alias
// table, persistent marks, default requests, and signal resources
// (spec §6). Signals are registered directly since they have no
// driver-plugin lifecycle of their own.
func ApplyToRegistry(reg *resource.Registry, cfg *ParsedConfig) error {
	for name, target := range cfg.Aliases {
		reg.SetAlias(name, target)
	}

	// "rc.persistent" (original_source/resources/resources.C:
	// ENV_PARA_STRING ("rc.persistent", ...)) is a second, glob-based
	// way to mark resources persistent, independent of each URI's own
	// "!" attribute line (spec §4.9, SPEC_FULL.md SUPPLEMENTED FEATURES).
	if raw := strings.TrimSpace(cfg.KV["rc.persistent"]); raw != "" {
		var globs []string
		for _, g := range strings.Split(raw, ",") {
			if g = strings.TrimSpace(g); g != "" {
				globs = append(globs, g)
			}
		}
		reg.SetPersistentGlobs(globs)
	}

	for uri, attr := range cfg.URIAttrs {
		if attr.Persistent {
			reg.MarkPersistent(uri)
		}
		if attr.Default != nil {
			cp := *attr.Default
			reg.SetDefaultRequest(uri, &cp)
		}
	}

	for _, decl := range cfg.Signals {
		base, ok := value.ParseBaseType(decl.Type)
		if !ok {
			return errcode.Withf(errcode.ConfigError, "rcconfig.apply",
				fmt.Sprintf("signal %s/%s: unknown type %q", decl.Host, decl.Name, decl.Type))
		}
		uri := fmt.Sprintf("/host/%s/signal/%s", decl.Host, decl.Name)
		dtype := value.DisplayType{Name: decl.Type, Base: base}
		if _, err := reg.Register(sharedSignalEcho, uri, decl.Name, dtype, true); err != nil {
			return err
		}
	}
	return nil
}
