// Package rcconfig implements the Persistence & Config Bridge of spec
// §4.9/§6: the resources.conf INI-like grammar (tag-guarded sections,
// signal declarations, aliases, default/persistent marks, includes)
// and the var.rc.(<uri>).<id> env-dictionary used for crash-safe
// persisted requests.
package rcconfig

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"home2l/errcode"
	"home2l/request"
)

// SignalDecl is a parsed "S <host> <name> <type>" line: a driverless
// local resource declared purely by config (spec §6, §GLOSSARY
// "Signal").
type SignalDecl struct {
	Host string
	Name string
	Type string
}

// URIAttr is a parsed "<uri> [!] [<default-request>]" line.
type URIAttr struct {
	Persistent bool
	Default    *request.Request
}

// ParsedConfig is everything resources.conf (plus its includes)
// contributes, ready to apply to a resource.Registry.
type ParsedConfig struct {
	Aliases  map[string]string // alias name -> target URI
	Signals  []SignalDecl
	URIAttrs map[string]URIAttr
	KV       map[string]string // plain "key = value" assignments, for callers outside the core
}

func newParsedConfig() *ParsedConfig {
	return &ParsedConfig{
		Aliases:  map[string]string{},
		URIAttrs: map[string]URIAttr{},
		KV:       map[string]string{},
	}
}

// Loader loads resources.conf files under a fixed active tag set (OS,
// machine name, instance name, plus any explicitly passed tags); a
// section is only active when at least one of its comma-separated
// disjuncts has every '&'-joined, optionally '!'-negated literal
// matching the tag set (spec §6).
type Loader struct {
	tags map[string]bool
}

// NewLoader builds a Loader whose active tag set is the union of os,
// machine, instance and any extra tags explicitly passed (the
// "-s <sections>" CLI option, spec §6).
func NewLoader(os_, machine, instance string, extra ...string) *Loader {
	tags := map[string]bool{}
	for _, t := range append([]string{os_, machine, instance}, extra...) {
		if t != "" {
			tags[t] = true
		}
	}
	return &Loader{tags: tags}
}

// Load parses path and every file it includes (depth-first, in
// textual order) into a single merged ParsedConfig.
func (l *Loader) Load(path string) (*ParsedConfig, error) {
	cfg := newParsedConfig()
	if err := l.loadInto(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadInto(path string, cfg *ParsedConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return errcode.New(errcode.ConfigError, "rcconfig.load", err)
	}
	defer f.Close()

	active := true
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			disjuncts, err := parseSectionGuard(line[1 : len(line)-1])
			if err != nil {
				return errcode.Withf(errcode.ConfigError, "rcconfig.load",
					fmt.Sprintf("%s:%d: %v", path, lineNo, err))
			}
			active = sectionActive(disjuncts, l.tags)
			continue
		}
		if !active {
			continue
		}
		if err := l.parseBodyLine(path, filepath.Dir(path), line, cfg); err != nil {
			return errcode.Withf(errcode.ConfigError, "rcconfig.load",
				fmt.Sprintf("%s:%d: %v", path, lineNo, err))
		}
	}
	if err := sc.Err(); err != nil {
		return errcode.New(errcode.ConfigError, "rcconfig.load", err)
	}
	return nil
}

func (l *Loader) parseBodyLine(originPath, originDir, line string, cfg *ParsedConfig) error {
	if strings.HasPrefix(line, "S ") {
		decl, err := parseSignalDecl(line)
		if err != nil {
			return err
		}
		cfg.Signals = append(cfg.Signals, decl)
		return nil
	}

	if key, val, ok := splitAssignment(line); ok {
		switch {
		case strings.HasPrefix(key, "include."):
			incPath := val
			if !filepath.IsAbs(incPath) {
				incPath = filepath.Join(originDir, incPath)
			}
			return l.loadInto(incPath, cfg)
		case strings.HasPrefix(key, "alias."):
			name := strings.TrimPrefix(key, "alias.")
			cfg.Aliases[name] = val
		default:
			cfg.KV[key] = val
		}
		return nil
	}

	// "<uri> [!] [<default-request>]"
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	uri := fields[0]
	if !strings.HasPrefix(uri, "/") {
		return fmt.Errorf("malformed line (not an assignment or URI attribute): %q", line)
	}
	attr := cfg.URIAttrs[uri]
	rest := fields[1:]
	if len(rest) > 0 && rest[0] == "!" {
		attr.Persistent = true
		rest = rest[1:]
	}
	if len(rest) > 0 {
		req, err := request.SetFromString(strings.Join(rest, " "), "config")
		if err != nil {
			return err
		}
		attr.Default = &req
	}
	cfg.URIAttrs[uri] = attr
	return nil
}

func parseSignalDecl(line string) (SignalDecl, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return SignalDecl{}, fmt.Errorf("malformed signal declaration: %q (want: S <host> <name> <type>)", line)
	}
	return SignalDecl{Host: fields[1], Name: fields[2], Type: fields[3]}, nil
}

// splitAssignment splits "key = value" on the first '='; a line with
// no '=' is not an assignment.
func splitAssignment(line string) (key, val string, ok bool) {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}
