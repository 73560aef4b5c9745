package rcconfig

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/renameio/v2"

	"home2l/errcode"
	"home2l/request"
)

// varKeyPattern matches the persisted-request key shape
// "var.rc.(<uri>).<id>" (spec §4.9/§6).
var varKeyPattern = regexp.MustCompile(`^var\.rc\.\((.*)\)\.([^.]+)$`)

// EnvDict is the persisted env dictionary: the same "key = value" INI
// grammar as resources.conf, used here only for "var.rc.(<uri>).<id>"
// keys. Implements resource.PersistenceBackend.
type EnvDict struct {
	path string

	mu   sync.Mutex
	data map[string]string
}

// NewEnvDict loads path if it exists (a missing file starts empty;
// lines that are not key=value assignments are skipped; a failure to
// open or read the file is a ConfigError).
func NewEnvDict(path string) (*EnvDict, error) {
	d := &EnvDict{path: path, data: map[string]string{}}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return nil, errcode.New(errcode.ConfigError, "rcconfig.envdict_open", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := splitAssignment(line)
		if !ok {
			continue
		}
		d.data[key] = val
	}
	if err := sc.Err(); err != nil {
		return nil, errcode.New(errcode.ConfigError, "rcconfig.envdict_read", err)
	}
	return d, nil
}

// LoadRequests returns every persisted request for uri, parsed from
// its "var.rc.(<uri>).<id>" keys (spec §4.3 step (b)).
func (d *EnvDict) LoadRequests(uri string) []*request.Request {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*request.Request
	for key, val := range d.data {
		m := varKeyPattern.FindStringSubmatch(key)
		if m == nil || m[1] != uri {
			continue
		}
		req, err := request.SetFromString(val, "persisted")
		if err != nil {
			continue // malformed persisted entry: skipped silently
		}
		req.ID = m[2]
		out = append(out, &req)
	}
	return out
}

// SaveRequest writes req under "var.rc.(<uri>).<id>" and flushes to
// disk before returning (spec §4.9: "flushed to disk ... before the
// request takes visible effect").
func (d *EnvDict) SaveRequest(uri string, req *request.Request) {
	d.mu.Lock()
	d.data[varKey(uri, req.ID)] = req.String()
	err := d.flushLocked()
	d.mu.Unlock()
	_ = err // persistence failure degrades to in-memory-only; the error is discarded
}

// DeleteRequest removes the persisted entry for (uri, id), if any.
func (d *EnvDict) DeleteRequest(uri, id string) {
	d.mu.Lock()
	delete(d.data, varKey(uri, id))
	err := d.flushLocked()
	d.mu.Unlock()
	_ = err
}

func varKey(uri, id string) string {
	return fmt.Sprintf("var.rc.(%s).%s", uri, id)
}

// flushLocked rewrites the whole dictionary file atomically via
// rename-after-write, so a crash mid-write never leaves a half-written
// file visible (spec §4.9; grounded on renameio.WriteFile's
// write-tmp-then-rename pattern).
func (d *EnvDict) flushLocked() error {
	keys := make([]string, 0, len(d.data))
	for k := range d.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s = %s\n", k, d.data[k])
	}
	return renameio.WriteFile(d.path, []byte(b.String()), 0o644)
}
