package resource

import (
	"path"
	"sort"
	"sync"
	"time"

	"home2l/bus"
	"home2l/errcode"
	"home2l/request"
	"home2l/value"
)

// PersistenceBackend is the config bridge's write-through store for
// persistent resources (spec §4.9): LoadRequests is consulted on first
// registration, Save/Delete are called from SetRequest/DelRequest
// before the request takes visible effect. Implemented by package
// rcconfig; declared here to avoid an import cycle.
type PersistenceBackend interface {
	LoadRequests(uri string) []*request.Request
	SaveRequest(uri string, req *request.Request)
	DeleteRequest(uri, id string)
}

// maxAliasDepth bounds alias-chain resolution (spec §3: "the resolver
// is purely lexical with loop detection by depth bound") — carried
// from original_source/resources/resources.C, which uses a fixed
// iteration cap rather than a visited-set, so a self-referential alias
// fails resolution instead of hanging.
const maxAliasDepth = 16

// Registry owns every Resource the process knows about: the live
// (registered) set plus the orphan pool of not-yet-registered handles
// (spec §4.3). The orphan pool is capped by OrphanCeiling; exceeding it
// is a fatal RegistrationConflict-class error (spec §3).
type Registry struct {
	mu sync.Mutex // protects the maps below only (lock order #1/#2, spec §5)

	byURI   map[string]*Resource
	aliases map[string]string // alias name -> target URI

	orphanCount   int
	OrphanCeiling int

	bus  *bus.Bus
	conn *bus.Connection

	persistentGlobs []string        // from rc.persistent env var (SPEC_FULL supplement)
	persistentURIs  map[string]bool // exact "!" marks from resources.conf
	defaultRequests map[string]*request.Request

	// Scheduler, if set, is invoked by the evaluator to arrange its
	// own next wakeup (spec §4.4 step 6). The runtime wires this to
	// the timer wheel package.
	Scheduler ScheduleFunc

	// Persistence, if set, is the config bridge's write-through store
	// (spec §4.9). The runtime wires this to an rcconfig.EnvDict.
	Persistence PersistenceBackend
}

// NewRegistry constructs a Registry backed by the given bus and orphan
// ceiling (0 disables the cap, which should only be used in tests).
func NewRegistry(b *bus.Bus, orphanCeiling int) *Registry {
	return &Registry{
		byURI:           make(map[string]*Resource),
		aliases:         make(map[string]string),
		persistentURIs:  make(map[string]bool),
		defaultRequests: make(map[string]*request.Request),
		OrphanCeiling:   orphanCeiling,
		bus:             b,
		conn:            b.NewConnection("resource-registry"),
	}
}

// MarkPersistent records an exact "!" mark on uri from resources.conf
// (spec §6).
func (reg *Registry) MarkPersistent(uri string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.persistentURIs[uri] = true
}

// SetDefaultRequest installs the pending request that a resources.conf
// "<uri> <default-request>" line attaches for first registration only
// (spec §6).
func (reg *Registry) SetDefaultRequest(uri string, req *request.Request) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.defaultRequests[uri] = req
}

// IsPersistent reports whether uri is persistent, either by an exact
// "!" mark or by matching one of the rc.persistent globs (spec §4.9).
func (reg *Registry) IsPersistent(uri string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.persistentURIs[uri] {
		return true
	}
	for _, g := range reg.persistentGlobs {
		if ok, _ := path.Match(g, uri); ok {
			return true
		}
	}
	return false
}

// SetAlias installs "/alias/<name>" -> target, per resources.conf's
// "alias.<name> = <target-uri>" directive (spec §6).
func (reg *Registry) SetAlias(name, target string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.aliases[name] = target
}

// SetPersistentGlobs installs the rc.persistent glob patterns
// (SPEC_FULL supplemented feature, alongside the resources.conf "!" marker).
func (reg *Registry) SetPersistentGlobs(globs []string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.persistentGlobs = globs
}

// Resolve follows "/alias/..." indirections down to a concrete
// "/host/..." URI, bounded by maxAliasDepth. A cycle or a chain longer
// than the bound fails resolution rather than looping (spec §3 +
// SPEC_FULL supplement).
func (reg *Registry) Resolve(uri string) (string, error) {
	cur := uri
	for depth := 0; depth < maxAliasDepth; depth++ {
		if !IsAlias(cur) {
			return cur, nil
		}
		reg.mu.Lock()
		target, ok := reg.aliases[AliasName(cur)]
		reg.mu.Unlock()
		if !ok {
			return "", errcode.Withf(errcode.ConfigError, "resource.resolve", "undefined alias target: "+cur)
		}
		cur = target
	}
	return "", errcode.Withf(errcode.ConfigError, "resource.resolve", "alias depth exceeded (possible loop): "+uri)
}

// Get returns the resource for uri, allocating an unregistered
// (orphan) object if it doesn't exist yet (spec §4.3). uri is resolved
// through aliases first.
func (reg *Registry) Get(uri string) (*Resource, error) {
	resolved, err := reg.Resolve(uri)
	if err != nil {
		return nil, err
	}
	topic, err := SplitURI(resolved)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.byURI[resolved]; ok {
		return r, nil
	}

	if reg.OrphanCeiling > 0 && reg.orphanCount >= reg.OrphanCeiling {
		return nil, errcode.Withf(errcode.RegistrationConflict, "resource.get",
			"orphan resource ceiling exceeded (possible subscription typo)")
	}

	r := &Resource{
		uri:      resolved,
		hostID:   topic.At(0),
		driverID: topic.At(1),
		localID:  topic.At(2),
		reg:      reg,
	}
	reg.byURI[resolved] = r
	reg.orphanCount++
	return r, nil
}

// Lookup returns the resource for uri if it already exists, without
// allocating an orphan.
func (reg *Registry) Lookup(uri string) (*Resource, bool) {
	resolved, err := reg.Resolve(uri)
	if err != nil {
		return nil, false
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.byURI[resolved]
	return r, ok
}

// All returns every resource the registry has ever allocated (both
// registered and orphaned), sorted by URI. Used by the admin/debug
// surface's resource listing (spec §4.7 INFO dump).
func (reg *Registry) All() []*Resource {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*Resource, 0, len(reg.byURI))
	for _, r := range reg.byURI {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].uri < out[j].uri })
	return out
}

// Counts reports the total and orphaned resource counts, for metrics.
func (reg *Registry) Counts() (total, orphans int) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.byURI), reg.orphanCount
}

// Bus returns the registry's underlying event bus, for callers outside
// this package that need to subscribe directly (the admin debug
// surface's live /ws stream, spec §4.7).
func (reg *Registry) Bus() *bus.Bus { return reg.bus }

// Register promotes or creates the resource at uri as driver-owned,
// per spec §4.3. Pending requests collected while unregistered are
// replayed in insertion order; subscribers matching its topic are
// notified by the retained-event publish inside ReportValueState.
func (reg *Registry) Register(driver Driver, uri string, localID string, dtype value.DisplayType, writable bool) (*Resource, error) {
	r, err := reg.Get(uri)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.registered {
		r.mu.Unlock()
		return nil, errcode.Withf(errcode.RegistrationConflict, "resource.register", "already registered: "+uri)
	}
	r.localID = localID
	r.dtype = dtype
	r.writable = writable
	r.driver = driver
	r.registered = true
	r.regSeq++
	firstTime := !r.everRegistered
	r.everRegistered = true
	r.mu.Unlock()

	// Step (a): resolve configured persistence and default-request
	// attributes; step (b): read any persisted requests from the
	// config backend. Both only apply to a resource's very first
	// promotion (spec §4.3); requests collected while unregistered on
	// later promotions are simply whatever's already in r.reqs.
	if firstTime {
		persistent := reg.IsPersistent(r.uri)
		r.mu.Lock()
		r.persistent = persistent
		r.mu.Unlock()

		if persistent && reg.Persistence != nil {
			for _, req := range reg.Persistence.LoadRequests(r.uri) {
				r.setRequest(req, false)
			}
		}

		reg.mu.Lock()
		defReq := reg.defaultRequests[r.uri]
		reg.mu.Unlock()
		if defReq != nil {
			r.mu.Lock()
			hasAny := len(r.reqs) > 0
			r.mu.Unlock()
			if !hasAny {
				cp := *defReq
				r.setRequest(&cp, false)
			}
		}
	}

	reg.mu.Lock()
	if reg.orphanCount > 0 {
		reg.orphanCount--
	}
	reg.mu.Unlock()

	// Step (c)/(d): re-evaluate immediately so any pre-existing
	// requests (replayed while unregistered, or just installed above)
	// take effect right away, and subscribers matching its topic are
	// notified by the retained-event publish inside ReportValueState.
	Evaluate(r, time.Now().UnixMilli())
	return r, nil
}

// Unregister invalidates the current value, bumps regSeq, and returns
// the resource to the orphan pool (spec §4.3). The object itself is
// never freed.
func (r *Resource) Unregister() {
	r.mu.Lock()
	r.registered = false
	r.regSeq++
	r.driver = nil
	r.current = value.UnknownOf(r.current.Type)
	state := r.current
	r.mu.Unlock()

	r.publish(ValueStateChanged, state)

	reg := r.reg
	reg.mu.Lock()
	reg.orphanCount++
	reg.mu.Unlock()
}
