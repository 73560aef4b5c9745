package remote

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"home2l/request"
	"home2l/resource"
	"home2l/value"
)

// ConnState is the remote host's connection lifecycle (spec §4.7).
type ConnState int

const (
	Idle ConnState = iota
	Connecting
	Connected
	Lost
)

// HostProxy represents one remote host: its TCP endpoint, connection
// keeper, and the local mirror of subscriptions/requests placed on its
// resources (spec §4.7).
type HostProxy struct {
	HostID string
	Addr   string

	reg     *resource.Registry
	backoff *Backoff

	mu        sync.Mutex
	state     ConnState
	conn      net.Conn
	lastAlive int64 // ms of the last frame received from the peer
	mirrored  map[string]*resource.Resource
	subCount  map[string]int // ref-counted SUBSCRIBE: only first local subscriber sends it
	outbox    []Frame        // queued while disconnected, replayed on reconnect

	writeMu sync.Mutex

	stop chan struct{}
	once sync.Once
}

// NewHostProxy constructs a proxy for a remote host, backed by reg for
// the local mirror resources (all under /host/<hostID>/...).
func NewHostProxy(hostID, addr string, reg *resource.Registry, backoff *Backoff) *HostProxy {
	return &HostProxy{
		HostID:   hostID,
		Addr:     addr,
		reg:      reg,
		backoff:  backoff,
		mirrored: map[string]*resource.Resource{},
		subCount: map[string]int{},
		stop:     make(chan struct{}),
	}
}

// Run drives the connect/reconnect loop until ctx is cancelled or
// Stop is called. Intended to run in its own goroutine (spec §5: "one
// network thread per remote host").
func (p *HostProxy) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		default:
		}

		p.setState(Connecting)
		conn, err := net.Dial("tcp", p.Addr)
		if err != nil {
			p.setState(Lost)
			if !p.backoff.Wait(p.stop) {
				return
			}
			continue
		}

		p.backoff.Reset()
		p.onConnected(conn)
		p.readLoop(ctx, conn)
		p.onDisconnected()

		if !p.backoff.Wait(p.stop) {
			return
		}
	}
}

func (p *HostProxy) setState(s ConnState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// State reports the proxy's current connection state.
func (p *HostProxy) State() ConnState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *HostProxy) onConnected(conn net.Conn) {
	p.mu.Lock()
	p.conn = conn
	p.state = Connected
	uris := make([]string, 0, len(p.subCount))
	for uri := range p.subCount {
		uris = append(uris, uri)
	}
	queued := p.outbox
	p.outbox = nil
	p.mu.Unlock()

	for _, uri := range uris {
		p.send(Frame{Cmd: CmdSubscribe, URI: uri})
	}
	for _, f := range queued {
		p.send(f)
	}
}

func (p *HostProxy) onDisconnected() {
	p.mu.Lock()
	p.conn = nil
	p.state = Lost
	ts := p.lastAlive
	mirrored := make([]*resource.Resource, 0, len(p.mirrored))
	for _, r := range p.mirrored {
		mirrored = append(mirrored, r)
	}
	p.mu.Unlock()

	// Authoritative timestamp rule (spec §4.7): never invent a future
	// timestamp; stamp unknown at the most recent known-alive time.
	for _, r := range mirrored {
		cur := r.Current()
		unknown := value.UnknownOf(cur.Type)
		unknown.TSMs = ts
		if cur.TSMs > unknown.TSMs {
			unknown.TSMs = cur.TSMs
		}
		_ = r.ReportValueState(unknown)
	}
}

func (p *HostProxy) readLoop(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	for sc.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		default:
		}

		p.mu.Lock()
		p.lastAlive = time.Now().UnixMilli()
		p.mu.Unlock()

		frame, err := ParseFrame(sc.Text())
		if err != nil {
			continue // RemoteTransient: tolerate a bad single frame
		}
		p.dispatch(frame)
		if frame.Cmd == CmdBye {
			return
		}
	}
}

func (p *HostProxy) dispatch(f Frame) {
	if f.Cmd != CmdValue {
		return // a client proxy only ever receives VALUE (and BYE) frames
	}
	r, err := p.reg.Get(f.URI)
	if err != nil {
		return
	}
	p.mu.Lock()
	p.mirrored[f.URI] = r
	p.mu.Unlock()

	vs, err := ParseValueState(f.ValueStr, r.Current().Type)
	if err != nil {
		return
	}
	_ = r.ReportValueState(vs)
}

// Subscribe attaches a local subscriber's interest to a remote
// resource: the proxy sends SUBSCRIBE only for the first local
// subscriber on this URI (spec §4.7).
func (p *HostProxy) Subscribe(uri string) {
	p.mu.Lock()
	p.subCount[uri]++
	first := p.subCount[uri] == 1
	p.mu.Unlock()
	if first {
		p.send(Frame{Cmd: CmdSubscribe, URI: uri})
	}
}

// Unsubscribe releases one local subscriber's interest; UNSUBSCRIBE is
// sent once the refcount reaches zero.
func (p *HostProxy) Unsubscribe(uri string) {
	p.mu.Lock()
	p.subCount[uri]--
	last := p.subCount[uri] <= 0
	if last {
		delete(p.subCount, uri)
	}
	p.mu.Unlock()
	if last {
		p.send(Frame{Cmd: CmdUnsubscribe, URI: uri})
	}
}

// SetRequest forwards a local SetRequest on a remote resource as a SET
// frame, queuing it while disconnected (spec §4.7: "Request forwarding").
func (p *HostProxy) SetRequest(uri string, req *request.Request) {
	p.send(Frame{Cmd: CmdSet, URI: uri, Request: req})
}

// DelRequest forwards a local DelRequest as a DEL frame.
func (p *HostProxy) DelRequest(uri, id string, t1 int64) {
	p.send(Frame{Cmd: CmdDel, URI: uri, RequestID: id, T1: t1})
}

// send writes a frame if connected, else queues it for replay on
// reconnect (spec §4.7: "The proxy queues these while disconnected and
// replays on reconnect").
func (p *HostProxy) send(f Frame) {
	p.mu.Lock()
	conn := p.conn
	if conn == nil {
		p.outbox = append(p.outbox, f)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, _ = conn.Write([]byte(f.Encode() + "\n"))
}

// Stop terminates the proxy's connect/reconnect loop and closes any
// live connection.
func (p *HostProxy) Stop() {
	p.once.Do(func() { close(p.stop) })
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
