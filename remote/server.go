package remote

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"home2l/bus"
	"home2l/rclog"
	"home2l/resource"
	"home2l/value"
)

// Server accepts inbound peer connections and answers SUBSCRIBE/SET/
// DEL/INFO frames against the local resource registry (spec §4.7/§6).
type Server struct {
	Addr string
	reg  *resource.Registry
	b    *bus.Bus

	mu       sync.Mutex
	peers    map[string]*peerConn
	listener net.Listener
}

func NewServer(addr string, reg *resource.Registry, b *bus.Bus) *Server {
	return &Server{Addr: addr, reg: reg, b: b, peers: map[string]*peerConn{}}
}

// Serve accepts connections until ctx is cancelled (spec §5: "server-
// accept thread").
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("remote: listen %s: %w", s.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		pc := newPeerConn(conn, s.reg, s.b)
		s.mu.Lock()
		s.peers[pc.id] = pc
		s.mu.Unlock()
		go func() {
			pc.serve(ctx)
			s.mu.Lock()
			delete(s.peers, pc.id)
			s.mu.Unlock()
		}()
	}
}

// BoundAddr returns the listener's actual address (useful when Addr
// was ":0"), or "" before Serve has started listening.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close shuts the listener and every live peer connection down.
func (s *Server) Close() {
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	peers := make([]*peerConn, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
}

// peerConn is one inbound connection's session state: the set of
// URIs this particular peer has subscribed to.
type peerConn struct {
	id   string
	conn net.Conn
	reg  *resource.Registry
	conn2 *bus.Connection

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]*bus.Subscription
}

func newPeerConn(conn net.Conn, reg *resource.Registry, b *bus.Bus) *peerConn {
	id := uuid.NewString()
	return &peerConn{
		id:    id,
		conn:  conn,
		reg:   reg,
		conn2: b.NewConnection("peer-" + id),
		subs:  map[string]*bus.Subscription{},
	}
}

func (p *peerConn) serve(ctx context.Context) {
	defer p.close()
	sc := bufio.NewScanner(p.conn)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	for sc.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		frame, err := ParseFrame(sc.Text())
		if err != nil {
			continue
		}
		if !p.handle(frame) {
			return
		}
	}
}

// handle processes one inbound frame, returning false if the
// connection should be closed, which happens only for BYE (frames that
// fail to parse are skipped by serve before they reach here).
func (p *peerConn) handle(f Frame) bool {
	switch f.Cmd {
	case CmdBye:
		return false
	case CmdSubscribe:
		p.subscribe(f.URI)
	case CmdUnsubscribe:
		p.unsubscribe(f.URI)
	case CmdSet:
		if r, err := p.reg.Get(f.URI); err == nil && f.Request != nil {
			r.SetRequest(f.Request)
		}
	case CmdDel:
		if r, err := p.reg.Get(f.URI); err == nil {
			r.DelRequest(f.RequestID)
		}
	case CmdInfo:
		p.info(f.URI, f.Verbosity)
	default:
		// unknown command: tolerated, skipped with a warning (spec §6)
		logger := rclog.WithComponent("remote")
		logger.Warn().Str("frame", f.Raw).Msg("unknown command skipped")
	}
	return true
}

func (p *peerConn) subscribe(uri string) {
	topic, err := resource.SplitURI(uri)
	if err != nil {
		return
	}
	r, err := p.reg.Get(uri)
	if err != nil {
		return
	}

	p.mu.Lock()
	if _, exists := p.subs[uri]; exists {
		p.mu.Unlock()
		return
	}
	sub := p.conn2.Subscribe(topic)
	p.subs[uri] = sub
	p.mu.Unlock()

	p.writeFrame(Frame{Cmd: CmdValue, URI: uri, ValueStr: r.Current().ToString(value.ToStringOptions{WithTimestamp: true})})

	go p.pump(uri, sub)
}

func (p *peerConn) pump(uri string, sub *bus.Subscription) {
	for ev := range sub.Channel() {
		re, ok := ev.Payload.(resource.Event)
		if !ok || re.Kind != resource.ValueStateChanged {
			continue
		}
		p.writeFrame(Frame{Cmd: CmdValue, URI: uri, ValueStr: re.State.ToString(value.ToStringOptions{WithTimestamp: true})})
	}
}

func (p *peerConn) unsubscribe(uri string) {
	p.mu.Lock()
	sub, ok := p.subs[uri]
	delete(p.subs, uri)
	p.mu.Unlock()
	if ok {
		p.conn2.Unsubscribe(sub)
	}
}

func (p *peerConn) info(uri string, verbosity int) {
	r, ok := p.reg.Lookup(uri)
	if !ok {
		p.writeFrame(Frame{Raw: "INFO " + uri + ": not registered"})
		return
	}
	p.writeFrame(Frame{Raw: fmt.Sprintf("INFO %s: %s", uri, r.Current().ToString(value.ToStringOptions{WithType: true, WithTimestamp: true}))})
	if verbosity >= 1 {
		for _, req := range r.Requests() {
			p.writeFrame(Frame{Raw: "!" + req.String()})
		}
	}
}

func (p *peerConn) writeFrame(f Frame) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, _ = p.conn.Write([]byte(f.Encode() + "\n"))
}

func (p *peerConn) close() {
	p.mu.Lock()
	subs := make([]*bus.Subscription, 0, len(p.subs))
	for _, s := range p.subs {
		subs = append(subs, s)
	}
	p.subs = map[string]*bus.Subscription{}
	p.mu.Unlock()
	for _, s := range subs {
		p.conn2.Unsubscribe(s)
	}
	_ = p.conn.Close()
}
