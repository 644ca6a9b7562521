package peer

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/decred/dcrd/lru"
	"github.com/google/uuid"

	"go-testnet-node/internal/nodeerr"
	"go-testnet-node/internal/wire"
)

// poolConn is a Ready connection tracked by the Pool actor. writeMu
// serializes every write to conn across every caller that holds this
// handle — Send's one-off writes and a broadcast.Listener's own writes
// (pong replies, getdata) both go through it, so the two can never
// interleave bytes on the wire.
type poolConn struct {
	id      int32
	addr    string
	conn    net.Conn
	state   State
	writeMu *sync.Mutex
}

// request is the single message shape the Pool actor's loop understands;
// kind selects the operation and the result channel carries the reply.
// Modelled as an actor rather than a shared
// mutex: one goroutine owns the connection table, callers never touch
// it directly — only short, lock-free sends/receives on this channel.
type request struct {
	kind          requestKind
	connID        int32
	conn          net.Conn
	addr          string
	markBusy      bool
	reply         chan response
	snapshotReply chan []ConnInfo
	corrID        string
}

// debugLog, if set via SetDebugLogger, receives one correlation-tagged
// line per request the actor processes — a uuid per request rather than
// a sequence number, so log lines stay correlatable even if the actor is
// restarted mid-run.
var debugLog func(string)

// SetDebugLogger installs fn as the pool actor's request-correlation
// logger. Pass nil to disable.
func SetDebugLogger(fn func(string)) {
	debugLog = fn
}

func newCorrID() string {
	if debugLog == nil {
		return ""
	}
	return uuid.NewString()
}

type requestKind int

const (
	reqAcquire requestKind = iota
	reqRelease
	reqSubstitute
	reqAdd
	reqShutdown
	reqDrop
	reqSnapshot
	reqSnapshotFree
	reqLookup
)

type response struct {
	conn net.Conn
	id   int32
	mu   *sync.Mutex
	err  error
}

// Pool is the connection pool actor.
type Pool struct {
	requests chan request
	config   Config
	seed     string
	failed   *lru.Cache
}

// Config carries the dial parameters the pool needs to re-discover or
// substitute a connection lazily.
type Config struct {
	Seed            string
	Port            int
	ProtocolVersion uint32
	ReadTimeout     time.Duration
}

// NewPool starts the pool actor goroutine and returns the handle callers
// use to Acquire/Release/Substitute.
func NewPool(cfg Config) *Pool {
	p := &Pool{
		requests: make(chan request),
		config:   cfg,
		seed:     cfg.Seed,
		failed:   lru.New(256),
	}
	go p.run()
	return p
}

// Discover resolves the DNS seed and dials every address with the 10s
// timeout, keeping those that complete the handshake.
func (p *Pool) Discover() (int, error) {
	addrs, err := net.LookupHost(p.seed)
	if err != nil {
		return 0, fmt.Errorf("%w: resolve seed %q - %v", nodeerr.ErrNoFreePeer, p.seed, err)
	}

	connected := 0
	for _, ip := range addrs {
		addr := net.JoinHostPort(ip, strconv.Itoa(p.config.Port))
		if p.failed.Contains(addr) {
			continue
		}
		conn, err := p.dialAndHandshake(addr)
		if err != nil {
			p.failed.Add(addr)
			continue
		}
		if _, err := p.addConn(conn, addr, false); err != nil {
			conn.Close()
			continue
		}
		connected++
	}
	if connected == 0 {
		return 0, fmt.Errorf("%w: no peer completed handshake", nodeerr.ErrNoFreePeer)
	}
	return connected, nil
}

// redial dials and handshakes exactly one fresh address not already
// known to have failed, for lazy re-dial when the free set is empty.
func (p *Pool) redial() (net.Conn, string, error) {
	addrs, err := net.LookupHost(p.seed)
	if err != nil {
		return nil, "", fmt.Errorf("%w: resolve seed %q - %v", nodeerr.ErrNoFreePeer, p.seed, err)
	}
	for _, ip := range addrs {
		addr := net.JoinHostPort(ip, strconv.Itoa(p.config.Port))
		if p.failed.Contains(addr) {
			continue
		}
		conn, err := p.dialAndHandshake(addr)
		if err != nil {
			p.failed.Add(addr)
			continue
		}
		return conn, addr, nil
	}
	return nil, "", fmt.Errorf("%w: no new peer address available", nodeerr.ErrNoFreePeer)
}

func (p *Pool) dialAndHandshake(addr string) (net.Conn, error) {
	conn, err := Dial(addr)
	if err != nil {
		return nil, err
	}
	if err := Handshake(conn, p.config.ProtocolVersion, p.config.ReadTimeout); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (p *Pool) addConn(conn net.Conn, addr string, markBusy bool) (int32, error) {
	reply := make(chan response, 1)
	p.requests <- request{kind: reqAdd, conn: conn, addr: addr, markBusy: markBusy, reply: reply, corrID: newCorrID()}
	resp := <-reply
	return resp.id, resp.err
}

// AddConn registers an already-handshaken connection with the pool
// without going through Discover's DNS lookup (admin_connections.rs's
// add()) — used when a caller dials or mocks a peer itself.
func (p *Pool) AddConn(conn net.Conn, addr string) (int32, error) {
	return p.addConn(conn, addr, false)
}

// Acquire returns any Ready(free) connection, marking it busy. If none
// is free it dials a replacement rather than failing immediately.
func (p *Pool) Acquire() (net.Conn, int32, error) {
	reply := make(chan response, 1)
	p.requests <- request{kind: reqAcquire, reply: reply, corrID: newCorrID()}
	resp := <-reply
	if resp.err == nil {
		return resp.conn, resp.id, nil
	}

	conn, addr, err := p.redial()
	if err != nil {
		return nil, 0, err
	}
	id, err := p.addConn(conn, addr, true)
	if err != nil {
		conn.Close()
		return nil, 0, err
	}
	return conn, id, nil
}

// Release marks a connection Ready(free) again.
func (p *Pool) Release(id int32) {
	reply := make(chan response, 1)
	p.requests <- request{kind: reqRelease, connID: id, reply: reply, corrID: newCorrID()}
	<-reply
}

// Substitute marks oldID Closed and returns a different Ready(free)
// connection, dialling one if necessary.
func (p *Pool) Substitute(oldID int32) (net.Conn, int32, error) {
	reply := make(chan response, 1)
	p.requests <- request{kind: reqSubstitute, connID: oldID, reply: reply, corrID: newCorrID()}
	resp := <-reply
	if resp.err == nil {
		return resp.conn, resp.id, nil
	}

	conn, addr, err := p.redial()
	if err != nil {
		return nil, 0, err
	}
	id, err := p.addConn(conn, addr, true)
	if err != nil {
		conn.Close()
		return nil, 0, err
	}
	return conn, id, nil
}

// Shutdown closes every tracked connection and stops the actor.
func (p *Pool) Shutdown() {
	reply := make(chan response, 1)
	p.requests <- request{kind: reqShutdown, reply: reply, corrID: newCorrID()}
	<-reply
}

// ConnInfo is one entry in a Pool snapshot.
type ConnInfo struct {
	ID   int32
	Conn net.Conn
	Addr string
}

// Snapshot lists every currently tracked connection regardless of
// free/busy state, for spawning one broadcast listener per Ready
// connection after IBD completes.
func (p *Pool) Snapshot() []ConnInfo {
	reply := make(chan []ConnInfo, 1)
	p.requests <- request{kind: reqSnapshot, snapshotReply: reply, corrID: newCorrID()}
	return <-reply
}

// FreeSnapshot lists only connections currently marked Ready(free), for
// a broadcast that must go out over free connections only.
func (p *Pool) FreeSnapshot() []ConnInfo {
	reply := make(chan []ConnInfo, 1)
	p.requests <- request{kind: reqSnapshotFree, snapshotReply: reply, corrID: newCorrID()}
	return <-reply
}

// Send writes msg to the connection tracked as id through that
// connection's write lock, so the send can never interleave with a
// broadcast.Listener's own writes (pong replies, getdata) on the same
// net.Conn. Unlike Acquire/Release, Send does not touch free/busy state
// — it is a one-off write against whichever connection id still names.
func (p *Pool) Send(id int32, msg wire.Message) error {
	reply := make(chan response, 1)
	p.requests <- request{kind: reqLookup, connID: id, reply: reply, corrID: newCorrID()}
	resp := <-reply
	if resp.err != nil {
		return resp.err
	}
	resp.mu.Lock()
	defer resp.mu.Unlock()
	return WriteMessage(resp.conn, msg)
}

// Drop closes and forgets a connection without acquiring a replacement
// for the caller, unlike Substitute.
func (p *Pool) Drop(id int32) {
	reply := make(chan response, 1)
	p.requests <- request{kind: reqDrop, connID: id, reply: reply, corrID: newCorrID()}
	<-reply
}

// run is the single owner of the connection table.
func (p *Pool) run() {
	conns := make(map[int32]*poolConn)
	var nextID int32

	for req := range p.requests {
		if debugLog != nil && req.corrID != "" {
			debugLog(fmt.Sprintf("pool request %s kind=%d connID=%d", req.corrID, req.kind, req.connID))
		}
		switch req.kind {
		case reqAcquire:
			id, conn, ok := acquireFree(conns)
			if !ok {
				req.reply <- response{err: nodeerr.ErrNoFreePeer}
				continue
			}
			req.reply <- response{conn: conn, id: id}

		case reqRelease:
			if c, ok := conns[req.connID]; ok {
				c.state = StateReadyFree
			}
			req.reply <- response{}

		case reqSubstitute:
			if c, ok := conns[req.connID]; ok {
				c.state = StateClosed
				c.conn.Close()
				delete(conns, req.connID)
			}
			id, conn, ok := acquireFree(conns)
			if !ok {
				req.reply <- response{err: nodeerr.ErrNoFreePeer}
				continue
			}
			req.reply <- response{conn: conn, id: id}

		case reqAdd:
			id := nextID
			nextID++
			state := StateReadyFree
			if req.markBusy {
				state = StateReadyBusy
			}
			conns[id] = &poolConn{id: id, addr: req.addr, conn: req.conn, state: state, writeMu: &sync.Mutex{}}
			req.reply <- response{id: id}

		case reqDrop:
			if c, ok := conns[req.connID]; ok {
				c.conn.Close()
				delete(conns, req.connID)
			}
			req.reply <- response{}

		case reqSnapshot:
			out := make([]ConnInfo, 0, len(conns))
			for _, c := range conns {
				out = append(out, ConnInfo{ID: c.id, Conn: c.conn, Addr: c.addr})
			}
			req.snapshotReply <- out

		case reqSnapshotFree:
			out := make([]ConnInfo, 0, len(conns))
			for _, c := range conns {
				if c.state == StateReadyFree {
					out = append(out, ConnInfo{ID: c.id, Conn: c.conn, Addr: c.addr})
				}
			}
			req.snapshotReply <- out

		case reqLookup:
			c, ok := conns[req.connID]
			if !ok {
				req.reply <- response{err: nodeerr.ErrNoFreePeer}
				continue
			}
			req.reply <- response{conn: c.conn, mu: c.writeMu}

		case reqShutdown:
			for _, c := range conns {
				c.conn.Close()
			}
			req.reply <- response{}
			return
		}
	}
}

func acquireFree(conns map[int32]*poolConn) (int32, net.Conn, bool) {
	for id, c := range conns {
		if c.state == StateReadyFree {
			c.state = StateReadyBusy
			return id, c.conn, true
		}
	}
	return 0, nil, false
}
