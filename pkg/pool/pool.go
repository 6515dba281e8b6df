// Package pool implements the client's connection pool: one persistent
// stream per storage node, each guarded by a per-node exclusive-use lock,
// with reconnect-on-failure.
package pool

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/nmsu-cs/bbfs/internal/logger"
)

// MaxEndpoints is the reference limit on the number of storage node
// endpoints a single mount may address, carried over from the source's
// fixed-size node array.
const MaxEndpoints = 10

// DialTimeout bounds how long a (re)connect attempt may block.
const DialTimeout = 5 * time.Second

// Endpoint identifies one storage node by address.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string { return fmt.Sprintf("%s:%d", e.Host, e.Port) }

// node is the pool's internal state for one endpoint: an owning handle
// over a connection that is either live or disconnected, with a lock
// making the header-send -> payload-send -> response-recv [-> payload-recv]
// sequence for one request atomic per endpoint.
type node struct {
	mu       sync.Mutex
	endpoint Endpoint
	conn     net.Conn // nil when disconnected
	index    int
}

// Pool owns one node per storage endpoint, indexed 1:1 with fragment index.
type Pool struct {
	nodes []*node

	// OnReconnect, if set, is called with a node's index every time
	// WithConn reconnects it (after a transport error, or on the next use
	// of a node whose earlier reconnect failed). Dial's initial connects
	// do not call it.
	// Left nil by Dial; callers that track reconnect metrics set it
	// after construction.
	OnReconnect func(index int)
}

// Dial connects to every endpoint in order and returns a Pool. Endpoints
// are resolved IP-literal first, hostname fallback, which for Go's
// net.Dial is the same code path either way — the distinction only
// mattered in the C original because it used a two-step
// inet_aton/gethostbyname resolution.
func Dial(endpoints []Endpoint) (*Pool, error) {
	if len(endpoints) > MaxEndpoints {
		return nil, fmt.Errorf("pool: %d endpoints exceeds maximum of %d", len(endpoints), MaxEndpoints)
	}

	nodes := make([]*node, len(endpoints))
	for i, ep := range endpoints {
		conn, err := net.DialTimeout("tcp", ep.String(), DialTimeout)
		if err != nil {
			closeAll(nodes)
			return nil, fmt.Errorf("pool: connect to node %d (%s): %w", i, ep, err)
		}
		nodes[i] = &node{endpoint: ep, conn: conn, index: i}
	}

	return &Pool{nodes: nodes}, nil
}

func closeAll(nodes []*node) {
	for _, n := range nodes {
		if n != nil && n.conn != nil {
			n.conn.Close()
		}
	}
}

// N returns the number of endpoints (and therefore fragments) in the pool.
func (p *Pool) N() int { return len(p.nodes) }

// Endpoint returns the configured endpoint for node index i.
func (p *Pool) Endpoint(i int) Endpoint { return p.nodes[i].endpoint }

// WithConn runs fn with exclusive access to node i's connection. If conn is
// nil (disconnected) or fn returns a transport error (as judged by
// isTransportErr), WithConn makes one reconnect attempt and retries fn
// exactly once on success, matching the "one reconnect, one retry" policy
// of spec §4.3/§7. Any other error from fn is returned directly without a
// reconnect attempt.
func (p *Pool) WithConn(i int, fn func(conn net.Conn) error) error {
	n := p.nodes[i]
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		if err := p.reconnectLocked(n); err != nil {
			return err
		}
	}

	err := fn(n.conn)
	if err == nil {
		return nil
	}
	if !isTransportErr(err) {
		return err
	}

	logger.Warn("connection pool: transport error, reconnecting",
		logger.NodeIndex(i), logger.Err(err))

	n.conn.Close()
	n.conn = nil
	if rerr := p.reconnectLocked(n); rerr != nil {
		return fmt.Errorf("%w (reconnect failed: %v)", err, rerr)
	}

	return fn(n.conn)
}

func (p *Pool) reconnectLocked(n *node) error {
	conn, err := net.DialTimeout("tcp", n.endpoint.String(), DialTimeout)
	if err != nil {
		return fmt.Errorf("pool: reconnect to node %d (%s): %w", n.index, n.endpoint, err)
	}
	n.conn = conn
	if p.OnReconnect != nil {
		p.OnReconnect(n.index)
	}
	return nil
}

// isTransportErr reports whether err looks like a short send/recv or a
// dead connection, as opposed to an application-level protocol error.
// io.ErrUnexpectedEOF is the error io.ReadFull (pkg/wire's "receive
// exactly N bytes" primitive) returns for a short read mid-message; it is
// distinct from a clean io.EOF but is just as much a transport failure
// and must trigger the same reconnect-and-retry-once policy.
func isTransportErr(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(net.Error)
	return ok || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Close tears down every connection in the pool. Safe to call once;
// subsequent calls are no-ops on already-nil connections.
func (p *Pool) Close() error {
	var firstErr error
	for _, n := range p.nodes {
		n.mu.Lock()
		if n.conn != nil {
			if err := n.conn.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			n.conn = nil
		}
		n.mu.Unlock()
	}
	return firstErr
}
