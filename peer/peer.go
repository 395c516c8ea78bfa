// Package peer implements the connection pool and request dispatch of
// spec.md §4.7: cached per-(addr,port,node_idx,epoch) connections with
// connect_to/del_sheep_fd eviction semantics.
package peer

import (
	"fmt"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/ovisfs/sheep/cmn"
	"github.com/ovisfs/sheep/xlog"
)

// Key identifies a cached connection. Epoch is part of the key so that a
// membership change implicitly invalidates stale connections rather than
// requiring an explicit flush.
type Key struct {
	Addr    string
	Port    int
	NodeIdx int
	Epoch   cmn.Epoch
}

func KeyOf(n cmn.Node, epoch cmn.Epoch) Key {
	return Key{Addr: n.Addr, Port: n.Port, NodeIdx: n.NodeIdx, Epoch: epoch}
}

// Conn is the interface gateway/recovery code dispatches requests through;
// kept abstract so poll-loop logic is testable without a real socket.
type Conn interface {
	Exec(req cmn.RequestHeader, body []byte) (cmn.ResponseHeader, []byte, error)
	Close()
}

// fasthttpConn wraps a single peer's HostClient. One exists per distinct
// peer address; fasthttp's manual acquire/release of connections maps
// directly onto the pool's explicit del_sheep_fd-on-failure model.
type fasthttpConn struct {
	client *fasthttp.HostClient
}

func dial(addr string, port int, timeout time.Duration) *fasthttpConn {
	return &fasthttpConn{
		client: &fasthttp.HostClient{
			Addr:                fmt.Sprintf("%s:%d", addr, port),
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxConns:            1,
			MaxIdleConnDuration: 0,
		},
	}
}

func (c *fasthttpConn) Exec(req cmn.RequestHeader, body []byte) (cmn.ResponseHeader, []byte, error) {
	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.Header.SetMethod("POST")
	httpReq.Header.Set("X-Sheep-Opcode", fmt.Sprintf("%d", req.Opcode))
	httpReq.Header.Set("X-Sheep-Epoch", fmt.Sprintf("%d", req.Epoch))
	httpReq.Header.Set("X-Sheep-Flags", fmt.Sprintf("%d", req.Flags))
	httpReq.Header.Set("X-Sheep-Oid", fmt.Sprintf("%d", req.Oid))
	httpReq.SetBody(body)

	if err := c.client.Do(httpReq, httpResp); err != nil {
		return cmn.ResponseHeader{Result: cmn.ResNetworkError}, nil, err
	}
	respBody := append([]byte(nil), httpResp.Body()...)
	return cmn.ResponseHeader{Result: cmn.ResSuccess, DataLength: uint32(len(respBody))}, respBody, nil
}

func (c *fasthttpConn) Close() {
	// fasthttp.HostClient manages its own idle connections; nothing to
	// release explicitly beyond letting it go out of scope.
}

// Pool caches Conns by Key, evicting (closing + deleting) on transport
// failure per spec.md §4.7's del_sheep_fd semantics.
type Pool struct {
	mu      sync.Mutex
	conns   map[Key]Conn
	timeout time.Duration
}

func NewPool(timeout time.Duration) *Pool {
	return &Pool{conns: make(map[Key]Conn), timeout: timeout}
}

// Get returns a cached connection for the key, dialing one if absent
// (connect_to semantics).
func (p *Pool) Get(n cmn.Node, epoch cmn.Epoch) Conn {
	k := KeyOf(n, epoch)
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[k]; ok {
		return c
	}
	c := dial(n.Addr, n.Port, p.timeout)
	p.conns[k] = c
	return c
}

// Evict closes and removes the cached connection for key, called on any
// transport failure (del_sheep_fd).
func (p *Pool) Evict(n cmn.Node, epoch cmn.Epoch) {
	k := KeyOf(n, epoch)
	p.mu.Lock()
	c, ok := p.conns[k]
	delete(p.conns, k)
	p.mu.Unlock()
	if ok {
		c.Close()
		xlog.Infof("peer: evicted connection to %s:%d epoch=%d", n.Addr, n.Port, epoch)
	}
}

// Exec acquires a connection for n at epoch, executes req, and evicts on
// transport failure before returning the error.
func (p *Pool) Exec(n cmn.Node, epoch cmn.Epoch, req cmn.RequestHeader, body []byte) (cmn.ResponseHeader, []byte, error) {
	c := p.Get(n, epoch)
	resp, respBody, err := c.Exec(req, body)
	if err != nil {
		p.Evict(n, epoch)
	}
	return resp, respBody, err
}

// Len reports the number of cached connections, for tests.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Set installs c as the cached connection for (n, epoch), bypassing Get's
// dial path. Used by tests that substitute a fake Conn.
func (p *Pool) Set(n cmn.Node, epoch cmn.Epoch, c Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[KeyOf(n, epoch)] = c
}
