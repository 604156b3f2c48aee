package dockerd

import (
	"sync"
)

// Gate is the daemon readiness monitor. It holds the client handle once one
// exists; build units block in Wait until it does or the bootstrap fails.
type Gate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	client Client
	up     bool
	err    error
}

// NewGate returns a gate with no client.
func NewGate() *Gate {
	g := &Gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Set stores c and wakes every waiter. It returns false without storing or
// signalling when a client is already set or c is nil.
func (g *Gate) Set(c Client) bool {
	if c == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.up {
		return false
	}
	g.client = c
	g.up = true
	g.cond.Broadcast()
	return true
}

// Fail records that no client will ever become available and wakes waiters.
// It has no effect once a client is set.
func (g *Gate) Fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.up || g.err != nil {
		return
	}
	g.err = err
	g.cond.Broadcast()
}

// Wait blocks until a client is set or the gate failed.
func (g *Gate) Wait() (Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.client == nil && g.err == nil {
		g.cond.Wait()
	}
	if g.client != nil {
		return g.client, nil
	}
	return nil, g.err
}

// Ready reports whether a client has been set.
func (g *Gate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.up
}

// Client returns the client without blocking.
func (g *Gate) Client() (Client, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.client, g.up
}
