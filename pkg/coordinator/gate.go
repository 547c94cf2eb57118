package coordinator

import (
	"context"
	"sync"
)

// Gate is a one-shot send permit. It starts closed, can be opened exactly
// once, and stays open. Each session owns one gate per cycle and replaces it
// with a fresh one after completing its round.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// NewGate returns an unopened gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Open releases every current and future waiter. Opening twice is a no-op.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.ch) })
}

// IsOpen reports whether Open has been called.
func (g *Gate) IsOpen() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate is opened or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
