package coordinator

import (
	"context"
	"sort"
	"sync"
)

// Barrier is a one-cycle readiness barrier. It is created with the keys of
// every session expected in the cycle and releases its waiter once each of
// them has either arrived or been withdrawn.
//
// A Barrier is never reused: the coordinator builds a new one every cycle
// and hands it to each session through the session's handoff slot, so a
// worker can only ever arrive at the barrier of the cycle it was given.
type Barrier struct {
	cycle    uint64
	expected int

	mu      sync.Mutex
	pending map[string]struct{}
	arrived map[string]struct{}
	done    chan struct{}
}

// NewBarrier creates the barrier for cycle, expecting one arrival per key.
// A barrier with no keys is released immediately.
func NewBarrier(cycle uint64, keys []string) *Barrier {
	b := &Barrier{
		cycle:    cycle,
		expected: len(keys),
		pending:  make(map[string]struct{}, len(keys)),
		arrived:  make(map[string]struct{}, len(keys)),
		done:     make(chan struct{}),
	}
	for _, k := range keys {
		b.pending[k] = struct{}{}
	}
	if len(b.pending) == 0 {
		close(b.done)
	}
	return b
}

// Cycle returns the cycle number this barrier belongs to.
func (b *Barrier) Cycle() uint64 { return b.cycle }

// Expected returns N, the number of arrivals the barrier was opened for.
func (b *Barrier) Expected() int { return b.expected }

// Arrive records the arrival of key. It reports false when key is not
// pending, either because it was never expected or because it already
// arrived or was withdrawn.
func (b *Barrier) Arrive(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.pending[key]; !ok {
		return false
	}
	delete(b.pending, key)
	b.arrived[key] = struct{}{}
	b.releaseLocked()
	return true
}

// Withdraw removes key from the set of expected arrivals without counting it
// as arrived. Used when a session leaves while the barrier is open.
func (b *Barrier) Withdraw(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.pending[key]; !ok {
		return false
	}
	delete(b.pending, key)
	b.releaseLocked()
	return true
}

func (b *Barrier) releaseLocked() {
	if len(b.pending) == 0 {
		select {
		case <-b.done:
		default:
			close(b.done)
		}
	}
}

// Done is closed once no arrivals are pending.
func (b *Barrier) Done() <-chan struct{} { return b.done }

// Wait blocks until the barrier is released or ctx is done.
func (b *Barrier) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the keys that have neither arrived nor been withdrawn.
func (b *Barrier) Pending() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sortedKeys(b.pending)
}

// Arrived returns the keys that arrived, sorted.
func (b *Barrier) Arrived() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sortedKeys(b.arrived)
}

// HasArrived reports whether key arrived at this barrier.
func (b *Barrier) HasArrived(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.arrived[key]
	return ok
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
