package store

import (
	"context"
	"sync"
	"time"

	"github.com/dlbrittain/chunkedgraph/internal/cgerrors"
	"github.com/dlbrittain/chunkedgraph/internal/ids"
)

// leaseManager holds cooperative, TTL-bounded exclusive locks on root IDs.
//
// Built on the same pattern as apoc/lock: a package-level (here,
// instance-level) map guarded by a mutex, and a bounded wait that selects
// on the holder's release channel, ctx and time.After. The root-locking
// contract additionally needs a holder identity and a
// renewable TTL, which apoc/lock's bare *sync.RWMutex map didn't carry, so
// each entry here is a small struct instead of a mutex.
type leaseManager struct {
	mu      sync.Mutex
	held    map[ids.ID]*heldLease
	tokenSeq uint64
}

type heldLease struct {
	holder  string
	token   uint64
	expires time.Time
	free    chan struct{}
}

func newLeaseManager() *leaseManager {
	return &leaseManager{held: make(map[ids.ID]*heldLease)}
}

// lock acquires a lease on rootID, blocking until it is free, ttl expires
// without renewal, or ctx is done. Expired leases are reclaimed lazily on
// the next lock attempt, matching the store contract's "lease TTL, not an
// in-process mutex" framing even though this single-process implementation
// keeps the bookkeeping in memory.
func (m *leaseManager) lock(ctx context.Context, rootID ids.ID, holder string, ttl time.Duration) (Lease, error) {
	for {
		m.mu.Lock()
		existing, busy := m.held[rootID]
		if busy && time.Now().After(existing.expires) {
			// Lease lapsed without renewal; reclaim it.
			delete(m.held, rootID)
			busy = false
		}
		if !busy {
			m.tokenSeq++
			entry := &heldLease{
				holder:  holder,
				token:   m.tokenSeq,
				expires: time.Now().Add(ttl),
				free:    make(chan struct{}),
			}
			m.held[rootID] = entry
			m.mu.Unlock()
			return Lease{RootID: uint64FromID(rootID), Holder: holder, token: entry.token, expires: entry.expires}, nil
		}
		waitCh := existing.free
		m.mu.Unlock()

		select {
		case <-waitCh:
			continue // retry acquisition
		case <-ctx.Done():
			return Lease{}, cgerrors.Wrap(cgerrors.KindLocking, ctx.Err(), "root %d locked by %q", rootID, existing.holder)
		case <-time.After(ttl):
			return Lease{}, cgerrors.New(cgerrors.KindLocking, "root %d locked by %q (wait exceeded ttl)", rootID, existing.holder)
		}
	}
}

// lockBatch acquires leases on every root in roots, sorted ascending
// first — the direct generalization of apoc/lock.Batch's
// bubble-sort-then-lock discipline, which is how the Edit Engine precludes
// deadlock across concurrent multi-root edits.
func (m *leaseManager) lockBatch(ctx context.Context, roots []ids.ID, holder string, ttl time.Duration) ([]Lease, error) {
	sorted := append([]ids.ID(nil), roots...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i] > sorted[j] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	leases := make([]Lease, 0, len(sorted))
	for _, r := range sorted {
		l, err := m.lock(ctx, r, holder, ttl)
		if err != nil {
			for _, held := range leases {
				_ = m.release(held)
			}
			return nil, err
		}
		leases = append(leases, l)
	}
	return leases, nil
}

func (m *leaseManager) release(lease Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rootID := ids.ID(lease.RootID)
	entry, ok := m.held[rootID]
	if !ok || entry.token != lease.token {
		return nil // already released or superseded; release is idempotent
	}
	delete(m.held, rootID)
	close(entry.free)
	return nil
}

func (m *leaseManager) renew(lease Lease, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rootID := ids.ID(lease.RootID)
	entry, ok := m.held[rootID]
	if !ok || entry.token != lease.token {
		return cgerrors.New(cgerrors.KindLocking, "root %d lease no longer held", lease.RootID)
	}
	entry.expires = time.Now().Add(ttl)
	return nil
}

func uint64FromID(id ids.ID) uint64 { return uint64(id) }
