// Package store implements the chunked graph's versioned column store
// contract on top of an embedded Badger database, plus the cooperative
// root-lock leases the Edit Engine serializes through.
package store

import (
	"context"
	"time"

	"github.com/dlbrittain/chunkedgraph/internal/cgerrors"
	"github.com/dlbrittain/chunkedgraph/internal/ids"
)

// Cell is one versioned value: a timestamp and the value valid as of that
// timestamp. No Store method returns Cells.
type Cell struct {
	Timestamp int64
	Value     []byte
}

// LogEntry is one operation log row.
type LogEntry struct {
	OperationID   uint64
	UserID        string
	Actor         string
	Timestamp     int64
	Kind          OperationKind
	AddedEdges    [][2]uint64
	RemovedEdges  [][2]uint64
	OldRootIDs    []uint64
	NewRootIDs    []uint64
	NewLvl2IDs    []uint64
	UndoOf        uint64 // 0 if not an undo
	RedoOf        uint64 // 0 if not a redo
	Superseded    bool // stored and decoded as given; the edit engine never sets it
}

// OperationKind enumerates log entry kinds.
type OperationKind string

const (
	OpMerge OperationKind = "merge"
	OpSplit OperationKind = "split"
	OpUndo  OperationKind = "undo"
	OpRedo  OperationKind = "redo"
)

// LogFilter selects a subset of log rows for ReadLogRows.
type LogFilter struct {
	StartTime    int64    // 0 means unbounded
	OperationIDs []uint64 // non-empty restricts to these IDs
	UserID       string   // non-empty restricts to this user
}

// Lease represents a held root lock.
type Lease struct {
	RootID  uint64
	Holder  string
	token   uint64
	expires time.Time
}

// Store is the versioned column store contract every higher-level
// component (Hierarchy Reader, Local Graph Builder, Edit Engine, History)
// is built against. The concrete implementation is *BadgerStore.
type Store interface {
	// Parent/child hierarchy facts.
	WriteParent(ctx context.Context, child, parent ids.ID, ts int64) error
	ReadParent(ctx context.Context, node ids.ID, atTime int64) (parent ids.ID, found bool, err error)
	ChildrenAt(ctx context.Context, parent ids.ID, atTime int64) ([]ids.ID, error)

	// Atomic edge connectivity.
	WriteAtomicEdge(ctx context.Context, u, v ids.ID, affinity float32) error
	ReadAtomicEdge(ctx context.Context, u, v ids.ID) (affinity float32, found bool, err error)
	EdgesTouchingChunk(ctx context.Context, chunk ids.ChunkCoord) (edges [][2]ids.ID, affinities []float32, err error)
	CrossChunkPartners(ctx context.Context, node ids.ID) ([]ids.ID, error)

	// Operation log.
	AllocOperationID(ctx context.Context) (uint64, error)
	AppendLogEntry(ctx context.Context, entry LogEntry) error
	ReadLogRows(ctx context.Context, filter LogFilter) ([]LogEntry, error)

	// ID minting support.
	NextSequence(ctx context.Context, layer int, chunk ids.ChunkCoord) (uint32, error)

	// Root locking. LockRoots acquires locks on
	// every root in ascending ID order, releasing any partial acquisition
	// on failure.
	LockRoot(ctx context.Context, rootID ids.ID, holder string, ttl time.Duration) (Lease, error)
	LockRoots(ctx context.Context, roots []ids.ID, holder string, ttl time.Duration) ([]Lease, error)
	Release(lease Lease) error
	Renew(lease Lease, ttl time.Duration) error

	Close() error
}

// errConflict builds a cgerrors.KindConflict error for a stale
// precondition. No BadgerStore method calls it.
func errConflict(format string, args ...any) error {
	return cgerrors.New(cgerrors.KindConflict, format, args...)
}
