package store

import (
	"context"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/dlbrittain/chunkedgraph/internal/cgerrors"
	"github.com/dlbrittain/chunkedgraph/internal/ids"
)

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	DataDir    string
	InMemory   bool
	SyncWrites bool
	Logger     badger.Logger
}

// BadgerStore is the Store implementation backed by an embedded Badger
// database, using the standard constructor shapes, low-memory tuning
// knobs, and txn.Update/txn.View transaction idiom.
type BadgerStore struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool

	leases *leaseManager
}

// NewBadgerStore opens (or creates) a Badger-backed store at dataDir with
// default tuning.
func NewBadgerStore(dataDir string) (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerStoreInMemory opens an in-memory Badger store, useful for tests
// and CLI demos where durability is not required.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{InMemory: true})
}

// NewBadgerStoreWithOptions opens a Badger-backed store with explicit
// tuning. Low-memory settings (WithValueLogFileSize, WithNumMemtables,
// WithValueThreshold, WithBlockCacheSize) assume a chunked-graph worker
// is typically one of many colocated processes.
func NewBadgerStoreWithOptions(opts BadgerOptions) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true)
	}
	bopts = bopts.
		WithSyncWrites(opts.SyncWrites).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(opts.Logger)
	} else {
		bopts = bopts.WithLoggingLevel(badger.WARNING)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.KindUnavailable, err, "opening badger store at %q", opts.DataDir)
	}

	return &BadgerStore{db: db, leases: newLeaseManager()}, nil
}

func (s *BadgerStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return cgerrors.New(cgerrors.KindUnavailable, "store closed")
	}
	return nil
}

// Close flushes and closes the underlying Badger database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return cgerrors.Wrap(cgerrors.KindUnavailable, err, "closing badger store")
	}
	return nil
}

// WriteParent records that child's parent is parent as of ts. Writing a
// fact never overwrites an earlier one; each (child, ts) pair is a new,
// immutable cell.
func (s *BadgerStore) WriteParent(ctx context.Context, child, parent ids.ID, ts int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(parentKey(child, ts), be64(uint64(parent))); err != nil {
			return err
		}
		return txn.Set(childKey(parent, ts, child), nil)
	})
	if err != nil {
		return cgerrors.Wrap(cgerrors.KindUnavailable, err, "writing parent fact for %d", child)
	}
	return nil
}

// ReadParent returns the latest parent fact for node with timestamp <=
// atTime.
func (s *BadgerStore) ReadParent(ctx context.Context, node ids.ID, atTime int64) (ids.ID, bool, error) {
	if err := s.checkOpen(); err != nil {
		return 0, false, err
	}
	var parent ids.ID
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Reverse: true, Prefix: parentPrefix(node)})
		defer it.Close()

		seekKey := parentKey(node, atTime)
		// Reverse iteration requires seeking to a key >= the target when
		// going forward is reversed; Badger's reverse iterator seeks to
		// the first key <= seekKey when given the "FILL" trick of
		// appending 0xFF is unnecessary here because ts is fixed-width
		// big-endian, so a direct Seek lands at-or-before atTime.
		for it.Seek(seekKey); it.ValidForPrefix(parentPrefix(node)); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			ts := int64(parseBE64(key[9:17]))
			if ts > atTime {
				continue
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			parent = ids.ID(parseBE64(val))
			found = true
			return nil
		}
		return nil
	})
	if err != nil {
		return 0, false, cgerrors.Wrap(cgerrors.KindUnavailable, err, "reading parent fact for %d", node)
	}
	return parent, found, nil
}

// ChildrenAt returns parent's direct children whose membership fact is
// valid at atTime: the most recent child-membership write per child id
// that is <= atTime, and still points at parent.
func (s *BadgerStore) ChildrenAt(ctx context.Context, parent ids.ID, atTime int64) ([]ids.ID, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	latest := make(map[ids.ID]int64)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: childPrefix(parent)})
		defer it.Close()
		prefix := childPrefix(parent)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			ts := int64(parseBE64(key[9:17]))
			childID := ids.ID(parseBE64(key[17:25]))
			if ts > atTime {
				continue
			}
			if prev, ok := latest[childID]; !ok || ts > prev {
				latest[childID] = ts
			}
		}
		return nil
	})
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.KindUnavailable, err, "reading children of %d", parent)
	}
	out := make([]ids.ID, 0, len(latest))
	for c := range latest {
		// Skip a child whose parent fact at atTime names another parent.
		p, found, err := s.ReadParent(ctx, c, atTime)
		if err != nil {
			return nil, err
		}
		if found && p != parent {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// WriteAtomicEdge writes (or overwrites) the affinity of edge (u,v). Also
// maintains the cross-chunk index when affinity is +Inf.
func (s *BadgerStore) WriteAtomicEdge(ctx context.Context, u, v ids.ID, affinity float32) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(atomicKey(u, v), encodeAffinity(affinity)); err != nil {
			return err
		}
		if isInf(affinity) {
			if err := txn.Set(crossIndexKey(u, v), nil); err != nil {
				return err
			}
			if err := txn.Set(crossIndexKey(v, u), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return cgerrors.Wrap(cgerrors.KindUnavailable, err, "writing atomic edge (%d,%d)", u, v)
	}
	return nil
}

func isInf(f float32) bool {
	return f > 3.4e38 || f < -3.4e38
}

// ReadAtomicEdge returns the affinity of edge (u,v), if present.
func (s *BadgerStore) ReadAtomicEdge(ctx context.Context, u, v ids.ID) (float32, bool, error) {
	if err := s.checkOpen(); err != nil {
		return 0, false, err
	}
	var aff float32
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(atomicKey(u, v))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		aff = decodeAffinity(val)
		found = true
		return nil
	})
	if err != nil {
		return 0, false, cgerrors.Wrap(cgerrors.KindUnavailable, err, "reading atomic edge (%d,%d)", u, v)
	}
	return aff, found, nil
}

// EdgesTouchingChunk scans the atomic-edge family to find every edge with at least one endpoint whose node id decodes to
// chunk, the primitive the Local Graph Builder composes into a bbox query.
func (s *BadgerStore) EdgesTouchingChunk(ctx context.Context, chunk ids.ChunkCoord) ([][2]ids.ID, []float32, error) {
	if err := s.checkOpen(); err != nil {
		return nil, nil, err
	}
	var edges [][2]ids.ID
	var affs []float32
	seen := make(map[[2]ids.ID]bool)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte{prefixAtomic}})
		defer it.Close()
		for it.Seek([]byte{prefixAtomic}); it.ValidForPrefix([]byte{prefixAtomic}); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			u := ids.ID(parseBE64(key[1:9]))
			v := ids.ID(parseBE64(key[9:17]))
			if ids.ChunkCoordOf(u) != chunk && ids.ChunkCoordOf(v) != chunk {
				continue
			}
			pair := [2]ids.ID{u, v}
			if seen[pair] {
				continue
			}
			seen[pair] = true
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			edges = append(edges, pair)
			affs = append(affs, decodeAffinity(val))
		}
		return nil
	})
	if err != nil {
		return nil, nil, cgerrors.Wrap(cgerrors.KindUnavailable, err, "scanning edges touching chunk %+v", chunk)
	}
	return edges, affs, nil
}

// CrossChunkPartners returns every node joined to node by a +Inf atomic
// edge, read from the cross-chunk index.
func (s *BadgerStore) CrossChunkPartners(ctx context.Context, node ids.ID) ([]ids.ID, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var partners []ids.ID
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := crossIndexPrefix(node)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			partners = append(partners, ids.ID(parseBE64(key[9:17])))
		}
		return nil
	})
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.KindUnavailable, err, "reading cross-chunk partners of %d", node)
	}
	return partners, nil
}

// AllocOperationID allocates the next monotonic operation id, persisted so
// it survives process restarts.
func (s *BadgerStore) AllocOperationID(ctx context.Context) (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	seq, err := s.db.GetSequence([]byte("operation_id_seq"), 1)
	if err != nil {
		return 0, cgerrors.Wrap(cgerrors.KindUnavailable, err, "allocating operation id")
	}
	defer seq.Release()
	next, err := seq.Next()
	if err != nil {
		return 0, cgerrors.Wrap(cgerrors.KindUnavailable, err, "allocating operation id")
	}
	// Badger sequences start at 0; operation ids are 1-based so that 0 can
	// mean "no linkage" in UndoOf/RedoOf.
	return next + 1, nil
}

// AppendLogEntry writes a new operation log row, idempotent on
// operation_id: if a row already exists for this operation_id, the write
// is a silent no-op.
func (s *BadgerStore) AppendLogEntry(ctx context.Context, entry LogEntry) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	encoded, err := encodeLogEntry(entry)
	if err != nil {
		return cgerrors.Wrap(cgerrors.KindInternal, err, "encoding log entry %d", entry.OperationID)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(logEntryKey(entry.OperationID))
		if err == nil {
			return nil // idempotent no-op
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(logEntryKey(entry.OperationID), encoded); err != nil {
			return err
		}
		return txn.Set(logByUserKey(entry.UserID, entry.OperationID), nil)
	})
	if err != nil {
		return cgerrors.Wrap(cgerrors.KindUnavailable, err, "appending log entry %d", entry.OperationID)
	}
	return nil
}

// ReadLogRows returns log entries matching filter, ordered by operation_id
// ascending (Badger's native key order on the big-endian operation_id key).
func (s *BadgerStore) ReadLogRows(ctx context.Context, filter LogFilter) ([]LogEntry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	idSet := make(map[uint64]bool, len(filter.OperationIDs))
	for _, id := range filter.OperationIDs {
		idSet[id] = true
	}

	var rows []LogEntry
	err := s.db.View(func(txn *badger.Txn) error {
		if filter.UserID != "" {
			prefix := logByUserPrefix(filter.UserID)
			it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
			defer it.Close()
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				key := it.Item().KeyCopy(nil)
				opID := parseBE64(key[len(key)-8:])
				entry, err := s.readLogEntryTxn(txn, opID)
				if err != nil {
					return err
				}
				if !matchesFilter(entry, filter, idSet) {
					continue
				}
				rows = append(rows, entry)
			}
			return nil
		}

		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte{prefixLogEntry}})
		defer it.Close()
		for it.Seek([]byte{prefixLogEntry}); it.ValidForPrefix([]byte{prefixLogEntry}); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			entry, err := decodeLogEntry(val)
			if err != nil {
				return err
			}
			if !matchesFilter(entry, filter, idSet) {
				continue
			}
			rows = append(rows, entry)
		}
		return nil
	})
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.KindUnavailable, err, "reading log rows")
	}
	return rows, nil
}

func (s *BadgerStore) readLogEntryTxn(txn *badger.Txn, operationID uint64) (LogEntry, error) {
	item, err := txn.Get(logEntryKey(operationID))
	if err != nil {
		return LogEntry{}, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return LogEntry{}, err
	}
	return decodeLogEntry(val)
}

func matchesFilter(entry LogEntry, filter LogFilter, idSet map[uint64]bool) bool {
	if filter.StartTime != 0 && entry.Timestamp < filter.StartTime {
		return false
	}
	if len(idSet) > 0 && !idSet[entry.OperationID] {
		return false
	}
	if filter.UserID != "" && entry.UserID != filter.UserID {
		return false
	}
	return true
}

// NextSequence returns the next intra-chunk sequence number for (layer,
// chunk), used by the ID minting step of the Edit Engine.
func (s *BadgerStore) NextSequence(ctx context.Context, layer int, chunk ids.ChunkCoord) (uint32, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	key := append([]byte("seq:"), sequenceKey(layer, chunk)...)
	seq, err := s.db.GetSequence(key, 1)
	if err != nil {
		return 0, cgerrors.Wrap(cgerrors.KindUnavailable, err, "allocating sequence for layer %d chunk %+v", layer, chunk)
	}
	defer seq.Release()
	next, err := seq.Next()
	if err != nil {
		return 0, cgerrors.Wrap(cgerrors.KindUnavailable, err, "allocating sequence for layer %d chunk %+v", layer, chunk)
	}
	if next > maxUint32 {
		return 0, cgerrors.New(cgerrors.KindInternal, "sequence space exhausted for layer %d chunk %+v", layer, chunk)
	}
	return uint32(next), nil
}

const maxUint32 = 1<<32 - 1

// LockRoot acquires a cooperative lease on rootID. See lease.go; grounded
// on apoc/lock's Batch/TryLock discipline.
func (s *BadgerStore) LockRoot(ctx context.Context, rootID ids.ID, holder string, ttl time.Duration) (Lease, error) {
	return s.leases.lock(ctx, rootID, holder, ttl)
}

// LockRoots acquires leases on every root, sorted ascending first, so that
// concurrent multi-root edits can never deadlock against each other.
func (s *BadgerStore) LockRoots(ctx context.Context, roots []ids.ID, holder string, ttl time.Duration) ([]Lease, error) {
	return s.leases.lockBatch(ctx, roots, holder, ttl)
}

// Release releases a previously acquired lease.
func (s *BadgerStore) Release(lease Lease) error {
	return s.leases.release(lease)
}

// Renew extends a held lease's TTL.
func (s *BadgerStore) Renew(lease Lease, ttl time.Duration) error {
	return s.leases.renew(lease, ttl)
}

var _ Store = (*BadgerStore)(nil)
