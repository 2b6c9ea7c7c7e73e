// Package edit implements the chunked graph's Edit Engine: AddEdges,
// RemoveEdges, Undo, Redo and RollbackUser, each run through an explicit
// Idle→LockAcquire→Mutate→Persist→Emit state machine with a Conflict
// retry budget, using a small hand-rolled synchronous state machine
// rather than a generic FSM library.
//
// Coordinate-to-supervoxel resolution (nearest-supervoxel lookup in a
// voxel chunk) requires a real segmentation volume index, which is out of
// scope; every public method here takes already-resolved
// ids.ID values instead of (coord, node_id) pairs.
package edit

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/dlbrittain/chunkedgraph/internal/cgerrors"
	"github.com/dlbrittain/chunkedgraph/internal/hierarchy"
	"github.com/dlbrittain/chunkedgraph/internal/ids"
	"github.com/dlbrittain/chunkedgraph/internal/mincut"
	"github.com/dlbrittain/chunkedgraph/internal/remesh"
	"github.com/dlbrittain/chunkedgraph/internal/store"

	"github.com/dlbrittain/chunkedgraph/internal/config"
)

// infAffinity marks an atomic edge as a permanent (user-forced) fusion,
// mirroring the coalescing engine's own use of +Inf as "never cut".
var infAffinity = float32(math.Inf(1))

// maxChebyshevChunks bounds how far apart a merge's two endpoints may be.
const maxChebyshevChunks = 3

// EditResult is the outcome of a committed (or attempted) edit.
type EditResult struct {
	OperationID uint64
	OldRootIDs  []ids.ID
	NewRootIDs  []ids.ID
	NewLvl2IDs  []ids.ID
}

// Engine executes edits against a Store, using a Reader for root
// resolution and a Publisher to announce committed work.
type Engine struct {
	store     store.Store
	reader    *hierarchy.Reader
	publisher remesh.Publisher
	cfg       *config.Config
	table     string
	maxLayer  int
}

// New constructs an Engine. table names the deny-list entry this engine's
// edits are checked against; maxLayer is the root layer N.
func New(s store.Store, reader *hierarchy.Reader, pub remesh.Publisher, cfg *config.Config, table string, maxLayer int) *Engine {
	return &Engine{store: s, reader: reader, publisher: pub, cfg: cfg, table: table, maxLayer: maxLayer}
}

// state is the edit state machine, matching Idle→LockAcquire→Mutate→
// Persist→Emit→Idle. Resolve happens before runEdit is ever called: the
// caller has already turned its inputs into concrete ids.ID roots.
type state int

const (
	stateLockAcquire state = iota
	stateMutatePersist
	stateEmit
	stateDone
)

// mutateFunc performs one (idempotent, keyed by opID) attempt at both the
// in-memory mutation and its persistence. It is re-invoked on Conflict.
type mutateFunc func(ctx context.Context, opID uint64, ts int64) (mutationOutcome, error)

type mutationOutcome struct {
	oldRoots []ids.ID
	newRoots []ids.ID
	newLvl2  []ids.ID
}

// transaction threads one edit through the state machine.
type transaction struct {
	engine *Engine
	user   string
	roots  []ids.ID
	mutate mutateFunc

	state  state
	leases []store.Lease
	opID   uint64
	result EditResult
}

func (e *Engine) runEdit(ctx context.Context, user string, roots []ids.ID, mutate mutateFunc) (EditResult, error) {
	tx := &transaction{engine: e, user: user, roots: dedupSorted(roots), mutate: mutate, state: stateLockAcquire}
	return tx.run(ctx)
}

func (tx *transaction) run(ctx context.Context) (EditResult, error) {
	for {
		switch tx.state {
		case stateLockAcquire:
			leases, err := tx.engine.store.LockRoots(ctx, tx.roots, tx.user, tx.engine.cfg.LockTTL)
			if err != nil {
				return EditResult{}, cgerrors.Wrap(cgerrors.KindLocking, err, "could not acquire root locks for %v", tx.roots)
			}
			tx.leases = leases
			tx.state = stateMutatePersist

		case stateMutatePersist:
			opID, err := tx.engine.store.AllocOperationID(ctx)
			if err != nil {
				tx.releaseAll()
				return EditResult{}, cgerrors.Wrap(cgerrors.KindInternal, err, "could not allocate operation id")
			}
			tx.opID = opID

			outcome, err := tx.runWithRetry(ctx)
			tx.releaseAll()
			if err != nil {
				return EditResult{}, err
			}
			if len(outcome.newRoots) == 0 {
				return EditResult{}, cgerrors.New(cgerrors.KindInternal, "operation %d produced no new roots", tx.opID)
			}
			tx.result = EditResult{
				OperationID: tx.opID,
				OldRootIDs:  outcome.oldRoots,
				NewRootIDs:  outcome.newRoots,
				NewLvl2IDs:  outcome.newLvl2,
			}
			tx.state = stateEmit

		case stateEmit:
			tx.engine.emit(ctx, tx.user, tx.result)
			tx.state = stateDone

		case stateDone:
			return tx.result, nil
		}
	}
}

// runWithRetry retries tx.mutate up to cfg.RetryMaxAttempts times on
// Conflict, with delays base, base*4, base*16 (50/200/800ms by default).
func (tx *transaction) runWithRetry(ctx context.Context) (mutationOutcome, error) {
	cfg := tx.engine.cfg
	ts := time.Now().Unix()
	var lastErr error
	for attempt := 0; attempt < cfg.RetryMaxAttempts; attempt++ {
		outcome, err := tx.mutate(ctx, tx.opID, ts)
		if err == nil {
			return outcome, nil
		}
		lastErr = err
		if !cgerrors.Is(err, cgerrors.KindConflict) {
			return mutationOutcome{}, err
		}
		delay := cfg.RetryBaseBackoff * time.Duration(pow4(attempt))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return mutationOutcome{}, ctx.Err()
		}
	}
	return mutationOutcome{}, cgerrors.Wrap(cgerrors.KindConflict, lastErr, "exhausted %d retry attempts", cfg.RetryMaxAttempts)
}

func pow4(n int) int64 {
	r := int64(1)
	for i := 0; i < n; i++ {
		r *= 4
	}
	return r
}

func (tx *transaction) releaseAll() {
	for _, l := range tx.leases {
		_ = tx.engine.store.Release(l)
	}
}

func (e *Engine) emit(ctx context.Context, user string, result EditResult) {
	if e.publisher == nil {
		return
	}
	_ = e.publisher.Publish(ctx, remesh.Payload{
		OperationID: result.OperationID,
		NewLvl2IDs:  idsToUint64(result.NewLvl2IDs),
		NewRootIDs:  idsToUint64(result.NewRootIDs),
		TableID:     e.table,
		UserID:      user,
	})
}

// remintChainForGroup mints a fresh layer-2..maxLayer ancestor chain at
// chunk, reparenting every member under the new layer-2 id and each
// layer's new id under the next. Returns (layer2 id, root id).
func (e *Engine) remintChainForGroup(ctx context.Context, ts int64, chunk ids.ChunkCoord, members []ids.ID) (ids.ID, ids.ID, error) {
	seq2, err := e.store.NextSequence(ctx, 2, chunk)
	if err != nil {
		return 0, 0, cgerrors.Wrap(cgerrors.KindConflict, err, "allocating layer-2 sequence")
	}
	lvl2, err := ids.Mint(2, chunk, seq2)
	if err != nil {
		return 0, 0, cgerrors.Wrap(cgerrors.KindInternal, err, "minting layer-2 id")
	}
	for _, m := range members {
		if err := e.store.WriteParent(ctx, m, lvl2, ts); err != nil {
			return 0, 0, cgerrors.Wrap(cgerrors.KindConflict, err, "writing parent for %d", m)
		}
	}

	prev := lvl2
	for layer := 3; layer <= e.maxLayer; layer++ {
		seq, err := e.store.NextSequence(ctx, layer, chunk)
		if err != nil {
			return 0, 0, cgerrors.Wrap(cgerrors.KindConflict, err, "allocating layer-%d sequence", layer)
		}
		next, err := ids.Mint(layer, chunk, seq)
		if err != nil {
			return 0, 0, cgerrors.Wrap(cgerrors.KindInternal, err, "minting layer-%d id", layer)
		}
		if err := e.store.WriteParent(ctx, prev, next, ts); err != nil {
			return 0, 0, cgerrors.Wrap(cgerrors.KindConflict, err, "writing parent for %d", prev)
		}
		prev = next
	}
	return lvl2, prev, nil
}

// mergeMany fuses every pair's endpoints into one new ancestor chain,
// recording each pair as a permanent (+Inf) atomic edge. Used by both
// AddEdges (a single pair) and Undo of a split (all its removed pairs).
func (e *Engine) mergeMany(ctx context.Context, ts int64, pairs [][2]ids.ID) (ids.ID, ids.ID, error) {
	members := dedupSorted(flattenPairs(pairs))
	chunk := ids.ChunkCoordOf(members[0])
	for _, p := range pairs {
		if err := e.store.WriteAtomicEdge(ctx, p[0], p[1], infAffinity); err != nil {
			return 0, 0, cgerrors.Wrap(cgerrors.KindConflict, err, "writing atomic edge (%d,%d)", p[0], p[1])
		}
	}
	return e.remintChainForGroup(ctx, ts, chunk, members)
}

// AddEdges merges the chunk(s) spanning u and v.
func (e *Engine) AddEdges(ctx context.Context, user string, u, v ids.ID) (EditResult, error) {
	return e.addEdges(ctx, user, u, v, 0)
}

// addEdges is AddEdges with an optional redoOf linkage, used by Redo.
func (e *Engine) addEdges(ctx context.Context, user string, u, v ids.ID, redoOf uint64) (EditResult, error) {
	if u == v {
		return EditResult{}, cgerrors.New(cgerrors.KindBadRequest, "merge endpoints are identical: %d", u)
	}
	cu, cv := ids.ChunkCoordOf(u), ids.ChunkCoordOf(v)
	if ids.ChebyshevDistance(cu, cv) > maxChebyshevChunks {
		return EditResult{}, cgerrors.New(cgerrors.KindBadRequest, "merge endpoints %d and %d are more than %d chunks apart", u, v, maxChebyshevChunks)
	}

	now := time.Now().Unix()
	rootU, err := e.reader.RootOf(ctx, u, now, 0)
	if err != nil {
		return EditResult{}, cgerrors.Wrap(cgerrors.KindBadRequest, err, "resolving root of %d", u)
	}
	rootV, err := e.reader.RootOf(ctx, v, now, 0)
	if err != nil {
		return EditResult{}, cgerrors.Wrap(cgerrors.KindBadRequest, err, "resolving root of %d", v)
	}

	mutate := func(ctx context.Context, opID uint64, ts int64) (mutationOutcome, error) {
		lvl2, newRoot, err := e.mergeMany(ctx, ts, [][2]ids.ID{{u, v}})
		if err != nil {
			return mutationOutcome{}, err
		}
		entry := store.LogEntry{
			OperationID: opID,
			UserID:      user,
			Actor:       user,
			Timestamp:   ts,
			Kind:        store.OpMerge,
			AddedEdges:  [][2]uint64{{uint64(u), uint64(v)}},
			OldRootIDs:  []uint64{uint64(rootU), uint64(rootV)},
			NewRootIDs:  []uint64{uint64(newRoot)},
			NewLvl2IDs:  []uint64{uint64(lvl2)},
			RedoOf:      redoOf,
		}
		if err := e.store.AppendLogEntry(ctx, entry); err != nil {
			return mutationOutcome{}, cgerrors.Wrap(cgerrors.KindConflict, err, "appending log entry %d", opID)
		}
		return mutationOutcome{
			oldRoots: dedupSorted([]ids.ID{rootU, rootV}),
			newRoots: []ids.ID{newRoot},
			newLvl2:  []ids.ID{lvl2},
		}, nil
	}

	return e.runEdit(ctx, user, []ids.ID{rootU, rootV}, mutate)
}

// RemoveEdges splits the current root(s) of sources/sinks apart. If
// useMincut, the cut edges are computed by the
// Mincut Engine over every atomic edge touching a chunk any terminal
// occupies; otherwise explicitEdges is cut as given.
func (e *Engine) RemoveEdges(ctx context.Context, user string, sources, sinks []ids.ID, explicitEdges [][2]ids.ID, useMincut bool) (EditResult, error) {
	return e.removeEdges(ctx, user, sources, sinks, explicitEdges, useMincut, 0)
}

// removeEdges is RemoveEdges with an optional redoOf linkage, used by Redo.
func (e *Engine) removeEdges(ctx context.Context, user string, sources, sinks []ids.ID, explicitEdges [][2]ids.ID, useMincut bool, redoOf uint64) (EditResult, error) {
	if len(sources) == 0 || len(sinks) == 0 {
		return EditResult{}, cgerrors.New(cgerrors.KindBadRequest, "sources and sinks must both be non-empty")
	}
	for _, s := range sources {
		for _, k := range sinks {
			if s == k {
				return EditResult{}, cgerrors.New(cgerrors.KindPrecondition, "terminal %d appears in both sources and sinks", s)
			}
		}
	}

	now := time.Now().Unix()
	terminals := append(append([]ids.ID{}, sources...), sinks...)
	root, err := e.reader.RootOf(ctx, terminals[0], now, 0)
	if err != nil {
		return EditResult{}, cgerrors.Wrap(cgerrors.KindBadRequest, err, "resolving root of %d", terminals[0])
	}
	for _, n := range terminals[1:] {
		r, err := e.reader.RootOf(ctx, n, now, 0)
		if err != nil {
			return EditResult{}, cgerrors.Wrap(cgerrors.KindBadRequest, err, "resolving root of %d", n)
		}
		if r != root {
			return EditResult{}, cgerrors.New(cgerrors.KindBadRequest, "terminals span multiple roots (%d, %d)", root, r)
		}
	}

	chunks := chunksOf(terminals)
	allEdges, allAffs, err := e.edgesTouchingAny(ctx, chunks)
	if err != nil {
		return EditResult{}, cgerrors.Wrap(cgerrors.KindInternal, err, "gathering local edges")
	}

	var cutEdges [][2]ids.ID
	if useMincut {
		result, err := mincut.Run(ctx, allEdges, allAffs, sources, sinks)
		if err != nil {
			return EditResult{}, cgerrors.Wrap(cgerrors.KindPrecondition, err, "split rejected by mincut engine")
		}
		cutEdges = result.CutEdges
	} else {
		cutEdges = explicitEdges
	}
	if len(cutEdges) == 0 {
		return EditResult{}, cgerrors.New(cgerrors.KindPrecondition, "split produced an empty cut")
	}

	mutate := func(ctx context.Context, opID uint64, ts int64) (mutationOutcome, error) {
		components := connectedComponentsExcluding(allEdges, terminals, cutEdges)
		var newRoots, newLvl2 []ids.ID
		for _, comp := range components {
			chunk := ids.ChunkCoordOf(minID(comp))
			lvl2, newRoot, err := e.remintChainForGroup(ctx, ts, chunk, comp)
			if err != nil {
				return mutationOutcome{}, err
			}
			newRoots = append(newRoots, newRoot)
			newLvl2 = append(newLvl2, lvl2)
		}

		removed := make([][2]uint64, len(cutEdges))
		for i, p := range cutEdges {
			removed[i] = [2]uint64{uint64(p[0]), uint64(p[1])}
		}
		entry := store.LogEntry{
			OperationID:  opID,
			UserID:       user,
			Actor:        user,
			Timestamp:    ts,
			Kind:         store.OpSplit,
			RemovedEdges: removed,
			OldRootIDs:   []uint64{uint64(root)},
			NewRootIDs:   idsToUint64(newRoots),
			NewLvl2IDs:   idsToUint64(newLvl2),
			RedoOf:       redoOf,
		}
		if err := e.store.AppendLogEntry(ctx, entry); err != nil {
			return mutationOutcome{}, cgerrors.Wrap(cgerrors.KindConflict, err, "appending log entry %d", opID)
		}
		return mutationOutcome{oldRoots: []ids.ID{root}, newRoots: newRoots, newLvl2: newLvl2}, nil
	}

	return e.runEdit(ctx, user, []ids.ID{root}, mutate)
}

// Undo reverses the logged effect of operationID: a merge is undone by
// cutting the edge it added, a split is undone by re-fusing the edges it
// removed. Forbidden on deny-listed tables.
func (e *Engine) Undo(ctx context.Context, user string, operationID uint64) (EditResult, error) {
	if e.cfg.Denies(e.table) {
		return EditResult{}, cgerrors.New(cgerrors.KindBadRequest, "undo is disabled for table %q", e.table)
	}
	entry, err := e.findEntry(ctx, operationID)
	if err != nil {
		return EditResult{}, err
	}
	if undone, err := e.hasLinkedOp(ctx, operationID, true); err != nil {
		return EditResult{}, err
	} else if undone {
		return EditResult{}, cgerrors.New(cgerrors.KindPrecondition, "operation %d was already undone", operationID)
	}

	switch entry.Kind {
	case store.OpMerge:
		return e.undoMerge(ctx, user, entry)
	case store.OpSplit:
		return e.undoSplit(ctx, user, entry)
	default:
		return EditResult{}, cgerrors.New(cgerrors.KindBadRequest, "operation %d is not undoable (kind %s)", operationID, entry.Kind)
	}
}

// Redo re-applies operationID after it was undone.
func (e *Engine) Redo(ctx context.Context, user string, operationID uint64) (EditResult, error) {
	if e.cfg.Denies(e.table) {
		return EditResult{}, cgerrors.New(cgerrors.KindBadRequest, "redo is disabled for table %q", e.table)
	}
	entry, err := e.findEntry(ctx, operationID)
	if err != nil {
		return EditResult{}, err
	}
	undone, err := e.hasLinkedOp(ctx, operationID, true)
	if err != nil {
		return EditResult{}, err
	}
	if !undone {
		return EditResult{}, cgerrors.New(cgerrors.KindPrecondition, "operation %d has not been undone, nothing to redo", operationID)
	}

	switch entry.Kind {
	case store.OpMerge:
		pair := [2]ids.ID{ids.ID(entry.AddedEdges[0][0]), ids.ID(entry.AddedEdges[0][1])}
		return e.addEdges(ctx, user, pair[0], pair[1], operationID)
	case store.OpSplit:
		sources := []ids.ID{ids.ID(entry.RemovedEdges[0][0])}
		sinks := []ids.ID{ids.ID(entry.RemovedEdges[0][1])}
		return e.removeEdges(ctx, user, sources, sinks, idsFromUint64Pairs(entry.RemovedEdges), false, operationID)
	default:
		return EditResult{}, cgerrors.New(cgerrors.KindBadRequest, "operation %d is not redoable (kind %s)", operationID, entry.Kind)
	}
}

// undoMerge cuts the edge a merge added, splitting its new root back apart.
// Mirrors RemoveEdges' non-mincut path directly (rather than calling it)
// so the resulting log entry's Kind is Undo, not Split.
func (e *Engine) undoMerge(ctx context.Context, user string, entry store.LogEntry) (EditResult, error) {
	u, v := ids.ID(entry.AddedEdges[0][0]), ids.ID(entry.AddedEdges[0][1])
	now := time.Now().Unix()
	root, err := e.reader.RootOf(ctx, u, now, 0)
	if err != nil {
		return EditResult{}, cgerrors.Wrap(cgerrors.KindBadRequest, err, "resolving root of %d", u)
	}

	terminals := []ids.ID{u, v}
	cutEdges := [][2]ids.ID{{u, v}}

	mutate := func(ctx context.Context, opID uint64, ts int64) (mutationOutcome, error) {
		allEdges, _, err := e.edgesTouchingAny(ctx, chunksOf(terminals))
		if err != nil {
			return mutationOutcome{}, cgerrors.Wrap(cgerrors.KindInternal, err, "gathering local edges")
		}
		components := connectedComponentsExcluding(allEdges, terminals, cutEdges)
		var newRoots, newLvl2 []ids.ID
		for _, comp := range components {
			chunk := ids.ChunkCoordOf(minID(comp))
			lvl2, newRoot, err := e.remintChainForGroup(ctx, ts, chunk, comp)
			if err != nil {
				return mutationOutcome{}, err
			}
			newRoots = append(newRoots, newRoot)
			newLvl2 = append(newLvl2, lvl2)
		}
		logEntry := store.LogEntry{
			OperationID:  opID,
			UserID:       user,
			Actor:        user,
			Timestamp:    ts,
			Kind:         store.OpUndo,
			RemovedEdges: [][2]uint64{{uint64(u), uint64(v)}},
			UndoOf:       entry.OperationID,
			OldRootIDs:   []uint64{uint64(root)},
			NewRootIDs:   idsToUint64(newRoots),
			NewLvl2IDs:   idsToUint64(newLvl2),
		}
		if err := e.store.AppendLogEntry(ctx, logEntry); err != nil {
			return mutationOutcome{}, cgerrors.Wrap(cgerrors.KindConflict, err, "appending log entry %d", opID)
		}
		return mutationOutcome{oldRoots: []ids.ID{root}, newRoots: newRoots, newLvl2: newLvl2}, nil
	}

	return e.runEdit(ctx, user, []ids.ID{root}, mutate)
}

func (e *Engine) undoSplit(ctx context.Context, user string, entry store.LogEntry) (EditResult, error) {
	pairs := idsFromUint64Pairs(entry.RemovedEdges)
	rootU, err := e.reader.RootOf(ctx, pairs[0][0], time.Now().Unix(), 0)
	if err != nil {
		return EditResult{}, cgerrors.Wrap(cgerrors.KindBadRequest, err, "resolving root of %d", pairs[0][0])
	}
	oldRoots := map[ids.ID]bool{rootU: true}
	for _, p := range pairs {
		for _, n := range p {
			r, err := e.reader.RootOf(ctx, n, time.Now().Unix(), 0)
			if err != nil {
				return EditResult{}, cgerrors.Wrap(cgerrors.KindBadRequest, err, "resolving root of %d", n)
			}
			oldRoots[r] = true
		}
	}
	var lockRoots []ids.ID
	for r := range oldRoots {
		lockRoots = append(lockRoots, r)
	}

	mutate := func(ctx context.Context, opID uint64, ts int64) (mutationOutcome, error) {
		lvl2, newRoot, err := e.mergeMany(ctx, ts, pairs)
		if err != nil {
			return mutationOutcome{}, err
		}
		added := make([][2]uint64, len(pairs))
		for i, p := range pairs {
			added[i] = [2]uint64{uint64(p[0]), uint64(p[1])}
		}
		logEntry := store.LogEntry{
			OperationID: opID,
			UserID:      user,
			Actor:       user,
			Timestamp:   ts,
			Kind:        store.OpUndo,
			AddedEdges:  added,
			UndoOf:      entry.OperationID,
			OldRootIDs:  idsToUint64(dedupSorted(lockRoots)),
			NewRootIDs:  []uint64{uint64(newRoot)},
			NewLvl2IDs:  []uint64{uint64(lvl2)},
		}
		if err := e.store.AppendLogEntry(ctx, logEntry); err != nil {
			return mutationOutcome{}, cgerrors.Wrap(cgerrors.KindConflict, err, "appending log entry %d", opID)
		}
		return mutationOutcome{oldRoots: dedupSorted(lockRoots), newRoots: []ids.ID{newRoot}, newLvl2: []ids.ID{lvl2}}, nil
	}

	return e.runEdit(ctx, user, lockRoots, mutate)
}

// RollbackUser undoes every merge/split targetUser performed, most recent
// first, skipping already-undone entries. Per-operation failures are
// collected rather than aborting the remaining rollback.
func (e *Engine) RollbackUser(ctx context.Context, actor, targetUser string) (map[uint64]int64, error) {
	rows, err := e.store.ReadLogRows(ctx, store.LogFilter{UserID: targetUser})
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.KindInternal, err, "reading log rows for %q", targetUser)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp > rows[j].Timestamp })

	attempted := make(map[uint64]int64)
	var errs []error
	for _, row := range rows {
		if row.Kind != store.OpMerge && row.Kind != store.OpSplit {
			continue
		}
		undone, err := e.hasLinkedOp(ctx, row.OperationID, true)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if undone {
			continue
		}
		attempted[row.OperationID] = row.Timestamp
		if _, err := e.Undo(ctx, actor, row.OperationID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return attempted, errors.Join(errs...)
	}
	return attempted, nil
}

func (e *Engine) findEntry(ctx context.Context, operationID uint64) (store.LogEntry, error) {
	rows, err := e.store.ReadLogRows(ctx, store.LogFilter{OperationIDs: []uint64{operationID}})
	if err != nil {
		return store.LogEntry{}, cgerrors.Wrap(cgerrors.KindInternal, err, "reading operation %d", operationID)
	}
	if len(rows) == 0 {
		return store.LogEntry{}, cgerrors.New(cgerrors.KindNotFound, "operation %d not found", operationID)
	}
	return rows[0], nil
}

// hasLinkedOp reports whether any logged entry points back at operationID
// via UndoOf (wantUndo true) or RedoOf (wantUndo false).
func (e *Engine) hasLinkedOp(ctx context.Context, operationID uint64, wantUndo bool) (bool, error) {
	rows, err := e.store.ReadLogRows(ctx, store.LogFilter{})
	if err != nil {
		return false, cgerrors.Wrap(cgerrors.KindInternal, err, "scanning log for linkage to %d", operationID)
	}
	for _, r := range rows {
		if wantUndo && r.UndoOf == operationID {
			return true, nil
		}
		if !wantUndo && r.RedoOf == operationID {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) edgesTouchingAny(ctx context.Context, chunks []ids.ChunkCoord) ([][2]ids.ID, []float32, error) {
	var edges [][2]ids.ID
	var affs []float32
	seen := make(map[[2]ids.ID]bool)
	for _, c := range chunks {
		es, as, err := e.store.EdgesTouchingChunk(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		for i, p := range es {
			key := sortedIDPair(p[0], p[1])
			if seen[key] {
				continue
			}
			seen[key] = true
			edges = append(edges, p)
			affs = append(affs, as[i])
		}
	}
	return edges, affs, nil
}

func chunksOf(nodes []ids.ID) []ids.ChunkCoord {
	seen := make(map[ids.ChunkCoord]bool)
	var out []ids.ChunkCoord
	for _, n := range nodes {
		c := ids.ChunkCoordOf(n)
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// connectedComponentsExcluding computes connected components of every node
// touched by allEdges or listed in extraNodes, after removing cutEdges.
// A small local union-find, not internal/mincut's: the edit engine's
// notion of a component (seeded by extra singleton terminals) differs
// from the mincut package's narrower cut-extraction use.
func connectedComponentsExcluding(allEdges [][2]ids.ID, extraNodes []ids.ID, cutEdges [][2]ids.ID) [][]ids.ID {
	cut := make(map[[2]ids.ID]bool, len(cutEdges))
	for _, p := range cutEdges {
		cut[sortedIDPair(p[0], p[1])] = true
	}

	parent := make(map[ids.ID]ids.ID)
	var find func(ids.ID) ids.ID
	find = func(x ids.ID) ids.ID {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b ids.ID) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}
	add := func(n ids.ID) {
		if _, ok := parent[n]; !ok {
			parent[n] = n
		}
	}

	for _, n := range extraNodes {
		add(n)
	}
	for _, p := range allEdges {
		add(p[0])
		add(p[1])
		if cut[sortedIDPair(p[0], p[1])] {
			continue
		}
		union(p[0], p[1])
	}

	var nodes []ids.ID
	for n := range parent {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	groups := make(map[ids.ID][]ids.ID)
	var order []ids.ID
	for _, n := range nodes {
		r := find(n)
		if _, ok := groups[r]; !ok {
			order = append(order, r)
		}
		groups[r] = append(groups[r], n)
	}

	out := make([][]ids.ID, 0, len(order))
	for _, r := range order {
		out = append(out, groups[r])
	}
	return out
}

func dedupSorted(nodes []ids.ID) []ids.ID {
	seen := make(map[ids.ID]bool, len(nodes))
	out := make([]ids.ID, 0, len(nodes))
	for _, n := range nodes {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func idsToUint64(nodes []ids.ID) []uint64 {
	out := make([]uint64, len(nodes))
	for i, n := range nodes {
		out[i] = uint64(n)
	}
	return out
}

func idsFromUint64Pairs(pairs [][2]uint64) [][2]ids.ID {
	out := make([][2]ids.ID, len(pairs))
	for i, p := range pairs {
		out[i] = [2]ids.ID{ids.ID(p[0]), ids.ID(p[1])}
	}
	return out
}

func flattenPairs(pairs [][2]ids.ID) []ids.ID {
	out := make([]ids.ID, 0, len(pairs)*2)
	for _, p := range pairs {
		out = append(out, p[0], p[1])
	}
	return out
}

func sortedIDPair(a, b ids.ID) [2]ids.ID {
	if a < b {
		return [2]ids.ID{a, b}
	}
	return [2]ids.ID{b, a}
}

func minID(nodes []ids.ID) ids.ID {
	m := nodes[0]
	for _, n := range nodes[1:] {
		if n < m {
			m = n
		}
	}
	return m
}
