// Package history implements the chunked graph's read-only lineage and
// changelog queries, built directly on
// Store.ReadLogRows. The operation log is the only source of truth here;
// every query in this package is a scan-and-filter over it, which is
// acceptable at this module's scale (the same trade-off internal/edit
// makes for Undo/Redo linkage lookups).
package history

import (
	"context"
	"sort"

	"github.com/dlbrittain/chunkedgraph/internal/cgerrors"
	"github.com/dlbrittain/chunkedgraph/internal/ids"
	"github.com/dlbrittain/chunkedgraph/internal/store"
)

// History answers lineage and changelog queries against a Store.
type History struct {
	store store.Store
}

// New constructs a History over s.
func New(s store.Store) *History {
	return &History{store: s}
}

// ReadLogRows returns log entries at or after startTime, restricted to
// operationIDs if non-empty, ordered by operation_id ascending.
func (h *History) ReadLogRows(ctx context.Context, startTime int64, operationIDs []uint64) ([]store.LogEntry, error) {
	rows, err := h.store.ReadLogRows(ctx, store.LogFilter{StartTime: startTime, OperationIDs: operationIDs})
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.KindInternal, err, "reading log rows")
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].OperationID < rows[j].OperationID })
	return rows, nil
}

// LineageEdge is one "root A produced root B at time t via operation_id"
// fact.
type LineageEdge struct {
	From        ids.ID
	To          ids.ID
	OperationID uint64
	Timestamp   int64
}

// LineageGraph is a DAG over root ids.
type LineageGraph struct {
	Nodes []ids.ID
	Edges []LineageEdge
}

// LineageGraph returns the DAG of roots reachable from the given roots by
// walking backward to ancestors valid since pastT and forward to
// descendants valid up to futureT.
func (h *History) LineageGraph(ctx context.Context, roots []ids.ID, pastT, futureT int64) (LineageGraph, error) {
	idx, err := h.buildIndex(ctx)
	if err != nil {
		return LineageGraph{}, err
	}

	nodes := make(map[ids.ID]bool)
	var edges []LineageEdge
	seenEdge := make(map[uint64]bool)

	for _, r := range roots {
		nodes[r] = true
		walkBackward(idx, r, pastT, nodes, &edges, seenEdge)
		walkForward(idx, r, futureT, nodes, &edges, seenEdge)
	}

	out := LineageGraph{Edges: edges}
	for n := range nodes {
		out.Nodes = append(out.Nodes, n)
	}
	sort.Slice(out.Nodes, func(i, j int) bool { return out.Nodes[i] < out.Nodes[j] })
	sort.Slice(out.Edges, func(i, j int) bool { return out.Edges[i].OperationID < out.Edges[j].OperationID })
	return out, nil
}

// PastFutureIDMapping reports, per input root, its ancestor and
// descendant root sets within [pastT, futureT].
type PastFutureIDMapping struct {
	Ancestors   map[ids.ID][]ids.ID
	Descendants map[ids.ID][]ids.ID
}

// PastFutureIDMapping computes PastFutureIDMapping for roots.
func (h *History) PastFutureIDMapping(ctx context.Context, roots []ids.ID, pastT, futureT int64) (PastFutureIDMapping, error) {
	idx, err := h.buildIndex(ctx)
	if err != nil {
		return PastFutureIDMapping{}, err
	}
	out := PastFutureIDMapping{Ancestors: map[ids.ID][]ids.ID{}, Descendants: map[ids.ID][]ids.ID{}}
	for _, r := range roots {
		ancestors := make(map[ids.ID]bool)
		descendants := make(map[ids.ID]bool)
		var edges []LineageEdge
		seen := make(map[uint64]bool)
		walkBackward(idx, r, pastT, ancestors, &edges, seen)
		walkForward(idx, r, futureT, descendants, &edges, seen)
		delete(ancestors, r)
		delete(descendants, r)
		out.Ancestors[r] = sortedIDs(ancestors)
		out.Descendants[r] = sortedIDs(descendants)
	}
	return out, nil
}

// ChangelogRow is one row of a per-root tabular changelog.
type ChangelogRow struct {
	OperationID uint64
	Timestamp   int64
	UserID      string
	Kind        store.OperationKind
}

// TabularChangelogs returns, per root, every operation that produced or
// consumed it, oldest first. If filtered, Undo/Redo meta-operations are
// excluded and only primary merge/split edits are reported.
func (h *History) TabularChangelogs(ctx context.Context, roots []ids.ID, filtered bool) (map[ids.ID][]ChangelogRow, error) {
	rows, err := h.store.ReadLogRows(ctx, store.LogFilter{})
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.KindInternal, err, "reading log rows")
	}
	wanted := make(map[ids.ID]bool, len(roots))
	for _, r := range roots {
		wanted[r] = true
	}

	out := make(map[ids.ID][]ChangelogRow, len(roots))
	for _, entry := range rows {
		if filtered && (entry.Kind == store.OpUndo || entry.Kind == store.OpRedo || entry.RedoOf != 0) {
			continue
		}
		touched := touchedRoots(entry)
		for _, r := range touched {
			if !wanted[r] {
				continue
			}
			out[r] = append(out[r], ChangelogRow{
				OperationID: entry.OperationID,
				Timestamp:   entry.Timestamp,
				UserID:      entry.UserID,
				Kind:        entry.Kind,
			})
		}
	}
	for r := range out {
		sort.Slice(out[r], func(i, j int) bool { return out[r][i].Timestamp < out[r][j].Timestamp })
	}
	return out, nil
}

// LastEditTimestamp returns the max timestamp of any operation touching
// root, or 0 if none.
func (h *History) LastEditTimestamp(ctx context.Context, root ids.ID) (int64, error) {
	rows, err := h.store.ReadLogRows(ctx, store.LogFilter{})
	if err != nil {
		return 0, cgerrors.Wrap(cgerrors.KindInternal, err, "reading log rows")
	}
	var max int64
	for _, entry := range rows {
		for _, r := range touchedRoots(entry) {
			if r == root && entry.Timestamp > max {
				max = entry.Timestamp
			}
		}
	}
	return max, nil
}

// IsLatestRoots reports, per input id, whether it has no descendant at or
// before atTime (i.e. it is still a current root as of that time).
func (h *History) IsLatestRoots(ctx context.Context, rootIDs []ids.ID, atTime int64) (map[ids.ID]bool, error) {
	rows, err := h.store.ReadLogRows(ctx, store.LogFilter{})
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.KindInternal, err, "reading log rows")
	}
	superseded := make(map[ids.ID]bool)
	for _, entry := range rows {
		if entry.Timestamp > atTime {
			continue
		}
		for _, old := range entry.OldRootIDs {
			superseded[ids.ID(old)] = true
		}
	}
	out := make(map[ids.ID]bool, len(rootIDs))
	for _, r := range rootIDs {
		out[r] = !superseded[r]
	}
	return out, nil
}

// index is an in-memory adjacency view of the operation log, built once
// per query so the BFS walks below don't re-scan the store.
type index struct {
	byNewRoot map[ids.ID][]store.LogEntry
	byOldRoot map[ids.ID][]store.LogEntry
}

func (h *History) buildIndex(ctx context.Context) (*index, error) {
	rows, err := h.store.ReadLogRows(ctx, store.LogFilter{})
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.KindInternal, err, "reading log rows")
	}
	idx := &index{byNewRoot: map[ids.ID][]store.LogEntry{}, byOldRoot: map[ids.ID][]store.LogEntry{}}
	for _, entry := range rows {
		for _, n := range entry.NewRootIDs {
			idx.byNewRoot[ids.ID(n)] = append(idx.byNewRoot[ids.ID(n)], entry)
		}
		for _, o := range entry.OldRootIDs {
			idx.byOldRoot[ids.ID(o)] = append(idx.byOldRoot[ids.ID(o)], entry)
		}
	}
	return idx, nil
}

func walkBackward(idx *index, start ids.ID, pastT int64, nodes map[ids.ID]bool, edges *[]LineageEdge, seenEdge map[uint64]bool) {
	queue := []ids.ID{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, entry := range idx.byNewRoot[cur] {
			if entry.Timestamp < pastT {
				continue
			}
			for _, o := range entry.OldRootIDs {
				old := ids.ID(o)
				if !seenEdge[entry.OperationID] {
					*edges = append(*edges, LineageEdge{From: old, To: cur, OperationID: entry.OperationID, Timestamp: entry.Timestamp})
				}
				if !nodes[old] {
					nodes[old] = true
					queue = append(queue, old)
				}
			}
			seenEdge[entry.OperationID] = true
		}
	}
}

func walkForward(idx *index, start ids.ID, futureT int64, nodes map[ids.ID]bool, edges *[]LineageEdge, seenEdge map[uint64]bool) {
	queue := []ids.ID{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, entry := range idx.byOldRoot[cur] {
			if entry.Timestamp > futureT {
				continue
			}
			for _, n := range entry.NewRootIDs {
				next := ids.ID(n)
				if !seenEdge[entry.OperationID] {
					*edges = append(*edges, LineageEdge{From: cur, To: next, OperationID: entry.OperationID, Timestamp: entry.Timestamp})
				}
				if !nodes[next] {
					nodes[next] = true
					queue = append(queue, next)
				}
			}
			seenEdge[entry.OperationID] = true
		}
	}
}

func touchedRoots(entry store.LogEntry) []ids.ID {
	out := make([]ids.ID, 0, len(entry.OldRootIDs)+len(entry.NewRootIDs))
	for _, r := range entry.OldRootIDs {
		out = append(out, ids.ID(r))
	}
	for _, r := range entry.NewRootIDs {
		out = append(out, ids.ID(r))
	}
	return out
}

func sortedIDs(set map[ids.ID]bool) []ids.ID {
	out := make([]ids.ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
