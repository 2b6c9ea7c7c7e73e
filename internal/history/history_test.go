package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlbrittain/chunkedgraph/internal/ids"
	"github.com/dlbrittain/chunkedgraph/internal/store"
)

func seedEntry(t *testing.T, s store.Store, opID uint64, user string, ts int64, kind store.OperationKind, oldRoots, newRoots []uint64) {
	t.Helper()
	require.NoError(t, s.AppendLogEntry(context.Background(), store.LogEntry{
		OperationID: opID,
		UserID:      user,
		Actor:       user,
		Timestamp:   ts,
		Kind:        kind,
		OldRootIDs:  oldRoots,
		NewRootIDs:  newRoots,
	}))
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewBadgerStoreInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// 100 -> 200 (op 1, t=10); 200 -> 300 (op 2, t=20)
const (
	root100 = ids.ID(100)
	root200 = ids.ID(200)
	root300 = ids.ID(300)
)

func TestLineageGraphWalksBothDirections(t *testing.T) {
	s := newTestStore(t)
	seedEntry(t, s, 1, "alice", 10, store.OpMerge, []uint64{100}, []uint64{200})
	seedEntry(t, s, 2, "alice", 20, store.OpMerge, []uint64{200}, []uint64{300})

	h := New(s)
	g, err := h.LineageGraph(context.Background(), []ids.ID{root200}, 0, 100)
	require.NoError(t, err)
	assert.Contains(t, g.Nodes, root100)
	assert.Contains(t, g.Nodes, root300)
	require.Len(t, g.Edges, 2)
}

func TestPastFutureIDMapping(t *testing.T) {
	s := newTestStore(t)
	seedEntry(t, s, 1, "alice", 10, store.OpMerge, []uint64{100}, []uint64{200})
	seedEntry(t, s, 2, "alice", 20, store.OpMerge, []uint64{200}, []uint64{300})

	h := New(s)
	mapping, err := h.PastFutureIDMapping(context.Background(), []ids.ID{root200}, 0, 100)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ids.ID{root100}, mapping.Ancestors[root200])
	assert.ElementsMatch(t, []ids.ID{root300}, mapping.Descendants[root200])
}

func TestTabularChangelogsFiltersUndoRedo(t *testing.T) {
	s := newTestStore(t)
	seedEntry(t, s, 1, "alice", 10, store.OpMerge, []uint64{100}, []uint64{200})
	seedEntry(t, s, 2, "alice", 20, store.OpUndo, []uint64{200}, []uint64{100})

	h := New(s)
	all, err := h.TabularChangelogs(context.Background(), []ids.ID{root200}, false)
	require.NoError(t, err)
	assert.Len(t, all[root200], 2)

	filtered, err := h.TabularChangelogs(context.Background(), []ids.ID{root200}, true)
	require.NoError(t, err)
	assert.Len(t, filtered[root200], 1)
}

func TestLastEditTimestampReturnsMax(t *testing.T) {
	s := newTestStore(t)
	seedEntry(t, s, 1, "alice", 10, store.OpMerge, []uint64{100}, []uint64{200})
	seedEntry(t, s, 2, "alice", 50, store.OpUndo, []uint64{200}, []uint64{100})

	h := New(s)
	ts, err := h.LastEditTimestamp(context.Background(), root200)
	require.NoError(t, err)
	assert.Equal(t, int64(50), ts)
}

func TestIsLatestRootsDetectsSupersededRoot(t *testing.T) {
	s := newTestStore(t)
	seedEntry(t, s, 1, "alice", 10, store.OpMerge, []uint64{100}, []uint64{200})

	h := New(s)
	latest, err := h.IsLatestRoots(context.Background(), []ids.ID{root100, root200}, 100)
	require.NoError(t, err)
	assert.False(t, latest[root100])
	assert.True(t, latest[root200])
}
