package chunkedgraph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlbrittain/chunkedgraph/internal/config"
	"github.com/dlbrittain/chunkedgraph/internal/ids"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	cfg := config.LoadFromEnv()
	cfg.InMemory = true
	cfg.RetryBaseBackoff = time.Millisecond
	g, err := Open(Options{Table: "test_table", MaxLayer: 4, Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func seedSupervoxel(t *testing.T, g *Graph, chunk ids.ChunkCoord, seq uint32) ids.ID {
	t.Helper()
	sv, err := ids.Mint(1, chunk, seq)
	require.NoError(t, err)
	prev := sv
	for layer := 2; layer <= g.MaxLayer; layer++ {
		next, err := ids.Mint(layer, chunk, seq)
		require.NoError(t, err)
		require.NoError(t, g.store.WriteParent(context.Background(), prev, next, 1))
		prev = next
	}
	return sv
}

func TestOpenRejectsEmptyTable(t *testing.T) {
	_, err := Open(Options{Table: ""})
	require.Error(t, err)
}

func TestMergeAndGetRootRoundTrip(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()
	chunk := ids.ChunkCoord{X: 1, Y: 1, Z: 1}
	sv1 := seedSupervoxel(t, g, chunk, 1)
	sv2 := seedSupervoxel(t, g, chunk, 2)

	result, err := g.Merge(ctx, "alice", sv1, sv2)
	require.NoError(t, err)
	require.Len(t, result.NewRootIDs, 1)

	root, err := g.GetRoot(ctx, sv1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, result.NewRootIDs[0], root)

	roots, err := g.GetRoots(ctx, []ids.ID{sv1, sv2}, 0, false)
	require.NoError(t, err)
	assert.Equal(t, []ids.ID{root, root}, roots)
}

func TestUndoRedoThroughFacade(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()
	chunk := ids.ChunkCoord{X: 2, Y: 2, Z: 2}
	sv1 := seedSupervoxel(t, g, chunk, 1)
	sv2 := seedSupervoxel(t, g, chunk, 2)

	merged, err := g.Merge(ctx, "alice", sv1, sv2)
	require.NoError(t, err)

	undone, err := g.Undo(ctx, "alice", merged.OperationID)
	require.NoError(t, err)
	require.Len(t, undone.NewRootIDs, 2)

	redone, err := g.Redo(ctx, "alice", merged.OperationID)
	require.NoError(t, err)
	require.Len(t, redone.NewRootIDs, 1)
}

func TestChangeLogReportsCommittedOperations(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()
	chunk := ids.ChunkCoord{X: 3, Y: 3, Z: 3}
	sv1 := seedSupervoxel(t, g, chunk, 1)
	sv2 := seedSupervoxel(t, g, chunk, 2)

	merged, err := g.Merge(ctx, "alice", sv1, sv2)
	require.NoError(t, err)
	root := merged.NewRootIDs[0]

	rows, err := g.ChangeLog(ctx, []ids.ID{root}, false)
	require.NoError(t, err)
	require.Len(t, rows[root], 1)
	assert.Equal(t, merged.OperationID, rows[root][0].OperationID)
}

func TestSubscribeReceivesMergeNotification(t *testing.T) {
	g := newTestGraph(t)
	ch, ok := g.Subscribe(4)
	require.True(t, ok)

	ctx := context.Background()
	chunk := ids.ChunkCoord{X: 4, Y: 4, Z: 4}
	sv1 := seedSupervoxel(t, g, chunk, 1)
	sv2 := seedSupervoxel(t, g, chunk, 2)

	merged, err := g.Merge(ctx, "alice", sv1, sv2)
	require.NoError(t, err)

	select {
	case payload := <-ch:
		assert.Equal(t, merged.OperationID, payload.OperationID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for remesh notification")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.Close())
	require.NoError(t, g.Close())

	_, err := g.GetRoot(context.Background(), ids.ID(1), 0, 0)
	require.Error(t, err)
}
