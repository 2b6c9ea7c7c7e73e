package edit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlbrittain/chunkedgraph/internal/cgerrors"
	"github.com/dlbrittain/chunkedgraph/internal/config"
	"github.com/dlbrittain/chunkedgraph/internal/hierarchy"
	"github.com/dlbrittain/chunkedgraph/internal/ids"
	"github.com/dlbrittain/chunkedgraph/internal/remesh"
	"github.com/dlbrittain/chunkedgraph/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	s, err := store.NewBadgerStoreInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	reader := hierarchy.New(s, 4)
	cfg := config.LoadFromEnv()
	cfg.RetryBaseBackoff = time.Millisecond
	pub := remesh.NewInMemoryPublisher(cfg.EditsExchange, nil)
	return New(s, reader, pub, cfg, "test_table", 4), s
}

// seedSupervoxel writes a single-node chain from layer 1 up to layer 4 so
// RootOf resolves cleanly before any edit touches it.
func seedSupervoxel(t *testing.T, s store.Store, chunk ids.ChunkCoord, seq uint32) ids.ID {
	t.Helper()
	sv, err := ids.Mint(1, chunk, seq)
	require.NoError(t, err)
	prev := sv
	for layer := 2; layer <= 4; layer++ {
		next, err := ids.Mint(layer, chunk, seq)
		require.NoError(t, err)
		require.NoError(t, s.WriteParent(context.Background(), prev, next, 1))
		prev = next
	}
	return sv
}

func TestAddEdgesMergesTwoSupervoxelsIntoOneRoot(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	chunk := ids.ChunkCoord{X: 1, Y: 1, Z: 1}

	sv1 := seedSupervoxel(t, s, chunk, 1)
	sv2 := seedSupervoxel(t, s, chunk, 2)

	result, err := e.AddEdges(ctx, "alice", sv1, sv2)
	require.NoError(t, err)
	assert.NotZero(t, result.OperationID)
	assert.Len(t, result.NewRootIDs, 1)
	assert.Len(t, result.NewLvl2IDs, 1)
	assert.Len(t, result.OldRootIDs, 2)

	rootU, err := e.reader.RootOf(ctx, sv1, time.Now().Unix(), 0)
	require.NoError(t, err)
	rootV, err := e.reader.RootOf(ctx, sv2, time.Now().Unix(), 0)
	require.NoError(t, err)
	assert.Equal(t, rootU, rootV)
	assert.Equal(t, result.NewRootIDs[0], rootU)
}

func TestAddEdgesRejectsIdenticalEndpoints(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	sv := seedSupervoxel(t, s, ids.ChunkCoord{X: 0, Y: 0, Z: 0}, 1)

	_, err := e.AddEdges(ctx, "alice", sv, sv)
	require.Error(t, err)
	assert.True(t, cgerrors.Is(err, cgerrors.KindBadRequest))
}

func TestAddEdgesRejectsEndpointsTooFarApart(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	sv1 := seedSupervoxel(t, s, ids.ChunkCoord{X: 0, Y: 0, Z: 0}, 1)
	sv2 := seedSupervoxel(t, s, ids.ChunkCoord{X: 10, Y: 0, Z: 0}, 1)

	_, err := e.AddEdges(ctx, "alice", sv1, sv2)
	require.Error(t, err)
	assert.True(t, cgerrors.Is(err, cgerrors.KindBadRequest))
}

func TestRemoveEdgesSplitsARootBackApart(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	chunk := ids.ChunkCoord{X: 2, Y: 2, Z: 2}
	sv1 := seedSupervoxel(t, s, chunk, 1)
	sv2 := seedSupervoxel(t, s, chunk, 2)

	_, err := e.AddEdges(ctx, "alice", sv1, sv2)
	require.NoError(t, err)

	result, err := e.RemoveEdges(ctx, "alice", []ids.ID{sv1}, []ids.ID{sv2}, [][2]ids.ID{{sv1, sv2}}, false)
	require.NoError(t, err)
	require.Len(t, result.NewRootIDs, 2)

	rootU, err := e.reader.RootOf(ctx, sv1, time.Now().Unix(), 0)
	require.NoError(t, err)
	rootV, err := e.reader.RootOf(ctx, sv2, time.Now().Unix(), 0)
	require.NoError(t, err)
	assert.NotEqual(t, rootU, rootV)
}

func TestRemoveEdgesRejectsEmptyTerminals(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.RemoveEdges(context.Background(), "alice", nil, nil, nil, false)
	require.Error(t, err)
	assert.True(t, cgerrors.Is(err, cgerrors.KindBadRequest))
}

func TestUndoMergeRestoresOriginalRoots(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	chunk := ids.ChunkCoord{X: 3, Y: 3, Z: 3}
	sv1 := seedSupervoxel(t, s, chunk, 1)
	sv2 := seedSupervoxel(t, s, chunk, 2)

	merged, err := e.AddEdges(ctx, "alice", sv1, sv2)
	require.NoError(t, err)

	undone, err := e.Undo(ctx, "alice", merged.OperationID)
	require.NoError(t, err)
	require.Len(t, undone.NewRootIDs, 2)

	rootU, err := e.reader.RootOf(ctx, sv1, time.Now().Unix(), 0)
	require.NoError(t, err)
	rootV, err := e.reader.RootOf(ctx, sv2, time.Now().Unix(), 0)
	require.NoError(t, err)
	assert.NotEqual(t, rootU, rootV)
}

func TestUndoRejectsAlreadyUndoneOperation(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	chunk := ids.ChunkCoord{X: 4, Y: 4, Z: 4}
	sv1 := seedSupervoxel(t, s, chunk, 1)
	sv2 := seedSupervoxel(t, s, chunk, 2)

	merged, err := e.AddEdges(ctx, "alice", sv1, sv2)
	require.NoError(t, err)
	_, err = e.Undo(ctx, "alice", merged.OperationID)
	require.NoError(t, err)

	_, err = e.Undo(ctx, "alice", merged.OperationID)
	require.Error(t, err)
	assert.True(t, cgerrors.Is(err, cgerrors.KindPrecondition))
}

func TestRedoReappliesAnUndoneMerge(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	chunk := ids.ChunkCoord{X: 5, Y: 5, Z: 5}
	sv1 := seedSupervoxel(t, s, chunk, 1)
	sv2 := seedSupervoxel(t, s, chunk, 2)

	merged, err := e.AddEdges(ctx, "alice", sv1, sv2)
	require.NoError(t, err)
	_, err = e.Undo(ctx, "alice", merged.OperationID)
	require.NoError(t, err)

	redone, err := e.Redo(ctx, "alice", merged.OperationID)
	require.NoError(t, err)
	require.Len(t, redone.NewRootIDs, 1)

	rootU, err := e.reader.RootOf(ctx, sv1, time.Now().Unix(), 0)
	require.NoError(t, err)
	rootV, err := e.reader.RootOf(ctx, sv2, time.Now().Unix(), 0)
	require.NoError(t, err)
	assert.Equal(t, rootU, rootV)
}

func TestUndoRedoForbiddenOnDenyListedTable(t *testing.T) {
	s, err := store.NewBadgerStoreInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	reader := hierarchy.New(s, 4)
	cfg := config.LoadFromEnv()
	pub := remesh.NewInMemoryPublisher(cfg.EditsExchange, nil)
	e := New(s, reader, pub, cfg, "fly_v26", 4)

	_, err = e.Undo(context.Background(), "alice", 1)
	require.Error(t, err)
	assert.True(t, cgerrors.Is(err, cgerrors.KindBadRequest))

	_, err = e.Redo(context.Background(), "alice", 1)
	require.Error(t, err)
	assert.True(t, cgerrors.Is(err, cgerrors.KindBadRequest))
}

func TestRollbackUserUndoesEveryOperationMostRecentFirst(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	chunkA := ids.ChunkCoord{X: 6, Y: 6, Z: 6}
	a1 := seedSupervoxel(t, s, chunkA, 1)
	a2 := seedSupervoxel(t, s, chunkA, 2)
	_, err := e.AddEdges(ctx, "bob", a1, a2)
	require.NoError(t, err)

	chunkB := ids.ChunkCoord{X: 7, Y: 7, Z: 7}
	b1 := seedSupervoxel(t, s, chunkB, 1)
	b2 := seedSupervoxel(t, s, chunkB, 2)
	_, err = e.AddEdges(ctx, "bob", b1, b2)
	require.NoError(t, err)

	attempted, err := e.RollbackUser(ctx, "admin", "bob")
	require.NoError(t, err)
	assert.Len(t, attempted, 2)

	rootA1, err := e.reader.RootOf(ctx, a1, time.Now().Unix(), 0)
	require.NoError(t, err)
	rootA2, err := e.reader.RootOf(ctx, a2, time.Now().Unix(), 0)
	require.NoError(t, err)
	assert.NotEqual(t, rootA1, rootA2)

	rootB1, err := e.reader.RootOf(ctx, b1, time.Now().Unix(), 0)
	require.NoError(t, err)
	rootB2, err := e.reader.RootOf(ctx, b2, time.Now().Unix(), 0)
	require.NoError(t, err)
	assert.NotEqual(t, rootB1, rootB2)
}
