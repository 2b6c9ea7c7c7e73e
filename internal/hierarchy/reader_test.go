package hierarchy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlbrittain/chunkedgraph/internal/ids"
	"github.com/dlbrittain/chunkedgraph/internal/store"
)

func newTestStore(t *testing.T) *store.BadgerStore {
	t.Helper()
	s, err := store.NewBadgerStoreInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mint(t *testing.T, layer int, chunk ids.ChunkCoord, seq uint32) ids.ID {
	t.Helper()
	id, err := ids.Mint(layer, chunk, seq)
	require.NoError(t, err)
	return id
}

func TestRootOfWalksToMaxLayer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chunk := ids.ChunkCoord{}

	sv := mint(t, 1, chunk, 1)
	l2 := mint(t, 2, chunk, 1)
	root := mint(t, 3, chunk, 1)

	require.NoError(t, s.WriteParent(ctx, sv, l2, 10))
	require.NoError(t, s.WriteParent(ctx, l2, root, 10))

	r := New(s, 3)
	got, err := r.RootOf(ctx, sv, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestRootOfNotFoundWhenChainIncomplete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chunk := ids.ChunkCoord{}
	sv := mint(t, 1, chunk, 1)

	r := New(s, 3)
	_, err := r.RootOf(ctx, sv, 20, 0)
	assert.Error(t, err)
}

func TestRootsOfAssertRootsRejectsNonRoot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chunk := ids.ChunkCoord{}

	sv := mint(t, 1, chunk, 1)
	l2 := mint(t, 2, chunk, 1) // stops at layer 2, not maxLayer 3

	require.NoError(t, s.WriteParent(ctx, sv, l2, 10))

	r := New(s, 3)
	_, err := r.RootsOf(ctx, []ids.ID{sv}, 20, true)
	assert.Error(t, err)
}

func TestChildrenOfEmptyAtLayerOne(t *testing.T) {
	s := newTestStore(t)
	r := New(s, 3)
	sv := mint(t, 1, ids.ChunkCoord{}, 1)
	children, err := r.ChildrenOf(context.Background(), sv, 0)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestParseBBox(t *testing.T) {
	bb, err := ParseBBox("0-10_0-10_0-5")
	require.NoError(t, err)
	assert.Equal(t, BBox{X0: 0, X1: 10, Y0: 0, Y1: 10, Z0: 0, Z1: 5}, bb)

	_, err = ParseBBox("garbage")
	assert.Error(t, err)
}

func TestBBoxIntersects(t *testing.T) {
	bb := BBox{X0: 0, X1: 100, Y0: 0, Y1: 100, Z0: 0, Z1: 100}
	inside := ids.ChunkCoord{X: 0, Y: 0, Z: 0}
	outside := ids.ChunkCoord{X: 10, Y: 10, Z: 10}

	assert.True(t, bb.Intersects(inside, 50))
	assert.False(t, bb.Intersects(outside, 50))
}

func TestSubgraphNodesPrunesOutsideBBox(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root := mint(t, 2, ids.ChunkCoord{X: 0}, 1)
	childIn := mint(t, 1, ids.ChunkCoord{X: 0}, 1)
	childOut := mint(t, 1, ids.ChunkCoord{X: 9}, 1)

	require.NoError(t, s.WriteParent(ctx, childIn, root, 5))
	require.NoError(t, s.WriteParent(ctx, childOut, root, 5))

	r := New(s, 2)
	bbox := BBox{X0: 0, X1: 1, Y0: 0, Y1: 1000, Z0: 0, Z1: 1000}
	result, err := r.SubgraphNodes(ctx, root, 10, &bbox, 1, true)
	require.NoError(t, err)

	assert.Contains(t, result[1], childIn)
	assert.NotContains(t, result[1], childOut)
}
