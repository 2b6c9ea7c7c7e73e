package localgraph

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlbrittain/chunkedgraph/internal/hierarchy"
	"github.com/dlbrittain/chunkedgraph/internal/ids"
	"github.com/dlbrittain/chunkedgraph/internal/store"
)

func TestBuildCollectsWeightedAndCrossChunkEdges(t *testing.T) {
	s, err := store.NewBadgerStoreInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	chunk := ids.ChunkCoord{X: 0, Y: 0, Z: 0}
	sv1, _ := ids.Mint(1, chunk, 1)
	sv2, _ := ids.Mint(1, chunk, 2)
	root, _ := ids.Mint(2, chunk, 1)

	require.NoError(t, s.WriteParent(ctx, sv1, root, 1))
	require.NoError(t, s.WriteParent(ctx, sv2, root, 1))
	require.NoError(t, s.WriteAtomicEdge(ctx, sv1, sv2, float32(math.Inf(1))))

	reader := hierarchy.New(s, 2)
	b := New(s, reader, 1000)

	bbox := hierarchy.BBox{X0: 0, X1: 1, Y0: 0, Y1: 1, Z0: 0, Z1: 1}
	edges, affs, err := b.WithDefaultMargin(ctx, root, 10, bbox)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.True(t, math.IsInf(float64(affs[0]), 1))
}
