package mincut

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlbrittain/chunkedgraph/internal/ids"
)

func TestPreviewReturnsSupervoxelCCsAfterCut(t *testing.T) {
	n := chain(t, 4)
	edges := [][2]ids.ID{{n[0], n[1]}, {n[1], n[2]}, {n[2], n[3]}}
	affs := []float32{10, 1, 10}

	res, err := Preview(context.Background(), edges, affs, []ids.ID{n[0]}, []ids.ID{n[3]})
	require.NoError(t, err)
	assert.False(t, res.IllegalSplit)
	require.Len(t, res.SupervoxelCCs, 2)

	var sizes []int
	for _, cc := range res.SupervoxelCCs {
		sizes = append(sizes, len(cc))
	}
	assert.ElementsMatch(t, []int{2, 2}, sizes)
}

func TestPreviewFlagsDisconnectedTerminalsAsIllegalSplit(t *testing.T) {
	a := chain(t, 2)
	chunk := ids.ChunkCoord{X: 1}
	c1, _ := ids.Mint(1, chunk, 1)
	c2, _ := ids.Mint(1, chunk, 2)

	edges := [][2]ids.ID{{a[0], a[1]}, {c1, c2}}
	affs := []float32{1, 1}

	res, err := Preview(context.Background(), edges, affs, []ids.ID{a[0]}, []ids.ID{c2})
	require.NoError(t, err)
	assert.True(t, res.IllegalSplit)
}
