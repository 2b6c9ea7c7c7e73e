package mincut

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlbrittain/chunkedgraph/internal/ids"
)

func chain(t *testing.T, n int) []ids.ID {
	t.Helper()
	chunk := ids.ChunkCoord{}
	out := make([]ids.ID, n)
	for i := 0; i < n; i++ {
		id, err := ids.Mint(1, chunk, uint32(i+1))
		require.NoError(t, err)
		out[i] = id
	}
	return out
}

func TestRunEmptyEdgesShortCircuits(t *testing.T) {
	res, err := Run(context.Background(), nil, nil, []ids.ID{1}, []ids.ID{2})
	require.NoError(t, err)
	assert.Empty(t, res.CutEdges)
}

func TestRunRejectsNodeInBothSourcesAndSinks(t *testing.T) {
	nodes := chain(t, 2)
	edges := [][2]ids.ID{{nodes[0], nodes[1]}}
	affs := []float32{1}
	_, err := Run(context.Background(), edges, affs, []ids.ID{nodes[0]}, []ids.ID{nodes[0]})
	assert.Error(t, err)
}

func TestRunRejectsDisconnectedTerminals(t *testing.T) {
	a := chain(t, 2) // component 1
	chunk := ids.ChunkCoord{X: 1}
	c1, _ := ids.Mint(1, chunk, 1)
	c2, _ := ids.Mint(1, chunk, 2)

	edges := [][2]ids.ID{{a[0], a[1]}, {c1, c2}}
	affs := []float32{1, 1}

	_, err := Run(context.Background(), edges, affs, []ids.ID{a[0]}, []ids.ID{c2})
	assert.Error(t, err)
}

// TestRunFindsMinimumCapacityCutOnAChain builds A-B-C-D with weights
// 10, 1, 10 and asserts the single minimum-capacity edge (B-C) is the cut.
func TestRunFindsMinimumCapacityCutOnAChain(t *testing.T) {
	n := chain(t, 4)
	edges := [][2]ids.ID{{n[0], n[1]}, {n[1], n[2]}, {n[2], n[3]}}
	affs := []float32{10, 1, 10}

	res, err := Run(context.Background(), edges, affs, []ids.ID{n[0]}, []ids.ID{n[3]})
	require.NoError(t, err)
	require.Len(t, res.CutEdges, 1)
	got := sortedIDPair(res.CutEdges[0][0], res.CutEdges[0][1])
	want := sortedIDPair(n[1], n[2])
	assert.Equal(t, want, got)
	assert.InDelta(t, 1.0, res.MaxFlow, 1e-6)
}

// TestRunCoalescesCrossChunkEdgesBeforeCutting verifies that two
// supervoxels joined by a +Inf edge are fused into a single representative,
// so the mincut never proposes severing that link.
func TestRunCoalescesCrossChunkEdgesBeforeCutting(t *testing.T) {
	n := chain(t, 4)
	edges := [][2]ids.ID{
		{n[0], n[1]},
		{n[1], n[2]},
		{n[2], n[3]},
	}
	affs := []float32{float32(math.Inf(1)), 1, 10}

	res, err := Run(context.Background(), edges, affs, []ids.ID{n[0]}, []ids.ID{n[3]})
	require.NoError(t, err)
	require.Len(t, res.CutEdges, 1)
	got := sortedIDPair(res.CutEdges[0][0], res.CutEdges[0][1])
	want := sortedIDPair(n[1], n[2])
	assert.Equal(t, want, got)
}

// TestRunFusesMultipleSourcesAndSinks checks a diamond graph with two
// sources and two sinks: A,B -> C -> D,E, with weight 5 on the A-C and
// B-C edges and weight 1 on the bottleneck C-D and C-E edges, so the cut
// must be C's two outgoing edges, never cutting inside the terminal sets.
func TestRunFusesMultipleSourcesAndSinks(t *testing.T) {
	chunk := ids.ChunkCoord{}
	a, _ := ids.Mint(1, chunk, 1)
	b, _ := ids.Mint(1, chunk, 2)
	c, _ := ids.Mint(1, chunk, 3)
	d, _ := ids.Mint(1, chunk, 4)
	e, _ := ids.Mint(1, chunk, 5)

	edges := [][2]ids.ID{{a, c}, {b, c}, {c, d}, {c, e}}
	affs := []float32{5, 5, 1, 1}

	res, err := Run(context.Background(), edges, affs, []ids.ID{a, b}, []ids.ID{d, e})
	require.NoError(t, err)
	require.Len(t, res.CutEdges, 2)
	for _, cut := range res.CutEdges {
		pair := sortedIDPair(cut[0], cut[1])
		isCD := pair == sortedIDPair(c, d)
		isCE := pair == sortedIDPair(c, e)
		assert.True(t, isCD || isCE, "unexpected cut edge %v", pair)
	}
}
