package mincut

import (
	"context"
	"errors"
	"sort"

	"github.com/dlbrittain/chunkedgraph/internal/cgerrors"
	"github.com/dlbrittain/chunkedgraph/internal/ids"
)

// PreviewResult is the split-preview variant's output: the supervoxel
// connected components post-cut, and an IllegalSplit flag set when the
// cut is empty or the disconnection check fails.
type PreviewResult struct {
	SupervoxelCCs [][]ids.ID
	IllegalSplit  bool
}

// Preview runs the same five-step algorithm as Run, but never fails on a
// disconnected terminal set or an empty cut: both conditions are reported
// via IllegalSplit instead, matching the read-only preview contract.
func Preview(ctx context.Context, edges [][2]ids.ID, affs []float32, sources, sinks []ids.ID) (PreviewResult, error) {
	res, err := Run(ctx, edges, affs, sources, sinks)
	if err != nil {
		var cgErr *cgerrors.Error
		if errors.As(err, &cgErr) && cgErr.Kind == cgerrors.KindBadRequest {
			return PreviewResult{IllegalSplit: true}, nil
		}
		return PreviewResult{}, err
	}
	if len(res.CutEdges) == 0 {
		return PreviewResult{IllegalSplit: true, SupervoxelCCs: connectedComponents(edges, nil)}, nil
	}

	cut := make(map[[2]ids.ID]bool, len(res.CutEdges))
	for _, e := range res.CutEdges {
		cut[sortedIDPair(e[0], e[1])] = true
	}
	return PreviewResult{SupervoxelCCs: connectedComponents(edges, cut)}, nil
}

// connectedComponents computes the connected components of the supervoxel
// graph described by edges, skipping any edge present in removed.
func connectedComponents(edges [][2]ids.ID, removed map[[2]ids.ID]bool) [][]ids.ID {
	d := newDSU()
	for _, e := range edges {
		d.add(e[0])
		d.add(e[1])
		if removed != nil && removed[sortedIDPair(e[0], e[1])] {
			continue
		}
		d.union(e[0], e[1])
	}

	nodes := make([]ids.ID, 0, len(d.parent))
	for node := range d.parent {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	groups := make(map[ids.ID][]ids.ID)
	var order []ids.ID
	for _, node := range nodes {
		r := d.find(node)
		if _, ok := groups[r]; !ok {
			order = append(order, r)
		}
		groups[r] = append(groups[r], node)
	}

	out := make([][]ids.ID, 0, len(groups))
	for _, r := range order {
		out = append(out, groups[r])
	}
	return out
}
