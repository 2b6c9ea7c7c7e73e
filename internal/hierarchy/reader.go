// Package hierarchy implements the read side of the chunked graph: root,
// children, and subgraph resolution against a versioned store snapshot.
// No method here mutates state.
package hierarchy

import (
	"context"
	"strconv"
	"strings"

	"github.com/dlbrittain/chunkedgraph/internal/cgerrors"
	"github.com/dlbrittain/chunkedgraph/internal/ids"
	"github.com/dlbrittain/chunkedgraph/internal/store"
)

// Reader resolves hierarchy queries against a Store.
type Reader struct {
	store store.Store
	// MaxLayer is the root layer N for the dataset this reader serves.
	MaxLayer int
}

// New constructs a Reader over s, rooted at maxLayer.
func New(s store.Store, maxLayer int) *Reader {
	return &Reader{store: s, MaxLayer: maxLayer}
}

// RootOf walks the parent chain from node until it reaches stopLayer
// (0 means the dataset's root layer N). Returns cgerrors.ErrNotFound if
// node has no parent fact valid at atTime before reaching stopLayer.
func (r *Reader) RootOf(ctx context.Context, node ids.ID, atTime int64, stopLayer int) (ids.ID, error) {
	if stopLayer == 0 {
		stopLayer = r.MaxLayer
	}
	current := node
	for {
		layer := ids.LayerOf(current)
		if layer >= stopLayer {
			return current, nil
		}
		parent, found, err := r.store.ReadParent(ctx, current, atTime)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, cgerrors.New(cgerrors.KindNotFound, "node %d has no parent fact at or before t=%d", current, atTime)
		}
		current = parent
	}
}

// RootsOf batches RootOf over nodes. If assertRoots is true, every
// resolved id must be at layer == MaxLayer, else cgerrors.ErrInvariant.
func (r *Reader) RootsOf(ctx context.Context, nodes []ids.ID, atTime int64, assertRoots bool) ([]ids.ID, error) {
	out := make([]ids.ID, 0, len(nodes))
	for _, n := range nodes {
		root, err := r.RootOf(ctx, n, atTime, r.MaxLayer)
		if err != nil {
			return nil, err
		}
		if assertRoots && ids.LayerOf(root) != r.MaxLayer {
			return nil, cgerrors.New(cgerrors.KindInvariant, "node %d is not a root at t=%d", n, atTime)
		}
		out = append(out, root)
	}
	return out, nil
}

// ChildrenOf returns node's direct children at atTime; always empty at
// layer 1 (supervoxels have no children).
func (r *Reader) ChildrenOf(ctx context.Context, node ids.ID, atTime int64) ([]ids.ID, error) {
	if ids.LayerOf(node) <= 1 {
		return nil, nil
	}
	return r.store.ChildrenAt(ctx, node, atTime)
}

// BBox is an inclusive-lower, exclusive-upper axis-aligned box in dataset
// voxel units.
type BBox struct {
	X0, X1, Y0, Y1, Z0, Z1 int64
}

// Intersects reports whether bb and chunk's voxel-space box (derived from
// chunkSize) overlap.
func (bb BBox) Intersects(chunk ids.ChunkCoord, chunkSize int64) bool {
	cx0, cy0, cz0 := int64(chunk.X)*chunkSize, int64(chunk.Y)*chunkSize, int64(chunk.Z)*chunkSize
	cx1, cy1, cz1 := cx0+chunkSize, cy0+chunkSize, cz0+chunkSize
	return bb.X0 < cx1 && cx0 < bb.X1 &&
		bb.Y0 < cy1 && cy0 < bb.Y1 &&
		bb.Z0 < cz1 && cz0 < bb.Z1
}

// ParseBBox parses the "x0-x1_y0-y1_z0-z1" encoding.
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 3 {
		return BBox{}, cgerrors.New(cgerrors.KindBadRequest, "malformed bounding box %q", s)
	}
	vals := make([]int64, 0, 6)
	for _, p := range parts {
		range2 := strings.SplitN(p, "-", 2)
		if len(range2) != 2 {
			return BBox{}, cgerrors.New(cgerrors.KindBadRequest, "malformed bounding box %q", s)
		}
		for _, v := range range2 {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return BBox{}, cgerrors.Wrap(cgerrors.KindBadRequest, err, "malformed bounding box %q", s)
			}
			vals = append(vals, n)
		}
	}
	return BBox{X0: vals[0], X1: vals[1], Y0: vals[2], Y1: vals[3], Z0: vals[4], Z1: vals[5]}, nil
}

// SubgraphNodes descends from root, pruning subtrees whose chunk bbox does
// not intersect bbox (a nil bbox means unbounded). If returnLayers is true
// the result is keyed by layer; otherwise it is the flat leaf (layer 1) set.
func (r *Reader) SubgraphNodes(ctx context.Context, root ids.ID, atTime int64, bbox *BBox, chunkSize int64, returnLayers bool) (map[int][]ids.ID, error) {
	result := make(map[int][]ids.ID)
	var walk func(node ids.ID) error
	walk = func(node ids.ID) error {
		if bbox != nil && !bbox.Intersects(ids.ChunkCoordOf(node), chunkSize) {
			return nil
		}
		layer := ids.LayerOf(node)
		result[layer] = append(result[layer], node)
		children, err := r.ChildrenOf(ctx, node, atTime)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	if !returnLayers {
		return map[int][]ids.ID{1: result[1]}, nil
	}
	return result, nil
}

// SubgraphEdges returns the atomic edges (from the Local Graph Builder's
// perspective) whose endpoints both lie in root's subgraph at atTime.
func (r *Reader) SubgraphEdges(ctx context.Context, root ids.ID, atTime int64, bbox *BBox, chunkSize int64, edgeSource func(ctx context.Context, chunk ids.ChunkCoord) ([][2]ids.ID, []float32, error)) ([][2]ids.ID, []float32, error) {
	nodes, err := r.SubgraphNodes(ctx, root, atTime, bbox, chunkSize, false)
	if err != nil {
		return nil, nil, err
	}
	leaves := make(map[ids.ID]bool, len(nodes[1]))
	seenChunks := make(map[ids.ChunkCoord]bool)
	for _, l := range nodes[1] {
		leaves[l] = true
	}

	var edges [][2]ids.ID
	var affs []float32
	for _, l := range nodes[1] {
		chunk := ids.ChunkCoordOf(l)
		if seenChunks[chunk] {
			continue
		}
		seenChunks[chunk] = true
		chunkEdges, chunkAffs, err := edgeSource(ctx, chunk)
		if err != nil {
			return nil, nil, err
		}
		for i, e := range chunkEdges {
			if leaves[e[0]] && leaves[e[1]] {
				edges = append(edges, e)
				affs = append(affs, chunkAffs[i])
			}
		}
	}
	return edges, affs, nil
}
