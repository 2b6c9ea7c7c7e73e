// Package localgraph materializes the weighted atomic edge list a mincut
// or split-preview request operates on.
package localgraph

import (
	"context"

	"github.com/dlbrittain/chunkedgraph/internal/hierarchy"
	"github.com/dlbrittain/chunkedgraph/internal/ids"
	"github.com/dlbrittain/chunkedgraph/internal/store"
)

// DefaultMarginX, DefaultMarginY, DefaultMarginZ are the split-preview
// bounding-box margins in dataset units (240, 240, 24).
const (
	DefaultMarginX = 240
	DefaultMarginY = 240
	DefaultMarginZ = 24
)

// Builder collects atomic edges for a root within a bounding box.
type Builder struct {
	store     store.Store
	reader    *hierarchy.Reader
	chunkSize int64
}

// New constructs a Builder over s, using reader to resolve root subgraphs
// and chunkSize (dataset voxel units per chunk) to test bbox intersection.
func New(s store.Store, reader *hierarchy.Reader, chunkSize int64) *Builder {
	return &Builder{store: s, reader: reader, chunkSize: chunkSize}
}

// Build returns every atomic edge whose two endpoints are both leaves of
// root's subgraph at atTime within bbox (expanded by the given margin, in
// dataset units). An edge with only one endpoint among those leaves is not
// returned. Cross-chunk edges are present with weight +Inf.
func (b *Builder) Build(ctx context.Context, root ids.ID, atTime int64, bbox hierarchy.BBox, marginX, marginY, marginZ int64) ([][2]ids.ID, []float32, error) {
	expanded := hierarchy.BBox{
		X0: bbox.X0 - marginX, X1: bbox.X1 + marginX,
		Y0: bbox.Y0 - marginY, Y1: bbox.Y1 + marginY,
		Z0: bbox.Z0 - marginZ, Z1: bbox.Z1 + marginZ,
	}
	return b.reader.SubgraphEdges(ctx, root, atTime, &expanded, b.chunkSize, b.store.EdgesTouchingChunk)
}

// WithDefaultMargin builds the split-preview graph using the default
// 240×240×24 margin.
func (b *Builder) WithDefaultMargin(ctx context.Context, root ids.ID, atTime int64, bbox hierarchy.BBox) ([][2]ids.ID, []float32, error) {
	return b.Build(ctx, root, atTime, bbox, DefaultMarginX, DefaultMarginY, DefaultMarginZ)
}
