// Package chunkedgraph wires the store, hierarchy reader, local graph
// builder, mincut engine, edit engine, history, and remesh notifier into a
// single handle for one dataset ("table") behind one Open/Close
// lifecycle.
package chunkedgraph

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dlbrittain/chunkedgraph/internal/cgerrors"
	"github.com/dlbrittain/chunkedgraph/internal/config"
	"github.com/dlbrittain/chunkedgraph/internal/edit"
	"github.com/dlbrittain/chunkedgraph/internal/hierarchy"
	"github.com/dlbrittain/chunkedgraph/internal/history"
	"github.com/dlbrittain/chunkedgraph/internal/ids"
	"github.com/dlbrittain/chunkedgraph/internal/localgraph"
	"github.com/dlbrittain/chunkedgraph/internal/mincut"
	"github.com/dlbrittain/chunkedgraph/internal/remesh"
	"github.com/dlbrittain/chunkedgraph/internal/store"
)

// DefaultChunkSize is the dataset-voxel-unit edge length of a chunk used
// when a caller doesn't override it. It only affects bounding-box
// intersection tests in Leaves/Subgraph/SplitPreview; it has no bearing on ID
// encoding, which carries its own fixed chunk coordinate bit width
// (internal/ids).
const DefaultChunkSize = 1024

// Graph is a single dataset's handle: one table, one store, one set of
// wired components. Concurrent use is safe; the underlying Store and
// root-lock leases provide the actual serialization.
type Graph struct {
	Table     string
	MaxLayer  int
	ChunkSize int64

	store     store.Store
	reader    *hierarchy.Reader
	builder   *localgraph.Builder
	editor    *edit.Engine
	historian *history.History
	publisher remesh.Publisher
	cfg       *config.Config

	mu     sync.RWMutex
	closed bool
}

// Options configures Open. Zero values fall back to sensible defaults.
type Options struct {
	Table     string
	MaxLayer  int
	ChunkSize int64
	Config    *config.Config
	Logger    *log.Logger
}

// Open opens (or creates) the Badger-backed store at cfg.DataDir (or
// in-memory, if cfg.InMemory or DataDir is empty) and wires every
// component for the named table.
func Open(opts Options) (*Graph, error) {
	if opts.Table == "" {
		return nil, cgerrors.New(cgerrors.KindBadRequest, "table must not be empty")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.LoadFromEnv()
	}
	maxLayer := opts.MaxLayer
	if maxLayer == 0 {
		maxLayer = ids.MaxLayer
	}
	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}

	var s store.Store
	var err error
	if cfg.InMemory || cfg.DataDir == "" {
		s, err = store.NewBadgerStoreInMemory()
	} else {
		s, err = store.NewBadgerStore(cfg.DataDir)
	}
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.KindInternal, err, "opening store")
	}

	reader := hierarchy.New(s, maxLayer)
	builder := localgraph.New(s, reader, chunkSize)
	pub := remesh.NewInMemoryPublisher(cfg.EditsExchange, opts.Logger)
	editor := edit.New(s, reader, pub, cfg, opts.Table, maxLayer)
	historian := history.New(s)

	return &Graph{
		Table:     opts.Table,
		MaxLayer:  maxLayer,
		ChunkSize: chunkSize,
		store:     s,
		reader:    reader,
		builder:   builder,
		editor:    editor,
		historian: historian,
		publisher: pub,
		cfg:       cfg,
	}, nil
}

// Close releases the underlying store. Safe to call more than once.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	return g.store.Close()
}

func (g *Graph) checkOpen() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return cgerrors.New(cgerrors.KindInternal, "graph is closed")
	}
	return nil
}

// Subscribe registers a remesh notification subscriber, mirroring the
// out-of-process broker a real deployment would use instead.
func (g *Graph) Subscribe(capacity int) (<-chan remesh.Payload, bool) {
	imp, ok := g.publisher.(*remesh.InMemoryPublisher)
	if !ok {
		return nil, false
	}
	return imp.Subscribe(capacity), true
}

// GetRoot resolves a single supervoxel's root at atTime (0 means "now").
func (g *Graph) GetRoot(ctx context.Context, sv ids.ID, atTime int64, stopLayer int) (ids.ID, error) {
	if err := g.checkOpen(); err != nil {
		return 0, err
	}
	if atTime == 0 {
		atTime = time.Now().Unix()
	}
	return g.reader.RootOf(ctx, sv, atTime, stopLayer)
}

// GetRoots resolves many supervoxels' roots at atTime.
func (g *Graph) GetRoots(ctx context.Context, svs []ids.ID, atTime int64, assertRoots bool) ([]ids.ID, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	if atTime == 0 {
		atTime = time.Now().Unix()
	}
	return g.reader.RootsOf(ctx, svs, atTime, assertRoots)
}

// Children returns node's immediate children at atTime.
func (g *Graph) Children(ctx context.Context, node ids.ID, atTime int64) ([]ids.ID, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	if atTime == 0 {
		atTime = time.Now().Unix()
	}
	return g.reader.ChildrenOf(ctx, node, atTime)
}

// Leaves returns every layer-1 supervoxel under root at atTime, optionally
// restricted to bbox.
func (g *Graph) Leaves(ctx context.Context, root ids.ID, atTime int64, bbox *hierarchy.BBox) ([]ids.ID, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	if atTime == 0 {
		atTime = time.Now().Unix()
	}
	byLayer, err := g.reader.SubgraphNodes(ctx, root, atTime, bbox, g.ChunkSize, false)
	if err != nil {
		return nil, err
	}
	return byLayer[1], nil
}

// Subgraph returns every node by layer and every atomic edge whose two
// endpoints both lie in root's subgraph within bbox.
func (g *Graph) Subgraph(ctx context.Context, root ids.ID, atTime int64, bbox *hierarchy.BBox) (map[int][]ids.ID, [][2]ids.ID, []float32, error) {
	if err := g.checkOpen(); err != nil {
		return nil, nil, nil, err
	}
	if atTime == 0 {
		atTime = time.Now().Unix()
	}
	nodes, err := g.reader.SubgraphNodes(ctx, root, atTime, bbox, g.ChunkSize, true)
	if err != nil {
		return nil, nil, nil, err
	}
	edges, affs, err := g.reader.SubgraphEdges(ctx, root, atTime, bbox, g.ChunkSize, g.store.EdgesTouchingChunk)
	if err != nil {
		return nil, nil, nil, err
	}
	return nodes, edges, affs, nil
}

// Merge adds an edge between u and v, producing a new root.
func (g *Graph) Merge(ctx context.Context, user string, u, v ids.ID) (edit.EditResult, error) {
	if err := g.checkOpen(); err != nil {
		return edit.EditResult{}, err
	}
	return g.editor.AddEdges(ctx, user, u, v)
}

// Split computes a mincut (or applies explicitEdges verbatim) separating
// sources from sinks and applies it.
func (g *Graph) Split(ctx context.Context, user string, sources, sinks []ids.ID, explicitEdges [][2]ids.ID, useMincut bool) (edit.EditResult, error) {
	if err := g.checkOpen(); err != nil {
		return edit.EditResult{}, err
	}
	return g.editor.RemoveEdges(ctx, user, sources, sinks, explicitEdges, useMincut)
}

// SplitPreview runs the mincut on root's subgraph within bbox widened by
// the default split-preview margin, without mutating anything.
func (g *Graph) SplitPreview(ctx context.Context, root ids.ID, atTime int64, bbox hierarchy.BBox, sources, sinks []ids.ID) (mincut.PreviewResult, error) {
	if err := g.checkOpen(); err != nil {
		return mincut.PreviewResult{}, err
	}
	if atTime == 0 {
		atTime = time.Now().Unix()
	}
	edges, affs, err := g.builder.WithDefaultMargin(ctx, root, atTime, bbox)
	if err != nil {
		return mincut.PreviewResult{}, err
	}
	return mincut.Preview(ctx, edges, affs, sources, sinks)
}

// Undo reverses a previously committed operation.
func (g *Graph) Undo(ctx context.Context, user string, operationID uint64) (edit.EditResult, error) {
	if err := g.checkOpen(); err != nil {
		return edit.EditResult{}, err
	}
	return g.editor.Undo(ctx, user, operationID)
}

// Redo reapplies a previously undone operation.
func (g *Graph) Redo(ctx context.Context, user string, operationID uint64) (edit.EditResult, error) {
	if err := g.checkOpen(); err != nil {
		return edit.EditResult{}, err
	}
	return g.editor.Redo(ctx, user, operationID)
}

// Rollback undoes every merge/split committed by targetUser, most recent
// first.
func (g *Graph) Rollback(ctx context.Context, actor, targetUser string) (map[uint64]int64, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	return g.editor.RollbackUser(ctx, actor, targetUser)
}

// ChangeLog returns every operation touching any of roots, oldest first
// per root.
func (g *Graph) ChangeLog(ctx context.Context, roots []ids.ID, filtered bool) (map[ids.ID][]history.ChangelogRow, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	return g.historian.TabularChangelogs(ctx, roots, filtered)
}

// LineageGraph returns the DAG of roots reachable from roots within
// [pastT, futureT].
func (g *Graph) LineageGraph(ctx context.Context, roots []ids.ID, pastT, futureT int64) (history.LineageGraph, error) {
	if err := g.checkOpen(); err != nil {
		return history.LineageGraph{}, err
	}
	return g.historian.LineageGraph(ctx, roots, pastT, futureT)
}

// PastIDMapping returns each input root's ancestor and descendant sets
// within [pastT, futureT].
func (g *Graph) PastIDMapping(ctx context.Context, roots []ids.ID, pastT, futureT int64) (history.PastFutureIDMapping, error) {
	if err := g.checkOpen(); err != nil {
		return history.PastFutureIDMapping{}, err
	}
	return g.historian.PastFutureIDMapping(ctx, roots, pastT, futureT)
}

// LastEdit returns the max timestamp of any operation touching root.
func (g *Graph) LastEdit(ctx context.Context, root ids.ID) (int64, error) {
	if err := g.checkOpen(); err != nil {
		return 0, err
	}
	return g.historian.LastEditTimestamp(ctx, root)
}

// IsLatestRoots reports, per input id, whether it is still a current root
// as of atTime.
func (g *Graph) IsLatestRoots(ctx context.Context, rootIDs []ids.ID, atTime int64) (map[ids.ID]bool, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	if atTime == 0 {
		atTime = time.Now().Unix()
	}
	return g.historian.IsLatestRoots(ctx, rootIDs, atTime)
}
