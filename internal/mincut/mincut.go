// Package mincut implements the chunked graph's local mincut algorithm:
// cross-chunk edge coalescing, multi-terminal source/sink fusion, a
// deterministic Edmonds-Karp min cut, and un-coalescing back to the
// original atomic edge space.
//
// The working graph is held in a github.com/katalvlaran/lvlath/graph/core.Graph,
// but the augmenting-path search is implemented directly in this package
// rather than delegating to flow.EdmondsKarp, because that function (like
// core.Graph.Neighbors) walks Go maps with no ordering guarantee —
// incompatible with the required lexicographically-least tie-break. This
// package sorts every neighbor list before each BFS layer to make the
// result reproducible.
package mincut

import (
	"context"
	"math"
	"sort"
	"strconv"

	core "github.com/katalvlaran/lvlath/graph/core"

	"github.com/dlbrittain/chunkedgraph/internal/cgerrors"
	"github.com/dlbrittain/chunkedgraph/internal/ids"
)

// capacityScale converts float32 affinities to the int64 capacities
// lvlath's core.Graph edges carry.
const capacityScale = 1_000_000

const infCapacity = int64(math.MaxInt64 / 4) // leaves room for summation without overflow

// Result is the Mincut Engine's output.
type Result struct {
	// CutEdges is the subset of the original edge list to remove.
	CutEdges [][2]ids.ID
	// MaxFlow is the scaled-down max flow value between the fused
	// representative source and sink (§8 property 5).
	MaxFlow float64
}

// Run executes the full five-step algorithm (plus un-coalescing) over
// edges/affs, separating sources from sinks.
func Run(ctx context.Context, edges [][2]ids.ID, affs []float32, sources, sinks []ids.ID) (Result, error) {
	if len(edges) == 0 {
		return Result{}, nil // step 7: empty input short-circuit
	}
	if len(sources) == 0 || len(sinks) == 0 {
		return Result{}, cgerrors.New(cgerrors.KindBadRequest, "mincut requires at least one source and one sink")
	}
	if err := checkDisjointTerminals(sources, sinks); err != nil {
		return Result{}, err
	}

	// Step 1: cross-chunk coalescing.
	rep, members := coalesce(edges, affs)

	// Step 2: remap terminals.
	repSources := remapAll(sources, rep)
	repSinks := remapAll(sinks, rep)

	// Step 3: build working graph (representative space).
	wg, weightedEdgeSet := buildWorkingGraph(edges, affs, rep, repSources, repSinks)

	// Step 4: connectivity check.
	if err := checkConnectivity(wg, repSources, repSinks); err != nil {
		return Result{}, err
	}

	// Step 5: max-flow / min-cut between the first source and first sink
	// representative: sources[0]/sinks[0] post-fusion, since every
	// source/sink pair is already joined by an infinite edge.
	sourceRep, sinkRep := repSources[0], repSinks[0]
	maxFlow, reachable, err := edmondsKarpMinCut(ctx, wg, sourceRep, sinkRep)
	if err != nil {
		return Result{}, err
	}

	// Cut = weighted working-graph edges crossing the reachable/
	// unreachable boundary.
	var repCut [][2]string
	for pair := range weightedEdgeSet {
		uReachable := reachable[pair[0]]
		vReachable := reachable[pair[1]]
		if uReachable != vReachable {
			repCut = append(repCut, pair)
		}
	}
	sort.Slice(repCut, func(i, j int) bool {
		if repCut[i][0] != repCut[j][0] {
			return repCut[i][0] < repCut[j][0]
		}
		return repCut[i][1] < repCut[j][1]
	})

	// Step 6: un-coalesce.
	cutEdges := unCoalesce(repCut, members, edges)
	sort.Slice(cutEdges, func(i, j int) bool {
		if cutEdges[i][0] != cutEdges[j][0] {
			return cutEdges[i][0] < cutEdges[j][0]
		}
		return cutEdges[i][1] < cutEdges[j][1]
	})

	// Step 7: empty min cut short-circuit (caller treats as illegal split).
	return Result{CutEdges: cutEdges, MaxFlow: float64(maxFlow) / capacityScale}, nil
}

func checkDisjointTerminals(sources, sinks []ids.ID) error {
	sinkSet := make(map[ids.ID]bool, len(sinks))
	for _, s := range sinks {
		sinkSet[s] = true
	}
	for _, s := range sources {
		if sinkSet[s] {
			return cgerrors.New(cgerrors.KindInvariant, "node %d is both a source and a sink", s)
		}
	}
	return nil
}

// coalesce partitions edges into cross-chunk (+Inf) and weighted, unions
// the cross-chunk endpoints via a min-ID-representative DSU, and returns
// the node->representative mapping plus the reverse rep->members index.
func coalesce(edges [][2]ids.ID, affs []float32) (map[ids.ID]ids.ID, map[ids.ID][]ids.ID) {
	dsu := newDSU()
	for _, e := range edges {
		dsu.add(e[0])
		dsu.add(e[1])
	}
	for i, e := range edges {
		if isInf(affs[i]) {
			dsu.union(e[0], e[1])
		}
	}

	rep := make(map[ids.ID]ids.ID)
	members := make(map[ids.ID][]ids.ID)
	for node := range dsu.parent {
		r := dsu.find(node)
		rep[node] = r
	}
	for node, r := range rep {
		members[r] = append(members[r], node)
	}
	return rep, members
}

func remapAll(nodes []ids.ID, rep map[ids.ID]ids.ID) []ids.ID {
	out := make([]ids.ID, len(nodes))
	for i, n := range nodes {
		if r, ok := rep[n]; ok {
			out[i] = r
		} else {
			out[i] = n
		}
	}
	return out
}

func isInf(f float32) bool { return f > 3.4e38 || f < -3.4e38 }

// buildWorkingGraph constructs the directed residual-capable graph on
// representative IDs: every undirected edge becomes two symmetric directed
// arcs (the standard reduction for undirected max-flow), weighted edges
// carry capacity = affinity scaled to int64, and every source pair / sink
// pair gets an infinite-capacity edge (multi-terminal fusion).
func buildWorkingGraph(edges [][2]ids.ID, affs []float32, rep map[ids.ID]ids.ID, sources, sinks []ids.ID) (*core.Graph, map[[2]string]bool) {
	g := core.NewGraph(true, true)
	weightedEdgeSet := make(map[[2]string]bool)

	addUndirected := func(u, v string, cap int64) {
		addSymmetricCapacity(g, u, v, cap)
	}

	for i, e := range edges {
		if isInf(affs[i]) {
			continue // coalesced away; representative is a single node now
		}
		u, v := vid(rep[e[0]]), vid(rep[e[1]])
		if u == v {
			continue // both endpoints coalesced into the same representative
		}
		cap := int64(affs[i] * capacityScale)
		if cap < 0 {
			cap = 0
		}
		addUndirected(u, v, cap)
		weightedEdgeSet[sortedPair(u, v)] = true
	}

	for i := 0; i < len(sources); i++ {
		for j := i + 1; j < len(sources); j++ {
			addUndirected(vid(sources[i]), vid(sources[j]), infCapacity)
		}
	}
	for i := 0; i < len(sinks); i++ {
		for j := i + 1; j < len(sinks); j++ {
			addUndirected(vid(sinks[i]), vid(sinks[j]), infCapacity)
		}
	}

	return g, weightedEdgeSet
}

func sortedPair(a, b string) [2]string {
	if a <= b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

// addSymmetricCapacity adds (or accumulates, if already present) capacity
// cap in both directions between u and v.
func addSymmetricCapacity(g *core.Graph, u, v string, cap int64) {
	existing := capacityOf(g, u, v)
	setCapacity(g, u, v, existing+cap)
	existingRev := capacityOf(g, v, u)
	setCapacity(g, v, u, existingRev+cap)
}

func capacityOf(g *core.Graph, u, v string) int64 {
	adj := g.AdjacencyList()
	nbrs, ok := adj[u]
	if !ok {
		return 0
	}
	var total int64
	for _, e := range nbrs[v] {
		total += e.Weight
	}
	return total
}

func setCapacity(g *core.Graph, u, v string, cap int64) {
	g.RemoveEdge(u, v)
	if cap > 0 {
		g.AddEdge(u, v, cap)
	} else {
		// Ensure the vertices exist even with zero capacity, matching the
		// "zero capacities admitted" edge case.
		g.AddVertex(&core.Vertex{ID: u, Metadata: map[string]interface{}{}})
		g.AddVertex(&core.Vertex{ID: v, Metadata: map[string]interface{}{}})
	}
}

func vid(id ids.ID) string { return strconv.FormatUint(uint64(id), 10) }

func parseVid(s string) ids.ID {
	u, _ := strconv.ParseUint(s, 10, 64)
	return ids.ID(u)
}

// checkConnectivity implements step 4: every connected component must
// contain either none or all of (some source or sink)'s required terminal
// set; if a component contains at least one terminal but is missing a
// source or a sink entirely, the request is Disconnected.
func checkConnectivity(g *core.Graph, sources, sinks []ids.ID) error {
	sourceSet := toStringSet(sources)
	sinkSet := toStringSet(sinks)

	visited := make(map[string]bool)
	for _, v := range g.Vertices() {
		if visited[v.ID] {
			continue
		}
		component := bfsUndirectedComponent(g, v.ID, visited)
		hasSource, hasSink := false, false
		missingSource, missingSink := false, false
		compSources := make(map[string]bool)
		compSinks := make(map[string]bool)
		for _, id := range component {
			if sourceSet[id] {
				hasSource = true
				compSources[id] = true
			}
			if sinkSet[id] {
				hasSink = true
				compSinks[id] = true
			}
		}
		if !hasSource && !hasSink {
			continue // discard: unrelated component
		}
		if len(compSources) < len(sourceSet) {
			missingSource = true
		}
		if len(compSinks) < len(sinkSet) {
			missingSink = true
		}
		if missingSource || missingSink {
			return cgerrors.New(cgerrors.KindBadRequest, "sources and sinks are in different components")
		}
	}
	return nil
}

func toStringSet(nodes []ids.ID) map[string]bool {
	out := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		out[vid(n)] = true
	}
	return out
}

// bfsUndirectedComponent returns every vertex reachable from start,
// treating arcs as undirected (an arc either direction counts).
func bfsUndirectedComponent(g *core.Graph, start string, visited map[string]bool) []string {
	queue := []string{start}
	visited[start] = true
	var component []string
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		component = append(component, u)
		neighbors := sortedNeighbors(g, u)
		for _, v := range neighbors {
			if !visited[v] {
				visited[v] = true
				queue = append(queue, v)
			}
		}
	}
	return component
}

// sortedNeighbors returns the union of outgoing and incoming neighbors of
// u, sorted ascending, so every traversal in this package is deterministic
// regardless of core.Graph's internal map iteration order.
func sortedNeighbors(g *core.Graph, u string) []string {
	set := make(map[string]bool)
	adj := g.AdjacencyList()
	for v := range adj[u] {
		set[v] = true
	}
	for other, nbrs := range adj {
		if _, ok := nbrs[u]; ok {
			set[other] = true
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// edmondsKarpMinCut runs a deterministic Edmonds-Karp augmenting-path loop
// (BFS, sorted neighbor visitation) until no augmenting path remains, then
// returns the max flow value and the set of vertices reachable from
// source in the final residual graph (the source-side of the min cut).
func edmondsKarpMinCut(ctx context.Context, g *core.Graph, source, sink string) (int64, map[string]bool, error) {
	if !g.HasVertex(source) {
		return 0, nil, cgerrors.New(cgerrors.KindBadRequest, "source %s not present in working graph", source)
	}
	if !g.HasVertex(sink) {
		return 0, nil, cgerrors.New(cgerrors.KindBadRequest, "sink %s not present in working graph", sink)
	}

	var maxFlow int64
	for {
		select {
		case <-ctx.Done():
			return 0, nil, cgerrors.Wrap(cgerrors.KindUnavailable, ctx.Err(), "mincut computation cancelled")
		default:
		}

		path, bottleneck := bfsAugmentingPath(g, source, sink)
		if path == nil {
			break
		}
		for i := 0; i < len(path)-1; i++ {
			u, v := path[i], path[i+1]
			fwd := capacityOf(g, u, v)
			rev := capacityOf(g, v, u)
			setCapacity(g, u, v, fwd-bottleneck)
			setCapacity(g, v, u, rev+bottleneck)
		}
		maxFlow += bottleneck
	}

	reachable := make(map[string]bool)
	queue := []string{source}
	reachable[source] = true
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		adj := g.AdjacencyList()
		var nbrs []string
		for v, edges := range adj[u] {
			var cap int64
			for _, e := range edges {
				cap += e.Weight
			}
			if cap > 0 {
				nbrs = append(nbrs, v)
			}
		}
		sort.Strings(nbrs)
		for _, v := range nbrs {
			if !reachable[v] {
				reachable[v] = true
				queue = append(queue, v)
			}
		}
	}

	return maxFlow, reachable, nil
}

// bfsAugmentingPath finds the lexicographically-least augmenting path from
// source to sink (sorted neighbor visitation makes the first BFS path
// found the lexicographically least one, since BFS with sorted adjacency
// explores candidates in (min-endpoint, max-endpoint) order at every
// layer) and returns it with its bottleneck capacity, or (nil, 0) if sink
// is unreachable.
func bfsAugmentingPath(g *core.Graph, source, sink string) ([]string, int64) {
	parent := map[string]string{source: source}
	queue := []string{source}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		if u == sink {
			break
		}
		adj := g.AdjacencyList()
		nbrs := make([]string, 0, len(adj[u]))
		for v := range adj[u] {
			nbrs = append(nbrs, v)
		}
		sort.Strings(nbrs)
		for _, v := range nbrs {
			if _, seen := parent[v]; seen {
				continue
			}
			if capacityOf(g, u, v) <= 0 {
				continue
			}
			parent[v] = u
			queue = append(queue, v)
		}
	}
	if _, ok := parent[sink]; !ok {
		return nil, 0
	}

	var path []string
	for n := sink; ; {
		path = append([]string{n}, path...)
		if n == source {
			break
		}
		n = parent[n]
	}

	bottleneck := int64(math.MaxInt64)
	for i := 0; i < len(path)-1; i++ {
		c := capacityOf(g, path[i], path[i+1])
		if c < bottleneck {
			bottleneck = c
		}
	}
	return path, bottleneck
}

// unCoalesce expands each representative-space cut edge to the Cartesian
// product of its members (both orderings) and intersects with the
// original edge set.
func unCoalesce(repCut [][2]string, members map[ids.ID][]ids.ID, originalEdges [][2]ids.ID) [][2]ids.ID {
	originalSet := make(map[[2]ids.ID]bool, len(originalEdges))
	for _, e := range originalEdges {
		originalSet[sortedIDPair(e[0], e[1])] = true
	}

	seen := make(map[[2]ids.ID]bool)
	var out [][2]ids.ID
	for _, pair := range repCut {
		uRep, vRep := parseVid(pair[0]), parseVid(pair[1])
		uMembers := members[uRep]
		if uMembers == nil {
			uMembers = []ids.ID{uRep}
		}
		vMembers := members[vRep]
		if vMembers == nil {
			vMembers = []ids.ID{vRep}
		}
		for _, u := range uMembers {
			for _, v := range vMembers {
				key := sortedIDPair(u, v)
				if originalSet[key] && !seen[key] {
					seen[key] = true
					out = append(out, [2]ids.ID{key[0], key[1]})
				}
			}
		}
	}
	return out
}

func sortedIDPair(a, b ids.ID) [2]ids.ID {
	if a <= b {
		return [2]ids.ID{a, b}
	}
	return [2]ids.ID{b, a}
}
