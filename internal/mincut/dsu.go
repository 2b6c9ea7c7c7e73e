package mincut

import "github.com/dlbrittain/chunkedgraph/internal/ids"

// dsu is a union-find over ids.ID with union-by-min-representative: the
// representative of a component is always its smallest member ID, which is
// what the coalescing step requires.
type dsu struct {
	parent map[ids.ID]ids.ID
}

func newDSU() *dsu {
	return &dsu{parent: make(map[ids.ID]ids.ID)}
}

func (d *dsu) add(id ids.ID) {
	if _, ok := d.parent[id]; !ok {
		d.parent[id] = id
	}
}

func (d *dsu) find(id ids.ID) ids.ID {
	d.add(id)
	root := id
	for d.parent[root] != root {
		root = d.parent[root]
	}
	// path compression
	for d.parent[id] != root {
		next := d.parent[id]
		d.parent[id] = root
		id = next
	}
	return root
}

func (d *dsu) union(a, b ids.ID) {
	ra, rb := d.find(a), d.find(b)
	if ra == rb {
		return
	}
	// Keep the smaller ID as representative.
	if ra < rb {
		d.parent[rb] = ra
	} else {
		d.parent[ra] = rb
	}
}
