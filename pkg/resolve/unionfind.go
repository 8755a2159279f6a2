package resolve

// disjointSet is a union-find forest over record source IDs with path
// compression and union by size. The representative of a set is stable for a
// given sequence of unions.
type disjointSet struct {
	parent map[string]string
	size   map[string]int
}

func newDisjointSet() *disjointSet {
	return &disjointSet{
		parent: make(map[string]string),
		size:   make(map[string]int),
	}
}

// add registers id as a singleton set if it is not known yet.
func (d *disjointSet) add(id string) {
	if _, ok := d.parent[id]; !ok {
		d.parent[id] = id
		d.size[id] = 1
	}
}

// find returns the representative of id's set.
func (d *disjointSet) find(id string) string {
	d.add(id)
	root := id
	for d.parent[root] != root {
		root = d.parent[root]
	}
	for id != root {
		next := d.parent[id]
		d.parent[id] = root
		id = next
	}
	return root
}

// union merges the sets of a and b and returns the new representative.
// Ties in size go to the lexically smaller root.
func (d *disjointSet) union(a, b string) string {
	ra, rb := d.find(a), d.find(b)
	if ra == rb {
		return ra
	}
	if d.size[ra] < d.size[rb] || (d.size[ra] == d.size[rb] && rb < ra) {
		ra, rb = rb, ra
	}
	d.parent[rb] = ra
	d.size[ra] += d.size[rb]
	delete(d.size, rb)
	return ra
}

// connected reports whether a and b are in the same set.
func (d *disjointSet) connected(a, b string) bool {
	return d.find(a) == d.find(b)
}

// groups returns every set keyed by representative.
func (d *disjointSet) groups() map[string][]string {
	out := make(map[string][]string)
	for id := range d.parent {
		root := d.find(id)
		out[root] = append(out[root], id)
	}
	return out
}
