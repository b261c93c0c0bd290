// Package graph keeps id-pair edge indexes and answers reachability and
// ordering questions over them.
package graph

import "sort"

// Relation yields the direct successors of a node.
type Relation interface {
	Successors(id string) []string
}

// Edges is a directed edge index keyed by node id, stored in both directions.
type Edges struct {
	out map[string]map[string]struct{}
	in  map[string]map[string]struct{}
}

func NewEdges() *Edges {
	return &Edges{
		out: make(map[string]map[string]struct{}),
		in:  make(map[string]map[string]struct{}),
	}
}

// Add inserts from → to and reports whether the edge is new.
func (e *Edges) Add(from, to string) bool {
	if e.Has(from, to) {
		return false
	}
	if e.out[from] == nil {
		e.out[from] = make(map[string]struct{})
	}
	if e.in[to] == nil {
		e.in[to] = make(map[string]struct{})
	}
	e.out[from][to] = struct{}{}
	e.in[to][from] = struct{}{}
	return true
}

// Remove deletes from → to and reports whether it existed.
func (e *Edges) Remove(from, to string) bool {
	if !e.Has(from, to) {
		return false
	}
	delete(e.out[from], to)
	if len(e.out[from]) == 0 {
		delete(e.out, from)
	}
	delete(e.in[to], from)
	if len(e.in[to]) == 0 {
		delete(e.in, to)
	}
	return true
}

func (e *Edges) Has(from, to string) bool {
	_, ok := e.out[from][to]
	return ok
}

// Successors returns the targets of id's outgoing edges in sorted order.
func (e *Edges) Successors(id string) []string {
	return sortedKeys(e.out[id])
}

// Predecessors returns the sources of id's incoming edges in sorted order.
func (e *Edges) Predecessors(id string) []string {
	return sortedKeys(e.in[id])
}

func (e *Edges) OutDegree(id string) int { return len(e.out[id]) }

func (e *Edges) InDegree(id string) int { return len(e.in[id]) }

// RemoveNode drops every edge touching id.
func (e *Edges) RemoveNode(id string) {
	for to := range e.out[id] {
		e.Remove(id, to)
	}
	for from := range e.in[id] {
		e.Remove(from, id)
	}
}

// Pairs returns every edge as [from, to], sorted.
func (e *Edges) Pairs() [][2]string {
	var pairs [][2]string
	for _, from := range sortedKeys(e.out) {
		for _, to := range sortedKeys(e.out[from]) {
			pairs = append(pairs, [2]string{from, to})
		}
	}
	return pairs
}

// Reverse views the index with every edge flipped.
func (e *Edges) Reverse() Relation {
	return reversed{e}
}

type reversed struct{ e *Edges }

func (r reversed) Successors(id string) []string { return r.e.Predecessors(id) }

type union []Relation

// Union combines several relations into one; a node's successors are the
// successors it has in any of them.
func Union(rels ...Relation) Relation {
	return union(rels)
}

func (u union) Successors(id string) []string {
	seen := make(map[string]struct{})
	for _, r := range u {
		for _, s := range r.Successors(id) {
			seen[s] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys[V any](m map[string]V) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
