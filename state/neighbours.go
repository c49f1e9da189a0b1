package state

import (
	"maps"
	"slices"
)

// NeighbourStore keeps the last vector received from each neighbour. Updates replace the whole vector.
type NeighbourStore struct {
	vecs map[NodeId]Vector
}

func (n *NeighbourStore) Set(neigh NodeId, vec Vector) {
	if n.vecs == nil {
		n.vecs = make(map[NodeId]Vector)
	}
	n.vecs[neigh] = maps.Clone(vec)
	if n.vecs[neigh] == nil {
		n.vecs[neigh] = make(Vector)
	}
}

// Ensure creates an empty vector for neigh unless one is already stored.
func (n *NeighbourStore) Ensure(neigh NodeId) {
	if _, ok := n.vecs[neigh]; ok {
		return
	}
	n.Set(neigh, nil)
}

func (n *NeighbourStore) Remove(neigh NodeId) {
	delete(n.vecs, neigh)
}

func (n *NeighbourStore) Get(neigh NodeId) (Vector, bool) {
	vec, ok := n.vecs[neigh]
	return vec, ok
}

// Neighbours lists every neighbour with a stored vector, sorted.
func (n *NeighbourStore) Neighbours() []NodeId {
	return slices.Sorted(maps.Keys(n.vecs))
}

// Destinations is the union of every destination advertised by any neighbour.
func (n *NeighbourStore) Destinations() map[NodeId]struct{} {
	out := make(map[NodeId]struct{})
	for _, vec := range n.vecs {
		for dst := range vec {
			out[dst] = struct{}{}
		}
	}
	return out
}

func (n *NeighbourStore) Len() int {
	return len(n.vecs)
}
