package state

import (
	"fmt"
	"maps"
	"slices"
)

// NodeId is the address of a router.
type NodeId string

// Port identifies a link local to one router.
type Port int

// Metric is a non-negative link or path cost.
type Metric uint32

// Vector is what a router advertises: the cost to each destination, without next hops.
type Vector map[NodeId]Metric

// Route is one entry of a distance vector.
type Route struct {
	Cost Metric
	Nh   NodeId // next hop
}

func (r Route) String() string {
	return fmt.Sprintf("(nh: %s, cost: %d)", r.Nh, r.Cost)
}

// Link is a direct attachment to a neighbour.
type Link struct {
	Port      Port
	Neighbour NodeId
	Cost      Metric
}

func (l Link) String() string {
	return fmt.Sprintf("(port: %d, neigh: %s, cost: %d)", l.Port, l.Neighbour, l.Cost)
}

// RouterState holds everything one router knows. It must only be touched by that router's event path.
type RouterState struct {
	Id         NodeId
	Links      LinkTable
	Neighbours NeighbourStore
	// Routes is replaced as a whole on every recompute, never edited in place.
	Routes map[NodeId]Route
}

func NewRouterState(id NodeId) *RouterState {
	return &RouterState{
		Id: id,
		Routes: map[NodeId]Route{
			id: {Cost: 0, Nh: id},
		},
	}
}

// Advertisement projects the routes onto the costs sent to neighbours.
func (rs *RouterState) Advertisement() Vector {
	vec := make(Vector, len(rs.Routes))
	for dst, route := range rs.Routes {
		vec[dst] = route.Cost
	}
	return vec
}

func (rs *RouterState) SortedDestinations() []NodeId {
	return slices.Sorted(maps.Keys(rs.Routes))
}

func (rs *RouterState) StringRoutes() string {
	out := ""
	for i, dst := range rs.SortedDestinations() {
		if i != 0 {
			out += "\n"
		}
		out += fmt.Sprintf("%s via %s", dst, rs.Routes[dst])
	}
	return out
}
