package core

import (
	"maps"
	"net/netip"

	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
	"github.com/gaissmai/bart"
)

type RouterEvent int

// trace events

const (
	RouteChanged RouterEvent = iota
	TriggeredUpdate
	Heartbeat
	LinkAdded
	LinkRemoved
	Forwarded
	Delivered
)

// warn events

const (
	DecodeFailed RouterEvent = iota + 1000
	NoRoute
	UnknownLink
	UnknownPacket
	InconsistentState
)

func (e RouterEvent) String() string {
	switch e {
	case RouteChanged:
		return "RouteChanged"
	case TriggeredUpdate:
		return "TriggeredUpdate"
	case Heartbeat:
		return "Heartbeat"
	case LinkAdded:
		return "LinkAdded"
	case LinkRemoved:
		return "LinkRemoved"
	case Forwarded:
		return "Forwarded"
	case Delivered:
		return "Delivered"
	case DecodeFailed:
		return "DecodeFailed"
	case NoRoute:
		return "NoRoute"
	case UnknownLink:
		return "UnknownLink"
	case UnknownPacket:
		return "UnknownPacket"
	case InconsistentState:
		return "InconsistentState"
	default:
		return "RouterEvent(?)"
	}
}

// IsWarning reports whether the event describes a dropped packet or a bad input.
func (e RouterEvent) IsWarning() bool {
	return e >= DecodeFailed
}

// Host is the substrate a router runs on. Send is fire and forget.
type Host interface {
	Send(port state.Port, pkt *protocol.Packet)
	Log(event RouterEvent, desc string, args ...any)
}

// Deliverer is implemented by hosts that want data packets addressed to the router itself.
type Deliverer interface {
	Deliver(pkt *protocol.Packet)
}

// ComputeRoutes runs one Bellman-Ford relaxation over the links and the stored neighbour vectors,
// and replaces rs.Routes with the result. It reports whether any destination, cost or next hop changed.
//
// This is a single pass. Convergence comes from neighbours exchanging vectors repeatedly,
// and there is no split horizon or metric cutoff, so a lost route can count to infinity.
func ComputeRoutes(rs *state.RouterState) bool {
	newTable := map[state.NodeId]state.Route{
		rs.Id: {Cost: 0, Nh: rs.Id},
	}

	dests := rs.Neighbours.Destinations()
	for dst := range rs.Routes {
		dests[dst] = struct{}{}
	}

	links := rs.Links.Links()

	for dst := range dests {
		if dst == rs.Id {
			continue
		}

		var best state.Route
		found := false

		// links are enumerated in insertion order, and only a strictly better candidate replaces the current one
		for _, link := range links {
			var cost state.Metric
			if link.Neighbour == dst {
				// direct link
				cost = link.Cost
			} else {
				vec, ok := rs.Neighbours.Get(link.Neighbour)
				if !ok {
					continue
				}
				adv, ok := vec[dst]
				if !ok {
					continue
				}
				// Cost(A, B) + Cost(B, dst)
				cost = AddMetric(link.Cost, adv)
			}
			if !found || cost < best.Cost {
				best = state.Route{
					Cost: cost,
					Nh:   link.Neighbour,
				}
				found = true
			}
		}

		// destinations without any candidate are dropped from the vector entirely
		if found {
			newTable[dst] = best
		}
	}

	changed := !RoutesEqual(rs.Routes, newTable)
	rs.Routes = newTable
	return changed
}

func RoutesEqual(a, b map[state.NodeId]state.Route) bool {
	return maps.Equal(a, b)
}

// BuildForwardTable maps every destination except ourselves to the first link, in enumeration order,
// that leads to its next hop. Destinations whose next hop has no link are left out.
func BuildForwardTable(rs *state.RouterState) map[state.NodeId]state.Port {
	table := make(map[state.NodeId]state.Port)
	links := rs.Links.Links()
	for dst, route := range rs.Routes {
		if dst == rs.Id {
			continue
		}
		for _, link := range links {
			if link.Neighbour == route.Nh {
				table[dst] = link.Port
				break
			}
		}
	}
	return table
}

// BuildPrefixTable maps the prefixes of every forwardable destination to its port.
// Our own prefixes are not inserted, they are delivered locally.
func BuildPrefixTable(fwd map[state.NodeId]state.Port, prefixes map[state.NodeId][]netip.Prefix) *bart.Table[state.Port] {
	table := new(bart.Table[state.Port])
	for dst, port := range fwd {
		for _, p := range prefixes[dst] {
			table.Insert(p.Masked(), port)
		}
	}
	return table
}
