package core

import (
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/encodeous/dvr/perf"
	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
	"github.com/gaissmai/bart"
)

// Router is the distance vector engine of one node. It is driven entirely by its Handle* methods,
// which must be called from a single goroutine.
type Router struct {
	*state.RouterState
	// Heartbeat is the interval between unconditional broadcasts, in the host's time unit
	Heartbeat     int64
	LastBroadcast int64
	// ForwardTable maps destinations to output ports
	ForwardTable map[state.NodeId]state.Port
	// PrefixTable maps the prefixes owned by reachable routers to output ports
	PrefixTable *bart.Table[state.Port]
	Prefixes    map[state.NodeId][]netip.Prefix

	host Host
}

type Option func(r *Router)

// WithPrefixes sets the ip ranges owned by each router, enabling address based forwarding.
func WithPrefixes(prefixes map[state.NodeId][]netip.Prefix) Option {
	return func(r *Router) {
		r.Prefixes = prefixes
	}
}

func NewRouter(id state.NodeId, heartbeat int64, host Host, opts ...Option) *Router {
	r := &Router{
		RouterState:  state.NewRouterState(id),
		Heartbeat:    heartbeat,
		ForwardTable: make(map[state.NodeId]state.Port),
		PrefixTable:  new(bart.Table[state.Port]),
		host:         host,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) HandlePacket(port state.Port, pkt *protocol.Packet) {
	if pkt == nil {
		return
	}
	switch pkt.Kind {
	case protocol.KindData:
		r.Originate(pkt)
	case protocol.KindRouting:
		vec, err := protocol.DecodeVector(pkt.Payload)
		if err != nil {
			perf.DecodeFailures.Add(1)
			r.host.Log(DecodeFailed, "dropped routing update", "from", pkt.Src, "port", port, "err", err)
			return
		}
		perf.UpdatesReceived.Add(1)
		r.Neighbours.Set(pkt.Src, vec)
		r.update(r.Routes)
	default:
		r.host.Log(UnknownPacket, "dropped packet", "port", port, "pkt", pkt)
	}
}

func (r *Router) HandleNewLink(port state.Port, neigh state.NodeId, cost state.Metric) {
	// compare against the vector before seeding, so a new neighbour always gets our vector and the forwarding table covers it
	prev := r.Routes
	r.Links.Add(port, neigh, cost)
	r.host.Log(LinkAdded, "link added", "port", port, "neigh", neigh, "cost", cost)

	// seed the direct route so the neighbour is a destination even before it advertises anything
	if cur, ok := r.Routes[neigh]; !ok || cost < cur.Cost {
		seeded := maps.Clone(r.Routes)
		seeded[neigh] = state.Route{Cost: cost, Nh: neigh}
		r.Routes = seeded
	}
	r.Neighbours.Ensure(neigh)
	r.update(prev)
}

func (r *Router) HandleRemoveLink(port state.Port) {
	link, ok := r.Links.Remove(port)
	if !ok {
		r.host.Log(UnknownLink, "ignored removal of unknown link", "port", port)
		return
	}
	r.host.Log(LinkRemoved, "link removed", "port", port, "neigh", link.Neighbour)
	r.Neighbours.Remove(link.Neighbour)
	r.update(r.Routes)
}

// HandleTime broadcasts our vector once a heartbeat has elapsed since the last periodic broadcast,
// whether or not anything changed.
func (r *Router) HandleTime(now int64) {
	if now-r.LastBroadcast < r.Heartbeat {
		return
	}
	r.LastBroadcast = now
	r.host.Log(Heartbeat, "periodic update", "now", now)
	r.broadcast()
}

// Originate forwards a data packet, either one received from a neighbour or one created on this node.
func (r *Router) Originate(pkt *protocol.Packet) {
	out := pkt.Clone()
	out.Hops = append(out.Hops, r.Id)

	if r.isLocal(out) {
		perf.DataDelivered.Add(1)
		r.host.Log(Delivered, "delivered", "pkt", out, "hops", out.Hops)
		if d, ok := r.host.(Deliverer); ok {
			d.Deliver(out)
		}
		return
	}

	port, ok := r.Lookup(out)
	if !ok {
		perf.DataDropped.Add(1)
		r.host.Log(NoRoute, "dropped packet without route", "pkt", out)
		return
	}
	perf.DataForwarded.Add(1)
	r.host.Log(Forwarded, "forwarded", "pkt", out, "port", port)
	r.host.Send(port, out)
}

// Lookup finds the output port for a data packet, by destination id or else by destination address.
func (r *Router) Lookup(pkt *protocol.Packet) (state.Port, bool) {
	if pkt.Dst != "" {
		port, ok := r.ForwardTable[pkt.Dst]
		return port, ok
	}
	if pkt.DstAddr.IsValid() {
		return r.PrefixTable.Lookup(pkt.DstAddr)
	}
	return 0, false
}

func (r *Router) isLocal(pkt *protocol.Packet) bool {
	if pkt.Dst != "" {
		return pkt.Dst == r.Id
	}
	if !pkt.DstAddr.IsValid() {
		return false
	}
	return slices.ContainsFunc(r.Prefixes[r.Id], func(p netip.Prefix) bool {
		return p.Contains(pkt.DstAddr)
	})
}

// update recomputes our vector, and if it differs from prev, rebuilds the forwarding tables and
// sends a triggered update.
func (r *Router) update(prev map[state.NodeId]state.Route) {
	start := time.Now()
	ComputeRoutes(r.RouterState)
	perf.RecomputeLatency.Add(float64(time.Since(start).Microseconds()))

	if RoutesEqual(prev, r.Routes) {
		return
	}
	r.host.Log(RouteChanged, "routes changed", "routes", len(r.Routes))
	r.rebuild()
	r.host.Log(TriggeredUpdate, "triggered update")
	r.broadcast()
}

func (r *Router) rebuild() {
	r.ForwardTable = BuildForwardTable(r.RouterState)
	r.PrefixTable = BuildPrefixTable(r.ForwardTable, r.Prefixes)
}

// broadcast sends the same vector, costs only, to every link.
func (r *Router) broadcast() {
	payload, err := protocol.EncodeVector(r.Advertisement())
	if err != nil {
		r.host.Log(InconsistentState, "failed to encode vector", "err", err)
		return
	}
	for _, link := range r.Links.Links() {
		perf.UpdatesSent.Add(1)
		r.host.Send(link.Port, protocol.NewRouting(r.Id, link.Neighbour, slices.Clone(payload)))
	}
}

// String dumps the vector, the forwarding table and the links, for diagnostics only.
func (r *Router) String() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("Router(addr=%s)\n", r.Id))

	sb.WriteString("\ndistance vector:\n")
	for _, dst := range r.SortedDestinations() {
		route := r.Routes[dst]
		sb.WriteString(fmt.Sprintf("  dst: %s, cost: %d, nh: %s\n", dst, route.Cost, route.Nh))
	}

	sb.WriteString("\nforwarding table:\n")
	for _, dst := range slices.Sorted(maps.Keys(r.ForwardTable)) {
		sb.WriteString(fmt.Sprintf("  dst: %s, port: %d\n", dst, r.ForwardTable[dst]))
	}

	sb.WriteString("\nneighbours:\n")
	for _, link := range r.Links.Links() {
		sb.WriteString(fmt.Sprintf("  port: %d, addr: %s, cost: %d\n", link.Port, link.Neighbour, link.Cost))
	}
	return sb.String()
}
