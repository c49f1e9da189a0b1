package netsim

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"

	"github.com/encodeous/dvr/core"
	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
)

// Trace records the routers a data packet crossed.
type Trace struct {
	Id          uint64
	Src, Dst    state.NodeId
	Addr        netip.Addr
	SentAt      int64
	Hops        []state.NodeId
	Delivered   bool
	DeliveredAt int64
}

func (t *Trace) String() string {
	dst := string(t.Dst)
	if dst == "" {
		dst = t.Addr.String()
	}
	if !t.Delivered {
		return fmt.Sprintf("trace %s -> %s: lost", t.Src, dst)
	}
	return fmt.Sprintf("trace %s -> %s: %v (%d ms)", t.Src, dst, t.Hops, t.DeliveredAt-t.SentAt)
}

type link struct {
	a, b    state.NodeId
	pa, pb  state.Port
	cost    state.Metric
	latency int64
}

// node is the Host of one simulated router.
type node struct {
	*core.Router
	net      *Network
	ports    map[state.Port]*link
	nextPort state.Port
}

func (n *node) Send(port state.Port, pkt *protocol.Packet) {
	l, ok := n.ports[port]
	if !ok {
		return
	}
	peer, peerPort := l.b, l.pb
	if l.b == n.Id && l.pb == port {
		peer, peerPort = l.a, l.pa
	}
	n.net.Sent[pkt.Kind]++
	n.net.schedule(n.net.Now+l.latency, func() {
		dst := n.net.routers[peer]
		if dst.ports[peerPort] != l {
			// the link went down while the packet was in flight
			n.net.Lost++
			return
		}
		dst.HandlePacket(peerPort, pkt)
	})
}

func (n *node) Deliver(pkt *protocol.Packet) {
	t, ok := n.net.traces[pkt.Id]
	if !ok {
		return
	}
	delete(n.net.traces, pkt.Id)
	t.Hops = slices.Clone(pkt.Hops)
	t.Delivered = true
	t.DeliveredAt = n.net.Now
}

func (n *node) Log(event core.RouterEvent, desc string, args ...any) {
	n.net.Events[event]++
	n.net.log.Log(context.Background(), core.EventLevel(event), desc, append([]any{"t", n.net.Now, "node", n.Id, "event", event}, args...)...)
}

// Network is a deterministic discrete-event simulation of routers joined by links with latency.
// Time is in milliseconds and only advances through Step and RunUntil. It is not safe for concurrent use.
type Network struct {
	Now          int64
	Heartbeat    int64
	TickInterval int64

	// Events counts router events by kind, Sent counts packets handed to links, Lost counts packets dropped in flight
	Events map[core.RouterEvent]int
	Sent   map[protocol.Kind]int
	Lost   int
	Traces []*Trace

	log      *slog.Logger
	queue    eventQueue
	seq      uint64
	routers  map[state.NodeId]*node
	order    []state.NodeId
	links    []*link
	prefixes map[state.NodeId][]netip.Prefix
	traces   map[uint64]*Trace
	traceId  uint64
	ticking  bool
}

func NewNetwork(heartbeat int64, logger *slog.Logger) *Network {
	return &Network{
		Heartbeat:    heartbeat,
		TickInterval: state.SimTickInterval,
		Events:       make(map[core.RouterEvent]int),
		Sent:         make(map[protocol.Kind]int),
		log:          logger,
		routers:      make(map[state.NodeId]*node),
		prefixes:     make(map[state.NodeId][]netip.Prefix),
		traces:       make(map[uint64]*Trace),
	}
}

// FromConfig builds a network from cfg, with its links up at time 0 and its events scheduled.
func FromConfig(cfg state.NetworkCfg, logger *slog.Logger) (*Network, error) {
	state.ExpandNetworkConfig(&cfg)
	err := state.NetworkConfigValidator(&cfg)
	if err != nil {
		return nil, err
	}
	n := NewNetwork(cfg.Heartbeat, logger)
	for _, r := range cfg.Routers {
		err = n.AddRouter(r.Id, r.Prefixes...)
		if err != nil {
			return nil, err
		}
	}
	links, err := cfg.ExpandLinks()
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		_, _, err = n.AddLink(l.A, l.B, l.Cost, l.Latency)
		if err != nil {
			return nil, err
		}
	}
	for _, ev := range cfg.Events {
		n.schedule(ev.At, func() {
			var err error
			switch ev.Kind {
			case state.EventLinkUp:
				_, _, err = n.AddLink(ev.A, ev.B, ev.Cost, ev.Latency)
			case state.EventLinkDown:
				err = n.RemoveLink(ev.A, ev.B)
			case state.EventTrace:
				_, err = n.SendData(ev.A, ev.B)
			}
			if err != nil {
				n.log.Warn("failed to apply event", "t", n.Now, "kind", ev.Kind, "a", ev.A, "b", ev.B, "err", err)
			}
		})
	}
	return n, nil
}

// AddRouter adds a router that owns the given prefixes. Prefixes are shared by every router in the network.
func (n *Network) AddRouter(id state.NodeId, prefixes ...netip.Prefix) error {
	if _, ok := n.routers[id]; ok {
		return fmt.Errorf("router %s already exists", id)
	}
	if len(prefixes) != 0 {
		n.prefixes[id] = slices.Clone(prefixes)
	}
	nd := &node{
		net:   n,
		ports: make(map[state.Port]*link),
	}
	nd.Router = core.NewRouter(id, n.Heartbeat, nd, core.WithPrefixes(n.prefixes))
	n.routers[id] = nd
	n.order = append(n.order, id)
	slices.Sort(n.order)
	if !n.ticking {
		n.ticking = true
		n.schedule(n.Now, n.tick)
	}
	return nil
}

func (n *Network) Router(id state.NodeId) *core.Router {
	nd, ok := n.routers[id]
	if !ok {
		return nil
	}
	return nd.Router
}

// Routers returns the router ids in sorted order.
func (n *Network) Routers() []state.NodeId {
	return slices.Clone(n.order)
}

// AddLink connects a and b and returns the port allocated on each side.
func (n *Network) AddLink(a, b state.NodeId, cost state.Metric, latency int64) (state.Port, state.Port, error) {
	ra, ok := n.routers[a]
	if !ok {
		return 0, 0, fmt.Errorf("router %s not defined", a)
	}
	rb, ok := n.routers[b]
	if !ok {
		return 0, 0, fmt.Errorf("router %s not defined", b)
	}
	if a == b {
		return 0, 0, fmt.Errorf("link from %s to itself", a)
	}
	ra.nextPort++
	rb.nextPort++
	l := &link{a: a, b: b, pa: ra.nextPort, pb: rb.nextPort, cost: cost, latency: latency}
	n.links = append(n.links, l)
	ra.ports[l.pa] = l
	rb.ports[l.pb] = l
	ra.HandleNewLink(l.pa, b, cost)
	rb.HandleNewLink(l.pb, a, cost)
	return l.pa, l.pb, nil
}

// RemoveLink takes down the oldest link between a and b. Packets in flight on it are lost.
func (n *Network) RemoveLink(a, b state.NodeId) error {
	idx := slices.IndexFunc(n.links, func(l *link) bool {
		return state.MakeSortedPair(l.a, l.b) == state.MakeSortedPair(a, b)
	})
	if idx == -1 {
		return fmt.Errorf("no link between %s and %s", a, b)
	}
	l := n.links[idx]
	n.links = slices.Delete(n.links, idx, idx+1)
	ra, rb := n.routers[l.a], n.routers[l.b]
	delete(ra.ports, l.pa)
	delete(rb.ports, l.pb)
	ra.HandleRemoveLink(l.pa)
	rb.HandleRemoveLink(l.pb)
	return nil
}

// SendData originates a data packet at src and returns the trace that records its path.
func (n *Network) SendData(src, dst state.NodeId) (*Trace, error) {
	return n.send(src, protocol.NewData(src, dst, nil))
}

// SendAddr originates a data packet for an address, forwarded by longest prefix match.
func (n *Network) SendAddr(src state.NodeId, addr netip.Addr) (*Trace, error) {
	pkt := protocol.NewData(src, "", nil)
	pkt.DstAddr = addr
	return n.send(src, pkt)
}

func (n *Network) send(src state.NodeId, pkt *protocol.Packet) (*Trace, error) {
	r, ok := n.routers[src]
	if !ok {
		return nil, fmt.Errorf("router %s not defined", src)
	}
	n.traceId++
	t := &Trace{Id: n.traceId, Src: src, Dst: pkt.Dst, Addr: pkt.DstAddr, SentAt: n.Now}
	n.traces[t.Id] = t
	n.Traces = append(n.Traces, t)
	pkt.Id = t.Id
	r.Originate(pkt)
	return t, nil
}

func (n *Network) schedule(at int64, run func()) {
	n.seq++
	heap.Push(&n.queue, &event{at: max(at, n.Now), seq: n.seq, run: run})
}

func (n *Network) tick() {
	for _, id := range n.order {
		n.routers[id].HandleTime(n.Now)
	}
	n.schedule(n.Now+n.TickInterval, n.tick)
}

// Step runs the next event and reports whether there was one.
func (n *Network) Step() bool {
	if n.queue.Len() == 0 {
		return false
	}
	e := heap.Pop(&n.queue).(*event)
	n.Now = e.at
	e.run()
	return true
}

// RunUntil runs every event scheduled up to and including t, then sets the clock to t.
func (n *Network) RunUntil(t int64) {
	for {
		e := n.queue.peek()
		if e == nil || e.at > t {
			break
		}
		n.Step()
	}
	n.Now = max(n.Now, t)
}

// Run advances the clock by d milliseconds.
func (n *Network) Run(d int64) {
	n.RunUntil(n.Now + d)
}
