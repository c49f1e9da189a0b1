package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-broadcast"
	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
	"github.com/jellydator/ttlcache/v3"
)

var (
	ErrTraceExpired = errors.New("trace expired before reaching its destination")
	ErrUnknownNode  = errors.New("unknown router")
	ErrNoLink       = errors.New("no link between routers")
)

// RouteEvent is published on Fabric.Events for every router event.
type RouteEvent struct {
	Node  state.NodeId
	Event RouterEvent
	Desc  string
}

func (e RouteEvent) String() string {
	return fmt.Sprintf("[%s] %s: %s", e.Node, e.Event, e.Desc)
}

// fabricLink is a bidirectional in-process link. A packet in flight on a link that is removed is lost.
type fabricLink struct {
	a, b    state.NodeId
	pa, pb  state.Port
	cost    state.Metric
	latency time.Duration
}

// peer returns the other end of the link as seen from node.
func (l *fabricLink) peer(node state.NodeId, port state.Port) (state.NodeId, state.Port) {
	if node == l.a && port == l.pa {
		return l.b, l.pb
	}
	return l.a, l.pa
}

// Fabric runs many routers in one process, each on its own dispatch goroutine, joined by in-process links.
type Fabric struct {
	cfg     state.NetworkCfg
	log     *slog.Logger
	ctx     context.Context
	cancel  context.CancelCauseFunc
	wg      sync.WaitGroup
	nodes   map[state.NodeId]*state.State // fixed after Start
	traceId atomic.Uint64
	traces  *ttlcache.Cache[uint64, chan []state.NodeId]

	// Events carries RouteEvent values until every router has stopped
	Events broadcast.Broadcaster

	linkMu   sync.RWMutex
	links    []*fabricLink
	ports    map[state.NodeId]map[state.Port]*fabricLink
	nextPort map[state.NodeId]state.Port

	dumpMu sync.Mutex
	dumps  map[state.NodeId]string
}

func newFabric(ctx context.Context, cfg state.NetworkCfg, logger *slog.Logger) *Fabric {
	fctx, cancel := context.WithCancelCause(ctx)
	f := &Fabric{
		cfg:      cfg,
		log:      logger,
		ctx:      fctx,
		cancel:   cancel,
		nodes:    make(map[state.NodeId]*state.State),
		Events:   broadcast.NewBroadcaster(state.EventBufferSize),
		ports:    make(map[state.NodeId]map[state.Port]*fabricLink),
		nextPort: make(map[state.NodeId]state.Port),
		dumps:    make(map[state.NodeId]string),
	}
	f.traces = ttlcache.New[uint64, chan []state.NodeId](
		ttlcache.WithTTL[uint64, chan []state.NodeId](state.TraceTTL),
		ttlcache.WithDisableTouchOnHit[uint64, chan []state.NodeId](),
	)
	f.traces.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[uint64, chan []state.NodeId]) {
		if reason == ttlcache.EvictionReasonExpired {
			close(item.Value())
		}
	})
	go f.traces.Start()
	return f
}

func (f *Fabric) newNodeState(id state.NodeId) *state.State {
	ctx, cancel := context.WithCancelCause(f.ctx)
	return &state.State{
		Modules: make(map[string]state.NyModule),
		Env: &state.Env{
			DispatchChannel: make(chan func(*state.State) error, state.DispatchBufferSize),
			Id:              id,
			Context:         ctx,
			Cancel:          cancel,
			Log:             f.log.With("node", id),
		},
	}
}

func (f *Fabric) env(id state.NodeId) (*state.Env, error) {
	s, ok := f.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return s.Env, nil
}

// AddLink connects a and b with a new link and returns the port allocated on each side.
func (f *Fabric) AddLink(a, b state.NodeId, cost state.Metric, latency time.Duration) (state.Port, state.Port, error) {
	ea, err := f.env(a)
	if err != nil {
		return 0, 0, err
	}
	eb, err := f.env(b)
	if err != nil {
		return 0, 0, err
	}

	f.linkMu.Lock()
	f.nextPort[a]++
	f.nextPort[b]++
	link := &fabricLink{
		a: a, b: b,
		pa: f.nextPort[a], pb: f.nextPort[b],
		cost:    cost,
		latency: latency,
	}
	f.links = append(f.links, link)
	for _, end := range []state.Pair[state.NodeId, state.Port]{{V1: a, V2: link.pa}, {V1: b, V2: link.pb}} {
		if f.ports[end.V1] == nil {
			f.ports[end.V1] = make(map[state.Port]*fabricLink)
		}
		f.ports[end.V1][end.V2] = link
	}
	f.linkMu.Unlock()

	ea.Dispatch(func(s *state.State) error {
		Get[*NodeRouter](s).HandleNewLink(link.pa, b, cost)
		return nil
	})
	eb.Dispatch(func(s *state.State) error {
		Get[*NodeRouter](s).HandleNewLink(link.pb, a, cost)
		return nil
	})
	return link.pa, link.pb, nil
}

// RemoveLink takes down the oldest link between a and b.
func (f *Fabric) RemoveLink(a, b state.NodeId) error {
	f.linkMu.Lock()
	idx := slices.IndexFunc(f.links, func(l *fabricLink) bool {
		return state.MakeSortedPair(l.a, l.b) == state.MakeSortedPair(a, b)
	})
	if idx == -1 {
		f.linkMu.Unlock()
		return fmt.Errorf("%w: %s and %s", ErrNoLink, a, b)
	}
	link := f.links[idx]
	f.links = slices.Delete(f.links, idx, idx+1)
	delete(f.ports[link.a], link.pa)
	delete(f.ports[link.b], link.pb)
	f.linkMu.Unlock()

	for _, end := range []state.Pair[state.NodeId, state.Port]{{V1: link.a, V2: link.pa}, {V1: link.b, V2: link.pb}} {
		e, err := f.env(end.V1)
		if err != nil {
			return err
		}
		e.Dispatch(func(s *state.State) error {
			Get[*NodeRouter](s).HandleRemoveLink(end.V2)
			return nil
		})
	}
	return nil
}

func (f *Fabric) linkUp(link *fabricLink) bool {
	f.linkMu.RLock()
	defer f.linkMu.RUnlock()
	return f.ports[link.a][link.pa] == link
}

// transmit carries pkt over the link on port of node. Packets sent on a missing link are dropped silently.
func (f *Fabric) transmit(node state.NodeId, port state.Port, pkt *protocol.Packet) {
	f.linkMu.RLock()
	link := f.ports[node][port]
	f.linkMu.RUnlock()
	if link == nil {
		return
	}
	peer, peerPort := link.peer(node, port)
	e, err := f.env(peer)
	if err != nil {
		return
	}
	e.ScheduleTask(func(s *state.State) error {
		if !f.linkUp(link) {
			return nil
		}
		Get[*NodeRouter](s).HandlePacket(peerPort, pkt)
		return nil
	}, link.latency)
}

// Trace sends a data packet from src to dst and returns the routers it crossed.
func (f *Fabric) Trace(ctx context.Context, src, dst state.NodeId) ([]state.NodeId, error) {
	e, err := f.env(src)
	if err != nil {
		return nil, err
	}
	id := f.traceId.Add(1)
	done := make(chan []state.NodeId, 1)
	f.traces.Set(id, done, ttlcache.DefaultTTL)

	e.Dispatch(func(s *state.State) error {
		pkt := protocol.NewData(src, dst, nil)
		pkt.Id = id
		Get[*NodeRouter](s).Originate(pkt)
		return nil
	})

	select {
	case hops, ok := <-done:
		if !ok {
			return nil, ErrTraceExpired
		}
		return hops, nil
	case <-ctx.Done():
		f.traces.Delete(id)
		return nil, ctx.Err()
	case <-f.ctx.Done():
		return nil, context.Cause(f.ctx)
	}
}

func (f *Fabric) completeTrace(id uint64, hops []state.NodeId) {
	item, ok := f.traces.GetAndDelete(id)
	if !ok {
		return
	}
	item.Value() <- slices.Clone(hops)
}

// Dump returns the current debug dump of one router.
func (f *Fabric) Dump(id state.NodeId) (string, error) {
	e, err := f.env(id)
	if err != nil {
		return "", err
	}
	res, err := e.DispatchWait(func(s *state.State) (any, error) {
		return Get[*NodeRouter](s).String(), nil
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// Routes returns a copy of the current vector of one router.
func (f *Fabric) Routes(id state.NodeId) (map[state.NodeId]state.Route, error) {
	e, err := f.env(id)
	if err != nil {
		return nil, err
	}
	res, err := e.DispatchWait(func(s *state.State) (any, error) {
		return maps.Clone(Get[*NodeRouter](s).Routes), nil
	})
	if err != nil {
		return nil, err
	}
	return res.(map[state.NodeId]state.Route), nil
}

func (f *Fabric) saveDump(id state.NodeId, dump string) {
	f.dumpMu.Lock()
	defer f.dumpMu.Unlock()
	f.dumps[id] = dump
}

// runEvents applies the scheduled topology changes and traces, relative to when it was called.
func (f *Fabric) runEvents(events []state.EventCfg) {
	start := time.Now()
	for _, ev := range events {
		select {
		case <-f.ctx.Done():
			return
		case <-time.After(time.Until(start.Add(time.Duration(ev.At) * time.Millisecond))):
		}
		var err error
		switch ev.Kind {
		case state.EventLinkUp:
			_, _, err = f.AddLink(ev.A, ev.B, ev.Cost, time.Duration(ev.Latency)*time.Millisecond)
		case state.EventLinkDown:
			err = f.RemoveLink(ev.A, ev.B)
		case state.EventTrace:
			f.wg.Add(1)
			go func() {
				defer f.wg.Done()
				hops, err := f.Trace(f.ctx, ev.A, ev.B)
				if err != nil {
					f.log.Warn("trace failed", "src", ev.A, "dst", ev.B, "err", err)
					return
				}
				f.log.Info("trace complete", "src", ev.A, "dst", ev.B, "hops", hops)
			}()
		}
		if err != nil {
			f.log.Warn("failed to apply event", "kind", ev.Kind, "a", ev.A, "b", ev.B, "err", err)
		} else {
			f.log.Info("applied event", "kind", ev.Kind, "a", ev.A, "b", ev.B)
		}
	}
}

// Stop shuts every router down. It does not wait, see Wait.
func (f *Fabric) Stop(cause error) {
	f.cancel(cause)
}

// Wait blocks until every router has stopped, then returns their final debug dumps.
func (f *Fabric) Wait() map[state.NodeId]string {
	f.wg.Wait()
	f.traces.Stop()
	err := f.Events.Close()
	if err != nil {
		f.log.Error("failed to close event feed", "err", err)
	}
	f.dumpMu.Lock()
	defer f.dumpMu.Unlock()
	return maps.Clone(f.dumps)
}
