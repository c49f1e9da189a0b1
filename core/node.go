package core

import (
	"time"

	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
)

// NodeRouter hosts a Router inside a node's State. Every method runs on the node's dispatch goroutine.
type NodeRouter struct {
	*Router
	fabric *Fabric
	env    *state.Env
	start  time.Time
}

func (n *NodeRouter) Init(s *state.State) error {
	s.Log.Debug("init router")
	n.env = s.Env
	n.start = time.Now()
	n.Router = NewRouter(s.Id, n.fabric.cfg.Heartbeat, n, WithPrefixes(n.fabric.cfg.Prefixes()))
	s.RepeatTask(func(s *state.State) error {
		n.HandleTime(time.Since(n.start).Milliseconds())
		return nil
	}, state.TickInterval)
	return nil
}

func (n *NodeRouter) Cleanup(s *state.State) error {
	n.fabric.saveDump(s.Id, n.String())
	return nil
}

func (n *NodeRouter) Send(port state.Port, pkt *protocol.Packet) {
	n.fabric.transmit(n.env.Id, port, pkt)
}

func (n *NodeRouter) Deliver(pkt *protocol.Packet) {
	n.env.Log.Info("delivered", "src", pkt.Src, "hops", pkt.Hops)
	if pkt.Id != 0 {
		n.fabric.completeTrace(pkt.Id, pkt.Hops)
	}
}

func (n *NodeRouter) Log(event RouterEvent, desc string, args ...any) {
	n.env.Log.Log(n.env.Context, EventLevel(event), desc, append([]any{"event", event}, args...)...)
	n.fabric.Events.Submit(RouteEvent{
		Node:  n.env.Id,
		Event: event,
		Desc:  desc,
	})
}
