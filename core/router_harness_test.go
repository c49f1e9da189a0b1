package core

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
	"github.com/google/go-cmp/cmp"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

// RouterHarness is a Host that records everything the router does.
type RouterHarness struct {
	actions []HarnessEvent
	sent    []SentPacket
}

type SentPacket struct {
	Port state.Port
	Pkt  *protocol.Packet
}

func (h *RouterHarness) Send(port state.Port, pkt *protocol.Packet) {
	h.sent = append(h.sent, SentPacket{port, pkt})
	h.actions = append(h.actions, MakeEvent("SEND", port, pkt.Kind, pkt.Dst))
}

func (h *RouterHarness) Deliver(pkt *protocol.Packet) {
	h.actions = append(h.actions, MakeEvent("DELIVER", pkt.Src, pkt.Dst))
}

func (h *RouterHarness) Log(event RouterEvent, desc string, args ...any) {
	x := make([]any, 0)
	x = append(x, event)
	x = append(x, desc)
	x = append(x, args...)
	h.actions = append(h.actions, MakeEvent("LOG", x...))
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

// GetActions returns and clears every recorded action except logs.
func (h *RouterHarness) GetActions() HarnessEvents {
	x := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message != "LOG" {
			x = append(x, action)
		}
	}
	h.actions = make([]HarnessEvent, 0)
	return x
}

// GetLogs returns and clears the recorded router events.
func (h *RouterHarness) GetLogs() []RouterEvent {
	x := make([]RouterEvent, 0)
	rest := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message == "LOG" {
			x = append(x, action.Args[0].(RouterEvent))
		} else {
			rest = append(rest, action)
		}
	}
	h.actions = rest
	return x
}

// TakeSent returns and clears the packets sent so far.
func (h *RouterHarness) TakeSent() []SentPacket {
	x := h.sent
	h.sent = nil
	return x
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg {
			if len(event.Args) >= len(args) {
				match := true
				for i, arg := range args {
					if !cmp.Equal(event.Args[i], arg) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

// MakeRouterState builds a router state with the given links, in order, and no neighbour vectors.
func MakeRouterState(id state.NodeId, links ...state.Link) *state.RouterState {
	rs := state.NewRouterState(id)
	for _, l := range links {
		rs.Links.Add(l.Port, l.Neighbour, l.Cost)
		rs.Neighbours.Ensure(l.Neighbour)
	}
	return rs
}

// RoutingUpdate encodes vec as a routing packet from neigh.
func RoutingUpdate(t *testing.T, from, to state.NodeId, vec state.Vector) *protocol.Packet {
	t.Helper()
	payload, err := protocol.EncodeVector(vec)
	if err != nil {
		t.Fatal(err)
	}
	return protocol.NewRouting(from, to, payload)
}

// DecodeSent decodes the vector carried by a routing packet.
func DecodeSent(t *testing.T, sp SentPacket) state.Vector {
	t.Helper()
	vec, err := protocol.DecodeVector(sp.Pkt.Payload)
	if err != nil {
		t.Fatal(err)
	}
	return vec
}
