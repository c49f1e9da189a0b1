package protocol

import (
	"fmt"
	"net/netip"
	"slices"

	"github.com/encodeous/dvr/state"
)

type Kind uint8

const (
	// KindData packets are forwarded using the forwarding table and record the routers they cross.
	KindData Kind = iota
	// KindRouting packets carry an encoded distance vector to a direct neighbour.
	KindRouting
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindRouting:
		return "routing"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

type Packet struct {
	Kind Kind
	Src  state.NodeId
	Dst  state.NodeId
	// DstAddr is used for longest prefix forwarding of data packets that have no Dst.
	DstAddr netip.Addr
	// Id lets a host match a delivered data packet to the trace that sent it.
	Id      uint64
	Payload []byte
	Hops    []state.NodeId
}

func NewData(src, dst state.NodeId, payload []byte) *Packet {
	return &Packet{
		Kind:    KindData,
		Src:     src,
		Dst:     dst,
		Payload: payload,
	}
}

func NewRouting(src, dst state.NodeId, payload []byte) *Packet {
	return &Packet{
		Kind:    KindRouting,
		Src:     src,
		Dst:     dst,
		Payload: payload,
	}
}

func (p *Packet) IsRouting() bool {
	return p.Kind == KindRouting
}

// Clone returns a deep copy, so a forwarded packet never shares its hop list with the original.
func (p *Packet) Clone() *Packet {
	c := *p
	c.Payload = slices.Clone(p.Payload)
	c.Hops = slices.Clone(p.Hops)
	return &c
}

func (p *Packet) String() string {
	dst := string(p.Dst)
	if dst == "" && p.DstAddr.IsValid() {
		dst = p.DstAddr.String()
	}
	return fmt.Sprintf("(%s %s -> %s, %d bytes)", p.Kind, p.Src, dst, len(p.Payload))
}
