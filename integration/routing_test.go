//go:build integration

package integration

import (
	"fmt"
	"testing"

	"github.com/encodeous/dvr/state"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestInProcessRouting(t *testing.T) {
	defer goleak.VerifyNone(t)

	vh := &VirtualHarness{}
	var ids []state.NodeId
	for i := range 8 {
		id := state.NodeId(fmt.Sprintf("n%d", i))
		ids = append(ids, id)
		vh.NewNode(id, fmt.Sprintf("10.0.%d.0/24", i))
	}
	// a ring, every node links to the next
	for i := range ids {
		vh.AddLink(ids[i], ids[(i+1)%len(ids)], 1).Latency = 5
	}
	vh.Start(t)
	defer vh.Stop()

	// the opposite side of the ring is 4 hops either way
	vh.WaitForRoute(t, "n0", "n4", state.Route{Cost: 4, Nh: "n1"})
	vh.WaitForRoute(t, "n0", "n3", state.Route{Cost: 3, Nh: "n1"})
	vh.WaitForRoute(t, "n0", "n5", state.Route{Cost: 3, Nh: "n7"})

	for _, dst := range ids {
		hops := vh.Trace(t, "n0", dst)
		assert.Equal(t, dst, hops[len(hops)-1])
		assert.LessOrEqual(t, len(hops), 5)
	}
}

func TestGraphShorthand(t *testing.T) {
	defer goleak.VerifyNone(t)

	vh := &VirtualHarness{}
	for _, id := range []state.NodeId{"a", "b", "c", "d"} {
		vh.NewNode(id, "")
	}
	vh.Cfg.Graph = []string{
		"left = a, b",
		"right = c, d",
		"left, right",
	}
	vh.Start(t)
	defer vh.Stop()

	// links only cross between groups
	vh.WaitForRoute(t, "a", "c", state.Route{Cost: 1, Nh: "c"})
	vh.WaitForRoute(t, "a", "b", state.Route{Cost: 2, Nh: "c"})
}
