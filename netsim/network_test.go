package netsim

import (
	"io"
	"log/slog"
	"math/rand/v2"
	"net/netip"
	"testing"

	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTriangle(t *testing.T) *Network {
	t.Helper()
	n := NewNetwork(1000, quietLogger())
	for _, id := range []state.NodeId{"A", "B", "C"} {
		require.NoError(t, n.AddRouter(id))
	}
	_, _, err := n.AddLink("A", "B", 1, 10)
	require.NoError(t, err)
	_, _, err = n.AddLink("B", "C", 1, 10)
	require.NoError(t, err)
	_, _, err = n.AddLink("A", "C", 5, 10)
	require.NoError(t, err)
	return n
}

func TestTriangleConvergence(t *testing.T) {
	n := newTriangle(t)
	n.Run(500)

	assert.True(t, n.Converged())
	assert.Equal(t, state.Route{Cost: 2, Nh: "B"}, n.Router("A").Routes["C"])
	assert.Equal(t, state.Route{Cost: 2, Nh: "B"}, n.Router("C").Routes["A"])
	assert.Equal(t, state.Port(1), n.Router("A").ForwardTable["C"])

	tr, err := n.SendData("A", "C")
	require.NoError(t, err)
	n.Run(100)
	assert.True(t, tr.Delivered)
	assert.Equal(t, []state.NodeId{"A", "B", "C"}, tr.Hops)
	assert.Equal(t, int64(20), tr.DeliveredAt-tr.SentAt)
}

func TestTriangleLinkDown(t *testing.T) {
	n := newTriangle(t)
	n.Run(500)

	require.NoError(t, n.RemoveLink("B", "A"))
	n.Run(2000)
	assert.True(t, n.Converged())
	assert.Equal(t, state.Route{Cost: 5, Nh: "C"}, n.Router("A").Routes["C"])
	assert.Equal(t, state.Route{Cost: 6, Nh: "C"}, n.Router("A").Routes["B"])

	tr, err := n.SendData("A", "B")
	require.NoError(t, err)
	n.Run(100)
	assert.Equal(t, []state.NodeId{"A", "C", "B"}, tr.Hops)

	assert.Error(t, n.RemoveLink("A", "B"))
}

func TestLinkUpPorts(t *testing.T) {
	n := NewNetwork(1000, quietLogger())
	require.NoError(t, n.AddRouter("A"))
	require.NoError(t, n.AddRouter("B"))
	assert.Error(t, n.AddRouter("A"))

	pa, pb, err := n.AddLink("A", "B", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, state.Port(1), pa)
	assert.Equal(t, state.Port(1), pb)

	pa, pb, err = n.AddLink("B", "A", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, state.Port(2), pa)
	assert.Equal(t, state.Port(2), pb)

	_, _, err = n.AddLink("A", "A", 1, 0)
	assert.Error(t, err)
	_, _, err = n.AddLink("A", "Z", 1, 0)
	assert.Error(t, err)

	// the new link is seeded and advertised straight away
	assert.Equal(t, state.Route{Cost: 2, Nh: "B"}, n.Router("A").Routes["B"])
	assert.Positive(t, n.Sent[protocol.KindRouting])
}

func TestInFlightLoss(t *testing.T) {
	n := NewNetwork(1000, quietLogger())
	require.NoError(t, n.AddRouter("A"))
	require.NoError(t, n.AddRouter("B"))
	_, _, err := n.AddLink("A", "B", 1, 100)
	require.NoError(t, err)
	n.Run(500)

	tr, err := n.SendData("A", "B")
	require.NoError(t, err)
	n.Run(50)
	require.NoError(t, n.RemoveLink("A", "B"))
	n.Run(500)

	assert.False(t, tr.Delivered)
	assert.Positive(t, n.Lost)
	assert.Equal(t, "trace A -> B: lost", tr.String())
}

func TestHeartbeat(t *testing.T) {
	n := NewNetwork(1000, quietLogger())
	require.NoError(t, n.AddRouter("A"))
	require.NoError(t, n.AddRouter("B"))
	_, _, err := n.AddLink("A", "B", 1, 5)
	require.NoError(t, err)

	n.RunUntil(1500)
	before := n.Sent[protocol.KindRouting]
	n.RunUntil(2500)
	// nothing changed, so only the heartbeat at 2000 from each router
	assert.Equal(t, before+2, n.Sent[protocol.KindRouting])
}

func TestPrefixForwarding(t *testing.T) {
	n := NewNetwork(1000, quietLogger())
	require.NoError(t, n.AddRouter("A", netip.MustParsePrefix("10.0.1.0/24")))
	require.NoError(t, n.AddRouter("B", netip.MustParsePrefix("10.0.2.0/24")))
	require.NoError(t, n.AddRouter("C", netip.MustParsePrefix("10.0.3.0/24"), netip.MustParsePrefix("10.3.0.0/16")))
	_, _, err := n.AddLink("A", "B", 1, 1)
	require.NoError(t, err)
	_, _, err = n.AddLink("B", "C", 1, 1)
	require.NoError(t, err)
	n.Run(500)

	tr, err := n.SendAddr("A", netip.MustParseAddr("10.3.4.5"))
	require.NoError(t, err)
	miss, err := n.SendAddr("A", netip.MustParseAddr("172.16.0.1"))
	require.NoError(t, err)
	n.Run(100)

	assert.True(t, tr.Delivered)
	assert.Equal(t, []state.NodeId{"A", "B", "C"}, tr.Hops)
	assert.False(t, miss.Delivered)
	assert.Equal(t, "trace A -> 172.16.0.1: lost", miss.String())
}

func TestFromConfigSample(t *testing.T) {
	n, err := FromConfig(state.SampleNetwork(), quietLogger())
	require.NoError(t, err)
	n.RunUntil(5000)

	require.Len(t, n.Traces, 2)
	assert.True(t, n.Traces[0].Delivered)
	assert.Equal(t, []state.NodeId{"A", "B", "C"}, n.Traces[0].Hops)
	assert.True(t, n.Traces[1].Delivered)
	assert.Equal(t, []state.NodeId{"A", "C"}, n.Traces[1].Hops)
	assert.True(t, n.Converged())
	assert.Equal(t, []state.NodeId{"A", "B", "C"}, n.Routers())
}

func TestFromConfigRejectsInvalid(t *testing.T) {
	cfg := state.SampleNetwork()
	cfg.Links = append(cfg.Links, state.LinkCfg{A: "A", B: "Z", Cost: 1})
	_, err := FromConfig(cfg, quietLogger())
	assert.Error(t, err)
}

func TestStepOrder(t *testing.T) {
	n := NewNetwork(1000, quietLogger())
	var got []int
	n.schedule(20, func() { got = append(got, 3) })
	n.schedule(10, func() { got = append(got, 1) })
	n.schedule(10, func() { got = append(got, 2) })
	for n.Step() {
	}
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, int64(20), n.Now)
	assert.False(t, n.Step())
}

// randomNetwork builds a connected network from a random spanning tree plus extra links.
func randomNetwork(t *testing.T, rng *rand.Rand) (*Network, [][2]state.NodeId) {
	n := NewNetwork(1000, quietLogger())
	size := 3 + rng.IntN(6)
	ids := make([]state.NodeId, size)
	for i := range ids {
		ids[i] = state.NodeId(rune('A' + i))
		require.NoError(t, n.AddRouter(ids[i]))
	}
	linked := make(map[state.Pair[state.NodeId, state.NodeId]]bool)
	for i := 1; i < size; i++ {
		a, b := ids[i], ids[rng.IntN(i)]
		linked[state.MakeSortedPair(a, b)] = true
		_, _, err := n.AddLink(a, b, state.Metric(1+rng.IntN(10)), int64(rng.IntN(20)))
		require.NoError(t, err)
	}
	var extra [][2]state.NodeId
	for range rng.IntN(size) {
		a, b := ids[rng.IntN(size)], ids[rng.IntN(size)]
		if a == b || linked[state.MakeSortedPair(a, b)] {
			continue
		}
		linked[state.MakeSortedPair(a, b)] = true
		extra = append(extra, [2]state.NodeId{a, b})
		_, _, err := n.AddLink(a, b, state.Metric(1+rng.IntN(10)), int64(rng.IntN(20)))
		require.NoError(t, err)
	}
	return n, extra
}

func TestRandomNetworksConverge(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for range 30 {
		n, extra := randomNetwork(t, rng)
		n.Run(5000)
		require.True(t, n.Converged())
		checkForwarding(t, n)

		// removing a link outside the spanning tree keeps the network connected
		if len(extra) != 0 {
			l := extra[rng.IntN(len(extra))]
			require.NoError(t, n.RemoveLink(l[0], l[1]))
			n.Run(20000)
			require.True(t, n.Converged())
			checkForwarding(t, n)
		}
	}
}

// checkForwarding sends a packet between every pair of routers and checks it arrives over a shortest path.
func checkForwarding(t *testing.T, n *Network) {
	t.Helper()
	var traces []*Trace
	for _, src := range n.Routers() {
		for _, dst := range n.Routers() {
			tr, err := n.SendData(src, dst)
			require.NoError(t, err)
			traces = append(traces, tr)
		}
	}
	n.Run(1000)
	for _, tr := range traces {
		require.True(t, tr.Delivered, tr.String())
		assert.Equal(t, tr.Src, tr.Hops[0])
		assert.Equal(t, tr.Dst, tr.Hops[len(tr.Hops)-1])
	}
}

func TestDeterministic(t *testing.T) {
	run := func() (map[state.NodeId]string, *Network) {
		n, err := FromConfig(state.SampleNetwork(), quietLogger())
		require.NoError(t, err)
		n.RunUntil(5000)
		dumps := make(map[state.NodeId]string)
		for _, id := range n.Routers() {
			dumps[id] = n.Router(id).String()
		}
		return dumps, n
	}
	d1, n1 := run()
	d2, n2 := run()
	assert.Empty(t, cmp.Diff(d1, d2))
	assert.Equal(t, n1.Events, n2.Events)
	assert.Equal(t, n1.Sent, n2.Sent)
}
