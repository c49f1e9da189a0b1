package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/encodeous/dvr/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func triangleCfg() state.NetworkCfg {
	return state.NetworkCfg{
		Heartbeat: 100,
		Routers:   []state.RouterCfg{{Id: "A"}, {Id: "B"}, {Id: "C"}},
		Links: []state.LinkCfg{
			{A: "A", B: "B", Cost: 1},
			{A: "B", B: "C", Cost: 1},
			{A: "A", B: "C", Cost: 5},
		},
	}
}

func routeIs(t *testing.T, f *Fabric, node, dst state.NodeId, want state.Route) func() bool {
	return func() bool {
		routes, err := f.Routes(node)
		if err != nil {
			t.Log(err)
			return false
		}
		return routes[dst] == want
	}
}

func TestFabricTriangle(t *testing.T) {
	defer goleak.VerifyNone(t)

	f, err := Start(context.Background(), triangleCfg(), quietLogger())
	require.NoError(t, err)

	events := make(chan any, 16)
	seen := make(chan RouteEvent, 1)
	done := make(chan struct{})
	f.Events.Register(events)
	go func() {
		for {
			select {
			case ev := <-events:
				select {
				case seen <- ev.(RouteEvent):
				default:
				}
			case <-done:
				return
			}
		}
	}()

	assert.Eventually(t, routeIs(t, f, "A", "C", state.Route{Cost: 2, Nh: "B"}), 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, routeIs(t, f, "C", "A", state.Route{Cost: 2, Nh: "B"}), 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	hops, err := f.Trace(ctx, "A", "C")
	cancel()
	require.NoError(t, err)
	assert.Equal(t, []state.NodeId{"A", "B", "C"}, hops)

	select {
	case ev := <-seen:
		assert.NotEmpty(t, ev.Node)
	case <-time.After(2 * time.Second):
		t.Error("no route events published")
	}

	require.NoError(t, f.RemoveLink("A", "B"))
	assert.Eventually(t, routeIs(t, f, "A", "C", state.Route{Cost: 5, Nh: "C"}), 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, routeIs(t, f, "A", "B", state.Route{Cost: 6, Nh: "C"}), 5*time.Second, 10*time.Millisecond)

	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	hops, err = f.Trace(ctx, "A", "C")
	cancel()
	require.NoError(t, err)
	assert.Equal(t, []state.NodeId{"A", "C"}, hops)

	dump, err := f.Dump("A")
	require.NoError(t, err)
	assert.Contains(t, dump, "Router(addr=A)")

	assert.ErrorIs(t, f.RemoveLink("A", "B"), ErrNoLink)
	_, err = f.Dump("Z")
	assert.ErrorIs(t, err, ErrUnknownNode)

	f.Stop(errors.New("test done"))
	dumps := f.Wait()
	close(done)
	assert.Len(t, dumps, 3)
	assert.Contains(t, dumps["B"], "Router(addr=B)")
}

func TestFabricScheduledEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := state.NetworkCfg{
		Heartbeat: 100,
		Routers:   []state.RouterCfg{{Id: "A"}, {Id: "B"}},
		Events: []state.EventCfg{
			{At: 20, Kind: state.EventLinkUp, A: "A", B: "B", Cost: 3},
		},
	}
	f, err := Start(context.Background(), cfg, quietLogger())
	require.NoError(t, err)

	assert.Eventually(t, routeIs(t, f, "A", "B", state.Route{Cost: 3, Nh: "B"}), 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, routeIs(t, f, "B", "A", state.Route{Cost: 3, Nh: "A"}), 5*time.Second, 10*time.Millisecond)

	f.Stop(errors.New("test done"))
	f.Wait()
}

func TestFabricTraceWithoutRoute(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := state.NetworkCfg{
		Heartbeat: 100,
		Routers:   []state.RouterCfg{{Id: "A"}, {Id: "B"}},
	}
	f, err := Start(context.Background(), cfg, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	_, err = f.Trace(ctx, "A", "B")
	cancel()
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// tracing to ourselves never leaves the router
	hops, err := f.Trace(context.Background(), "A", "A")
	require.NoError(t, err)
	assert.Equal(t, []state.NodeId{"A"}, hops)

	f.Stop(errors.New("test done"))
	f.Wait()
}

func TestFabricStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	f, err := Start(ctx, triangleCfg(), quietLogger())
	require.NoError(t, err)
	cancel()

	finished := make(chan map[state.NodeId]string)
	go func() {
		finished <- f.Wait()
	}()
	select {
	case dumps := <-finished:
		assert.Len(t, dumps, 3)
	case <-time.After(5 * time.Second):
		t.Fatal("network did not stop")
	}
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := triangleCfg()
	cfg.Links = append(cfg.Links, state.LinkCfg{A: "A", B: "Q", Cost: 1})
	_, err := Start(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}
