//go:build integration

package integration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/encodeous/dvr/core"
	"github.com/encodeous/dvr/state"
	"github.com/stretchr/testify/require"
)

type Signal chan bool

func NewSignal() Signal {
	return make(chan bool)
}
func (s Signal) Trigger() {
	select {
	case <-s:
	default:
		close(s)
	}
}
func (s Signal) Triggered() bool {
	select {
	case <-s:
		return true
	default:
		return false
	}
}
func (s Signal) Wait() {
	<-s
}

// VirtualHarness builds a network description and runs it in process.
type VirtualHarness struct {
	Cfg     state.NetworkCfg
	Fabric  *core.Fabric
	Verbose bool
}

func (v *VirtualHarness) NewNode(id state.NodeId, prefix string) {
	r := state.RouterCfg{Id: id}
	if prefix != "" {
		r.Prefixes = []netip.Prefix{netip.MustParsePrefix(prefix)}
	}
	v.Cfg.Routers = append(v.Cfg.Routers, r)
}

func (v *VirtualHarness) AddLink(a, b state.NodeId, cost state.Metric) *state.LinkCfg {
	v.Cfg.Links = append(v.Cfg.Links, state.LinkCfg{A: a, B: b, Cost: cost})
	return &v.Cfg.Links[len(v.Cfg.Links)-1]
}

func (v *VirtualHarness) Start(t *testing.T) {
	t.Helper()
	if v.Cfg.Heartbeat == 0 {
		v.Cfg.Heartbeat = 200
	}
	var logger *slog.Logger
	if v.Verbose {
		l, err := core.NewLogger("test", slog.LevelDebug, "")
		require.NoError(t, err)
		logger = l
	} else {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	f, err := core.Start(context.Background(), v.Cfg, logger)
	require.NoError(t, err)
	v.Fabric = f
}

func (v *VirtualHarness) Stop() map[state.NodeId]string {
	v.Fabric.Stop(errors.New("test finished"))
	return v.Fabric.Wait()
}

// WaitForRoute polls node until its route to dst matches want.
func (v *VirtualHarness) WaitForRoute(t *testing.T, node, dst state.NodeId, want state.Route) {
	t.Helper()
	require.Eventually(t, func() bool {
		routes, err := v.Fabric.Routes(node)
		return err == nil && routes[dst] == want
	}, 10*time.Second, 20*time.Millisecond, "%s never reached %s via %s", node, dst, want)
}

func (v *VirtualHarness) Trace(t *testing.T, src, dst state.NodeId) []state.NodeId {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hops, err := v.Fabric.Trace(ctx, src, dst)
	require.NoError(t, err)
	return hops
}
