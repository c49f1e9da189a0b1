package state

import (
	"cmp"
	"fmt"
	"net/netip"
	"os"
	"slices"

	"github.com/goccy/go-yaml"
)

type RouterCfg struct {
	Id       NodeId
	Prefixes []netip.Prefix `yaml:",omitempty"` // ip ranges owned by this router, used for address based forwarding
}

type LinkCfg struct {
	A       NodeId
	B       NodeId
	Cost    Metric
	Latency int64 `yaml:"latency_ms,omitempty"`
}

type EventKind string

const (
	EventLinkUp   EventKind = "link_up"
	EventLinkDown EventKind = "link_down"
	EventTrace    EventKind = "trace"
)

// EventCfg is a topology change or traceroute scheduled relative to the start of the run.
type EventCfg struct {
	At      int64 `yaml:"at_ms"`
	Kind    EventKind
	A       NodeId
	B       NodeId
	Cost    Metric `yaml:",omitempty"`
	Latency int64  `yaml:"latency_ms,omitempty"`
}

// NetworkCfg describes a whole network of routers hosted in one process.
type NetworkCfg struct {
	Heartbeat int64       `yaml:"heartbeat_ms"`
	Duration  int64       `yaml:"duration_ms,omitempty"`
	Routers   []RouterCfg
	Links     []LinkCfg  `yaml:",omitempty"`
	Graph     []string   `yaml:",omitempty"` // mesh shorthand, see ParseGraph. Links created this way cost DefaultGraphCost
	Events    []EventCfg `yaml:",omitempty"`
	LogPath   string     `yaml:"log_path,omitempty"` // if not empty, logs are also written to this file
}

func (c *NetworkCfg) RouterIds() []NodeId {
	ids := make([]NodeId, 0, len(c.Routers))
	for _, r := range c.Routers {
		ids = append(ids, r.Id)
	}
	return ids
}

func (c *NetworkCfg) IsRouter(id NodeId) bool {
	return c.TryGetRouter(id) != nil
}

func (c *NetworkCfg) TryGetRouter(id NodeId) *RouterCfg {
	idx := slices.IndexFunc(c.Routers, func(cfg RouterCfg) bool {
		return cfg.Id == id
	})
	if idx == -1 {
		return nil
	}
	return &c.Routers[idx]
}

// Prefixes returns the ip ranges owned by each router.
func (c *NetworkCfg) Prefixes() map[NodeId][]netip.Prefix {
	out := make(map[NodeId][]netip.Prefix)
	for _, r := range c.Routers {
		if len(r.Prefixes) != 0 {
			out[r.Id] = slices.Clone(r.Prefixes)
		}
	}
	return out
}

// ExpandLinks returns the explicit links followed by the links generated from the graph.
// Graph pairs that are already linked explicitly are skipped.
func (c *NetworkCfg) ExpandLinks() ([]LinkCfg, error) {
	links := slices.Clone(c.Links)
	if len(c.Graph) == 0 {
		return links, nil
	}
	pairs, err := ParseGraph(c.Graph, c.RouterIds())
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if slices.ContainsFunc(links, func(l LinkCfg) bool {
			return MakeSortedPair(l.A, l.B) == p
		}) {
			continue
		}
		links = append(links, LinkCfg{
			A:    p.V1,
			B:    p.V2,
			Cost: DefaultGraphCost,
		})
	}
	return links, nil
}

// ExpandNetworkConfig fills in defaults.
func ExpandNetworkConfig(cfg *NetworkCfg) {
	if cfg.Heartbeat == 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	slices.SortStableFunc(cfg.Events, func(a, b EventCfg) int {
		return cmp.Compare(a.At, b.At)
	})
}

func ParseNetworkConfig(data []byte) (*NetworkCfg, error) {
	var cfg NetworkCfg
	err := yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse network config: %w", err)
	}
	ExpandNetworkConfig(&cfg)
	err = NetworkConfigValidator(&cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadNetworkConfig(path string) (*NetworkCfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseNetworkConfig(file)
}

// SampleNetwork is the triangle used by `dvr init`: the direct A-C link loses to the path through B.
func SampleNetwork() NetworkCfg {
	return NetworkCfg{
		Heartbeat: DefaultHeartbeat,
		Duration:  5000,
		Routers: []RouterCfg{
			{Id: "A", Prefixes: []netip.Prefix{netip.MustParsePrefix("10.0.1.0/24")}},
			{Id: "B", Prefixes: []netip.Prefix{netip.MustParsePrefix("10.0.2.0/24")}},
			{Id: "C", Prefixes: []netip.Prefix{netip.MustParsePrefix("10.0.3.0/24")}},
		},
		Links: []LinkCfg{
			{A: "A", B: "B", Cost: 1, Latency: 10},
			{A: "B", B: "C", Cost: 1, Latency: 10},
			{A: "A", B: "C", Cost: 5, Latency: 10},
		},
		Events: []EventCfg{
			{At: 2000, Kind: EventTrace, A: "A", B: "C"},
			{At: 2500, Kind: EventLinkDown, A: "A", B: "B"},
			{At: 4500, Kind: EventTrace, A: "A", B: "C"},
		},
	}
}
