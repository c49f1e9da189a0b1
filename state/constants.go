package state

import "time"

const (
	// MaxMetric is where path costs saturate. It is a ceiling, not an unreachable marker.
	MaxMetric = Metric(^uint32(0))
)

var (
	DefaultHeartbeat   = int64(1000) // milliseconds between unconditional broadcasts
	DefaultGraphCost   = Metric(1)
	TickInterval       = time.Millisecond * 100
	SimTickInterval    = int64(100)
	TraceTTL           = time.Second * 5
	DispatchBufferSize = 128
	EventBufferSize    = 1024
	SlowDispatch       = time.Millisecond * 4

	// NetworkConfigPath is the default network description used by the CLI
	NetworkConfigPath = "network.yaml"
)
