package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency  = metric.NewHistogram("1m1s")
	RecomputeLatency = metric.NewHistogram("1m1s")
	UpdatesSent      = metric.NewCounter("10s1s")
	UpdatesReceived  = metric.NewCounter("10s1s")
	DecodeFailures   = metric.NewCounter("10s1s")
	DataForwarded    = metric.NewCounter("10s1s")
	DataDropped      = metric.NewCounter("10s1s")
	DataDelivered    = metric.NewCounter("10s1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("dvr:DispatchLatency (µs)", DispatchLatency)
	expvar.Publish("dvr:RecomputeLatency (µs)", RecomputeLatency)
	expvar.Publish("dvr:UpdatesSent/s", UpdatesSent)
	expvar.Publish("dvr:UpdatesReceived/s", UpdatesReceived)
	expvar.Publish("dvr:DecodeFailures/s", DecodeFailures)
	expvar.Publish("dvr:DataForwarded/s", DataForwarded)
	expvar.Publish("dvr:DataDropped/s", DataDropped)
	expvar.Publish("dvr:DataDelivered/s", DataDelivered)
}
