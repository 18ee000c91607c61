package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency = metric.NewHistogram("1m1s")
	DelaySamples    = metric.NewHistogram("1m1s")
	SamplesQueued   = metric.NewCounter("10s1s")
	SamplesDropped  = metric.NewCounter("10s1s")
	LinkEvents      = metric.NewCounter("10s1s")
	ParentSwitches  = metric.NewCounter("1m1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("rplof:DispatchLatency (µs)", DispatchLatency)
	expvar.Publish("rplof:DelaySamples (ms)", DelaySamples)
	expvar.Publish("rplof:SamplesQueued/s", SamplesQueued)
	expvar.Publish("rplof:SamplesDropped/s", SamplesDropped)
	expvar.Publish("rplof:LinkEvents/s", LinkEvents)
	expvar.Publish("rplof:ParentSwitches", ParentSwitches)
}
