package core

import (
	"log/slog"

	"github.com/encodeous/rplof/state"
)

// LatencyOF selects parents by estimated end-to-end latency. Latency is sampled from live
// transmissions: a timestamp is taken when a frame is handed to the link layer, and the matching
// completion turns it into a delay sample. ETX is smoothed alongside and drives the rank.
type LatencyOF struct {
	ofBase
	Tracker *SampleTracker
}

func init() {
	registerObjective("latency", func(cfg state.ObjectiveCfg, clock state.Clock, log *slog.Logger) ObjectiveFunction {
		return NewLatencyOF(cfg, clock, log)
	})
}

func NewLatencyOF(cfg state.ObjectiveCfg, clock state.Clock, log *slog.Logger) *LatencyOF {
	cfg.ApplyDefaults()
	return &LatencyOF{
		ofBase: ofBase{
			cfg: cfg,
			log: log,
		},
		Tracker: NewSampleTracker(cfg.PoolCapacity, clock, log),
	}
}

func (o *LatencyOF) Name() string {
	return "latency"
}

func (o *LatencyOF) OCP() uint16 {
	return state.OCPLatency
}

// PacketSent timestamps a frame handed to the link layer.
func (o *LatencyOF) PacketSent(dest state.LinkAddr) bool {
	return o.Tracker.Enqueue(dest)
}

func (o *LatencyOF) Gc() {
	o.Tracker.ExpireNotices()
}

func (o *LatencyOF) NeighbourLinkCallback(p *state.Parent, ev state.LinkEvent) {
	// every completion consumes the oldest sample, even when it cannot be used
	sample, ok := o.Tracker.Dequeue()
	if p == nil {
		return
	}
	u := o.updateLinkMetrics(p, ev, sample, ok)
	o.logLinkUpdate(p, ev, u)
}

func (o *LatencyOF) BestParent(p1, p2 *state.Parent) *state.Parent {
	return o.bestParent(p1, p2, o.delayMetric)
}

func (o *LatencyOF) UpdateMetricContainer(instance *state.Instance) {
	dag := instance.CurrentDag
	if dag == nil || !dag.Joined {
		o.log.Debug("cannot update the metric container when not joined")
		return
	}

	mc := &instance.MC
	mc.Type = state.MCTypeETX
	mc.Flags = state.MCFlagP
	mc.Aggr = state.MCAggrAdditive
	mc.Prec = 0
	mc.Length = 4

	if dag.Rank == instance.RootRank() {
		mc.ETX = 0
		mc.Latency = 0
	} else {
		mc.ETX = saturate16(o.pathMetric(dag.PreferredParent))
		mc.Latency = saturate16(o.delayMetric(dag.PreferredParent))
	}
	o.log.Debug("path metric to the root", "mc", mc)
}
