package core

import (
	"log/slog"

	"github.com/encodeous/rplof/state"
)

// MRHOF is the minimum rank with hysteresis objective function over ETX alone. It has no notion
// of latency and advertises a 2 byte container.
type MRHOF struct {
	ofBase
}

func init() {
	registerObjective("mrhof", func(cfg state.ObjectiveCfg, clock state.Clock, log *slog.Logger) ObjectiveFunction {
		return NewMRHOF(cfg, log)
	})
}

func NewMRHOF(cfg state.ObjectiveCfg, log *slog.Logger) *MRHOF {
	cfg.ApplyDefaults()
	return &MRHOF{ofBase{cfg: cfg, log: log}}
}

func (o *MRHOF) Name() string {
	return "mrhof"
}

func (o *MRHOF) OCP() uint16 {
	return state.OCPMRHOF
}

func (o *MRHOF) NeighbourLinkCallback(p *state.Parent, ev state.LinkEvent) {
	if p == nil {
		return
	}
	u := o.updateLinkMetrics(p, ev, Sample{}, false)
	o.logLinkUpdate(p, ev, u)
}

func (o *MRHOF) BestParent(p1, p2 *state.Parent) *state.Parent {
	return o.bestParent(p1, p2, o.pathMetric)
}

func (o *MRHOF) UpdateMetricContainer(instance *state.Instance) {
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
	mc.Length = 2
	mc.Latency = 0

	if dag.Rank == instance.RootRank() {
		mc.ETX = 0
	} else {
		mc.ETX = saturate16(o.pathMetric(dag.PreferredParent))
	}
	o.log.Debug("path metric to the root", "mc", mc)
}
