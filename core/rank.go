package core

import (
	"fmt"
	"log/slog"

	"github.com/encodeous/rplof/state"
)

// ofBase holds what every objective function shares: configuration, rank computation, DAG
// ordering and the ETX moving average.
type ofBase struct {
	cfg state.ObjectiveCfg
	log *slog.Logger
}

// CalculateRank derives the rank of a node from its parent. A zero base means "use the rank the
// parent advertised". The addition saturates at InfiniteRank.
func (b *ofBase) CalculateRank(p *state.Parent, base state.Rank) state.Rank {
	var increase uint32
	if p == nil {
		if base == 0 {
			return state.InfiniteRank
		}
		increase = uint32(b.cfg.InitLinkMetric) * state.ETXDivisor
	} else {
		increase = uint32(p.LinkMetric)
		if base == 0 {
			base = p.Rank
		}
	}

	if uint32(state.InfiniteRank-base) < increase {
		return state.InfiniteRank
	}
	return base + state.Rank(increase)
}

// BestDag prefers grounded DAGs, then higher preference, then lower rank. On a full tie d2 wins.
func (b *ofBase) BestDag(d1, d2 *state.Dag) *state.Dag {
	if d1 == nil {
		return d2
	}
	if d2 == nil {
		return d1
	}
	if d1.Grounded != d2.Grounded {
		if d1.Grounded {
			return d1
		}
		return d2
	}
	if d1.Preference != d2.Preference {
		if d1.Preference > d2.Preference {
			return d1
		}
		return d2
	}
	if d1.Rank < d2.Rank {
		return d1
	}
	return d2
}

// bestParent returns the parent with the smaller metric. When one of them is the preferred
// parent and the metrics differ by less than the switch threshold, the preferred parent is kept.
func (b *ofBase) bestParent(p1, p2 *state.Parent, metric func(*state.Parent) uint32) *state.Parent {
	if p1 == nil {
		return p2
	}
	if p2 == nil || p1 == p2 {
		return p1
	}
	if p1.Dag != p2.Dag {
		msg := fmt.Sprintf("comparing parents of different DAGs: %s in %s, %s in %s", p1.Addr, p1.Dag, p2.Addr, p2.Dag)
		if state.DBG_assert {
			panic(msg)
		}
		b.log.Error(msg)
		return p1
	}

	m1 := metric(p1)
	m2 := metric(p2)

	dag := p1.Dag
	if dag != nil && dag.PreferredParent != nil && (p1 == dag.PreferredParent || p2 == dag.PreferredParent) {
		if absDiff(m1, m2) < b.cfg.SwitchThreshold() {
			b.log.Debug("hysteresis keeps preferred parent",
				"preferred", dag.PreferredParent.Addr, "m1", m1, "m2", m2, "threshold", b.cfg.SwitchThreshold())
			return dag.PreferredParent
		}
	}

	if m2 < m1 {
		return p2
	}
	return p1
}

// pathMetric is the ETX to the sink through p, or the maximum path cost without a parent.
func (b *ofBase) pathMetric(p *state.Parent) uint32 {
	if p == nil {
		return uint32(b.cfg.MaxPathCost) * state.ETXDivisor
	}
	return uint32(p.MC.ETX) + uint32(p.LinkMetric)
}

// delayMetric is the latency to the sink through p, or the maximum delay without a parent.
func (b *ofBase) delayMetric(p *state.Parent) uint32 {
	if p == nil {
		return b.cfg.MaxDelay
	}
	return uint32(p.MC.Latency) + p.DelayMetric
}

func (b *ofBase) Config() state.ObjectiveCfg {
	return b.cfg
}

func (b *ofBase) Reset(dag *state.Dag) {
	b.log.Debug("reset objective", "dag", dag)
}
