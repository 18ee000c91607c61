package core

import (
	"math"

	"github.com/encodeous/rplof/perf"
	"github.com/encodeous/rplof/state"
)

// LinkUpdate describes what a transmission completion did to a parent's metrics.
type LinkUpdate struct {
	Applied     bool
	OldETX      uint16
	NewETX      uint16
	PacketETX   uint16
	HasDelay    bool
	OldDelay    uint32
	NewDelay    uint32
	PacketDelay uint32
}

// ewma blends sample into old, alpha is the weight of old out of scale. The result truncates.
func ewma(old, sample, alpha, scale uint32) uint32 {
	return uint32((uint64(old)*uint64(alpha) + uint64(sample)*uint64(scale-alpha)) / uint64(scale))
}

// sampleDelay estimates the latency of a frame as the time it spent queued before the radio
// transaction plus half of the transaction itself, clamped to [0, maxDelay].
func sampleDelay(sample Sample, ev state.LinkEvent, maxDelay uint32) uint32 {
	queued := int64(ev.BeforeSend) - int64(sample.EnqueuedAt)
	air := int64(ev.AfterAck) - int64(ev.BeforeSend)
	d := queued + air/2
	if d < 0 {
		return 0
	}
	return uint32(min(d, int64(maxDelay)))
}

// packetETX is the ETX observed for a single frame. Only TxOK and TxNoAck produce one. An
// acknowledged frame is not capped here, only the smoothed link metric is.
func (b *ofBase) packetETX(ev state.LinkEvent) uint32 {
	if ev.Status == state.TxNoAck {
		return b.cfg.MaxLinkETX()
	}
	return uint32(min(uint64(max(ev.NumTx, 0))*state.ETXDivisor, math.MaxUint32))
}

// updateLinkMetrics folds one completion into p. The sample, if any, has already been removed
// from the tracker. Collisions and other transient errors leave both averages untouched.
func (b *ofBase) updateLinkMetrics(p *state.Parent, ev state.LinkEvent, sample Sample, hasSample bool) LinkUpdate {
	u := LinkUpdate{
		OldETX:   p.LinkMetric,
		NewETX:   p.LinkMetric,
		OldDelay: p.DelayMetric,
		NewDelay: p.DelayMetric,
	}
	if ev.Status != state.TxOK && ev.Status != state.TxNoAck {
		return u
	}
	u.Applied = true

	packet := b.packetETX(ev)
	u.PacketETX = saturate16(packet)
	u.NewETX = uint16(min(ewma(uint32(p.LinkMetric), packet, b.cfg.ETXAlpha, b.cfg.ETXScale), b.cfg.MaxLinkETX()))
	p.LinkMetric = u.NewETX

	if ev.Status == state.TxOK && hasSample {
		u.HasDelay = true
		u.PacketDelay = sampleDelay(sample, ev, b.cfg.MaxDelay)
		u.NewDelay = min(ewma(p.DelayMetric, u.PacketDelay, b.cfg.DelayAlpha, b.cfg.DelayScale), b.cfg.MaxDelay)
		p.DelayMetric = u.NewDelay
		perf.DelaySamples.Add(float64(u.PacketDelay))
	}
	return u
}

func (b *ofBase) logLinkUpdate(p *state.Parent, ev state.LinkEvent, u LinkUpdate) {
	if !u.Applied {
		b.log.Debug("link metrics unchanged", "parent", p.Addr, "status", ev.Status)
		return
	}
	b.log.Debug("ETX changed", "parent", p.Addr,
		"from", u.OldETX/state.ETXDivisor, "to", u.NewETX/state.ETXDivisor, "packet", u.PacketETX/state.ETXDivisor)
	if u.HasDelay && state.DBG_log_samples {
		b.log.Debug("delay changed", "parent", p.Addr, "from", u.OldDelay, "to", u.NewDelay, "packet", u.PacketDelay)
	}
}
