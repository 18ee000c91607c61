package state

import (
	"sync/atomic"
	"time"
)

// Clock is a monotonic millisecond time source.
type Clock interface {
	Millis() uint32
}

type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// ManualClock only moves when told to, it is used to replay scenarios.
type ManualClock struct {
	now atomic.Uint32
}

func (c *ManualClock) Millis() uint32 {
	return c.now.Load()
}

func (c *ManualClock) Set(ms uint32) {
	c.now.Store(ms)
}

func (c *ManualClock) Advance(d time.Duration) {
	c.now.Add(uint32(d.Milliseconds()))
}
