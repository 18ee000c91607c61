package core

import (
	"log/slog"

	"github.com/encodeous/rplof/perf"
	"github.com/encodeous/rplof/state"
	"github.com/jellydator/ttlcache/v3"
)

// Sample records when a unicast frame was handed to the link layer.
type Sample struct {
	Dest       state.LinkAddr
	EnqueuedAt uint32
}

type sampleSlot struct {
	sample Sample
	next   int
}

// SampleTracker is a bounded FIFO of in-flight latency samples. Slots live in a fixed arena and
// are linked either into the free list or into the FIFO, so no allocation happens after
// construction. Completions are matched to the oldest sample regardless of destination.
//
// SampleTracker is not safe for concurrent use, it must be driven from the dispatch goroutine.
type SampleTracker struct {
	slots  []sampleSlot
	free   int
	head   int
	tail   int
	length int

	clock   state.Clock
	log     *slog.Logger
	notices *ttlcache.Cache[state.LinkAddr, struct{}]
}

func NewSampleTracker(capacity int, clock state.Clock, log *slog.Logger) *SampleTracker {
	t := &SampleTracker{
		slots: make([]sampleSlot, max(capacity, 0)),
		clock: clock,
		log:   log,
		notices: ttlcache.New[state.LinkAddr, struct{}](
			ttlcache.WithTTL[state.LinkAddr, struct{}](state.DropNoticeTTL),
			ttlcache.WithDisableTouchOnHit[state.LinkAddr, struct{}](),
		),
	}
	t.Reset()
	return t
}

// Reset releases every slot, in-flight samples are forgotten.
func (t *SampleTracker) Reset() {
	for i := range t.slots {
		t.slots[i] = sampleSlot{next: i + 1}
	}
	if len(t.slots) > 0 {
		t.slots[len(t.slots)-1].next = -1
		t.free = 0
	} else {
		t.free = -1
	}
	t.head = -1
	t.tail = -1
	t.length = 0
}

func (t *SampleTracker) Len() int {
	return t.length
}

func (t *SampleTracker) Cap() int {
	return len(t.slots)
}

func (t *SampleTracker) alloc() int {
	idx := t.free
	if idx != -1 {
		t.free = t.slots[idx].next
	}
	return idx
}

func (t *SampleTracker) release(idx int) {
	t.slots[idx] = sampleSlot{next: t.free}
	t.free = idx
}

// Enqueue records a frame sent to dest. It returns false when dest is not a unicast address or
// when the pool is exhausted, in which case the frame is simply not measured.
func (t *SampleTracker) Enqueue(dest state.LinkAddr) bool {
	if dest.IsNull() || dest.IsBroadcast() {
		return false
	}
	idx := t.alloc()
	if idx == -1 {
		perf.SamplesDropped.Add(1)
		t.notifyExhausted(dest)
		return false
	}
	t.slots[idx] = sampleSlot{
		sample: Sample{Dest: dest, EnqueuedAt: t.clock.Millis()},
		next:   -1,
	}
	if t.tail == -1 {
		t.head = idx
	} else {
		t.slots[t.tail].next = idx
	}
	t.tail = idx
	t.length++
	perf.SamplesQueued.Add(1)
	return true
}

// Dequeue pops the oldest sample, ok is false when nothing is in flight.
func (t *SampleTracker) Dequeue() (sample Sample, ok bool) {
	if t.head == -1 {
		return Sample{}, false
	}
	idx := t.head
	sample = t.slots[idx].sample
	t.head = t.slots[idx].next
	if t.head == -1 {
		t.tail = -1
	}
	t.length--
	t.release(idx)
	return sample, true
}

// Pending returns the in-flight samples, oldest first.
func (t *SampleTracker) Pending() []Sample {
	out := make([]Sample, 0, t.length)
	for idx := t.head; idx != -1; idx = t.slots[idx].next {
		out = append(out, t.slots[idx].sample)
	}
	return out
}

func (t *SampleTracker) notifyExhausted(dest state.LinkAddr) {
	if t.notices.Has(dest) {
		return
	}
	t.notices.Set(dest, struct{}{}, ttlcache.DefaultTTL)
	t.log.Warn("delay: could not allocate sample slot", "dest", dest, "capacity", len(t.slots))
}

// ExpireNotices drops suppressed exhaustion notices whose window has passed.
func (t *SampleTracker) ExpireNotices() {
	t.notices.DeleteExpired()
}
