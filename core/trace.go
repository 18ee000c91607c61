package core

import (
	"fmt"
	"time"

	"github.com/dustin/go-broadcast"
	"github.com/encodeous/rplof/state"
)

// TraceEvent is published for every router event.
type TraceEvent struct {
	Event RouterEvent
	At    uint32
	Node  state.NodeId
	Desc  string
	Args  []any
}

func (e TraceEvent) String() string {
	out := fmt.Sprintf("[%d] %s %s %s", e.At, e.Node, e.Event, e.Desc)
	for _, arg := range e.Args {
		out += " " + fmt.Sprint(arg)
	}
	return out
}

// TraceFlushed is delivered to every listener once all earlier events have been, right before
// the trace shuts down.
type TraceFlushed struct{}

// Trace fans router events out to any number of listeners.
type Trace struct {
	broadcast.Broadcaster
	node  state.NodeId
	clock state.Clock
}

func (t *Trace) Init(s *state.State) error {
	t.Broadcaster = broadcast.NewBroadcaster(1024)
	t.node = s.Id
	t.clock = s.Clock
	return nil
}

func (t *Trace) Cleanup(s *state.State) error {
	flush := make(chan any, 16)
	t.Register(flush)
	t.Submit(TraceFlushed{})
	timeout := time.After(time.Second)
wait:
	for {
		select {
		case ev := <-flush:
			if _, ok := ev.(TraceFlushed); ok {
				break wait
			}
		case <-timeout:
			s.Log.Warn("trace listeners did not drain in time")
			break wait
		}
	}
	return t.Broadcaster.Close()
}

func (t *Trace) Emit(event RouterEvent, desc string, args ...any) {
	if t == nil || t.Broadcaster == nil {
		return
	}
	t.Submit(TraceEvent{
		Event: event,
		At:    t.clock.Millis(),
		Node:  t.node,
		Desc:  desc,
		Args:  args,
	})
}
