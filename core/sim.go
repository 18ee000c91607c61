package core

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"

	"github.com/encodeous/rplof/state"
	"github.com/goccy/go-yaml"
)

// Scenario is a scripted run of a single node: the DIOs it hears, the frames it sends and the
// completions the link layer reports back, each at a given millisecond.
type Scenario struct {
	Node   state.NodeCfg `yaml:"node"`
	Root   *RootCfg      `yaml:"root,omitempty"`
	Events []Event       `yaml:"events"`
}

// RootCfg makes the simulated node the sink of a DAG before any event is replayed.
type RootCfg struct {
	Dag    netip.Addr   `yaml:"dag"`
	Prefix netip.Prefix `yaml:"prefix,omitempty"`
}

// Event holds exactly one action.
type Event struct {
	At     uint32           `yaml:"at"`
	DIO    *DIOEvent        `yaml:"dio,omitempty"`
	Send   *SendEvent       `yaml:"send,omitempty"`
	Tx     *TxEvent         `yaml:"tx,omitempty"`
	Remove *state.LinkAddr  `yaml:"remove,omitempty"`
	Select bool             `yaml:"select,omitempty"`
}

// TxEvent is a completion reported by the link layer. Before defaults to the time of the event
// and After to Before, only when they are left out; an explicit 0 is a real timestamp.
type TxEvent struct {
	To     state.LinkAddr `yaml:"to"`
	Status state.TxStatus `yaml:"status"`
	NumTx  int            `yaml:"numtx"`
	Before *uint32        `yaml:"before,omitempty"`
	After  *uint32        `yaml:"after,omitempty"`
}

func (e *TxEvent) linkEvent(at uint32) state.LinkEvent {
	ev := state.LinkEvent{Dest: e.To, Status: e.Status, NumTx: e.NumTx, BeforeSend: at}
	if e.Before != nil {
		ev.BeforeSend = *e.Before
	}
	ev.AfterAck = ev.BeforeSend
	if e.After != nil {
		ev.AfterAck = *e.After
	}
	return ev
}

type DIOEvent struct {
	From state.LinkAddr `yaml:"from"`
	DIO  `yaml:",inline"`
}

// SendEvent hands Count frames to the link layer, either routed towards Dst or addressed to the
// neighbour To.
type SendEvent struct {
	To    state.LinkAddr `yaml:"to,omitempty"`
	Dst   netip.Addr     `yaml:"dst,omitempty"`
	Count int            `yaml:"count,omitempty"`
}

func (e *Event) actions() int {
	n := 0
	if e.DIO != nil {
		n++
	}
	if e.Send != nil {
		n++
	}
	if e.Tx != nil {
		n++
	}
	if e.Remove != nil {
		n++
	}
	if e.Select {
		n++
	}
	return n
}

func (sc *Scenario) Validate() error {
	sc.Node.ApplyDefaults()
	if err := state.NodeConfigValidator(&sc.Node); err != nil {
		return err
	}
	if sc.Root != nil && !sc.Root.Dag.IsValid() {
		return errors.New("root.dag must be an IP address")
	}
	var last uint32
	for i := range sc.Events {
		ev := &sc.Events[i]
		if ev.At < last {
			return fmt.Errorf("event %d at %d happens before the previous event at %d", i, ev.At, last)
		}
		last = ev.At
		if n := ev.actions(); n != 1 {
			return fmt.Errorf("event %d must have exactly one action, got %d", i, n)
		}
		switch {
		case ev.DIO != nil:
			if !ev.DIO.DagID.IsValid() {
				return fmt.Errorf("event %d: dio.dag must be an IP address", i)
			}
			if ev.DIO.From.IsNull() || ev.DIO.From.IsBroadcast() {
				return fmt.Errorf("event %d: dio.from %s is not a unicast link address", i, ev.DIO.From)
			}
		case ev.Send != nil:
			if ev.Send.To.IsNull() && !ev.Send.Dst.IsValid() {
				return fmt.Errorf("event %d: send needs either to or dst", i)
			}
			if ev.Send.Count < 0 {
				return fmt.Errorf("event %d: send.count must not be negative", i)
			}
		case ev.Tx != nil:
			if ev.Tx.To.IsNull() {
				return fmt.Errorf("event %d: tx.to is required", i)
			}
			if ev.Tx.NumTx < 0 {
				return fmt.Errorf("event %d: tx.numtx must not be negative", i)
			}
		}
	}
	return nil
}

func LoadScenario(path string) (*Scenario, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc := &Scenario{}
	err = yaml.Unmarshal(file, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}
	err = sc.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return sc, nil
}

// Report is the state of the simulated node after the last event.
type Report struct {
	Node      state.NodeId          `yaml:"node"`
	Objective string                `yaml:"objective"`
	OCP       uint16                `yaml:"ocp"`
	Dag       string                `yaml:"dag,omitempty"`
	Rank      state.Rank            `yaml:"rank"`
	Preferred string                `yaml:"preferred,omitempty"`
	MC        state.MetricContainer `yaml:"mc"`
	Pending   int                   `yaml:"pending_samples"`
	Parents   []ParentReport        `yaml:"parents,omitempty"`
}

type ParentReport struct {
	Dag         string     `yaml:"dag"`
	Addr        string     `yaml:"addr"`
	Rank        state.Rank `yaml:"rank"`
	LinkMetric  uint16     `yaml:"etx"`
	DelayMetric uint32     `yaml:"delay"`
	Preferred   bool       `yaml:"preferred,omitempty"`
}

func (r *RplRouter) report() *Report {
	rep := &Report{
		Node:      r.Id,
		Objective: r.OF.Name(),
		OCP:       r.OF.OCP(),
		Rank:      state.InfiniteRank,
		MC:        r.Instance.MC,
	}
	if lof, ok := r.OF.(*LatencyOF); ok {
		rep.Pending = lof.Tracker.Len()
	}
	if dag := r.Instance.CurrentDag; dag != nil {
		rep.Dag = dag.DagID.String()
		rep.Rank = dag.Rank
		if dag.PreferredParent != nil {
			rep.Preferred = dag.PreferredParent.Addr.String()
		}
	}
	for _, dag := range r.Instance.SortedDags() {
		for _, p := range dag.SortedParents() {
			rep.Parents = append(rep.Parents, ParentReport{
				Dag:         dag.DagID.String(),
				Addr:        p.Addr.String(),
				Rank:        p.Rank,
				LinkMetric:  p.LinkMetric,
				DelayMetric: p.DelayMetric,
				Preferred:   p == dag.PreferredParent,
			})
		}
	}
	return rep
}

// Reselect runs parent selection on every DAG, then DAG selection.
func (r *RplRouter) Reselect() {
	for _, dag := range r.Instance.SortedDags() {
		SelectParent(r.Instance, r.OF, r, dag)
	}
	SelectDag(r.Instance, r.OF, r)
}

func (r *RplRouter) apply(ev *Event) {
	switch {
	case ev.DIO != nil:
		r.HandleDIO(ev.DIO.From, ev.DIO.DIO)
	case ev.Send != nil:
		for range max(ev.Send.Count, 1) {
			if ev.Send.Dst.IsValid() {
				r.SendPacket(ev.Send.Dst)
			} else {
				r.SendTo(ev.Send.To)
			}
		}
	case ev.Tx != nil:
		r.TxComplete(ev.Tx.linkEvent(ev.At))
	case ev.Remove != nil:
		r.RemoveNeighbour(*ev.Remove)
	case ev.Select:
		r.Reselect()
	}
}

// RunScenario replays sc on a fresh node driven by a manual clock. Every event runs on the
// dispatch loop. When trace is not nil it receives every TraceEvent, followed by TraceFlushed.
func RunScenario(sc *Scenario, logger *slog.Logger, trace chan<- any) (*Report, error) {
	clock := &state.ManualClock{}
	s, dispatch := NewState(sc.Node, clock, logger)
	done, err := Start(s, dispatch)
	if err != nil {
		return nil, err
	}
	r := Get[*RplRouter](s)
	if trace != nil {
		Get[*Trace](s).Register(trace)
	}

	if sc.Root != nil {
		root := *sc.Root
		s.Dispatch(func(s *state.State) error {
			r.Root(root.Dag, root.Prefix)
			return nil
		})
	}
	for i := range sc.Events {
		ev := &sc.Events[i]
		s.Dispatch(func(s *state.State) error {
			clock.Set(ev.At)
			r.apply(ev)
			return nil
		})
	}
	rep, repErr := s.DispatchWait(func(s *state.State) (any, error) {
		return r.report(), nil
	})
	s.Dispatch(nil)

	err = <-done
	if err != nil {
		return nil, err
	}
	if repErr != nil {
		return nil, repErr
	}
	return rep.(*Report), nil
}
