package core

import (
	"fmt"
	"net/netip"

	"github.com/encodeous/rplof/perf"
	"github.com/encodeous/rplof/state"
	"github.com/gaissmai/bart"
)

// RplRouter keeps the DAG state of this node and drives the objective function from the
// dispatch goroutine.
type RplRouter struct {
	*state.State
	OF ObjectiveFunction
	// Prefixes maps destination prefixes to the DAG that reaches them
	Prefixes bart.Table[*state.Dag]
	trace    *Trace
}

func (r *RplRouter) Log(event RouterEvent, desc string, args ...any) {
	if event.IsWarning() {
		r.Env.Log.Warn(fmt.Sprintf("%s %s", event.String(), desc), args...)
	} else {
		r.Env.Log.Debug(fmt.Sprintf("%s %s", event.String(), desc), args...)
	}
	if event == ParentSwitched {
		perf.ParentSwitches.Add(1)
	}
	r.trace.Emit(event, desc, args...)
}

func (r *RplRouter) Init(s *state.State) error {
	s.Log.Debug("init router")
	r.State = s

	of, err := NewObjective(s.Objective, s.Clock, s.Log)
	if err != nil {
		return err
	}
	r.OF = of
	r.trace = Get[*Trace](s)
	r.Prefixes = bart.Table[*state.Dag]{}
	s.Instance = state.NewInstance(s.InstanceId, of.OCP(), s.MinHopRankIncrease)
	s.Log.Info("objective function ready", "of", of.Name(), "ocp", of.OCP(), "instance", s.InstanceId)

	s.Env.RepeatTask(r.GcRouter, state.GcDelay)
	return nil
}

func (r *RplRouter) Cleanup(s *state.State) error {
	if lof, ok := r.OF.(*LatencyOF); ok {
		lof.Tracker.Reset()
	}
	r.State = nil
	return nil
}

func (r *RplRouter) GcRouter(s *state.State) error {
	if r.State == nil {
		return nil
	}
	if DropStaleParents(r.Instance, r) > 0 {
		SelectDag(r.Instance, r.OF, r)
	}
	if c, ok := r.OF.(Collector); ok {
		c.Gc()
	}
	return nil
}

// HandleDIO processes a DIO received from a neighbour.
func (r *RplRouter) HandleDIO(from state.LinkAddr, dio DIO) {
	ProcessDIO(r.Instance, r.OF, r, from, dio)
	dag, ok := r.Instance.Dags[dio.DagID]
	if !ok {
		return
	}
	if dag.Prefix.IsValid() {
		r.Prefixes.Insert(dag.Prefix, dag)
	}
	SelectParent(r.Instance, r.OF, r, dag)
	SelectDag(r.Instance, r.OF, r)
}

// Root makes this node the sink of a new DAG.
func (r *RplRouter) Root(dagID netip.Addr, prefix netip.Prefix) *state.Dag {
	dag := BecomeRoot(r.Instance, r.OF, r, dagID, prefix)
	if dag.Prefix.IsValid() {
		r.Prefixes.Insert(dag.Prefix, dag)
	}
	return dag
}

// NextHop resolves dst to the preferred parent of the DAG covering it, falling back to the
// current DAG.
func (r *RplRouter) NextHop(dst netip.Addr) (state.LinkAddr, bool) {
	dag, ok := r.Prefixes.Lookup(dst)
	if !ok || dag.PreferredParent == nil {
		dag = r.Instance.CurrentDag
	}
	if dag == nil || dag.PreferredParent == nil {
		return state.NullAddr, false
	}
	return dag.PreferredParent.Addr, true
}

// SendPacket routes a packet towards dst and hands it to the link layer.
func (r *RplRouter) SendPacket(dst netip.Addr) (state.LinkAddr, bool) {
	nh, ok := r.NextHop(dst)
	if !ok {
		r.Log(NoRoute, "no route", "dst", dst)
		return nh, false
	}
	r.SendTo(nh)
	return nh, true
}

// SendTo hands a frame for dest to the link layer.
func (r *RplRouter) SendTo(dest state.LinkAddr) {
	obs, ok := r.OF.(PacketObserver)
	if !ok {
		return
	}
	if !obs.PacketSent(dest) && !dest.IsNull() && !dest.IsBroadcast() {
		r.Log(SampleDropped, "frame will not be measured", "to", dest)
	}
}

// TxComplete processes a transmission completion reported by the link layer.
func (r *RplRouter) TxComplete(ev state.LinkEvent) {
	perf.LinkEvents.Add(1)
	HandleLinkEvent(r.Instance, r.OF, r, ev)
}

// RemoveNeighbour forgets a neighbour in every DAG.
func (r *RplRouter) RemoveNeighbour(addr state.LinkAddr) {
	if !RemoveParent(r.Instance, r.OF, r, addr) {
		r.Log(InconsistentState, "removing a neighbour that is not a parent", "addr", addr)
	}
}
