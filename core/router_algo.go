package core

// This file makes references to RFC 6550:
// https://datatracker.ietf.org/doc/html/rfc6550

import (
	"fmt"
	"net/netip"

	"github.com/encodeous/rplof/state"
)

type RouterEvent int

// trace events

const (
	DagAdded RouterEvent = iota
	ParentAdded
	ParentRemoved
	ParentSwitched
	RankChanged
	DagSwitched
	ContainerUpdated
	LinkUpdated
	StaleParentDropped
)

// warn events

const (
	InconsistentState RouterEvent = iota + 1000
	NoParentForLink
	SampleDropped
	NoRoute
)

var routerEventNames = map[RouterEvent]string{
	DagAdded:           "DAG_ADDED",
	ParentAdded:        "PARENT_ADDED",
	ParentRemoved:      "PARENT_REMOVED",
	ParentSwitched:     "PARENT_SWITCHED",
	RankChanged:        "RANK_CHANGED",
	DagSwitched:        "DAG_SWITCHED",
	ContainerUpdated:   "CONTAINER_UPDATED",
	LinkUpdated:        "LINK_UPDATED",
	StaleParentDropped: "STALE_PARENT_DROPPED",
	InconsistentState:  "INCONSISTENT_STATE",
	NoParentForLink:    "NO_PARENT_FOR_LINK",
	SampleDropped:      "SAMPLE_DROPPED",
	NoRoute:            "NO_ROUTE",
}

func (e RouterEvent) String() string {
	if name, ok := routerEventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("RouterEvent(%d)", int(e))
}

// IsWarning reports whether the event signals something the operator should look at.
func (e RouterEvent) IsWarning() bool {
	return e >= InconsistentState
}

// Router is an interface that defines the side effects of the topology maintenance algorithms
type Router interface {
	Log(event RouterEvent, desc string, args ...any)
}

// DIO is the subset of a DODAG Information Object the objective functions care about.
type DIO struct {
	DagID      netip.Addr            `yaml:"dag"`
	Prefix     netip.Prefix          `yaml:"prefix,omitempty"`
	Version    uint8                 `yaml:"version,omitempty"`
	Rank       state.Rank            `yaml:"rank"`
	Grounded   bool                  `yaml:"grounded,omitempty"`
	Preference uint8                 `yaml:"preference,omitempty"`
	MC         state.MetricContainer `yaml:"mc,omitempty"`
}

func isRoot(inst *state.Instance, dag *state.Dag) bool {
	return dag.Joined && dag.PreferredParent == nil && dag.Rank == inst.RootRank()
}

// ProcessDIO records the DAG and the parent a DIO describes. It returns nil when the DIO was
// ignored.
func ProcessDIO(inst *state.Instance, of ObjectiveFunction, r Router, from state.LinkAddr, dio DIO) *state.Parent {
	if !dio.DagID.IsValid() {
		r.Log(InconsistentState, "DIO without a DAG id", "from", from)
		return nil
	}
	if from.IsNull() || from.IsBroadcast() {
		r.Log(InconsistentState, "DIO from an invalid link address", "from", from)
		return nil
	}

	dag, ok := inst.Dags[dio.DagID]
	if !ok {
		if dio.Rank == state.InfiniteRank {
			// poisoning a DAG we never heard of
			return nil
		}
		dag = state.NewDag(inst, dio.DagID)
		dag.Version = dio.Version
		inst.Dags[dio.DagID] = dag
		of.Reset(dag)
		r.Log(DagAdded, "joined new DAG", "dag", dag.DagID)
	}
	if isRoot(inst, dag) {
		return nil
	}

	dag.Grounded = dio.Grounded
	dag.Preference = dio.Preference
	dag.Version = dio.Version
	if dio.Prefix.IsValid() {
		dag.Prefix = dio.Prefix.Masked()
	}

	p, ok := dag.Parents[from]
	if !ok {
		if dio.Rank == state.InfiniteRank {
			return nil
		}
		p = &state.Parent{
			Addr:       from,
			Dag:        dag,
			LinkMetric: of.Config().InitLinkMetric * state.ETXDivisor,
		}
		dag.Parents[from] = p
		r.Log(ParentAdded, "new parent", "dag", dag.DagID, "parent", from)
	}
	p.Rank = dio.Rank
	p.MC = dio.MC
	return p
}

// SelectParent folds the objective function's BestParent over every usable parent of dag, then
// updates the preferred parent and the rank of this node in dag. Parents with an infinite rank or
// a link metric saturated at the configured maximum are not usable.
func SelectParent(inst *state.Instance, of ObjectiveFunction, r Router, dag *state.Dag) *state.Parent {
	if isRoot(inst, dag) {
		return nil
	}

	maxLink := of.Config().MaxLinkETX()
	var best *state.Parent
	for _, p := range dag.SortedParents() {
		if p.Rank == state.InfiniteRank || uint32(p.LinkMetric) >= maxLink {
			continue
		}
		best = of.BestParent(best, p)
	}

	old := dag.PreferredParent
	if best != old {
		dag.PreferredParent = best
		r.Log(ParentSwitched, "preferred parent changed", "dag", dag.DagID, "from", old, "to", best)
	}

	oldRank := dag.Rank
	if best == nil {
		dag.Rank = state.InfiniteRank
		dag.Joined = false
	} else {
		dag.Rank = of.CalculateRank(best, 0)
		dag.Joined = dag.Rank != state.InfiniteRank
	}
	if oldRank != dag.Rank {
		r.Log(RankChanged, "rank changed", "dag", dag.DagID, "from", oldRank, "to", dag.Rank)
	}
	return best
}

// SelectDag picks the DAG this node advertises. The current DAG wins ties, so the choice only
// moves when another DAG is strictly better. The metric container is rebuilt afterwards.
func SelectDag(inst *state.Instance, of ObjectiveFunction, r Router) *state.Dag {
	var best *state.Dag
	if inst.CurrentDag != nil && inst.CurrentDag.Joined {
		best = inst.CurrentDag
	}
	for _, d := range inst.SortedDags() {
		if !d.Joined || d == best {
			continue
		}
		best = of.BestDag(d, best)
	}

	if best != nil && best != inst.CurrentDag {
		r.Log(DagSwitched, "current DAG changed", "from", inst.CurrentDag, "to", best)
		inst.CurrentDag = best
	}

	old := inst.MC
	of.UpdateMetricContainer(inst)
	if old != inst.MC {
		r.Log(ContainerUpdated, "advertised metric container changed", "mc", inst.MC)
	}
	return best
}

// HandleLinkEvent feeds a transmission completion to the objective function. Completions towards
// neighbours that are not parents never reach it.
func HandleLinkEvent(inst *state.Instance, of ObjectiveFunction, r Router, ev state.LinkEvent) {
	p := inst.FindParent(ev.Dest)
	if p == nil {
		r.Log(NoParentForLink, "link event for a neighbour that is not a parent", "to", ev.Dest, "status", ev.Status)
		return
	}
	of.NeighbourLinkCallback(p, ev)
	r.Log(LinkUpdated, "link metrics", "parent", p.Addr, "status", ev.Status, "etx", p.LinkMetric, "delay", p.DelayMetric)

	SelectParent(inst, of, r, p.Dag)
	SelectDag(inst, of, r)
}

// RemoveParent forgets addr in every DAG and reselects.
func RemoveParent(inst *state.Instance, of ObjectiveFunction, r Router, addr state.LinkAddr) bool {
	removed := false
	for _, dag := range inst.SortedDags() {
		p, ok := dag.Parents[addr]
		if !ok {
			continue
		}
		delete(dag.Parents, addr)
		if dag.PreferredParent == p {
			dag.PreferredParent = nil
			r.Log(ParentSwitched, "preferred parent removed", "dag", dag.DagID, "from", p, "to", (*state.Parent)(nil))
		}
		r.Log(ParentRemoved, "parent removed", "dag", dag.DagID, "parent", addr)
		SelectParent(inst, of, r, dag)
		removed = true
	}
	if removed {
		SelectDag(inst, of, r)
	}
	return removed
}

// BecomeRoot makes this node the root of a new grounded DAG.
func BecomeRoot(inst *state.Instance, of ObjectiveFunction, r Router, dagID netip.Addr, prefix netip.Prefix) *state.Dag {
	dag := state.NewDag(inst, dagID)
	if prefix.IsValid() {
		dag.Prefix = prefix.Masked()
	}
	dag.Grounded = true
	dag.Rank = inst.RootRank()
	dag.Joined = true
	inst.Dags[dagID] = dag
	of.Reset(dag)
	r.Log(DagAdded, "became root", "dag", dagID)

	if inst.CurrentDag != dag {
		r.Log(DagSwitched, "current DAG changed", "from", inst.CurrentDag, "to", dag)
		inst.CurrentDag = dag
	}
	old := inst.MC
	of.UpdateMetricContainer(inst)
	if old != inst.MC {
		r.Log(ContainerUpdated, "advertised metric container changed", "mc", inst.MC)
	}
	return dag
}

// DropStaleParents forgets parents that poisoned their route and are not preferred.
func DropStaleParents(inst *state.Instance, r Router) int {
	dropped := 0
	for _, dag := range inst.SortedDags() {
		for _, p := range dag.SortedParents() {
			if p.Rank != state.InfiniteRank || p == dag.PreferredParent {
				continue
			}
			delete(dag.Parents, p.Addr)
			r.Log(StaleParentDropped, "dropped poisoned parent", "dag", dag.DagID, "parent", p.Addr)
			dropped++
		}
	}
	return dropped
}
