package core

import (
	"net/netip"
	"testing"

	"github.com/encodeous/rplof/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessDIONewDag(t *testing.T) {
	h := &RouterHarness{}
	of := newLatencyOF()
	inst := newInstance(of)

	dio := rootDIO(dagA)
	dio.Prefix = netip.MustParsePrefix("fd00::1234/64")
	p := ProcessDIO(inst, of, h, addr(1), dio)
	require.NotNil(t, p)

	a := h.GetActions()
	a.AssertContains(t, "DAG_ADDED", "dag", dagA)
	a.AssertContains(t, "PARENT_ADDED", "dag", dagA, "parent", addr(1))

	dag := inst.Dags[dagA]
	require.NotNil(t, dag)
	assert.Same(t, dag, p.Dag)
	assert.Equal(t, netip.MustParsePrefix("fd00::/64"), dag.Prefix)
	assert.True(t, dag.Grounded)
	assert.Equal(t, state.InfiniteRank, dag.Rank)
	assert.False(t, dag.Joined)
	assert.EqualValues(t, 640, p.LinkMetric)
	assert.EqualValues(t, 256, p.Rank)

	// a second DIO refreshes the parent without re-adding it
	dio.Rank = 512
	dio.MC = state.MetricContainer{Type: state.MCTypeETX, Length: 4, ETX: 128, Latency: 7}
	assert.Same(t, p, ProcessDIO(inst, of, h, addr(1), dio))
	a = h.GetActions()
	a.AssertNotContains(t, "PARENT_ADDED")
	a.AssertNotContains(t, "DAG_ADDED")
	assert.EqualValues(t, 512, p.Rank)
	assert.EqualValues(t, 7, p.MC.Latency)
}

func TestProcessDIOIgnored(t *testing.T) {
	h := &RouterHarness{}
	of := newLatencyOF()
	inst := newInstance(of)

	poison := rootDIO(dagA)
	poison.Rank = state.InfiniteRank
	assert.Nil(t, ProcessDIO(inst, of, h, addr(1), poison))
	assert.Empty(t, inst.Dags)
	assert.Empty(t, h.GetActions())

	assert.Nil(t, ProcessDIO(inst, of, h, state.NullAddr, rootDIO(dagA)))
	assert.Nil(t, ProcessDIO(inst, of, h, state.BroadcastAddr, rootDIO(dagA)))
	assert.Nil(t, ProcessDIO(inst, of, h, addr(1), DIO{Rank: 256}))
	a := h.GetActions()
	a.AssertContains(t, "INCONSISTENT_STATE", "from", state.NullAddr)
	a.AssertContains(t, "INCONSISTENT_STATE", "from", state.BroadcastAddr)
	a.AssertContains(t, "INCONSISTENT_STATE", "from", addr(1))
	assert.Empty(t, inst.Dags)

	// a known DAG does not learn poisoned parents either
	ProcessDIO(inst, of, h, addr(1), rootDIO(dagA))
	assert.Nil(t, ProcessDIO(inst, of, h, addr(2), poison))
	assert.Len(t, inst.Dags[dagA].Parents, 1)
}

func TestJoinFirstParent(t *testing.T) {
	h := &RouterHarness{}
	of := newLatencyOF()
	inst := newInstance(of)

	ProcessDIO(inst, of, h, addr(1), rootDIO(dagA))
	dag := inst.Dags[dagA]
	h.GetActions()

	best := SelectParent(inst, of, h, dag)
	require.NotNil(t, best)
	a := h.GetActions()
	a.AssertContains(t, "PARENT_SWITCHED", "dag", dagA, "from", state.NullAddr, "to", addr(1))
	a.AssertContains(t, "RANK_CHANGED", "dag", dagA, "from", state.InfiniteRank, "to", state.Rank(896))
	assert.True(t, dag.Joined)

	assert.Same(t, dag, SelectDag(inst, of, h))
	a = h.GetActions()
	a.AssertContains(t, "DAG_SWITCHED", "from", netip.Addr{}, "to", dagA)
	a.AssertContains(t, "CONTAINER_UPDATED")
	assert.Equal(t, state.MetricContainer{
		Type:   state.MCTypeETX,
		Flags:  state.MCFlagP,
		Length: 4,
		ETX:    640,
	}, inst.MC)

	// nothing changes the second time around
	SelectParent(inst, of, h, dag)
	SelectDag(inst, of, h)
	assert.Empty(t, h.GetActions())
}

func TestLatencySwitch(t *testing.T) {
	h := &RouterHarness{}
	of := newLatencyOF()
	inst := newInstance(of)

	ProcessDIO(inst, of, h, addr(1), rootDIO(dagA))
	ProcessDIO(inst, of, h, addr(2), rootDIO(dagA))
	dag := inst.Dags[dagA]
	SelectParent(inst, of, h, dag)
	assert.Equal(t, addr(1), dag.PreferredParent.Addr, "ties go to the first parent")
	h.GetActions()

	p1 := dag.Parents[addr(1)]
	p2 := dag.Parents[addr(2)]
	p1.DelayMetric = 100
	p2.DelayMetric = 40
	SelectParent(inst, of, h, dag)
	assert.Same(t, p1, dag.PreferredParent)
	h.GetActions().AssertNotContains(t, "PARENT_SWITCHED")

	p2.DelayMetric = 36
	SelectParent(inst, of, h, dag)
	assert.Same(t, p2, dag.PreferredParent)
	h.GetActions().AssertContains(t, "PARENT_SWITCHED", "dag", dagA, "from", addr(1), "to", addr(2))
}

func TestUnusableParents(t *testing.T) {
	h := &RouterHarness{}
	of := newLatencyOF()
	inst := newInstance(of)

	ProcessDIO(inst, of, h, addr(1), rootDIO(dagA))
	dag := inst.Dags[dagA]
	SelectParent(inst, of, h, dag)
	SelectDag(inst, of, h)
	h.GetActions()

	// the smoothed metric never exceeds the maximum, a saturated link is what gets rejected
	dag.Parents[addr(1)].LinkMetric = 1280
	assert.Nil(t, SelectParent(inst, of, h, dag))
	a := h.GetActions()
	a.AssertContains(t, "PARENT_SWITCHED", "dag", dagA, "from", addr(1), "to", state.NullAddr)
	a.AssertContains(t, "RANK_CHANGED", "dag", dagA, "from", state.Rank(896), "to", state.InfiniteRank)
	assert.False(t, dag.Joined)

	dag.Parents[addr(1)].LinkMetric = 1279
	assert.NotNil(t, SelectParent(inst, of, h, dag))
	assert.Equal(t, state.Rank(256+1279), dag.Rank)
}

func TestPoisonedParent(t *testing.T) {
	h := &RouterHarness{}
	of := newLatencyOF()
	inst := newInstance(of)

	ProcessDIO(inst, of, h, addr(1), rootDIO(dagA))
	ProcessDIO(inst, of, h, addr(2), rootDIO(dagA))
	dag := inst.Dags[dagA]
	SelectParent(inst, of, h, dag)
	require.Equal(t, addr(1), dag.PreferredParent.Addr)
	h.GetActions()

	poison := rootDIO(dagA)
	poison.Rank = state.InfiniteRank
	ProcessDIO(inst, of, h, addr(1), poison)
	SelectParent(inst, of, h, dag)
	assert.Equal(t, addr(2), dag.PreferredParent.Addr)

	assert.Equal(t, 1, DropStaleParents(inst, h))
	h.GetActions().AssertContains(t, "STALE_PARENT_DROPPED", "dag", dagA, "parent", addr(1))
	assert.NotContains(t, dag.Parents, addr(1))
	assert.Equal(t, 0, DropStaleParents(inst, h))
}

func TestHandleLinkEvent(t *testing.T) {
	h := &RouterHarness{}
	of := newLatencyOF()
	inst := newInstance(of)

	ProcessDIO(inst, of, h, addr(1), rootDIO(dagA))
	dag := inst.Dags[dagA]
	SelectParent(inst, of, h, dag)
	SelectDag(inst, of, h)
	h.GetActions()

	HandleLinkEvent(inst, of, h, state.LinkEvent{Dest: addr(1), Status: state.TxNoAck, NumTx: 3})
	a := h.GetActions()
	a.AssertContains(t, "LINK_UPDATED", "parent", addr(1), "status", state.TxNoAck, "etx", uint16(704))
	a.AssertContains(t, "RANK_CHANGED", "dag", dagA, "from", state.Rank(896), "to", state.Rank(960))
	a.AssertContains(t, "CONTAINER_UPDATED")
	assert.EqualValues(t, 704, inst.MC.ETX)
}

func TestLinkEventForNonParent(t *testing.T) {
	h := &RouterHarness{}
	of := newLatencyOF()
	inst := newInstance(of)
	ProcessDIO(inst, of, h, addr(1), rootDIO(dagA))
	h.GetActions()

	require.True(t, of.PacketSent(addr(9)))
	HandleLinkEvent(inst, of, h, state.LinkEvent{Dest: addr(9), Status: state.TxOK, NumTx: 1})
	h.GetActions().AssertContains(t, "NO_PARENT_FOR_LINK", "to", addr(9), "status", state.TxOK)
	assert.Equal(t, 1, of.Tracker.Len(), "the sample stays queued")
	assert.EqualValues(t, 640, inst.Dags[dagA].Parents[addr(1)].LinkMetric)
}

func TestRemoveParent(t *testing.T) {
	h := &RouterHarness{}
	of := newLatencyOF()
	inst := newInstance(of)

	ProcessDIO(inst, of, h, addr(1), rootDIO(dagA))
	ProcessDIO(inst, of, h, addr(2), rootDIO(dagA))
	dag := inst.Dags[dagA]
	SelectParent(inst, of, h, dag)
	SelectDag(inst, of, h)
	h.GetActions()

	assert.True(t, RemoveParent(inst, of, h, addr(1)))
	a := h.GetActions()
	a.AssertContains(t, "PARENT_SWITCHED", "dag", dagA, "from", addr(1), "to", state.NullAddr)
	a.AssertContains(t, "PARENT_REMOVED", "dag", dagA, "parent", addr(1))
	a.AssertContains(t, "PARENT_SWITCHED", "dag", dagA, "from", state.NullAddr, "to", addr(2))
	assert.Equal(t, addr(2), dag.PreferredParent.Addr)
	assert.True(t, dag.Joined)

	assert.False(t, RemoveParent(inst, of, h, addr(1)))

	assert.True(t, RemoveParent(inst, of, h, addr(2)))
	assert.Nil(t, dag.PreferredParent)
	assert.False(t, dag.Joined)
	assert.Equal(t, state.InfiniteRank, dag.Rank)
}

func TestBecomeRoot(t *testing.T) {
	h := &RouterHarness{}
	of := newLatencyOF()
	inst := newInstance(of)

	dag := BecomeRoot(inst, of, h, dagA, netip.MustParsePrefix("fd00::1/64"))
	a := h.GetActions()
	a.AssertContains(t, "DAG_ADDED", "dag", dagA)
	a.AssertContains(t, "DAG_SWITCHED", "from", netip.Addr{}, "to", dagA)
	a.AssertContains(t, "CONTAINER_UPDATED")
	assert.Same(t, dag, inst.CurrentDag)
	assert.Equal(t, inst.RootRank(), dag.Rank)
	assert.Equal(t, netip.MustParsePrefix("fd00::/64"), dag.Prefix)

	b, err := inst.MC.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 0x04, 0x00, 4, 0, 0, 0, 0}, b)

	// the root ignores DIOs of its own DAG
	assert.Nil(t, ProcessDIO(inst, of, h, addr(1), rootDIO(dagA)))
	assert.Empty(t, dag.Parents)
	assert.Nil(t, SelectParent(inst, of, h, dag))
	assert.Equal(t, inst.RootRank(), dag.Rank)
}

func TestDagSelection(t *testing.T) {
	h := &RouterHarness{}
	of := newLatencyOF()
	inst := newInstance(of)

	ProcessDIO(inst, of, h, addr(1), rootDIO(dagA))
	SelectParent(inst, of, h, inst.Dags[dagA])
	SelectDag(inst, of, h)

	// an equivalent DAG does not take over
	ProcessDIO(inst, of, h, addr(2), rootDIO(dagB))
	SelectParent(inst, of, h, inst.Dags[dagB])
	assert.Equal(t, dagA, SelectDag(inst, of, h).DagID)

	// a floating DAG loses to a grounded one whatever its preference
	floating := rootDIO(dagB)
	floating.Grounded = false
	floating.Preference = 7
	ProcessDIO(inst, of, h, addr(2), floating)
	assert.Equal(t, dagA, SelectDag(inst, of, h).DagID)
	h.GetActions()

	preferred := rootDIO(dagB)
	preferred.Preference = 1
	ProcessDIO(inst, of, h, addr(2), preferred)
	assert.Equal(t, dagB, SelectDag(inst, of, h).DagID)
	h.GetActions().AssertContains(t, "DAG_SWITCHED", "from", dagA, "to", dagB)
}

func TestMRHOFRouting(t *testing.T) {
	h := &RouterHarness{}
	of := NewMRHOF(state.DefaultObjectiveCfg(), testLogger())
	inst := newInstance(of)

	near := rootDIO(dagA)
	far := rootDIO(dagA)
	far.Rank = 1024
	far.MC = state.MetricContainer{Type: state.MCTypeETX, Length: 2, ETX: 768}
	ProcessDIO(inst, of, h, addr(1), far)
	ProcessDIO(inst, of, h, addr(2), near)
	dag := inst.Dags[dagA]
	SelectParent(inst, of, h, dag)
	SelectDag(inst, of, h)

	assert.Equal(t, addr(2), dag.PreferredParent.Addr)
	assert.EqualValues(t, 2, inst.MC.Length)
	assert.EqualValues(t, 640, inst.MC.ETX)
	assert.Equal(t, state.OCPMRHOF, inst.OCP)
}
