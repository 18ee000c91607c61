package core

import (
	"net/netip"
	"testing"

	"github.com/encodeous/rplof/state"
	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectTrace drains a trace channel until the trace shuts down.
func collectTrace() (chan any, <-chan []TraceEvent) {
	ch := make(chan any, 64)
	out := make(chan []TraceEvent, 1)
	go func() {
		events := make([]TraceEvent, 0)
		for ev := range ch {
			switch ev := ev.(type) {
			case TraceEvent:
				events = append(events, ev)
			case TraceFlushed:
				out <- events
				return
			}
		}
	}()
	return ch, out
}

func findTrace(events []TraceEvent, event RouterEvent) []TraceEvent {
	out := make([]TraceEvent, 0)
	for _, ev := range events {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

func TestScenarioLatencySwitch(t *testing.T) {
	sc, err := LoadScenario("testdata/latency_switch.yaml")
	require.NoError(t, err)
	require.Len(t, sc.Events, 14)
	assert.Equal(t, state.MustParseLinkAddr("02"), sc.Events[0].DIO.From)
	assert.Equal(t, state.TxOK, sc.Events[3].Tx.Status)

	ch, out := collectTrace()
	rep, err := RunScenario(sc, testLogger(), ch)
	require.NoError(t, err)
	events := <-out

	assert.Equal(t, "latency", rep.Objective)
	assert.Equal(t, state.OCPLatency, rep.OCP)
	assert.Equal(t, "fd00::1", rep.Dag)
	assert.Equal(t, state.MustParseLinkAddr("03").String(), rep.Preferred)
	assert.Equal(t, state.Rank(896), rep.Rank)
	assert.Equal(t, 0, rep.Pending)
	assert.EqualValues(t, 640, rep.MC.ETX)
	assert.EqualValues(t, 0, rep.MC.Latency)

	require.Len(t, rep.Parents, 2)
	slow := rep.Parents[0]
	assert.Equal(t, state.MustParseLinkAddr("02").String(), slow.Addr)
	assert.EqualValues(t, 69, slow.DelayMetric)
	assert.EqualValues(t, 398, slow.LinkMetric)
	assert.False(t, slow.Preferred)
	assert.True(t, rep.Parents[1].Preferred)

	switches := findTrace(events, ParentSwitched)
	require.Len(t, switches, 2)
	assert.EqualValues(t, 5000, switches[1].At)
	assert.Equal(t, state.NodeId("sim"), switches[1].Node)
	assert.Len(t, findTrace(events, LinkUpdated), 6)
	assert.Empty(t, findTrace(events, NoRoute))
}

func TestScenarioRoot(t *testing.T) {
	sc, err := LoadScenario("testdata/root.yaml")
	require.NoError(t, err)

	rep, err := RunScenario(sc, testLogger(), nil)
	require.NoError(t, err)
	assert.Equal(t, "fd00::1", rep.Dag)
	assert.Equal(t, state.Rank(256), rep.Rank)
	assert.Empty(t, rep.Preferred)
	assert.Empty(t, rep.Parents)
	assert.Equal(t, 3, rep.Pending)
	assert.Equal(t, state.MetricContainer{Type: state.MCTypeETX, Flags: state.MCFlagP, Length: 4}, rep.MC)
}

func TestScenarioNoRoute(t *testing.T) {
	sc := &Scenario{
		Node: state.NodeCfg{
			Id:        "lonely",
			Addr:      state.MustParseLinkAddr("05"),
			Objective: state.ObjectiveCfg{Name: "mrhof"},
		},
		Events: []Event{
			{At: 1, Send: &SendEvent{Dst: netip.MustParseAddr("fd00::1"), Count: 2}},
			{At: 2, Tx: &TxEvent{To: state.MustParseLinkAddr("07"), Status: state.TxOK, NumTx: 1}},
			{At: 3, Remove: ptr(state.MustParseLinkAddr("07"))},
			{At: 4, Select: true},
		},
	}
	require.NoError(t, sc.Validate())

	ch, out := collectTrace()
	rep, err := RunScenario(sc, testLogger(), ch)
	require.NoError(t, err)
	events := <-out

	assert.Equal(t, "mrhof", rep.Objective)
	assert.Equal(t, state.InfiniteRank, rep.Rank)
	assert.Empty(t, rep.Dag)
	assert.Len(t, findTrace(events, NoRoute), 2)
	assert.Len(t, findTrace(events, NoParentForLink), 1)
	assert.Len(t, findTrace(events, InconsistentState), 1)
}

func TestScenarioSampleDropped(t *testing.T) {
	sc := &Scenario{
		Node: state.NodeCfg{
			Id:        "busy",
			Addr:      state.MustParseLinkAddr("05"),
			Objective: state.ObjectiveCfg{PoolCapacity: 2},
		},
		Events: []Event{
			{At: 1, Send: &SendEvent{To: state.MustParseLinkAddr("09"), Count: 5}},
		},
	}
	require.NoError(t, sc.Validate())

	ch, out := collectTrace()
	rep, err := RunScenario(sc, testLogger(), ch)
	require.NoError(t, err)
	events := <-out

	assert.Equal(t, 2, rep.Pending)
	assert.Len(t, findTrace(events, SampleDropped), 3)
}

func TestTxEventTimestamps(t *testing.T) {
	tx := TxEvent{To: state.MustParseLinkAddr("02"), Status: state.TxOK, NumTx: 1}
	assert.Equal(t, state.LinkEvent{Dest: tx.To, Status: state.TxOK, NumTx: 1, BeforeSend: 70, AfterAck: 70}, tx.linkEvent(70))

	tx.Before = ptr[uint32](0)
	assert.Equal(t, state.LinkEvent{Dest: tx.To, Status: state.TxOK, NumTx: 1, BeforeSend: 0, AfterAck: 0}, tx.linkEvent(70))

	tx.After = ptr[uint32](0)
	tx.Before = nil
	assert.Equal(t, state.LinkEvent{Dest: tx.To, Status: state.TxOK, NumTx: 1, BeforeSend: 70, AfterAck: 0}, tx.linkEvent(70))

	var parsed TxEvent
	require.NoError(t, yaml.Unmarshal([]byte(`{to: "02", status: ok, numtx: 1, before: 0}`), &parsed))
	require.NotNil(t, parsed.Before)
	assert.EqualValues(t, 0, *parsed.Before)
	assert.Nil(t, parsed.After)
}

// A frame handed over at 0 and acknowledged at 100 spends 50ms on the link.
func TestScenarioExplicitZeroBefore(t *testing.T) {
	sc := &Scenario{
		Node: state.NodeCfg{
			Id:        "early",
			Addr:      state.MustParseLinkAddr("01"),
			Objective: state.ObjectiveCfg{Name: "latency"},
		},
		Events: []Event{
			{At: 0, DIO: &DIOEvent{From: state.MustParseLinkAddr("02"), DIO: rootDIO(dagA)}},
			{At: 0, Send: &SendEvent{To: state.MustParseLinkAddr("02")}},
			{At: 100, Tx: &TxEvent{To: state.MustParseLinkAddr("02"), Status: state.TxOK, NumTx: 1, Before: ptr[uint32](0), After: ptr[uint32](100)}},
		},
	}
	require.NoError(t, sc.Validate())

	rep, err := RunScenario(sc, testLogger(), nil)
	require.NoError(t, err)
	require.Len(t, rep.Parents, 1)
	// ewma(0, 50), a defaulted before would have measured 100
	assert.EqualValues(t, 5, rep.Parents[0].DelayMetric)
	assert.EqualValues(t, 588, rep.Parents[0].LinkMetric)
	assert.Equal(t, 0, rep.Pending)
}

func ptr[T any](v T) *T {
	return &v
}

func TestScenarioValidate(t *testing.T) {
	node := state.NodeCfg{Id: "n", Addr: state.MustParseLinkAddr("01")}
	dio := &DIOEvent{From: state.MustParseLinkAddr("02"), DIO: rootDIO(dagA)}
	tests := []struct {
		name string
		sc   Scenario
		err  string
	}{
		{"bad id", Scenario{Node: state.NodeCfg{Id: "Not Valid", Addr: node.Addr}}, "not a valid name"},
		{"null addr", Scenario{Node: state.NodeCfg{Id: "n"}}, "unicast"},
		{"root without dag", Scenario{Node: node, Root: &RootCfg{}}, "root.dag"},
		{"out of order", Scenario{Node: node, Events: []Event{{At: 5, Select: true}, {At: 4, Select: true}}}, "before the previous event"},
		{"no action", Scenario{Node: node, Events: []Event{{At: 5}}}, "exactly one action"},
		{"two actions", Scenario{Node: node, Events: []Event{{At: 5, Select: true, DIO: dio}}}, "exactly one action"},
		{"dio without dag", Scenario{Node: node, Events: []Event{{DIO: &DIOEvent{From: dio.From}}}}, "dio.dag"},
		{"dio without from", Scenario{Node: node, Events: []Event{{DIO: &DIOEvent{DIO: dio.DIO}}}}, "dio.from"},
		{"send nowhere", Scenario{Node: node, Events: []Event{{Send: &SendEvent{}}}}, "either to or dst"},
		{"negative count", Scenario{Node: node, Events: []Event{{Send: &SendEvent{To: dio.From, Count: -1}}}}, "send.count"},
		{"tx without to", Scenario{Node: node, Events: []Event{{Tx: &TxEvent{}}}}, "tx.to"},
		{"negative numtx", Scenario{Node: node, Events: []Event{{Tx: &TxEvent{To: dio.From, NumTx: -2}}}}, "tx.numtx"},
		{"bad objective", Scenario{Node: state.NodeCfg{Id: "n", Addr: node.Addr, Objective: state.ObjectiveCfg{DelayAlpha: 101}}}, "delay_alpha"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, tt.sc.Validate(), tt.err)
		})
	}

	ok := Scenario{Node: node, Events: []Event{{At: 1, DIO: dio}, {At: 1, Select: true}}}
	assert.NoError(t, ok.Validate())
	assert.EqualValues(t, state.DefaultMinHopRankIncrease, ok.Node.MinHopRankIncrease)
}

func TestLoadScenarioErrors(t *testing.T) {
	_, err := LoadScenario("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestRunScenarioUnknownObjective(t *testing.T) {
	sc := &Scenario{Node: state.NodeCfg{
		Id:        "n",
		Addr:      state.MustParseLinkAddr("01"),
		Objective: state.ObjectiveCfg{Name: "of0"},
	}}
	_, err := RunScenario(sc, testLogger(), nil)
	assert.ErrorContains(t, err, "unknown objective")
}
