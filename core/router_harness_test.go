package core

import (
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"strings"
	"testing"

	"github.com/encodeous/rplof/state"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var (
	dagA = netip.MustParseAddr("fd00::1")
	dagB = netip.MustParseAddr("fd00::2")
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func addr(n byte) state.LinkAddr {
	return state.LinkAddr{7: n}
}

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

type RouterHarness struct {
	actions []HarnessEvent
}

// simplify replaces records by their identity so events can be compared by value.
func simplify(arg any) any {
	switch v := arg.(type) {
	case *state.Parent:
		if v == nil {
			return state.NullAddr
		}
		return v.Addr
	case *state.Dag:
		if v == nil {
			return netip.Addr{}
		}
		return v.DagID
	}
	return arg
}

func (h *RouterHarness) Log(event RouterEvent, desc string, args ...any) {
	x := make([]any, 0, len(args))
	for _, arg := range args {
		x = append(x, simplify(arg))
	}
	h.actions = append(h.actions, MakeEvent(event.String(), x...))
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

func (h *RouterHarness) GetActions() HarnessEvents {
	x := h.actions
	h.actions = make([]HarnessEvent, 0)
	return x
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg {
			if len(event.Args) >= len(args) {
				match := true
				for i, arg := range args {
					if !cmp.Equal(event.Args[i], arg, cmpopts.EquateComparable(netip.Addr{}, netip.Prefix{})) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

func newLatencyOF() *LatencyOF {
	return NewLatencyOF(state.DefaultObjectiveCfg(), &state.ManualClock{}, testLogger())
}

func newInstance(of ObjectiveFunction) *state.Instance {
	return state.NewInstance(1, of.OCP(), state.DefaultMinHopRankIncrease)
}

func rootDIO(dag netip.Addr) DIO {
	return DIO{
		DagID:    dag,
		Prefix:   netip.PrefixFrom(dag, 64),
		Rank:     state.DefaultMinHopRankIncrease,
		Grounded: true,
	}
}
