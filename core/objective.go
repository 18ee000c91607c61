package core

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/encodeous/rplof/state"
)

// ObjectiveFunction is the policy the router consults to rank itself, pick a preferred parent,
// pick a DAG and build the metric container it advertises. Every method runs on the dispatch
// goroutine.
type ObjectiveFunction interface {
	Name() string
	OCP() uint16
	Config() state.ObjectiveCfg
	Reset(dag *state.Dag)
	// NeighbourLinkCallback is invoked once per transmission completion towards parent p.
	NeighbourLinkCallback(p *state.Parent, ev state.LinkEvent)
	BestParent(p1, p2 *state.Parent) *state.Parent
	BestDag(d1, d2 *state.Dag) *state.Dag
	CalculateRank(p *state.Parent, base state.Rank) state.Rank
	UpdateMetricContainer(instance *state.Instance)
}

// PacketObserver is implemented by objective functions that need to see frames as they are
// handed to the link layer.
type PacketObserver interface {
	PacketSent(dest state.LinkAddr) bool
}

// Collector is implemented by objective functions holding state that must be trimmed periodically.
type Collector interface {
	Gc()
}

type objectiveFactory func(cfg state.ObjectiveCfg, clock state.Clock, log *slog.Logger) ObjectiveFunction

var objectives = make(map[string]objectiveFactory)

func registerObjective(name string, factory objectiveFactory) {
	if _, ok := objectives[name]; ok {
		panic(fmt.Sprintf("objective %s registered twice", name))
	}
	objectives[name] = factory
}

// Objectives lists the names of every registered objective function.
func Objectives() []string {
	return slices.Sorted(maps.Keys(objectives))
}

// NewObjective constructs the objective function named by cfg.Name.
func NewObjective(cfg state.ObjectiveCfg, clock state.Clock, log *slog.Logger) (ObjectiveFunction, error) {
	cfg.ApplyDefaults()
	if err := state.ObjectiveConfigValidator(&cfg); err != nil {
		return nil, fmt.Errorf("invalid objective config: %w", err)
	}
	factory, ok := objectives[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("unknown objective %q, expected one of %v", cfg.Name, Objectives())
	}
	return factory(cfg, clock, log.With("of", cfg.Name)), nil
}
