// Package depgraph records which wizard steps influence which computed
// outputs. A graph is built once and never mutated.
package depgraph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Simplici0/liveprice/internal/flow"
)

// ErrCycle is returned when the dependency table contains a cycle.
var ErrCycle = errors.New("dependency cycle detected")

// Edge lists the steps a change propagates to.
type Edge struct {
	Affects []flow.StepID `json:"affects"`
}

// Graph is an immutable step dependency registry.
type Graph struct {
	edges map[flow.StepID][]Edge
}

// New copies deps into a graph and validates it for cycles. Targets that
// have no entry of their own are allowed; they are leaves.
func New(deps map[flow.StepID][]Edge) (*Graph, error) {
	g := &Graph{edges: make(map[flow.StepID][]Edge, len(deps))}
	for step, edges := range deps {
		g.edges[step] = copyEdges(edges)
	}

	// white=0, gray=1, black=2
	colors := make(map[flow.StepID]int, len(g.edges))
	for _, step := range g.sortedSteps() {
		if colors[step] == 0 {
			if path, ok := g.findCycle(step, colors, nil); ok {
				return nil, fmt.Errorf("%v: %w", path, ErrCycle)
			}
		}
	}
	return g, nil
}

// MustNew is New for static tables; it panics on a cycle.
func MustNew(deps map[flow.StepID][]Edge) *Graph {
	g, err := New(deps)
	if err != nil {
		panic(err)
	}
	return g
}

// DefaultDeps returns the wizard's step dependencies.
func DefaultDeps() map[flow.StepID][]Edge {
	return map[flow.StepID][]Edge{
		flow.StepProjectSetup: {{Affects: []flow.StepID{flow.StepAreaOfWork, flow.StepPricing}}},
		flow.StepAreaOfWork:   {{Affects: []flow.StepID{flow.StepPricing, flow.StepDuration}}},
		flow.StepScopeDetails: {{Affects: []flow.StepID{flow.StepPricing, flow.StepDuration}}},
		flow.StepDuration:     {{Affects: []flow.StepID{flow.StepPricing}}},
		flow.StepPricing:      {},
		flow.StepReview:       {},
	}
}

// Default returns the graph built from DefaultDeps.
func Default() *Graph {
	return MustNew(DefaultDeps())
}

// EdgesFrom returns a copy of the edges declared for step.
func (g *Graph) EdgesFrom(step flow.StepID) []Edge {
	return copyEdges(g.edges[step])
}

// Known reports whether step is registered.
func (g *Graph) Known(step flow.StepID) bool {
	_, ok := g.edges[step]
	return ok
}

// Steps returns the registered steps in sorted order.
func (g *Graph) Steps() []flow.StepID {
	return g.sortedSteps()
}

// Downstream returns every step transitively affected by step, sorted.
func (g *Graph) Downstream(step flow.StepID) []flow.StepID {
	seen := make(map[flow.StepID]bool)
	var walk func(flow.StepID)
	walk = func(s flow.StepID) {
		for _, e := range g.edges[s] {
			for _, next := range e.Affects {
				if seen[next] {
					continue
				}
				seen[next] = true
				walk(next)
			}
		}
	}
	walk(step)

	out := make([]flow.StepID, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Affects reports whether a change to step can change target. A step
// always affects itself.
func (g *Graph) Affects(step, target flow.StepID) bool {
	if step == target {
		return true
	}
	for _, s := range g.Downstream(step) {
		if s == target {
			return true
		}
	}
	return false
}

func (g *Graph) findCycle(step flow.StepID, colors map[flow.StepID]int, path []flow.StepID) ([]flow.StepID, bool) {
	colors[step] = 1
	path = append(path, step)
	for _, e := range g.edges[step] {
		for _, next := range e.Affects {
			switch colors[next] {
			case 1:
				return append(path, next), true
			case 0:
				if p, ok := g.findCycle(next, colors, path); ok {
					return p, true
				}
			}
		}
	}
	colors[step] = 2
	return nil, false
}

func (g *Graph) sortedSteps() []flow.StepID {
	steps := make([]flow.StepID, 0, len(g.edges))
	for s := range g.edges {
		steps = append(steps, s)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	return steps
}

func copyEdges(edges []Edge) []Edge {
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = Edge{Affects: append([]flow.StepID(nil), e.Affects...)}
	}
	return out
}
