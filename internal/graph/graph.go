package graph

import "strings"

// Edge is a dependency resolved to arena indices.
type Edge struct {
	From, To int
	Dep      Dependency
}

// TaskGraph is a validated, acyclic task graph. The only way to obtain one is
// Build, so holding a *TaskGraph proves the dependency set can be scheduled.
//
// It is immutable and safe for concurrent reads.
type TaskGraph struct {
	tasks    []Task
	index    map[string]int
	edges    []Edge
	outgoing [][]int // task index -> edge indices
	incoming [][]int // task index -> edge indices
	order    []int
	warnings []Finding
}

// Build validates tasks and deps and returns the graph. If validation finds
// any error it returns a *ValidationError carrying the full verdict.
func Build(tasks []Task, deps []Dependency) (*TaskGraph, error) {
	res := Validate(tasks, deps)
	if !res.Valid {
		return nil, &ValidationError{Result: res}
	}

	g := &TaskGraph{
		tasks:    make([]Task, len(tasks)),
		index:    make(map[string]int, len(tasks)),
		outgoing: make([][]int, len(tasks)),
		incoming: make([][]int, len(tasks)),
		warnings: res.Warnings,
	}
	copy(g.tasks, tasks)
	for i, t := range g.tasks {
		g.index[t.ID] = i
	}

	indeg := make([]int, len(tasks))
	succ := make([][]int, len(tasks))
	for _, d := range deps {
		from, to := g.index[d.PredecessorID], g.index[d.SuccessorID]
		e := len(g.edges)
		g.edges = append(g.edges, Edge{From: from, To: to, Dep: d})
		g.outgoing[from] = append(g.outgoing[from], e)
		g.incoming[to] = append(g.incoming[to], e)
		succ[from] = append(succ[from], to)
		indeg[to]++
	}
	g.order = topoOrder(indeg, succ)

	return g, nil
}

// Len returns the number of tasks.
func (g *TaskGraph) Len() int { return len(g.tasks) }

// Task returns the task at arena index i.
func (g *TaskGraph) Task(i int) *Task { return &g.tasks[i] }

// Index returns the arena index of a task id.
func (g *TaskGraph) Index(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Order returns the arena indices in topological order.
func (g *TaskGraph) Order() []int {
	out := make([]int, len(g.order))
	copy(out, g.order)
	return out
}

// Outgoing returns the edges leaving task i.
func (g *TaskGraph) Outgoing(i int) []Edge { return g.pick(g.outgoing[i]) }

// Incoming returns the edges entering task i.
func (g *TaskGraph) Incoming(i int) []Edge { return g.pick(g.incoming[i]) }

func (g *TaskGraph) pick(idx []int) []Edge {
	out := make([]Edge, len(idx))
	for k, e := range idx {
		out[k] = g.edges[e]
	}
	return out
}

// Roots returns the ids of tasks with no predecessors, in input order.
func (g *TaskGraph) Roots() []string {
	var ids []string
	for i, t := range g.tasks {
		if len(g.incoming[i]) == 0 {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// Leaves returns the ids of tasks with no successors, in input order.
func (g *TaskGraph) Leaves() []string {
	var ids []string
	for i, t := range g.tasks {
		if len(g.outgoing[i]) == 0 {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// Warnings returns the non-fatal findings from validation.
func (g *TaskGraph) Warnings() []Finding {
	out := make([]Finding, len(g.warnings))
	copy(out, g.warnings)
	return out
}

// Filter returns a new TaskGraph containing only tasks matching the predicate.
// Dependencies touching a removed task are dropped.
func (g *TaskGraph) Filter(pred func(*Task) bool) (*TaskGraph, error) {
	keep := make(map[string]bool, len(g.tasks))
	var tasks []Task
	for i := range g.tasks {
		if pred(&g.tasks[i]) {
			keep[g.tasks[i].ID] = true
			tasks = append(tasks, g.tasks[i])
		}
	}
	var deps []Dependency
	for _, e := range g.edges {
		if keep[e.Dep.PredecessorID] && keep[e.Dep.SuccessorID] {
			deps = append(deps, e.Dep)
		}
	}
	return Build(tasks, deps)
}

// MatchIDs returns a Filter predicate keeping tasks whose id equals or starts
// with one of the given prefixes. Empty prefixes are ignored.
func MatchIDs(prefixes ...string) func(*Task) bool {
	return func(t *Task) bool {
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(t.ID, p) {
				return true
			}
		}
		return false
	}
}
