package cpm

import (
	"sort"
	"time"

	"github.com/joshharrison/critpath/internal/graph"
)

// Compute validates tasks and deps and, if they form a schedulable graph,
// runs the full analysis. A validation failure is returned as a
// *graph.ValidationError.
func Compute(tasks []graph.Task, deps []graph.Dependency, opts Options) (*Schedule, error) {
	g, err := graph.Build(tasks, deps)
	if err != nil {
		return nil, err
	}
	return Analyze(g, opts), nil
}

// CriticalPath returns the tasks with zero float, annotated with their float,
// in node-processing order. Callers needing precedence order should sort by
// earliest start.
func CriticalPath(tasks []graph.Task, deps []graph.Dependency, opts Options) ([]CriticalTask, error) {
	s, err := Compute(tasks, deps, opts)
	if err != nil {
		return nil, err
	}
	return s.Critical(), nil
}

// Analyze performs critical path method analysis on a validated task graph.
func Analyze(g *graph.TaskGraph, opts Options) *Schedule {
	opts = opts.withDefaults()

	nodes := BackwardPass(ForwardPass(g, opts), opts.ProjectEnd)

	s := &Schedule{
		Nodes:    nodes,
		Roots:    g.Roots(),
		Sinks:    g.Leaves(),
		Warnings: g.Warnings(),
		Location: opts.Location,
		index:    make(map[string]int, len(nodes)),
	}

	for k := range nodes {
		n := &nodes[k]
		s.index[n.ID] = k
		if k == 0 || n.EarliestStart < s.ProjectStart {
			s.ProjectStart = n.EarliestStart
		}
		if k == 0 || n.EarliestFinish > s.ProjectFinish {
			s.ProjectFinish = n.EarliestFinish
		}
		if n.IsCritical {
			s.CriticalPath = append(s.CriticalPath, n.ID)
		}
		if n.Infeasible {
			s.Infeasible = true
		}
	}
	s.TotalDuration = s.ProjectFinish - s.ProjectStart
	s.Waves = computeWaves(s)

	return s
}

// ForwardPass computes earliest start and finish for every task. The returned
// nodes are in topological order and their links index into the same slice.
//
// Roots start on their StartDate, or on opts.Now when they have none. A start
// date at midnight UTC is taken as a plain calendar date. Other tasks start as
// early as every incoming dependency allows, but never before the earliest root.
func ForwardPass(g *graph.TaskGraph, opts Options) []TaskNode {
	opts = opts.withDefaults()

	order := g.Order()
	pos := make([]int, g.Len())
	for k, i := range order {
		pos[i] = k
	}

	nodes := make([]TaskNode, len(order))
	for k, i := range order {
		t := g.Task(i)
		n := TaskNode{Task: t, ID: t.ID, Duration: t.Days()}
		for _, e := range g.Incoming(i) {
			n.Predecessors = append(n.Predecessors, Link{
				Node: pos[e.From], Type: e.Dep.Type, Lag: e.Dep.Lag, DependencyID: e.Dep.ID,
			})
		}
		for _, e := range g.Outgoing(i) {
			n.Successors = append(n.Successors, Link{
				Node: pos[e.To], Type: e.Dep.Type, Lag: e.Dep.Lag, DependencyID: e.Dep.ID,
			})
		}
		nodes[k] = n
	}

	today := DayNumber(opts.Now().In(opts.Location))
	origin := 0
	for k := range nodes {
		n := &nodes[k]
		if len(n.Predecessors) > 0 {
			continue
		}
		n.EarliestStart = today
		if n.Task.StartDate != nil {
			n.EarliestStart = anchorDay(*n.Task.StartDate, opts.Location)
		}
		if k == 0 || n.EarliestStart < origin {
			origin = n.EarliestStart
		}
	}

	// Predecessors always sit earlier in the slice, so one sweep settles everything.
	for k := range nodes {
		n := &nodes[k]
		if len(n.Predecessors) > 0 {
			es := origin
			for _, l := range n.Predecessors {
				if c := startBound(&nodes[l.Node], n.Duration, l); c > es {
					es = c
				}
			}
			n.EarliestStart = es
		}
		n.EarliestFinish = n.EarliestStart + n.Duration
	}

	return nodes
}

// BackwardPass computes latest dates, float and criticality. nodes must be in
// the order ForwardPass returned them. The input slice is not modified.
//
// Sinks finish by projectEnd when given, otherwise by their own earliest
// finish. A negative float marks the node Infeasible; Float itself is floored
// at zero and the deficit is kept in Shortfall.
func BackwardPass(nodes []TaskNode, projectEnd *time.Time) []TaskNode {
	out := make([]TaskNode, len(nodes))
	copy(out, nodes)

	for k := len(out) - 1; k >= 0; k-- {
		n := &out[k]
		switch {
		case len(n.Successors) > 0:
			for j, l := range n.Successors {
				if c := finishBound(&out[l.Node], n.Duration, l); j == 0 || c < n.LatestFinish {
					n.LatestFinish = c
				}
			}
		case projectEnd != nil:
			n.LatestFinish = DayNumber(*projectEnd)
		default:
			n.LatestFinish = n.EarliestFinish
		}
		n.LatestStart = n.LatestFinish - n.Duration

		raw := n.LatestStart - n.EarliestStart
		n.Float, n.Infeasible, n.Shortfall = raw, false, 0
		if raw < 0 {
			n.Float, n.Infeasible, n.Shortfall = 0, true, -raw
		}
		n.IsCritical = n.Float == 0
	}

	return out
}

// startBound is the earliest start a successor of duration dur may take under l.
func startBound(pred *TaskNode, dur int, l Link) int {
	switch l.Type {
	case graph.StartToStart:
		return pred.EarliestStart + l.Lag
	case graph.FinishToFinish:
		return pred.EarliestFinish + l.Lag - dur
	case graph.StartToFinish:
		return pred.EarliestStart + l.Lag - dur
	default:
		return pred.EarliestFinish + l.Lag
	}
}

// finishBound is the latest finish a predecessor of duration dur may take under l.
func finishBound(succ *TaskNode, dur int, l Link) int {
	switch l.Type {
	case graph.StartToStart:
		return succ.LatestStart - l.Lag + dur
	case graph.FinishToFinish:
		return succ.LatestFinish - l.Lag
	case graph.StartToFinish:
		return succ.LatestFinish - l.Lag + dur
	default:
		return succ.LatestStart - l.Lag
	}
}

// computeWaves groups tasks by their earliest start and records each node's wave.
func computeWaves(s *Schedule) []Wave {
	esGroups := make(map[int][]int)
	for k, n := range s.Nodes {
		esGroups[n.EarliestStart] = append(esGroups[n.EarliestStart], k)
	}

	esValues := make([]int, 0, len(esGroups))
	for es := range esGroups {
		esValues = append(esValues, es)
	}
	sort.Ints(esValues)

	waves := make([]Wave, len(esValues))
	for i, es := range esValues {
		members := esGroups[es]

		// Critical tasks first within a wave, otherwise node order.
		sort.SliceStable(members, func(a, b int) bool {
			return s.Nodes[members[a]].IsCritical && !s.Nodes[members[b]].IsCritical
		})

		w := Wave{Index: i, Day: es}
		for _, k := range members {
			s.Nodes[k].Wave = i
			w.TaskIDs = append(w.TaskIDs, s.Nodes[k].ID)
			if s.Nodes[k].IsCritical {
				w.IsCritical = true
			}
		}
		waves[i] = w
	}

	return waves
}
