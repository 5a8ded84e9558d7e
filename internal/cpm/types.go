package cpm

import (
	"time"

	"github.com/joshharrison/critpath/internal/graph"
)

// Options controls a scheduling run.
type Options struct {
	// Now anchors root tasks without a start date. Defaults to time.Now.
	Now func() time.Time
	// ProjectEnd, when set, is the latest finish of every sink task.
	ProjectEnd *time.Time
	// Location is used to read Now and to render dates. Defaults to UTC.
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// Link is one direct edge from a node to another node in the same arena.
type Link struct {
	Node         int                  `json:"node"` // index into the node slice
	Type         graph.DependencyType `json:"type"`
	Lag          int                  `json:"lag,omitempty"`
	DependencyID string               `json:"dependency_id,omitempty"`
}

// TaskNode holds the scheduling result for one task. All dates are day numbers
// (see DayNumber).
type TaskNode struct {
	Task     *graph.Task `json:"-"` // not owned
	ID       string      `json:"id"`
	Duration int         `json:"duration"`

	EarliestStart  int `json:"earliest_start"`
	EarliestFinish int `json:"earliest_finish"`
	LatestStart    int `json:"latest_start"`
	LatestFinish   int `json:"latest_finish"`

	Float      int  `json:"float"`
	IsCritical bool `json:"is_critical"`
	Infeasible bool `json:"infeasible,omitempty"`
	Shortfall  int  `json:"shortfall,omitempty"` // days the latest start falls before the earliest start
	Wave       int  `json:"wave"`

	Predecessors []Link `json:"predecessors,omitempty"`
	Successors   []Link `json:"successors,omitempty"`
}

// CriticalTask is a task on the critical path with its computed float.
type CriticalTask struct {
	graph.Task
	Float      int  `json:"float"`
	IsCritical bool `json:"is_critical"`
}

// Schedule holds the complete critical path analysis.
type Schedule struct {
	Nodes         []TaskNode      // topological order
	CriticalPath  []string        // critical task ids in node order
	Roots         []string        // tasks without predecessors, input order
	Sinks         []string        // tasks without successors, input order
	ProjectStart  int             // earliest start over all tasks
	ProjectFinish int             // earliest finish over all tasks
	TotalDuration int             // ProjectFinish - ProjectStart
	Waves         []Wave          // tasks grouped by earliest start
	Infeasible    bool            // some task has negative raw float
	Warnings      []graph.Finding // non-fatal validation findings
	Location      *time.Location

	index map[string]int
}

// Wave represents a group of tasks that can start on the same day.
type Wave struct {
	Index      int
	Day        int
	TaskIDs    []string
	IsCritical bool // true if wave contains critical path tasks
}

// Node looks up the node for a task id.
func (s *Schedule) Node(id string) (*TaskNode, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.Nodes[i], true
}

// Date renders a day number in the schedule's location.
func (s *Schedule) Date(day int) time.Time {
	return Date(day, s.Location)
}

// Critical returns the critical tasks in node order.
func (s *Schedule) Critical() []CriticalTask {
	var out []CriticalTask
	for _, n := range s.Nodes {
		if n.IsCritical {
			out = append(out, CriticalTask{Task: *n.Task, Float: n.Float, IsCritical: true})
		}
	}
	return out
}
