package graph

import (
	"fmt"
	"strings"
	"time"
)

// DependencyType is the relationship kind between a predecessor and a successor.
type DependencyType string

const (
	FinishToStart  DependencyType = "FS"
	StartToStart   DependencyType = "SS"
	FinishToFinish DependencyType = "FF"
	StartToFinish  DependencyType = "SF"
)

// Valid reports whether t is one of the four relationship kinds.
func (t DependencyType) Valid() bool {
	switch t {
	case FinishToStart, StartToStart, FinishToFinish, StartToFinish:
		return true
	}
	return false
}

// ParseDependencyType accepts the two-letter codes as well as long names such as
// "finish-to-start" or "start_to_start". Unknown values are returned unchanged
// alongside an error so the validator can still name them.
func ParseDependencyType(s string) (DependencyType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "-", " ", "-").Replace(norm)
	switch norm {
	case "fs", "finish-to-start":
		return FinishToStart, nil
	case "ss", "start-to-start":
		return StartToStart, nil
	case "ff", "finish-to-finish":
		return FinishToFinish, nil
	case "sf", "start-to-finish":
		return StartToFinish, nil
	}
	return DependencyType(s), fmt.Errorf("unknown dependency type %q", s)
}

// Task is a schedulable unit of work as supplied by the persistence layer.
type Task struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title,omitempty" yaml:"title,omitempty"`
	Duration  int        `json:"duration,omitempty" yaml:"duration,omitempty"` // whole days
	StartDate *time.Time `json:"start_date,omitempty" yaml:"start_date,omitempty"`
}

// Days returns the scheduled duration; anything below one day counts as one.
func (t Task) Days() int {
	if t.Duration > 0 {
		return t.Duration
	}
	return 1
}

// Dependency is a directed, typed edge between two tasks.
type Dependency struct {
	ID            string         `json:"id" yaml:"id"`
	PredecessorID string         `json:"predecessor_id" yaml:"predecessor_id"`
	SuccessorID   string         `json:"successor_id" yaml:"successor_id"`
	Type          DependencyType `json:"type" yaml:"type"`
	Lag           int            `json:"lag,omitempty" yaml:"lag,omitempty"` // days, negative is lead
}

// String renders the edge as "a -FS+2-> b".
func (d Dependency) String() string {
	lag := ""
	if d.Lag != 0 {
		lag = fmt.Sprintf("%+d", d.Lag)
	}
	return fmt.Sprintf("%s -%s%s-> %s", d.PredecessorID, d.Type, lag, d.SuccessorID)
}

// FindingCode classifies a validation finding.
type FindingCode string

const (
	CodeMissingPredecessor FindingCode = "missing_predecessor"
	CodeMissingSuccessor   FindingCode = "missing_successor"
	CodeSelfDependency     FindingCode = "self_dependency"
	CodeDuplicate          FindingCode = "duplicate_dependency"
	CodeInvalidType        FindingCode = "invalid_type"
	CodeExtremeLag         FindingCode = "extreme_lag"
	CodeCycle              FindingCode = "cycle"
	CodeCyclePath          FindingCode = "cycle_path"
	CodeDuplicateTask      FindingCode = "duplicate_task"
	CodeEmptyTaskID        FindingCode = "empty_task_id"
)

// Finding is a single validation error or warning.
type Finding struct {
	Code         FindingCode `json:"code"`
	Message      string      `json:"message"`
	DependencyID string      `json:"dependency_id,omitempty"`
	TaskIDs      []string    `json:"task_ids,omitempty"`
}

func (f Finding) String() string {
	return f.Message
}

// ValidationResult is the verdict of Validate. Warnings never affect Valid.
type ValidationResult struct {
	Valid    bool      `json:"is_valid"`
	Errors   []Finding `json:"errors"`
	Warnings []Finding `json:"warnings"`
}

// ValidationError is returned by Build when the dependency set cannot be scheduled.
type ValidationError struct {
	Result *ValidationResult
}

func (e *ValidationError) Error() string {
	n := len(e.Result.Errors)
	if n == 0 {
		return "invalid dependency graph"
	}
	if n == 1 {
		return "invalid dependency graph: " + e.Result.Errors[0].Message
	}
	return fmt.Sprintf("invalid dependency graph: %s (and %d more)", e.Result.Errors[0].Message, n-1)
}

// Direction selects which neighbors DependencyChains follows.
type Direction int

const (
	Upstream   Direction = iota // predecessors
	Downstream                  // successors
)

// ParseDirection maps "up"/"down" (and their long forms) to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "up", "upstream", "predecessors":
		return Upstream, nil
	case "down", "downstream", "successors":
		return Downstream, nil
	}
	return Upstream, fmt.Errorf("unknown direction %q (use up or down)", s)
}

func (d Direction) String() string {
	if d == Downstream {
		return "downstream"
	}
	return "upstream"
}
