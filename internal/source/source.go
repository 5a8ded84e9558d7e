// Package source loads task/dependency snapshots from project files.
//
// JSON files are document-database exports and are read leniently with gjson:
// ids may be "id" or "_id", keys may be camelCase or snake_case, and dates may
// be RFC3339 strings, YYYY-MM-DD strings, epoch milliseconds or timestamp
// objects such as {"_seconds": 1700000000}. YAML files are written by hand and
// may use a depends_on shorthand for finish-to-start edges.
package source

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/joshharrison/critpath/internal/graph"
)

const dateLayout = "2006-01-02"

// Snapshot is one consistent set of tasks and dependencies.
type Snapshot struct {
	Tasks        []graph.Task
	Dependencies []graph.Dependency
}

// LoadFile reads a snapshot, choosing the format from the file extension.
func LoadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project file: %w", err)
	}

	var snap *Snapshot
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		snap, err = ParseYAML(data)
	default:
		snap, err = ParseJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// ParseJSON reads a JSON export with top-level "tasks" and "dependencies" arrays.
// Field values are not validated here beyond their shape; dangling references
// and bad types are left for the validator to report.
func ParseJSON(data []byte) (*Snapshot, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(data)

	snap := &Snapshot{}
	var err error

	root.Get("tasks").ForEach(func(_, item gjson.Result) bool {
		var t graph.Task
		t, err = parseTask(item)
		if err != nil {
			return false
		}
		snap.Tasks = append(snap.Tasks, t)
		return true
	})
	if err != nil {
		return nil, err
	}

	root.Get("dependencies").ForEach(func(_, item gjson.Result) bool {
		snap.Dependencies = append(snap.Dependencies, parseDependency(item))
		return true
	})

	return snap, nil
}

func parseTask(item gjson.Result) (graph.Task, error) {
	t := graph.Task{
		ID:       first(item, "id", "_id").String(),
		Title:    first(item, "title", "name").String(),
		Duration: int(first(item, "duration", "durationDays", "duration_days").Int()),
	}
	start, err := parseDate(first(item, "startDate", "start_date", "start"))
	if err != nil {
		return t, fmt.Errorf("task %q: start date: %w", t.ID, err)
	}
	t.StartDate = start
	return t, nil
}

func parseDependency(item gjson.Result) graph.Dependency {
	d := graph.Dependency{
		ID:            first(item, "id", "_id").String(),
		PredecessorID: first(item, "predecessorId", "predecessor_id", "predecessor", "from").String(),
		SuccessorID:   first(item, "successorId", "successor_id", "successor", "to").String(),
		Type:          dependencyType(first(item, "type", "dependencyType", "dependency_type").String()),
		Lag:           int(first(item, "lag", "lagDays", "lag_days").Int()),
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return d
}

// dependencyType normalizes a type name. Unknown names are kept so the
// validator can report them; an empty name means finish-to-start.
func dependencyType(s string) graph.DependencyType {
	if s == "" {
		return graph.FinishToStart
	}
	t, _ := graph.ParseDependencyType(s)
	return t
}

// first returns the first of keys present on item.
func first(item gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := item.Get(k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

func parseDate(r gjson.Result) (*time.Time, error) {
	switch {
	case !r.Exists() || r.Type == gjson.Null:
		return nil, nil
	case r.Type == gjson.Number:
		t := time.UnixMilli(r.Int()).UTC()
		return &t, nil
	case r.Type == gjson.String:
		return parseDateString(r.String())
	case r.IsObject():
		if s := first(r, "_seconds", "seconds"); s.Exists() {
			t := time.Unix(s.Int(), 0).UTC()
			return &t, nil
		}
		if d := r.Get("$date"); d.Exists() {
			return parseDate(d)
		}
	}
	return nil, fmt.Errorf("unsupported date %s", r.Raw)
}

// parseDateString accepts YYYY-MM-DD or RFC3339. A plain date becomes midnight
// UTC, which the scheduler reads as that calendar date in any timezone.
func parseDateString(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("unsupported date %q", s)
	}
	return &t, nil
}

type yamlFile struct {
	Tasks        []yamlTask `yaml:"tasks"`
	Dependencies []yamlDep  `yaml:"dependencies,omitempty"`
}

type yamlTask struct {
	ID        string   `yaml:"id"`
	Title     string   `yaml:"title,omitempty"`
	Duration  int      `yaml:"duration,omitempty"`
	StartDate string   `yaml:"start_date,omitempty"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

type yamlDep struct {
	ID            string `yaml:"id,omitempty"`
	PredecessorID string `yaml:"predecessor_id"`
	SuccessorID   string `yaml:"successor_id"`
	Type          string `yaml:"type,omitempty"`
	Lag           int    `yaml:"lag,omitempty"`
}

// ParseYAML reads a hand-written project file.
func ParseYAML(data []byte) (*Snapshot, error) {
	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	snap := &Snapshot{}
	for _, yt := range f.Tasks {
		start, err := parseDateString(yt.StartDate)
		if err != nil {
			return nil, fmt.Errorf("task %q: start date: %w", yt.ID, err)
		}
		snap.Tasks = append(snap.Tasks, graph.Task{
			ID: yt.ID, Title: yt.Title, Duration: yt.Duration, StartDate: start,
		})
		for _, pred := range yt.DependsOn {
			snap.Dependencies = append(snap.Dependencies, graph.Dependency{
				ID:            pred + "->" + yt.ID,
				PredecessorID: pred,
				SuccessorID:   yt.ID,
				Type:          graph.FinishToStart,
			})
		}
	}

	for _, yd := range f.Dependencies {
		d := graph.Dependency{
			ID:            yd.ID,
			PredecessorID: yd.PredecessorID,
			SuccessorID:   yd.SuccessorID,
			Type:          dependencyType(yd.Type),
			Lag:           yd.Lag,
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		snap.Dependencies = append(snap.Dependencies, d)
	}

	return snap, nil
}

// WriteFile writes snap to path as JSON or YAML, by extension. The output
// loads back with LoadFile.
func WriteFile(path string, snap *Snapshot) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(toYAML(snap))
	default:
		data, err = json.MarshalIndent(toJSON(snap), "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write project file: %w", err)
	}
	return nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

func toYAML(snap *Snapshot) yamlFile {
	f := yamlFile{Tasks: make([]yamlTask, 0, len(snap.Tasks))}
	for _, t := range snap.Tasks {
		f.Tasks = append(f.Tasks, yamlTask{
			ID: t.ID, Title: t.Title, Duration: t.Duration, StartDate: formatDate(t.StartDate),
		})
	}
	for _, d := range snap.Dependencies {
		f.Dependencies = append(f.Dependencies, yamlDep{
			ID: d.ID, PredecessorID: d.PredecessorID, SuccessorID: d.SuccessorID, Type: string(d.Type), Lag: d.Lag,
		})
	}
	return f
}

func toJSON(snap *Snapshot) any {
	type jsonTask struct {
		ID        string `json:"id"`
		Title     string `json:"title,omitempty"`
		Duration  int    `json:"duration"`
		StartDate string `json:"start_date,omitempty"`
	}
	type jsonDep struct {
		ID            string `json:"id"`
		PredecessorID string `json:"predecessor_id"`
		SuccessorID   string `json:"successor_id"`
		Type          string `json:"type"`
		Lag           int    `json:"lag"`
	}
	out := struct {
		Tasks        []jsonTask `json:"tasks"`
		Dependencies []jsonDep  `json:"dependencies"`
	}{
		Tasks:        make([]jsonTask, 0, len(snap.Tasks)),
		Dependencies: make([]jsonDep, 0, len(snap.Dependencies)),
	}
	for _, t := range snap.Tasks {
		out.Tasks = append(out.Tasks, jsonTask{ID: t.ID, Title: t.Title, Duration: t.Duration, StartDate: formatDate(t.StartDate)})
	}
	for _, d := range snap.Dependencies {
		out.Dependencies = append(out.Dependencies, jsonDep{
			ID: d.ID, PredecessorID: d.PredecessorID, SuccessorID: d.SuccessorID, Type: string(d.Type), Lag: d.Lag,
		})
	}
	return out
}
