package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/joshharrison/critpath/internal/cpm"
	"github.com/joshharrison/critpath/internal/graph"
	"github.com/joshharrison/critpath/internal/ui"
)

const dateLayout = "2006-01-02"

// Reporter renders a computed schedule.
type Reporter struct {
	Schedule *cpm.Schedule
}

// New creates a new Reporter.
func New(s *cpm.Schedule) *Reporter {
	return &Reporter{Schedule: s}
}

func (r *Reporter) date(day int) string {
	return r.Schedule.Date(day).Format(dateLayout)
}

// PrintSchedule writes the annotated schedule grouped by wave.
func (r *Reporter) PrintSchedule(w io.Writer) {
	s := r.Schedule

	fmt.Fprintf(w, "%s\n", ui.BoldCyan("Project Schedule"))
	fmt.Fprintln(w, ui.Cyan("════════════════"))
	fmt.Fprintf(w, "Tasks:     %s\n", ui.Bold(len(s.Nodes)))
	if len(s.Nodes) > 0 {
		fmt.Fprintf(w, "Start:     %s\n", r.date(s.ProjectStart))
		fmt.Fprintf(w, "Finish:    %s (%d days)\n", r.date(s.ProjectFinish), s.TotalDuration)
	}
	if len(s.Roots) > 0 {
		fmt.Fprintf(w, "Roots:     %s\n", strings.Join(s.Roots, ", "))
		fmt.Fprintf(w, "Sinks:     %s\n", strings.Join(s.Sinks, ", "))
	}
	if len(s.CriticalPath) > 0 {
		fmt.Fprintf(w, "Critical:  %s\n", ui.BoldYellow(strings.Join(s.CriticalPath, " → ")))
	}
	if s.Infeasible {
		fmt.Fprintf(w, "%s\n", ui.BoldRed("Schedule cannot meet the project end date"))
	}
	fmt.Fprintln(w)

	for _, wave := range s.Waves {
		fmt.Fprintf(w, "%s %d  %s  (%d tasks)\n",
			ui.BoldWhite("Wave"), wave.Index+1, ui.Dim(r.date(wave.Day)), len(wave.TaskIDs))
		for _, id := range wave.TaskIDs {
			n, _ := s.Node(id)
			r.printNode(w, n)
		}
		fmt.Fprintln(w)
	}

	r.printWarnings(w)
}

func (r *Reporter) printNode(w io.Writer, n *cpm.TaskNode) {
	title := truncate(n.Task.Title, 40)
	fmt.Fprintf(w, "  %s %s %-40s %s → %s  float %s\n",
		ui.ScheduleIcon(n.IsCritical, n.Infeasible),
		ui.TaskPrefix(n.ID),
		title,
		r.date(n.EarliestStart),
		r.date(n.EarliestFinish),
		ui.FloatLabel(n.Float, n.Shortfall))
}

// truncate shortens s to at most max runes, ending in "..." when cut.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func (r *Reporter) printWarnings(w io.Writer) {
	for _, f := range r.Schedule.Warnings {
		fmt.Fprintf(w, "%s: %s\n", ui.Severity(false), f.Message)
	}
}

// PrintCritical writes the critical tasks in start order.
func (r *Reporter) PrintCritical(w io.Writer) {
	s := r.Schedule

	var nodes []*cpm.TaskNode
	for _, id := range s.CriticalPath {
		n, _ := s.Node(id)
		nodes = append(nodes, n)
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].EarliestStart < nodes[j].EarliestStart
	})

	fmt.Fprintf(w, "%s (%d tasks, %d days)\n", ui.BoldYellow("Critical path"), len(nodes), s.TotalDuration)
	for _, n := range nodes {
		fmt.Fprintf(w, "  %s %s  %s → %s  %s\n",
			ui.ScheduleIcon(true, n.Infeasible),
			ui.TaskPrefix(n.ID),
			r.date(n.EarliestStart),
			r.date(n.EarliestFinish),
			n.Task.Title)
	}
}

// PrintASCII writes the dependency graph wave by wave with outgoing edges.
func (r *Reporter) PrintASCII(w io.Writer) {
	s := r.Schedule

	fmt.Fprintf(w, "%s\n", ui.BoldCyan("Task Dependency Graph"))
	fmt.Fprintln(w, ui.Cyan("═════════════════════"))
	fmt.Fprintln(w)

	for _, wave := range s.Waves {
		fmt.Fprintf(w, "%s Wave %d %s\n", ui.Cyan("──"), wave.Index+1, ui.Cyan("──────────────────────────────"))
		for _, id := range wave.TaskIDs {
			n, _ := s.Node(id)
			crit := " "
			if n.IsCritical {
				crit = ui.BoldYellow("*")
			}
			fmt.Fprintf(w, "  %s [%s] %s\n", crit, n.ID, n.Task.Title)
			for _, l := range n.Successors {
				fmt.Fprintf(w, "      %s %s %s\n", ui.Dim("└──→"), s.Nodes[l.Node].ID, ui.Dim(linkLabel(l)))
			}
		}
		fmt.Fprintln(w)
	}
}

// PrintDOT writes the graph in Graphviz DOT format. Critical tasks and edges
// between them are drawn in red.
func (r *Reporter) PrintDOT(w io.Writer) {
	s := r.Schedule

	fmt.Fprintln(w, "digraph critpath {")
	fmt.Fprintln(w, "  rankdir=LR;")
	fmt.Fprintln(w, "  node [shape=box, style=rounded];")
	fmt.Fprintln(w)

	for _, n := range s.Nodes {
		label := fmt.Sprintf("%s\\n%s\\n%dd, float %d", n.ID, escapeDOT(n.Task.Title), n.Duration, n.Float)
		attrs := fmt.Sprintf(`label="%s"`, label)
		if n.IsCritical {
			attrs += `, style="rounded,bold", color=red`
		}
		fmt.Fprintf(w, "  %q [%s];\n", n.ID, attrs)
	}

	fmt.Fprintln(w)

	for _, n := range s.Nodes {
		for _, l := range n.Successors {
			to := s.Nodes[l.Node]
			attrs := []string{fmt.Sprintf("label=%q", linkLabel(l))}
			if n.IsCritical && to.IsCritical {
				attrs = append(attrs, "color=red", "penwidth=2")
			}
			fmt.Fprintf(w, "  %q -> %q [%s];\n", n.ID, to.ID, strings.Join(attrs, ", "))
		}
	}

	fmt.Fprintln(w, "}")
}

func linkLabel(l cpm.Link) string {
	if l.Lag == 0 {
		return string(l.Type)
	}
	return fmt.Sprintf("%s%+d", l.Type, l.Lag)
}

func escapeDOT(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// JSON returns the machine-readable schedule.
func (r *Reporter) JSON() ([]byte, error) {
	type taskOut struct {
		ID             string `json:"id"`
		Title          string `json:"title"`
		Duration       int    `json:"duration"`
		EarliestStart  string `json:"earliest_start"`
		EarliestFinish string `json:"earliest_finish"`
		LatestStart    string `json:"latest_start"`
		LatestFinish   string `json:"latest_finish"`
		Float          int    `json:"float"`
		IsCritical     bool   `json:"is_critical"`
		Infeasible     bool   `json:"infeasible,omitempty"`
		Shortfall      int    `json:"shortfall,omitempty"`
		Wave           int    `json:"wave"`
	}

	type output struct {
		ProjectStart  string          `json:"project_start,omitempty"`
		ProjectFinish string          `json:"project_finish,omitempty"`
		TotalDuration int             `json:"total_duration"`
		CriticalPath  []string        `json:"critical_path"`
		Roots         []string        `json:"roots"`
		Sinks         []string        `json:"sinks"`
		Infeasible    bool            `json:"infeasible"`
		TotalWaves    int             `json:"total_waves"`
		Tasks         []taskOut       `json:"tasks"`
		Warnings      []graph.Finding `json:"warnings,omitempty"`
	}

	s := r.Schedule
	o := output{
		TotalDuration: s.TotalDuration,
		CriticalPath:  nonNil(s.CriticalPath),
		Roots:         nonNil(s.Roots),
		Sinks:         nonNil(s.Sinks),
		Infeasible:    s.Infeasible,
		TotalWaves:    len(s.Waves),
		Tasks:         make([]taskOut, 0, len(s.Nodes)),
		Warnings:      s.Warnings,
	}
	if len(s.Nodes) > 0 {
		o.ProjectStart = r.date(s.ProjectStart)
		o.ProjectFinish = r.date(s.ProjectFinish)
	}

	for _, n := range s.Nodes {
		o.Tasks = append(o.Tasks, taskOut{
			ID:             n.ID,
			Title:          n.Task.Title,
			Duration:       n.Duration,
			EarliestStart:  r.date(n.EarliestStart),
			EarliestFinish: r.date(n.EarliestFinish),
			LatestStart:    r.date(n.LatestStart),
			LatestFinish:   r.date(n.LatestFinish),
			Float:          n.Float,
			IsCritical:     n.IsCritical,
			Infeasible:     n.Infeasible,
			Shortfall:      n.Shortfall,
			Wave:           n.Wave,
		})
	}

	return json.MarshalIndent(o, "", "  ")
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// Summary returns a one-paragraph summary of the schedule.
func (r *Reporter) Summary() string {
	var b strings.Builder
	s := r.Schedule

	infeasible := 0
	for _, n := range s.Nodes {
		if n.Infeasible {
			infeasible++
		}
	}

	fmt.Fprintf(&b, "%d tasks in %d waves, %d days", len(s.Nodes), len(s.Waves), s.TotalDuration)
	fmt.Fprintf(&b, ", %d critical", len(s.CriticalPath))
	if infeasible > 0 {
		fmt.Fprintf(&b, ", %s", ui.Red(fmt.Sprintf("%d infeasible", infeasible)))
	}
	return b.String()
}

// PrintValidation writes a validation verdict with every finding.
func PrintValidation(w io.Writer, res *graph.ValidationResult) {
	fmt.Fprintf(w, "Dependency graph is %s", ui.Verdict(res.Valid))
	fmt.Fprintf(w, " %s\n", ui.Dim(fmt.Sprintf("(%d errors, %d warnings)", len(res.Errors), len(res.Warnings))))
	for _, f := range res.Errors {
		fmt.Fprintf(w, "  %s %s: %s\n", ui.Severity(true), ui.Bold(codeLabel(f.Code)), f.Message)
	}
	for _, f := range res.Warnings {
		fmt.Fprintf(w, "  %s %s: %s\n", ui.Severity(false), ui.Bold(codeLabel(f.Code)), f.Message)
	}
}

// codeLabel turns "missing_successor" into "Missing Successor".
func codeLabel(c graph.FindingCode) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(c), "_", " "))
}

// PrintChains writes each dependency chain from taskID on its own line.
func PrintChains(w io.Writer, taskID string, dir graph.Direction, chains [][]string) {
	arrow := " → "
	if dir == graph.Upstream {
		arrow = " ← "
	}
	if len(chains) == 0 {
		fmt.Fprintf(w, "%s has no %s dependencies\n", ui.TaskPrefix(taskID), dir)
		return
	}
	fmt.Fprintf(w, "%s %d %s chains\n", ui.TaskPrefix(taskID), len(chains), dir)
	for _, c := range chains {
		fmt.Fprintf(w, "  %s\n", strings.Join(c, arrow))
	}
}
