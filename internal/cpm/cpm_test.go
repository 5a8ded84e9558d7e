package cpm

import (
	"errors"
	"testing"
	"time"

	"github.com/joshharrison/critpath/internal/graph"
)

var base = time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return base.Add(15 * time.Hour) }

func testOpts() Options {
	return Options{Now: fixedNow}
}

func dep(id, pred, succ string, typ graph.DependencyType, lag int) graph.Dependency {
	return graph.Dependency{ID: id, PredecessorID: pred, SuccessorID: succ, Type: typ, Lag: lag}
}

func task(id string, dur int) graph.Task {
	return graph.Task{ID: id, Title: "Task " + id, Duration: dur}
}

func compute(t *testing.T, tasks []graph.Task, deps []graph.Dependency, opts Options) *Schedule {
	t.Helper()
	s, err := Compute(tasks, deps, opts)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	return s
}

func node(t *testing.T, s *Schedule, id string) *TaskNode {
	t.Helper()
	n, ok := s.Node(id)
	if !ok {
		t.Fatalf("node %s not in schedule", id)
	}
	return n
}

// assertSchedule checks a node's dates relative to the project start day.
func assertSchedule(t *testing.T, n *TaskNode, es, ef, ls, lf, float int, critical bool) {
	t.Helper()
	day0 := DayNumber(base)
	if n.EarliestStart-day0 != es {
		t.Errorf("task %s: expected ES=%d, got %d", n.ID, es, n.EarliestStart-day0)
	}
	if n.EarliestFinish-day0 != ef {
		t.Errorf("task %s: expected EF=%d, got %d", n.ID, ef, n.EarliestFinish-day0)
	}
	if n.LatestStart-day0 != ls {
		t.Errorf("task %s: expected LS=%d, got %d", n.ID, ls, n.LatestStart-day0)
	}
	if n.LatestFinish-day0 != lf {
		t.Errorf("task %s: expected LF=%d, got %d", n.ID, lf, n.LatestFinish-day0)
	}
	if n.Float != float {
		t.Errorf("task %s: expected float=%d, got %d", n.ID, float, n.Float)
	}
	if n.IsCritical != critical {
		t.Errorf("task %s: expected critical=%v, got %v", n.ID, critical, n.IsCritical)
	}
}

func TestCompute_Chain(t *testing.T) {
	// A(3) -> B(2)
	s := compute(t,
		[]graph.Task{task("a", 3), task("b", 2)},
		[]graph.Dependency{dep("d1", "a", "b", graph.FinishToStart, 0)},
		testOpts())

	assertSchedule(t, node(t, s, "a"), 0, 3, 0, 3, 0, true)
	assertSchedule(t, node(t, s, "b"), 3, 5, 3, 5, 0, true)

	if s.TotalDuration != 5 {
		t.Errorf("expected total duration 5, got %d", s.TotalDuration)
	}
	if len(s.CriticalPath) != 2 {
		t.Errorf("expected 2 critical tasks, got %v", s.CriticalPath)
	}
}

func TestCompute_BranchWithFloat(t *testing.T) {
	// A(1) -> B(5) -> D(1)
	// A(1) -> C(1) -> D(1)
	tasks := []graph.Task{task("a", 1), task("b", 5), task("c", 1), task("d", 1)}
	deps := []graph.Dependency{
		dep("d1", "a", "b", graph.FinishToStart, 0),
		dep("d2", "a", "c", graph.FinishToStart, 0),
		dep("d3", "b", "d", graph.FinishToStart, 0),
		dep("d4", "c", "d", graph.FinishToStart, 0),
	}
	s := compute(t, tasks, deps, testOpts())

	assertSchedule(t, node(t, s, "a"), 0, 1, 0, 1, 0, true)
	assertSchedule(t, node(t, s, "b"), 1, 6, 1, 6, 0, true)
	assertSchedule(t, node(t, s, "c"), 1, 2, 5, 6, 4, false)
	assertSchedule(t, node(t, s, "d"), 6, 7, 6, 7, 0, true)

	want := []string{"a", "b", "d"}
	if len(s.CriticalPath) != len(want) {
		t.Fatalf("expected critical path %v, got %v", want, s.CriticalPath)
	}
	for i := range want {
		if s.CriticalPath[i] != want[i] {
			t.Errorf("critical path[%d]: expected %s, got %s", i, want[i], s.CriticalPath[i])
		}
	}
	if s.TotalDuration != 7 {
		t.Errorf("expected total duration 7, got %d", s.TotalDuration)
	}
}

func TestCompute_IndependentSinksAreCritical(t *testing.T) {
	s := compute(t, []graph.Task{task("x", 2), task("y", 5)}, nil, testOpts())

	assertSchedule(t, node(t, s, "x"), 0, 2, 0, 2, 0, true)
	assertSchedule(t, node(t, s, "y"), 0, 5, 0, 5, 0, true)
}

func TestCompute_ZeroDurationCountsAsOneDay(t *testing.T) {
	s := compute(t,
		[]graph.Task{task("a", 0), task("b", 1)},
		[]graph.Dependency{dep("d1", "a", "b", graph.FinishToStart, 0)},
		testOpts())

	assertSchedule(t, node(t, s, "a"), 0, 1, 0, 1, 0, true)
	assertSchedule(t, node(t, s, "b"), 1, 2, 1, 2, 0, true)
}

func TestCompute_DependencyTypes(t *testing.T) {
	cases := []struct {
		name   string
		typ    graph.DependencyType
		lag    int
		es, ef int
	}{
		{"finish to start", graph.FinishToStart, 0, 4, 6},
		{"finish to start with lead", graph.FinishToStart, -1, 3, 5},
		{"finish to start with lag", graph.FinishToStart, 2, 6, 8},
		{"start to start", graph.StartToStart, 2, 2, 4},
		{"finish to finish", graph.FinishToFinish, 1, 3, 5},
		{"start to finish clamps to origin", graph.StartToFinish, 0, 0, 2},
		{"start to finish with lag", graph.StartToFinish, 5, 3, 5},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := compute(t,
				[]graph.Task{task("a", 4), task("b", 2)},
				[]graph.Dependency{dep("d1", "a", "b", c.typ, c.lag)},
				testOpts())

			b := node(t, s, "b")
			day0 := DayNumber(base)
			if got := b.EarliestStart - day0; got != c.es {
				t.Errorf("expected ES=%d, got %d", c.es, got)
			}
			if got := b.EarliestFinish - day0; got != c.ef {
				t.Errorf("expected EF=%d, got %d", c.ef, got)
			}
		})
	}
}

func TestCompute_StartToStartBackwardPass(t *testing.T) {
	// B may start two days after A starts. A has to finish by the time B's start window allows.
	s := compute(t,
		[]graph.Task{task("a", 4), task("b", 3)},
		[]graph.Dependency{dep("d1", "a", "b", graph.StartToStart, 2)},
		testOpts())

	assertSchedule(t, node(t, s, "b"), 2, 5, 2, 5, 0, true)
	assertSchedule(t, node(t, s, "a"), 0, 4, 0, 4, 0, true)
}

func TestCompute_FinishBoundBackwardPass(t *testing.T) {
	later := base.AddDate(0, 0, 8)
	cases := []struct {
		name       string
		durA, durB int
		typ        graph.DependencyType
		lag        int
		end        *time.Time
		a, b       [5]int // ES, EF, LS, LF, float
	}{
		// B finishes one day after A finishes; A must be done by B's LF minus the lag.
		{"FF", 4, 2, graph.FinishToFinish, 1, nil, [5]int{0, 4, 0, 4, 0}, [5]int{3, 5, 3, 5, 0}},
		// B finishes five days after A starts; A's latest start is B's LF minus the lag.
		{"SF", 4, 2, graph.StartToFinish, 5, nil, [5]int{0, 4, 0, 4, 0}, [5]int{3, 5, 3, 5, 0}},
		{"FF project end", 4, 2, graph.FinishToFinish, 1, &later, [5]int{0, 4, 3, 7, 3}, [5]int{3, 5, 6, 8, 3}},
		{"SF project end", 4, 2, graph.StartToFinish, 5, &later, [5]int{0, 4, 3, 7, 3}, [5]int{3, 5, 6, 8, 3}},
		// B is clamped to the project start, which leaves the short predecessor slack.
		{"FF slack", 1, 5, graph.FinishToFinish, 0, nil, [5]int{0, 1, 4, 5, 4}, [5]int{0, 5, 0, 5, 0}},
		{"SF slack", 1, 5, graph.StartToFinish, 0, nil, [5]int{0, 1, 5, 6, 5}, [5]int{0, 5, 0, 5, 0}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			opts := testOpts()
			opts.ProjectEnd = c.end
			s := compute(t,
				[]graph.Task{task("a", c.durA), task("b", c.durB)},
				[]graph.Dependency{dep("d1", "a", "b", c.typ, c.lag)},
				opts)

			a, b := c.a, c.b
			assertSchedule(t, node(t, s, "a"), a[0], a[1], a[2], a[3], a[4], a[4] == 0)
			assertSchedule(t, node(t, s, "b"), b[0], b[1], b[2], b[3], b[4], b[4] == 0)
		})
	}
}

func TestCompute_DateOnlyStartKeepsCalendarDay(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	dateOnly := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	instant := time.Date(2025, time.March, 10, 2, 0, 0, 0, time.UTC) // March 9th, 21:00 EST

	a, b := task("a", 1), task("b", 1)
	a.StartDate = &dateOnly
	b.StartDate = &instant

	s := compute(t, []graph.Task{a, b, task("c", 1)}, nil, Options{Now: fixedNow, Location: est})

	day0 := DayNumber(base)
	if got := node(t, s, "a").EarliestStart - day0; got != 7 {
		t.Errorf("date-only start: expected March 10th (day 7), got day %d", got)
	}
	if got := node(t, s, "b").EarliestStart - day0; got != 6 {
		t.Errorf("instant start: expected March 9th in EST (day 6), got day %d", got)
	}
	if got := node(t, s, "c").EarliestStart - day0; got != 0 {
		t.Errorf("no start date: expected today (day 0), got day %d", got)
	}
	if got := s.Date(node(t, s, "a").EarliestStart).Format("2006-01-02"); got != "2025-03-10" {
		t.Errorf("expected a rendered as 2025-03-10, got %s", got)
	}
}

func TestCompute_RootsAndSinks(t *testing.T) {
	// a -> b, a -> c, d alone
	s := compute(t,
		[]graph.Task{task("a", 1), task("b", 1), task("c", 1), task("d", 1)},
		[]graph.Dependency{
			dep("d1", "a", "b", graph.FinishToStart, 0),
			dep("d2", "a", "c", graph.FinishToStart, 0),
		},
		testOpts())

	if len(s.Roots) != 2 || s.Roots[0] != "a" || s.Roots[1] != "d" {
		t.Errorf("expected roots [a d], got %v", s.Roots)
	}
	if len(s.Sinks) != 3 || s.Sinks[0] != "b" || s.Sinks[1] != "c" || s.Sinks[2] != "d" {
		t.Errorf("expected sinks [b c d], got %v", s.Sinks)
	}
}

func TestCompute_RootStartDate(t *testing.T) {
	later := base.AddDate(0, 0, 10)
	a := task("a", 2)
	a.StartDate = &later

	s := compute(t,
		[]graph.Task{a, task("b", 1), task("c", 1)},
		[]graph.Dependency{dep("d1", "a", "b", graph.FinishToStart, 0)},
		testOpts())

	assertSchedule(t, node(t, s, "a"), 10, 12, 10, 12, 0, true)
	assertSchedule(t, node(t, s, "b"), 12, 13, 12, 13, 0, true)
	// c has no start date and so starts today.
	assertSchedule(t, node(t, s, "c"), 0, 1, 0, 1, 0, true)

	if got := s.ProjectStart - DayNumber(base); got != 0 {
		t.Errorf("expected project start at day 0, got %d", got)
	}
	if s.TotalDuration != 13 {
		t.Errorf("expected total duration 13, got %d", s.TotalDuration)
	}
}

func TestCompute_NowReadInLocation(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	opts := Options{
		// 02:00 UTC on March 3rd is still March 2nd in EST.
		Now:      func() time.Time { return base.Add(2 * time.Hour) },
		Location: est,
	}
	s := compute(t, []graph.Task{task("a", 1)}, nil, opts)

	a := node(t, s, "a")
	if a.EarliestStart != DayNumber(base)-1 {
		t.Errorf("expected start on March 2nd, got %s", s.Date(a.EarliestStart))
	}
	if got := s.Date(a.EarliestStart); got.Location() != est {
		t.Errorf("expected dates rendered in EST, got %s", got.Location())
	}
}

func TestCompute_ProjectEndTooEarly(t *testing.T) {
	end := base.AddDate(0, 0, 3)
	opts := testOpts()
	opts.ProjectEnd = &end

	s := compute(t,
		[]graph.Task{task("a", 3), task("b", 2)},
		[]graph.Dependency{dep("d1", "a", "b", graph.FinishToStart, 0)},
		opts)

	if !s.Infeasible {
		t.Fatal("expected schedule to be infeasible")
	}
	for _, id := range []string{"a", "b"} {
		n := node(t, s, id)
		if !n.Infeasible {
			t.Errorf("task %s: expected infeasible", id)
		}
		if n.Shortfall != 2 {
			t.Errorf("task %s: expected shortfall 2, got %d", id, n.Shortfall)
		}
		if n.Float != 0 {
			t.Errorf("task %s: float should be floored at 0, got %d", id, n.Float)
		}
	}
}

func TestCompute_ProjectEndWithSlack(t *testing.T) {
	end := base.AddDate(0, 0, 10)
	opts := testOpts()
	opts.ProjectEnd = &end

	s := compute(t,
		[]graph.Task{task("a", 3), task("b", 2)},
		[]graph.Dependency{dep("d1", "a", "b", graph.FinishToStart, 0)},
		opts)

	assertSchedule(t, node(t, s, "a"), 0, 3, 5, 8, 5, false)
	assertSchedule(t, node(t, s, "b"), 3, 5, 8, 10, 5, false)
	if s.Infeasible {
		t.Error("schedule should be feasible")
	}
	if len(s.CriticalPath) != 0 {
		t.Errorf("expected no critical tasks, got %v", s.CriticalPath)
	}
}

func TestCompute_Invariants(t *testing.T) {
	tasks := []graph.Task{task("a", 2), task("b", 4), task("c", 1), task("d", 3), task("e", 2)}
	deps := []graph.Dependency{
		dep("d1", "a", "b", graph.FinishToStart, 0),
		dep("d2", "a", "c", graph.StartToStart, 1),
		dep("d3", "b", "d", graph.FinishToFinish, 2),
		dep("d4", "c", "d", graph.FinishToStart, 3),
		dep("d5", "c", "e", graph.FinishToStart, 0),
	}
	s := compute(t, tasks, deps, testOpts())

	for _, n := range s.Nodes {
		if n.Float < 0 {
			t.Errorf("task %s: negative float %d", n.ID, n.Float)
		}
		if n.IsCritical != (n.Float == 0) {
			t.Errorf("task %s: critical=%v with float %d", n.ID, n.IsCritical, n.Float)
		}
		if n.EarliestFinish-n.EarliestStart != n.Duration {
			t.Errorf("task %s: EF-ES=%d, duration %d", n.ID, n.EarliestFinish-n.EarliestStart, n.Duration)
		}
		if n.LatestFinish-n.LatestStart != n.Duration {
			t.Errorf("task %s: LF-LS=%d, duration %d", n.ID, n.LatestFinish-n.LatestStart, n.Duration)
		}
		for _, l := range n.Predecessors {
			if l.Node >= s.index[n.ID] {
				t.Errorf("task %s: predecessor %s is not earlier in node order", n.ID, s.Nodes[l.Node].ID)
			}
		}
	}
}

func TestPasses_Idempotent(t *testing.T) {
	g, err := graph.Build(
		[]graph.Task{task("a", 1), task("b", 5), task("c", 1)},
		[]graph.Dependency{
			dep("d1", "a", "b", graph.FinishToStart, 0),
			dep("d2", "a", "c", graph.FinishToStart, 0),
		})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	first := ForwardPass(g, testOpts())
	second := ForwardPass(g, testOpts())
	for i := range first {
		if first[i].EarliestStart != second[i].EarliestStart || first[i].EarliestFinish != second[i].EarliestFinish {
			t.Errorf("forward pass differs at %s", first[i].ID)
		}
	}

	back1 := BackwardPass(first, nil)
	back2 := BackwardPass(first, nil)
	for i := range back1 {
		if back1[i].LatestStart != back2[i].LatestStart || back1[i].Float != back2[i].Float {
			t.Errorf("backward pass differs at %s", back1[i].ID)
		}
	}

	// The forward pass result is left untouched.
	for _, n := range first {
		if n.LatestFinish != 0 || n.IsCritical {
			t.Errorf("task %s: backward pass mutated its input", n.ID)
		}
	}
}

func TestForwardPass_LinksIndexNodes(t *testing.T) {
	g, err := graph.Build(
		[]graph.Task{task("b", 1), task("a", 1)},
		[]graph.Dependency{dep("d1", "a", "b", graph.FinishToStart, 0)})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	nodes := ForwardPass(g, testOpts())
	if nodes[0].ID != "a" || nodes[1].ID != "b" {
		t.Fatalf("expected topological order [a b], got [%s %s]", nodes[0].ID, nodes[1].ID)
	}
	if l := nodes[1].Predecessors; len(l) != 1 || nodes[l[0].Node].ID != "a" || l[0].DependencyID != "d1" {
		t.Errorf("b should link back to a through d1, got %+v", l)
	}
	if l := nodes[0].Successors; len(l) != 1 || nodes[l[0].Node].ID != "b" {
		t.Errorf("a should link forward to b, got %+v", l)
	}
}

func TestCompute_Waves(t *testing.T) {
	tasks := []graph.Task{task("a", 1), task("c", 1), task("b", 5), task("d", 1)}
	deps := []graph.Dependency{
		dep("d1", "a", "b", graph.FinishToStart, 0),
		dep("d2", "a", "c", graph.FinishToStart, 0),
		dep("d3", "b", "d", graph.FinishToStart, 0),
		dep("d4", "c", "d", graph.FinishToStart, 0),
	}
	s := compute(t, tasks, deps, testOpts())

	if len(s.Waves) != 3 {
		t.Fatalf("expected 3 waves, got %d", len(s.Waves))
	}
	w := s.Waves[1]
	if len(w.TaskIDs) != 2 || w.TaskIDs[0] != "b" {
		t.Errorf("expected critical task b first in wave 1, got %v", w.TaskIDs)
	}
	if !w.IsCritical {
		t.Error("wave 1 should be marked critical")
	}
	if n := node(t, s, "d"); n.Wave != 2 {
		t.Errorf("expected d in wave 2, got %d", n.Wave)
	}
}

func TestCompute_InvalidGraph(t *testing.T) {
	_, err := Compute(
		[]graph.Task{task("a", 1), task("b", 1)},
		[]graph.Dependency{
			dep("d1", "a", "b", graph.FinishToStart, 0),
			dep("d2", "b", "a", graph.FinishToStart, 0),
		},
		testOpts())

	var verr *graph.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *graph.ValidationError, got %v", err)
	}
}

func TestCompute_CarriesWarnings(t *testing.T) {
	s := compute(t,
		[]graph.Task{task("a", 1), task("b", 1)},
		[]graph.Dependency{
			dep("d1", "a", "b", graph.FinishToStart, 0),
			dep("d2", "a", "b", graph.FinishToStart, 0),
		},
		testOpts())

	if len(s.Warnings) != 1 || s.Warnings[0].Code != graph.CodeDuplicate {
		t.Errorf("expected one duplicate warning, got %v", s.Warnings)
	}
}

func TestCriticalPath(t *testing.T) {
	crit, err := CriticalPath(
		[]graph.Task{task("a", 1), task("b", 5), task("c", 1), task("d", 1)},
		[]graph.Dependency{
			dep("d1", "a", "b", graph.FinishToStart, 0),
			dep("d2", "a", "c", graph.FinishToStart, 0),
			dep("d3", "b", "d", graph.FinishToStart, 0),
			dep("d4", "c", "d", graph.FinishToStart, 0),
		},
		testOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(crit) != 3 || crit[0].ID != "a" || crit[1].ID != "b" || crit[2].ID != "d" {
		t.Fatalf("expected [a b d], got %+v", crit)
	}
	for _, c := range crit {
		if !c.IsCritical || c.Float != 0 {
			t.Errorf("task %s: expected critical with zero float, got %+v", c.ID, c)
		}
	}
}

func TestDayNumber(t *testing.T) {
	cases := []struct {
		in   time.Time
		want int
	}{
		{time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), 0},
		{time.Date(1970, 1, 2, 23, 59, 0, 0, time.UTC), 1},
		{time.Date(1969, 12, 31, 12, 0, 0, 0, time.UTC), -1},
		{time.Date(2000, 3, 1, 0, 0, 0, 0, time.FixedZone("X", 9*60*60)), 11017},
	}
	for _, c := range cases {
		if got := DayNumber(c.in); got != c.want {
			t.Errorf("DayNumber(%s): expected %d, got %d", c.in, c.want, got)
		}
	}
}

func TestDate_RoundTrip(t *testing.T) {
	for _, day := range []int{-400, -1, 0, 1, 20150} {
		if got := DayNumber(Date(day, time.UTC)); got != day {
			t.Errorf("round trip of %d gave %d", day, got)
		}
	}
	if got := Date(0, nil); !got.Equal(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected epoch, got %s", got)
	}
}
