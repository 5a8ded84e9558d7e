package graph

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"
)

// MaxLagDays is the lag magnitude above which a dependency draws a warning.
const MaxLagDays = 365

// Validate checks a dependency set against the given tasks. It never fails:
// every problem is returned as a Finding, and Valid is true iff Errors is empty.
func Validate(tasks []Task, deps []Dependency) *ValidationResult {
	res := &ValidationResult{Errors: []Finding{}, Warnings: []Finding{}}
	addErr := func(f Finding) { res.Errors = append(res.Errors, f) }
	addWarn := func(f Finding) { res.Warnings = append(res.Warnings, f) }

	known := make(map[string]bool, len(tasks))
	for i, t := range tasks {
		if t.ID == "" {
			addErr(Finding{
				Code:    CodeEmptyTaskID,
				Message: fmt.Sprintf("task at position %d has no id", i),
			})
			continue
		}
		if known[t.ID] {
			addErr(Finding{
				Code:    CodeDuplicateTask,
				Message: fmt.Sprintf("duplicate task id %q", t.ID),
				TaskIDs: []string{t.ID},
			})
			continue
		}
		known[t.ID] = true
	}

	type triple struct {
		pred, succ string
		typ        DependencyType
	}
	seen := make(map[triple]string, len(deps))

	for _, d := range deps {
		label := dependencyLabel(d)

		if !known[d.PredecessorID] {
			addErr(Finding{
				Code:         CodeMissingPredecessor,
				Message:      fmt.Sprintf("dependency %s references unknown predecessor %q", label, d.PredecessorID),
				DependencyID: d.ID,
				TaskIDs:      []string{d.PredecessorID},
			})
		}
		if !known[d.SuccessorID] {
			addErr(Finding{
				Code:         CodeMissingSuccessor,
				Message:      fmt.Sprintf("dependency %s references unknown successor %q", label, d.SuccessorID),
				DependencyID: d.ID,
				TaskIDs:      []string{d.SuccessorID},
			})
		}
		if d.PredecessorID == d.SuccessorID {
			addErr(Finding{
				Code:         CodeSelfDependency,
				Message:      fmt.Sprintf("task %q cannot depend on itself", d.PredecessorID),
				DependencyID: d.ID,
				TaskIDs:      []string{d.PredecessorID},
			})
		}
		if !d.Type.Valid() {
			addErr(Finding{
				Code:         CodeInvalidType,
				Message:      fmt.Sprintf("dependency %s has invalid type %q (want FS, SS, FF or SF)", label, string(d.Type)),
				DependencyID: d.ID,
			})
		}
		if d.Lag > MaxLagDays || d.Lag < -MaxLagDays {
			addWarn(Finding{
				Code:         CodeExtremeLag,
				Message:      fmt.Sprintf("dependency %s has a lag of %d days", label, d.Lag),
				DependencyID: d.ID,
			})
		}

		key := triple{d.PredecessorID, d.SuccessorID, d.Type}
		if first, ok := seen[key]; ok {
			addWarn(Finding{
				Code:         CodeDuplicate,
				Message:      fmt.Sprintf("dependency %s duplicates %s", label, first),
				DependencyID: d.ID,
				TaskIDs:      []string{d.PredecessorID, d.SuccessorID},
			})
		} else {
			seen[key] = label
		}
	}

	for _, f := range DetectCycles(tasks, deps) {
		addErr(f)
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// DetectCycles runs Kahn's algorithm over the task ids and reports cycle errors.
// When tasks is empty the node set is taken from the dependency endpoints.
// Dependencies touching unknown ids are ignored; self-loops count as cycles.
//
// On a cycle it returns an error listing every task that could not be ordered
// (the cycle plus anything downstream of it) and an error with one concrete
// cycle path. The inputs are not modified.
func DetectCycles(tasks []Task, deps []Dependency) []Finding {
	ids, index := nodeSet(tasks, deps)

	out := make([][]int, len(ids))
	in := make([][]int, len(ids))
	indeg := make([]int, len(ids))
	for _, d := range deps {
		from, okFrom := index[d.PredecessorID]
		to, okTo := index[d.SuccessorID]
		if !okFrom || !okTo {
			continue
		}
		out[from] = append(out[from], to)
		in[to] = append(in[to], from)
		indeg[to]++
	}

	order := topoOrder(indeg, out)
	if len(order) == len(ids) {
		return nil
	}

	ordered := make([]bool, len(ids))
	for _, i := range order {
		ordered[i] = true
	}
	var stuck []string
	for i, id := range ids {
		if !ordered[i] {
			stuck = append(stuck, id)
		}
	}
	sort.Strings(stuck)

	findings := []Finding{{
		Code: CodeCycle,
		Message: fmt.Sprintf("dependency cycle detected: %d of %d tasks could not be ordered (%s)",
			len(stuck), len(ids), strings.Join(stuck, ", ")),
		TaskIDs: stuck,
	}}

	if path := cyclePath(in, ordered); len(path) > 0 {
		names := make([]string, len(path))
		for i, n := range path {
			names[i] = ids[n]
		}
		findings = append(findings, Finding{
			Code:    CodeCyclePath,
			Message: "cycle: " + strings.Join(names, " -> "),
			TaskIDs: names,
		})
	}
	return findings
}

// WouldCreateCycle reports whether adding candidate to existing closes a cycle.
// Only cycle structure is checked; callers validate references separately.
func WouldCreateCycle(candidate Dependency, existing []Dependency) bool {
	deps := make([]Dependency, 0, len(existing)+1)
	deps = append(deps, existing...)
	deps = append(deps, candidate)
	return len(DetectCycles(nil, deps)) > 0
}

// DependencyChains returns every maximal chain of direct predecessors (Upstream)
// or successors (Downstream) starting at taskID. Each chain begins with taskID.
// A per-path visited set stops runaway walks on cyclic input, but results on an
// unvalidated graph are only a diagnostic aid.
func DependencyChains(taskID string, deps []Dependency, dir Direction) [][]string {
	next := make(map[string][]string)
	seen := make(map[[2]string]bool, len(deps))
	for _, d := range deps {
		from, to := d.SuccessorID, d.PredecessorID
		if dir == Downstream {
			from, to = d.PredecessorID, d.SuccessorID
		}
		key := [2]string{from, to}
		if seen[key] {
			continue
		}
		seen[key] = true
		next[from] = append(next[from], to)
	}

	var chains [][]string
	onPath := map[string]bool{taskID: true}

	var walk func(path []string)
	walk = func(path []string) {
		cur := path[len(path)-1]
		extended := false
		for _, n := range next[cur] {
			if onPath[n] {
				continue
			}
			extended = true
			onPath[n] = true
			walk(append(path, n))
			onPath[n] = false
		}
		if !extended && len(path) > 1 {
			chain := make([]string, len(path))
			copy(chain, path)
			chains = append(chains, chain)
		}
	}
	walk([]string{taskID})
	return chains
}

// nodeSet returns the ids taking part in cycle detection, in first-seen order.
func nodeSet(tasks []Task, deps []Dependency) ([]string, map[string]int) {
	var ids []string
	index := make(map[string]int)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := index[id]; ok {
			return
		}
		index[id] = len(ids)
		ids = append(ids, id)
	}
	if len(tasks) > 0 {
		for _, t := range tasks {
			add(t.ID)
		}
	} else {
		for _, d := range deps {
			add(d.PredecessorID)
			add(d.SuccessorID)
		}
	}
	return ids, index
}

// cyclePath walks predecessor links among the unordered nodes until a node
// repeats. Every unordered node has an unordered predecessor, so the walk
// always closes. The result is in forward order and ends where it starts.
func cyclePath(in [][]int, ordered []bool) []int {
	start := -1
	for i, ok := range ordered {
		if !ok {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	pos := make(map[int]int)
	var walk []int
	cur := start
	for {
		if p, ok := pos[cur]; ok {
			cycle := append([]int(nil), walk[p:]...)
			cycle = append(cycle, cur)
			for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
				cycle[i], cycle[j] = cycle[j], cycle[i]
			}
			return cycle
		}
		pos[cur] = len(walk)
		walk = append(walk, cur)

		next := -1
		for _, p := range in[cur] {
			if !ordered[p] {
				next = p
				break
			}
		}
		if next < 0 {
			return nil
		}
		cur = next
	}
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder performs Kahn's algorithm. Ready nodes are taken lowest index
// first, so the order is stable for a given input order. indeg is not modified.
func topoOrder(indeg []int, out [][]int) []int {
	remaining := make([]int, len(indeg))
	copy(remaining, indeg)

	ready := &intMinHeap{}
	for i, d := range remaining {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]int, 0, len(remaining))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		order = append(order, n)
		for _, m := range out[n] {
			remaining[m]--
			if remaining[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return order
}

func dependencyLabel(d Dependency) string {
	if d.ID != "" {
		return d.ID
	}
	return fmt.Sprintf("%s->%s", d.PredecessorID, d.SuccessorID)
}
