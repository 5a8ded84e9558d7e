package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Sprint color functions for building styled strings.
var (
	Bold       = color.New(color.Bold).SprintFunc()
	Dim        = color.New(color.Faint).SprintFunc()
	Cyan       = color.New(color.FgCyan).SprintFunc()
	Green      = color.New(color.FgGreen).SprintFunc()
	Red        = color.New(color.FgRed).SprintFunc()
	Yellow     = color.New(color.FgYellow).SprintFunc()
	BoldCyan   = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldGreen  = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed    = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow = color.New(color.Bold, color.FgYellow).SprintFunc()
	BoldWhite  = color.New(color.Bold, color.FgWhite).SprintFunc()
)

// PrintBanner renders the critpath banner to w.
func PrintBanner(w io.Writer) {
	frame := color.New(color.FgCyan)
	bar := color.New(color.FgYellow)
	brand := color.New(color.Bold, color.FgRed)
	tag := color.New(color.Faint)

	fmt.Fprintln(w)
	frame.Fprintln(w, "   +--------------------------+")
	bar.Fprintln(w, "   |  ====>    ====>  ======> |")
	brand.Fprintln(w, "   |  C R I T P A T H         |")
	bar.Fprintln(w, "   |    ===>  =======>   ==>  |")
	frame.Fprintln(w, "   +--------------------------+")
	tag.Fprintln(w, "   Critical path scheduling")
	fmt.Fprintln(w)
}

// taskColors is a palette of distinct bold colors for differentiating tasks.
var taskColors = []func(a ...interface{}) string{
	color.New(color.Bold, color.FgMagenta).SprintFunc(),
	BoldCyan,
	BoldYellow,
	BoldGreen,
	color.New(color.Bold, color.FgHiBlue).SprintFunc(),
	color.New(color.Bold, color.FgHiRed).SprintFunc(),
}

// taskColorIndex hashes a task ID to a palette index.
func taskColorIndex(taskID string) int {
	var h uint32
	for _, c := range taskID {
		h = h*31 + uint32(c)
	}
	return int(h % uint32(len(taskColors)))
}

// TaskPrefix returns a colored [task-id] prefix string.
// Each task ID gets a distinct color from the palette.
func TaskPrefix(taskID string) string {
	c := taskColors[taskColorIndex(taskID)]
	return Dim("[") + c(taskID) + Dim("]")
}

// ScheduleIcon returns a colored marker for a scheduled task.
func ScheduleIcon(critical, infeasible bool) string {
	switch {
	case infeasible:
		return Red("✗")
	case critical:
		return BoldRed("★")
	default:
		return Dim("·")
	}
}

// FloatLabel renders a task's float, highlighting zero and shortfalls.
func FloatLabel(float, shortfall int) string {
	switch {
	case shortfall > 0:
		return BoldRed(fmt.Sprintf("-%dd", shortfall))
	case float == 0:
		return BoldYellow("0d")
	default:
		return Green(fmt.Sprintf("%dd", float))
	}
}

// Verdict returns a colored valid/invalid label.
func Verdict(valid bool) string {
	if valid {
		return BoldGreen("valid")
	}
	return BoldRed("invalid")
}

// Severity returns a colored label for a finding's severity.
func Severity(isError bool) string {
	if isError {
		return Red("error")
	}
	return Yellow("warning")
}
