package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joshharrison/critpath/internal/graph"
)

// TaskSummary is the minimal task info sent to Claude for dependency inference.
type TaskSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Duration int    `json:"duration_days"`
}

// DepEdge is a single inferred dependency.
type DepEdge struct {
	PredecessorID string `json:"predecessor_id"` // task that constrains
	SuccessorID   string `json:"successor_id"`   // task that is constrained
	Type          string `json:"type"`
	Lag           int    `json:"lag"`
	Reason        string `json:"reason"`
}

// InferDepsResult holds the full response from Claude.
type InferDepsResult struct {
	Edges   []DepEdge `json:"edges"`
	Summary string    `json:"summary"`
}

// Rejection is a proposed edge that was not accepted, with the reason.
type Rejection struct {
	Edge   DepEdge
	Reason string
}

// Client wraps the Anthropic SDK for Claude API calls.
type Client struct {
	inner anthropic.Client
	model anthropic.Model
}

// NewClient creates a Claude client. apiKey defaults to ANTHROPIC_API_KEY env.
// model defaults to Claude Sonnet.
func NewClient(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	inner := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	m := anthropic.ModelClaudeSonnet4_6
	if model != "" {
		m = anthropic.Model(model)
	}

	return &Client{inner: inner, model: m}, nil
}

const inferDepsPrompt = `You are an expert project scheduler. Given a list of tasks from a project plan, infer the scheduling dependencies between them.

Rules:
- Only add a dependency when there is a strong causal reason.
- Use one of these types:
  FS (finish-to-start): the successor cannot start until the predecessor finishes. This is the default.
  SS (start-to-start): the successor cannot start until the predecessor starts.
  FF (finish-to-finish): the successor cannot finish until the predecessor finishes.
  SF (start-to-finish): the successor cannot finish until the predecessor starts.
- lag is a whole number of days added to the constraint (negative for a lead). Use 0 unless the tasks say otherwise.
- Prefer fewer edges. Do not add transitive or speculative dependencies.
- Do not create cycles.
- Only use task IDs from the provided list.
- A task cannot depend on itself.

Return your answer as JSON with this exact structure:
{
  "edges": [
    {"predecessor_id": "<task that constrains>", "successor_id": "<task that is constrained>", "type": "FS", "lag": 0, "reason": "<short explanation>"}
  ],
  "summary": "<one paragraph summary of the dependency structure>"
}

Return ONLY the JSON object. No markdown fences, no commentary outside the JSON.

Here are the tasks:
`

// Summaries converts tasks to the form sent in the prompt.
func Summaries(tasks []graph.Task) []TaskSummary {
	out := make([]TaskSummary, len(tasks))
	for i, t := range tasks {
		out[i] = TaskSummary{ID: t.ID, Title: t.Title, Duration: t.Days()}
	}
	return out
}

// buildPrompt constructs the full prompt for dependency inference.
func buildPrompt(tasks []TaskSummary) (string, error) {
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal tasks: %w", err)
	}
	return inferDepsPrompt + string(data), nil
}

// InferDeps calls the Claude API to infer task dependencies.
func (c *Client) InferDeps(ctx context.Context, tasks []TaskSummary) (*InferDepsResult, error) {
	prompt, err := buildPrompt(tasks)
	if err != nil {
		return nil, err
	}

	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(4096),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude API call: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return ParseInferDeps(text)
}

// ParseInferDeps decodes a model response, with or without markdown fences.
func ParseInferDeps(text string) (*InferDepsResult, error) {
	text = stripJSONFences(text)

	var result InferDepsResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("parse claude response: %w\nraw: %s", err, text)
	}
	return &result, nil
}

// Filter turns proposed edges into dependencies that keep the graph valid.
// Edges are considered in order; each accepted edge becomes part of the set
// the next one is checked against. Proposals already present in existing are
// rejected as duplicates.
func (r *InferDepsResult) Filter(tasks []graph.Task, existing []graph.Dependency) ([]graph.Dependency, []Rejection) {
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}
	type key struct {
		pred, succ string
		typ        graph.DependencyType
	}
	seen := make(map[key]bool, len(existing))
	for _, d := range existing {
		seen[key{d.PredecessorID, d.SuccessorID, d.Type}] = true
	}

	current := append([]graph.Dependency(nil), existing...)
	var accepted []graph.Dependency
	var rejected []Rejection

	for i, e := range r.Edges {
		reject := func(format string, args ...any) {
			rejected = append(rejected, Rejection{Edge: e, Reason: fmt.Sprintf(format, args...)})
		}

		typ := graph.FinishToStart
		if e.Type != "" {
			t, err := graph.ParseDependencyType(e.Type)
			if err != nil {
				reject("%v", err)
				continue
			}
			typ = t
		}

		switch {
		case !known[e.PredecessorID]:
			reject("unknown task %q", e.PredecessorID)
			continue
		case !known[e.SuccessorID]:
			reject("unknown task %q", e.SuccessorID)
			continue
		case e.PredecessorID == e.SuccessorID:
			reject("self-dependency")
			continue
		case e.Lag > graph.MaxLagDays || e.Lag < -graph.MaxLagDays:
			reject("lag %d outside ±%d days", e.Lag, graph.MaxLagDays)
			continue
		case seen[key{e.PredecessorID, e.SuccessorID, typ}]:
			reject("already present")
			continue
		}

		d := graph.Dependency{
			ID:            fmt.Sprintf("inferred-%d", i+1),
			PredecessorID: e.PredecessorID,
			SuccessorID:   e.SuccessorID,
			Type:          typ,
			Lag:           e.Lag,
		}
		if graph.WouldCreateCycle(d, current) {
			reject("would create a cycle")
			continue
		}

		seen[key{d.PredecessorID, d.SuccessorID, d.Type}] = true
		current = append(current, d)
		accepted = append(accepted, d)
	}

	return accepted, rejected
}

const summariseSchedulePrompt = `You are a project manager explaining a computed project schedule.

You will receive a critical path report: project dates, waves of tasks that can start together, each task's float, and the critical path.

Produce a concise narrative covering:
- Which chain of tasks drives the finish date and why.
- Where there is slack that could absorb delays.
- Any tasks that cannot meet the project end date.

Keep it to a few short paragraphs. Do not repeat the table verbatim.
`

// SummariseSchedule sends a rendered schedule report to Claude and returns a
// short narrative of what drives the project finish.
func (c *Client) SummariseSchedule(ctx context.Context, report string) (string, error) {
	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(2048),
		System: []anthropic.TextBlockParam{
			{Text: summariseSchedulePrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("## Schedule\n\n" + report)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude API call: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return strings.TrimSpace(text), nil
}

// stripJSONFences removes markdown code fences that Claude sometimes adds.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
