package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshharrison/critpath/internal/claude"
	"github.com/joshharrison/critpath/internal/graph"
	"github.com/joshharrison/critpath/internal/reporter"
	"github.com/joshharrison/critpath/internal/source"
	"github.com/joshharrison/critpath/internal/ui"
)

func inferDepsCmd() *cobra.Command {
	var (
		flagApply    bool
		flagModel    string
		flagOutput   string
		flagFromFile string
	)

	cmd := &cobra.Command{
		Use:   "infer-deps",
		Short: "Use Claude to infer dependencies from task titles",
		Long: `Sends task titles and durations to Claude and infers typed dependency edges.
Proposals that reference unknown tasks, duplicate existing edges or would
create a cycle are skipped. By default runs in dry-run mode; use --apply to
write the accepted dependencies to the project file or store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			tasks, deps, err := e.snapshot(ctx)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				return fmt.Errorf("no tasks found")
			}

			var result *claude.InferDepsResult
			if flagFromFile != "" {
				data, err := os.ReadFile(flagFromFile)
				if err != nil {
					return fmt.Errorf("read from-file: %w", err)
				}
				result, err = claude.ParseInferDeps(string(data))
				if err != nil {
					return fmt.Errorf("parse from-file: %w", err)
				}
				if !flagJSON {
					fmt.Printf("📂 Loaded %s edges from %s\n", ui.Bold(len(result.Edges)), ui.Dim(flagFromFile))
				}
			} else {
				model := flagModel
				if model == "" {
					model = e.cfg.Model
				}
				client, err := claude.NewClient("", model)
				if err != nil {
					return err
				}
				if !flagJSON {
					fmt.Printf("🔍 Sending %s tasks to Claude for dependency inference...\n", ui.Bold(len(tasks)))
				}
				result, err = client.InferDeps(ctx, claude.Summaries(tasks))
				if err != nil {
					return fmt.Errorf("infer deps: %w", err)
				}
			}

			accepted, rejected := result.Filter(tasks, deps)
			e.logger.Info("dependencies inferred", "proposed", len(result.Edges), "accepted", len(accepted), "rejected", len(rejected))

			if flagJSON {
				out := struct {
					Dependencies []graph.Dependency `json:"dependencies"`
					Summary      string             `json:"summary"`
				}{
					Dependencies: accepted,
					Summary:      result.Summary,
				}
				if out.Dependencies == nil {
					out.Dependencies = []graph.Dependency{}
				}
				if flagOutput != "" {
					data, err := json.MarshalIndent(out, "", "  ")
					if err != nil {
						return err
					}
					if err := os.WriteFile(flagOutput, data, 0644); err != nil {
						return err
					}
					fmt.Printf("Wrote %d dependencies to %s\n", len(accepted), flagOutput)
				} else if err := outputJSON(out); err != nil {
					return err
				}
			} else {
				for _, r := range rejected {
					fmt.Printf("  %s %s -> %s: %s\n", ui.Yellow("⏭️  SKIP:"), r.Edge.PredecessorID, r.Edge.SuccessorID, r.Reason)
				}

				fmt.Printf("\n🔗 Inferred %s dependencies (%d from Claude, %d after validation):\n\n",
					ui.Bold(len(accepted)), len(result.Edges), len(accepted))
				reasons := make(map[string]string, len(result.Edges))
				for _, edge := range result.Edges {
					reasons[edge.PredecessorID+"\x00"+edge.SuccessorID] = edge.Reason
				}
				for _, d := range accepted {
					fmt.Printf("  %s %s  %s\n", ui.Cyan("→"), ui.BoldCyan(d.String()), ui.Dim(reasons[d.PredecessorID+"\x00"+d.SuccessorID]))
				}
				if result.Summary != "" {
					fmt.Printf("\n💡 %s %s\n", ui.BoldWhite("Summary:"), result.Summary)
				}
			}

			if !flagApply {
				if !flagJSON {
					fmt.Printf("\n🎯 %s\n", ui.Yellow("Dry run. Use --apply to write these dependencies."))
				}
				return nil
			}
			if len(accepted) == 0 {
				return nil
			}

			if e.cfg.File != "" {
				snap := &source.Snapshot{Tasks: tasks, Dependencies: append(deps, accepted...)}
				if err := source.WriteFile(e.cfg.File, snap); err != nil {
					return err
				}
				fmt.Printf("\n🏁 Wrote %s dependencies to %s\n", ui.BoldGreen(len(accepted)), e.cfg.File)
				return nil
			}

			s, err := e.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			fmt.Printf("\n📝 Applying %s dependencies...\n", ui.Bold(len(accepted)))
			applied := 0
			for _, d := range accepted {
				d.ID = ""
				added, err := s.AddDependency(ctx, d)
				if err != nil {
					fmt.Printf("  %s %s: %v\n", ui.Red("❌ ERROR:"), d, err)
					continue
				}
				applied++
				fmt.Printf("  %s %s\n", ui.Green("✅ OK:"), added)
			}
			fmt.Printf("\n🏁 Applied %s/%d dependencies.\n", ui.BoldGreen(applied), len(accepted))
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagApply, "apply", false, "Write inferred dependencies (default: dry-run)")
	cmd.Flags().StringVar(&flagModel, "model", "", "Claude model to use (default: config model or Sonnet)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Save JSON output to file (use with --json)")
	cmd.Flags().StringVar(&flagFromFile, "from-file", "", "Load proposed edges from a JSON file instead of calling Claude")

	return cmd
}

// explainSchedule asks Claude for a narrative of the computed schedule.
func explainSchedule(ctx context.Context, e *env, rpt *reporter.Reporter, model string) error {
	if model == "" {
		model = e.cfg.Model
	}
	client, err := claude.NewClient("", model)
	if err != nil {
		return err
	}

	report, err := rpt.JSON()
	if err != nil {
		return err
	}

	e.logger.Debug("requesting schedule summary", "bytes", len(report))
	text, err := client.SummariseSchedule(ctx, string(report))
	if err != nil {
		return fmt.Errorf("explain schedule: %w", err)
	}

	fmt.Printf("\n💡 %s\n%s\n", ui.BoldWhite("Summary:"), text)
	return nil
}
