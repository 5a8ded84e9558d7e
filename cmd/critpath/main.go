package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshharrison/critpath/internal/config"
	"github.com/joshharrison/critpath/internal/cpm"
	"github.com/joshharrison/critpath/internal/graph"
	"github.com/joshharrison/critpath/internal/logging"
	"github.com/joshharrison/critpath/internal/reporter"
	"github.com/joshharrison/critpath/internal/source"
	"github.com/joshharrison/critpath/internal/store"
	"github.com/joshharrison/critpath/internal/ui"
)

var (
	flagConfig   string
	flagDB       string
	flagFile     string
	flagLogLevel string
	flagJSON     bool
	flagFormat   string
)

var errInvalidGraph = errors.New("dependency graph is invalid")

func main() {
	rootCmd := &cobra.Command{
		Use:   "critpath",
		Short: "Critical path scheduling for task dependency graphs",
		Long: `critpath validates a graph of tasks and typed dependencies (FS, SS, FF, SF
with lag), then computes earliest and latest dates, float and the critical path.
Tasks come from a project file (--file) or a local SQLite store (--db).`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintBanner(os.Stdout)
			cmd.Help()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite store path")
	rootCmd.PersistentFlags().StringVarP(&flagFile, "file", "f", "", "Read tasks from a JSON or YAML project file instead of the store")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")

	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(criticalCmd())
	rootCmd.AddCommand(chainsCmd())
	rootCmd.AddCommand(checkEdgeCmd())
	rootCmd.AddCommand(vizCmd())
	rootCmd.AddCommand(inferDepsCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(depCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// env is the per-invocation state shared by commands.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	loc    *time.Location
}

func setup() (*env, error) {
	var (
		cfg *config.Config
		err error
	)
	if flagConfig != "" {
		cfg, err = config.Load(flagConfig)
	} else {
		cfg, err = config.LoadOrDefault(config.DefaultPath)
	}
	if err != nil {
		return nil, err
	}

	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	if flagFile != "" {
		cfg.File = flagFile
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, logger: logger, loc: loc}, nil
}

func (e *env) openStore() (*store.Store, error) {
	s, err := store.New(e.cfg.DBPath, e.logger)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", e.cfg.DBPath, err)
	}
	return s, nil
}

// snapshot loads tasks and dependencies from the project file or the store.
func (e *env) snapshot(ctx context.Context) ([]graph.Task, []graph.Dependency, error) {
	if e.cfg.File != "" {
		snap, err := source.LoadFile(e.cfg.File)
		if err != nil {
			return nil, nil, err
		}
		e.logger.Debug("snapshot loaded", "file", e.cfg.File, "tasks", len(snap.Tasks), "dependencies", len(snap.Dependencies))
		return snap.Tasks, snap.Dependencies, nil
	}

	s, err := e.openStore()
	if err != nil {
		return nil, nil, err
	}
	defer s.Close()

	tasks, deps, err := s.Snapshot(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read store: %w", err)
	}
	e.logger.Debug("snapshot loaded", "db", e.cfg.DBPath, "tasks", len(tasks), "dependencies", len(deps))
	return tasks, deps, nil
}

// options builds scheduling options, letting a --project-end flag override config.
func (e *env) options(projectEnd string) (cpm.Options, error) {
	opts := cpm.Options{Location: e.loc}

	end, err := e.cfg.ProjectEndTime()
	if err != nil {
		return opts, err
	}
	if projectEnd != "" {
		t, err := time.ParseInLocation("2006-01-02", projectEnd, e.loc)
		if err != nil {
			return opts, fmt.Errorf("invalid --project-end %q: %w", projectEnd, err)
		}
		end = &t
	}
	opts.ProjectEnd = end
	return opts, nil
}

// compute loads a snapshot and schedules it, keeping only tasks matching the
// given id prefixes when any are set. Validation failures are printed and
// returned as errInvalidGraph.
func (e *env) compute(ctx context.Context, projectEnd string, only []string) (*cpm.Schedule, error) {
	tasks, deps, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := e.options(projectEnd)
	if err != nil {
		return nil, err
	}

	g, err := graph.Build(tasks, deps)
	var verr *graph.ValidationError
	if errors.As(err, &verr) {
		if flagJSON {
			outputJSON(verr.Result)
		} else {
			reporter.PrintValidation(os.Stderr, verr.Result)
		}
		return nil, errInvalidGraph
	}
	if err != nil {
		return nil, err
	}
	if len(only) > 0 {
		if g, err = g.Filter(graph.MatchIDs(only...)); err != nil {
			return nil, fmt.Errorf("filter tasks: %w", err)
		}
		e.logger.Debug("tasks filtered", "prefixes", only, "kept", g.Len())
	}

	s := cpm.Analyze(g, opts)
	e.logger.Info("schedule computed", "tasks", len(s.Nodes), "critical", len(s.CriticalPath), "infeasible", s.Infeasible)
	return s, nil
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the dependency graph for dangling references, bad types and cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			tasks, deps, err := e.snapshot(cmd.Context())
			if err != nil {
				return err
			}

			res := graph.Validate(tasks, deps)
			if flagJSON {
				if err := outputJSON(res); err != nil {
					return err
				}
			} else {
				reporter.PrintValidation(os.Stdout, res)
			}

			if !res.Valid {
				return errInvalidGraph
			}
			return nil
		},
	}
}

func scheduleCmd() *cobra.Command {
	var (
		flagProjectEnd string
		flagExplain    bool
		flagModel      string
		flagOnly       []string
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Compute earliest/latest dates, float and the critical path",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			s, err := e.compute(cmd.Context(), flagProjectEnd, flagOnly)
			if err != nil {
				return err
			}

			rpt := reporter.New(s)
			if flagJSON {
				data, err := rpt.JSON()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
			} else {
				rpt.PrintSchedule(os.Stdout)
			}

			if flagExplain {
				return explainSchedule(cmd.Context(), e, rpt, flagModel)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagProjectEnd, "project-end", "", "Latest finish for sink tasks (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&flagExplain, "explain", false, "Ask Claude for a narrative summary of the schedule")
	cmd.Flags().StringVar(&flagModel, "model", "", "Claude model to use with --explain")
	cmd.Flags().StringSliceVar(&flagOnly, "only", nil, "Schedule only tasks whose id starts with one of these prefixes")

	return cmd
}

func criticalCmd() *cobra.Command {
	var flagProjectEnd string

	cmd := &cobra.Command{
		Use:   "critical",
		Short: "Print the tasks on the critical path",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			s, err := e.compute(cmd.Context(), flagProjectEnd, nil)
			if err != nil {
				return err
			}

			if flagJSON {
				crit := s.Critical()
				if crit == nil {
					crit = []cpm.CriticalTask{}
				}
				return outputJSON(crit)
			}
			reporter.New(s).PrintCritical(os.Stdout)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagProjectEnd, "project-end", "", "Latest finish for sink tasks (YYYY-MM-DD)")

	return cmd
}

func chainsCmd() *cobra.Command {
	var flagDirection string

	cmd := &cobra.Command{
		Use:   "chains <task-id>",
		Short: "List every dependency chain starting at a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := graph.ParseDirection(flagDirection)
			if err != nil {
				return err
			}
			e, err := setup()
			if err != nil {
				return err
			}
			tasks, deps, err := e.snapshot(cmd.Context())
			if err != nil {
				return err
			}

			id := args[0]
			if !hasTask(tasks, id) {
				return fmt.Errorf("task %s not found", id)
			}

			chains := graph.DependencyChains(id, deps, dir)
			if flagJSON {
				if chains == nil {
					chains = [][]string{}
				}
				return outputJSON(chains)
			}
			reporter.PrintChains(os.Stdout, id, dir, chains)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagDirection, "direction", "down", "Direction to follow (up, down)")

	return cmd
}

func checkEdgeCmd() *cobra.Command {
	var (
		flagType string
		flagLag  int
	)

	cmd := &cobra.Command{
		Use:   "check-edge <predecessor> <successor>",
		Short: "Check whether adding a dependency would create a cycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := graph.ParseDependencyType(flagType)
			if err != nil {
				return err
			}
			e, err := setup()
			if err != nil {
				return err
			}
			_, deps, err := e.snapshot(cmd.Context())
			if err != nil {
				return err
			}

			candidate := graph.Dependency{PredecessorID: args[0], SuccessorID: args[1], Type: typ, Lag: flagLag}
			cycle := graph.WouldCreateCycle(candidate, deps)

			if flagJSON {
				if err := outputJSON(map[string]any{"dependency": candidate.String(), "would_create_cycle": cycle}); err != nil {
					return err
				}
			} else if cycle {
				fmt.Printf("%s %s would create a cycle\n", ui.Red("✗"), candidate)
			} else {
				fmt.Printf("%s %s can be added\n", ui.Green("✓"), candidate)
			}

			if cycle {
				return fmt.Errorf("%s: %w", candidate, store.ErrWouldCycle)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagType, "type", "FS", "Dependency type (FS, SS, FF, SF)")
	cmd.Flags().IntVar(&flagLag, "lag", 0, "Lag in days (negative for lead)")

	return cmd
}

func vizCmd() *cobra.Command {
	var flagOnly []string

	cmd := &cobra.Command{
		Use:   "viz",
		Short: "Print the dependency graph as ASCII or Graphviz DOT",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			s, err := e.compute(cmd.Context(), "", flagOnly)
			if err != nil {
				return err
			}

			rpt := reporter.New(s)
			switch flagFormat {
			case "dot":
				rpt.PrintDOT(os.Stdout)
			case "ascii", "":
				rpt.PrintASCII(os.Stdout)
				fmt.Println(ui.Dim(rpt.Summary()))
			default:
				return fmt.Errorf("unsupported format %q (use ascii or dot)", flagFormat)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagFormat, "format", "ascii", "Output format (ascii, dot)")
	cmd.Flags().StringSliceVar(&flagOnly, "only", nil, "Draw only tasks whose id starts with one of these prefixes")

	return cmd
}

// --- Output helpers ---

func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func hasTask(tasks []graph.Task, id string) bool {
	for _, t := range tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}

