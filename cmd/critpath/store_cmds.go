package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshharrison/critpath/internal/graph"
	"github.com/joshharrison/critpath/internal/reporter"
	"github.com/joshharrison/critpath/internal/source"
	"github.com/joshharrison/critpath/internal/ui"
)

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks in the store",
	}
	cmd.AddCommand(taskAddCmd(), taskListCmd(), taskRmCmd())
	return cmd
}

func taskAddCmd() *cobra.Command {
	var (
		flagTitle    string
		flagDuration int
		flagStart    string
	)

	cmd := &cobra.Command{
		Use:   "add [id]",
		Short: "Add a task (a UUID is generated when no id is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}

			t := graph.Task{Title: flagTitle, Duration: flagDuration}
			if len(args) == 1 {
				t.ID = args[0]
			}
			if flagStart != "" {
				start, err := time.Parse("2006-01-02", flagStart)
				if err != nil {
					return fmt.Errorf("invalid --start %q: %w", flagStart, err)
				}
				t.StartDate = &start
			}

			s, err := e.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			created, err := s.CreateTask(cmd.Context(), t)
			if err != nil {
				return err
			}

			if flagJSON {
				return outputJSON(created)
			}
			fmt.Printf("%s added %s %s\n", ui.Green("✓"), ui.TaskPrefix(created.ID), created.Title)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagTitle, "title", "", "Task title")
	cmd.Flags().IntVar(&flagDuration, "duration", 1, "Duration in days")
	cmd.Flags().StringVar(&flagStart, "start", "", "Start date for a task without predecessors (YYYY-MM-DD)")

	return cmd
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			s, err := e.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			tasks, err := s.ListTasks(cmd.Context())
			if err != nil {
				return err
			}

			if flagJSON {
				if tasks == nil {
					tasks = []graph.Task{}
				}
				return outputJSON(tasks)
			}
			for _, t := range tasks {
				start := ""
				if t.StartDate != nil {
					start = ui.Dim("starts " + t.StartDate.Format("2006-01-02"))
				}
				fmt.Printf("  %s %-40s %3dd  %s\n", ui.TaskPrefix(t.ID), t.Title, t.Days(), start)
			}
			fmt.Printf("%s tasks\n", ui.Bold(len(tasks)))
			return nil
		},
	}
}

func taskRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a task and its dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			s, err := e.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("%s removed %s\n", ui.Green("✓"), ui.TaskPrefix(args[0]))
			return nil
		},
	}
}

func depCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dep",
		Short: "Manage dependencies in the store",
	}
	cmd.AddCommand(depAddCmd(), depListCmd(), depRmCmd())
	return cmd
}

func depAddCmd() *cobra.Command {
	var (
		flagID   string
		flagType string
		flagLag  int
	)

	cmd := &cobra.Command{
		Use:   "add <predecessor> <successor>",
		Short: "Add a dependency; rejected if it would create a cycle",
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
			s, err := e.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			d, err := s.AddDependency(cmd.Context(), graph.Dependency{
				ID:            flagID,
				PredecessorID: args[0],
				SuccessorID:   args[1],
				Type:          typ,
				Lag:           flagLag,
			})
			if err != nil {
				return err
			}

			if flagJSON {
				return outputJSON(d)
			}
			fmt.Printf("%s added %s %s\n", ui.Green("✓"), d, ui.Dim("("+d.ID+")"))
			return nil
		},
	}

	cmd.Flags().StringVar(&flagID, "id", "", "Dependency id (default: generated)")
	cmd.Flags().StringVar(&flagType, "type", "FS", "Dependency type (FS, SS, FF, SF)")
	cmd.Flags().IntVar(&flagLag, "lag", 0, "Lag in days (negative for lead)")

	return cmd
}

func depListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			s, err := e.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			deps, err := s.ListDependencies(cmd.Context())
			if err != nil {
				return err
			}

			if flagJSON {
				if deps == nil {
					deps = []graph.Dependency{}
				}
				return outputJSON(deps)
			}
			for _, d := range deps {
				fmt.Printf("  %s  %s\n", d, ui.Dim(d.ID))
			}
			fmt.Printf("%s dependencies\n", ui.Bold(len(deps)))
			return nil
		},
	}
}

func depRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a dependency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			s, err := e.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteDependency(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("%s removed dependency %s\n", ui.Green("✓"), args[0])
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	var flagReplace bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a JSON or YAML project file into the store",
		Long: `Reads tasks and dependencies from a project file and writes them to the
store. The combined set must validate; nothing is written otherwise.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			snap, err := source.LoadFile(args[0])
			if err != nil {
				return err
			}

			s, err := e.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			err = s.Import(cmd.Context(), snap.Tasks, snap.Dependencies, flagReplace)
			var verr *graph.ValidationError
			if errors.As(err, &verr) {
				reporter.PrintValidation(os.Stderr, verr.Result)
				return errInvalidGraph
			}
			if err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}
			fmt.Printf("%s imported %d tasks and %d dependencies\n",
				ui.Green("✓"), len(snap.Tasks), len(snap.Dependencies))
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagReplace, "replace", false, "Replace everything in the store")

	return cmd
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write the current tasks and dependencies to a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			tasks, deps, err := e.snapshot(cmd.Context())
			if err != nil {
				return err
			}

			if err := source.WriteFile(args[0], &source.Snapshot{Tasks: tasks, Dependencies: deps}); err != nil {
				return err
			}
			fmt.Printf("%s exported %d tasks and %d dependencies to %s\n",
				ui.Green("✓"), len(tasks), len(deps), args[0])
			return nil
		},
	}
}
