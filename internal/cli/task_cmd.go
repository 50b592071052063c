package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/taskweaver/internal/domain"
	"github.com/soyeahso/taskweaver/internal/store"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks"},
		Short:   "Run and inspect tasks",
	}

	cmd.AddCommand(newTaskRunCmd())
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskShowCmd())
	return cmd
}

func newTaskRunCmd() *cobra.Command {
	var (
		sources   []string
		inputFile string
	)

	cmd := &cobra.Command{
		Use:   "run <agent-id> [input...]",
		Short: "Run an agent against an input and record the task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args[1:], " ")
			if inputFile != "" {
				data, err := readInput(inputFile)
				if err != nil {
					return err
				}
				input = string(data)
			}

			return withApp(func(a *app) error {
				task, err := a.runner.Execute(cmd.Context(), userFlag, args[0], input, sources)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if task.Status == domain.TaskFailed {
					return fmt.Errorf("task %s failed: %s: %s", task.ID, task.ErrorKind, task.Error)
				}
				fmt.Fprintln(out, task.Output)
				fmt.Fprintf(out, "\n[task=%s model=%s tokens=%d cost=%.2f duration=%dms]\n",
					task.ID, task.Model, task.TokensUsed, task.CostCents, task.DurationMs)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "data source ID to include as context (repeatable)")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "read the input from a file (- for stdin)")
	return cmd
}

func newTaskListCmd() *cobra.Command {
	var (
		agentID string
		status  string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := domain.TaskStatus(status)
			if status != "" && !st.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			return withApp(func(a *app) error {
				tasks, err := a.tasks.List(cmd.Context(), domain.TaskFilter{
					UserID:  userFlag,
					AgentID: agentID,
					Status:  st,
					Limit:   limit,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(tasks) == 0 {
					fmt.Fprintln(out, "No tasks.")
					return nil
				}
				for _, t := range tasks {
					fmt.Fprintf(out, "  %s  %-9s agent=%s tokens=%-6d cost=%.2f  %s\n",
						t.ID, t.Status, t.AgentID, t.TokensUsed, t.CostCents, t.CreatedAt.Local().Format("2006-01-02 15:04"))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "only tasks for this agent")
	cmd.Flags().StringVar(&status, "status", "", "only tasks in this status")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum tasks")
	return cmd
}

func newTaskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				t, err := a.tasks.Get(cmd.Context(), args[0])
				if err == nil && t.UserID != userFlag {
					err = store.ErrNotFound
				}
				if err != nil {
					return fmt.Errorf("task %s: %w", args[0], err)
				}
				return printJSON(cmd.OutOrStdout(), t)
			})
		},
	}
}
