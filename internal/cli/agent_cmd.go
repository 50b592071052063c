package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/taskweaver/internal/billing"
	"github.com/soyeahso/taskweaver/internal/domain"
	"github.com/soyeahso/taskweaver/internal/store"
	"github.com/soyeahso/taskweaver/internal/taskexec"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents",
	}

	cmd.AddCommand(newAgentCreateCmd())
	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentShowCmd())
	cmd.AddCommand(newAgentTestCmd())
	cmd.AddCommand(newAgentDeleteCmd())
	return cmd
}

func newAgentCreateCmd() *cobra.Command {
	var (
		name, description, prompt, promptFile, model string
		temperature, topP                            float64
		maxTokens                                    int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an agent from a prompt template",
		Long: "Create an agent. The prompt template may use {input}, {context} and\n" +
			"{timestamp}; they are replaced when a task runs.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if promptFile != "" {
				data, err := readInput(promptFile)
				if err != nil {
					return err
				}
				prompt = string(data)
			}
			if strings.TrimSpace(name) == "" || strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("--name and --prompt (or --prompt-file) are required")
			}

			mc := &domain.ModelConfig{Model: model}
			flags := cmd.Flags()
			if flags.Changed("temperature") {
				mc.Temperature = domain.Float(temperature)
			}
			if flags.Changed("max-tokens") {
				mc.MaxTokens = domain.Int(maxTokens)
			}
			if flags.Changed("top-p") {
				mc.TopP = domain.Float(topP)
			}
			if v := taskexec.ValidateModelConfig(*mc); !v.IsValid {
				return fmt.Errorf("invalid model config: %s", strings.Join(v.Errors, "; "))
			}

			return withApp(func(a *app) error {
				ctx := cmd.Context()
				if err := a.billing.Check(ctx, userFlag, billing.ResourceAgents); err != nil {
					return err
				}
				agent := &domain.Agent{
					UserID:         userFlag,
					Name:           strings.TrimSpace(name),
					Description:    description,
					PromptTemplate: prompt,
					ModelConfig:    mc,
				}
				if err := a.agents.Create(ctx, agent); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created agent %s (%s)\n", agent.ID, agent.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "agent name")
	cmd.Flags().StringVar(&description, "description", "", "short description")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt template")
	cmd.Flags().StringVar(&promptFile, "prompt-file", "", "read the prompt template from a file (- for stdin)")
	cmd.Flags().StringVar(&model, "model", "", "model ID (default from config)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature, 0 to 2")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "completion token limit, 1 to 4000")
	cmd.Flags().Float64Var(&topP, "top-p", 0, "nucleus sampling, 0 to 1")
	return cmd
}

func newAgentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				agents, err := a.agents.ListByUser(cmd.Context(), userFlag)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(agents) == 0 {
					fmt.Fprintln(out, "No agents. Create one with: taskweaver agent create --name ... --prompt ...")
					return nil
				}
				for _, ag := range agents {
					fmt.Fprintf(out, "  %s  %-20s %-7s model=%s\n", ag.ID, ag.Name, ag.Status, a.exec.ModelConfigFor(&ag).Model)
				}
				return nil
			})
		},
	}
}

func newAgentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <agent-id>",
		Short: "Show an agent with its effective model parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				ag, err := ownedAgent(cmd.Context(), a, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"agent":     ag,
					"effective": a.exec.ModelConfigFor(ag),
				})
			})
		},
	}
}

func newAgentTestCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "test <agent-id>",
		Short: "Send a sample message to an agent without creating a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				res, err := a.runner.TestAgent(cmd.Context(), userFlag, args[0], input)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "sample input (default: ask the agent to introduce itself)")
	return cmd
}

func newAgentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <agent-id>",
		Short: "Delete an agent and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				ag, err := ownedAgent(cmd.Context(), a, args[0])
				if err != nil {
					return err
				}
				if err := a.agents.Delete(cmd.Context(), ag.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted agent %s\n", ag.ID)
				return nil
			})
		},
	}
}

func ownedAgent(ctx context.Context, a *app, id string) (*domain.Agent, error) {
	ag, err := a.agents.Get(ctx, id)
	if err == nil && ag.UserID != userFlag {
		err = store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", id, err)
	}
	return ag, nil
}

// printResult prints a successful task result's output, or its error.
func printResult(w io.Writer, res taskexec.Result[taskexec.TaskResult]) error {
	if !res.Success {
		return fmt.Errorf("%s: %s", res.Error.Kind, res.Error.Message)
	}
	d := res.Data
	fmt.Fprintln(w, d.Output)
	fmt.Fprintf(w, "\n[model=%s tokens=%d cost=%.2f duration=%dms]\n", d.Model, d.TokensUsed, d.CostCents, d.DurationMs)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput reads a file, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
