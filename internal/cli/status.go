package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/taskweaver/internal/config"
	"github.com/soyeahso/taskweaver/internal/logging"
	"github.com/soyeahso/taskweaver/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show Task Weaver status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Task Weaver %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Data:     %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:     %s\n", paths.Logs)
			fmt.Fprintln(out)

			c, err := loadedConfig()
			if err != nil {
				fmt.Fprintf(out, "Config:   error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "App:      %s (%s)\n", c.App.Name, c.App.URL)
			fmt.Fprintf(out, "Gateway:  port=%d bind=%s auth=%s\n", c.Gateway.Port, c.Gateway.Bind, c.Gateway.Auth.Mode)
			fmt.Fprintf(out, "OpenAI:   key=%s base=%s\n", orNone(logging.MaskSecret(c.OpenAI.APIKey)), orNone(c.OpenAI.BaseURL))
			if c.Ollama != nil {
				fmt.Fprintf(out, "Ollama:   base=%s models=%s\n", c.Ollama.BaseURL, strings.Join(c.Ollama.Models, ","))
			}
			fmt.Fprintf(out, "Models:   default=%s embedding=%s\n", c.Models.Default, c.Models.Embedding)
			fmt.Fprintf(out, "Billing:  default plan=%s\n", c.Billing.DefaultPlan)

			err = withApp(func(a *app) error {
				v, err := a.db.SchemaVersion()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Database: %s (schema v%d)\n", paths.DatabasePath(c), v)
				fmt.Fprintf(out, "LLM:      %s\n", strings.Join(a.registry.List(), ", "))

				plan, err := a.billing.PlanFor(cmd.Context(), userFlag)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "User:     %s (plan %s)\n", userFlag, plan.Name)
				return nil
			})
			if err != nil {
				fmt.Fprintf(out, "Database: error: %v\n", err)
			}

			if missing := config.MissingCredentials(c); len(missing) > 0 {
				fmt.Fprintf(out, "\nMissing credentials: %s\n", strings.Join(missing, ", "))
			}
			if issues := config.Validate(c); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
