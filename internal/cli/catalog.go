package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soyeahso/taskweaver/internal/billing"
	"github.com/soyeahso/taskweaver/internal/taskexec"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available models with default parameters and pricing",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			def := taskexec.ResolveModelConfig(nil, cfg.Models.Default).Model
			for _, m := range taskexec.Catalog() {
				mark := ""
				if m.ID == def {
					mark = " (default)"
				}
				fmt.Fprintf(out, "  %-20s temp=%.1f max_tokens=%-5d in=%.2f out=%.2f per 1K tokens%s\n",
					m.ID, m.Defaults.Temperature, m.Defaults.MaxTokens, m.Pricing.Input, m.Pricing.Output, mark)
			}
		},
	}
}

func newPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List subscription plans and their limits",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for i, p := range billing.Plans() {
				if i > 0 {
					fmt.Fprintln(out)
				}
				popular := ""
				if p.Popular {
					popular = "  [popular]"
				}
				fmt.Fprintf(out, "%s  %s/%s%s\n", p.Name, billing.FormatPrice(float64(p.Price), "USD"), p.Interval, popular)
				fmt.Fprintf(out, "  agents=%s data_sources=%s tasks_per_month=%s\n",
					limitString(p.Limits.Agents), limitString(p.Limits.DataSources), limitString(p.Limits.TasksPerMonth))
				for _, f := range p.Features {
					fmt.Fprintf(out, "  - %s\n", f)
				}
			}
		},
	}
}

func limitString(n int) string {
	if n == billing.Unlimited {
		return "unlimited"
	}
	return fmt.Sprint(n)
}
