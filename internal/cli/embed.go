package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newEmbedCmd() *cobra.Command {
	var (
		model string
		full  bool
	)

	cmd := &cobra.Command{
		Use:   "embed <text...>",
		Short: "Generate an embedding vector for text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				res, err := a.exec.GenerateEmbeddings(cmd.Context(), strings.Join(args, " "), model)
				if err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("%s: %s", res.Error.Kind, res.Error.Message)
				}
				out := cmd.OutOrStdout()
				if full {
					return printJSON(out, res.Data)
				}
				vec := res.Data.Embedding
				head := vec[:min(len(vec), 5)]
				fmt.Fprintf(out, "model=%s dimensions=%d head=%v\n", res.Data.Model, len(vec), head)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "embedding model (default from config)")
	cmd.Flags().BoolVar(&full, "json", false, "print the full vector and usage as JSON")
	return cmd
}
