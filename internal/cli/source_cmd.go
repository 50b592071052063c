package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/taskweaver/internal/billing"
	"github.com/soyeahso/taskweaver/internal/domain"
	"github.com/soyeahso/taskweaver/internal/store"
)

func newSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "source",
		Aliases: []string{"sources"},
		Short:   "Manage data sources that ground task runs",
	}

	cmd.AddCommand(newSourceAddCmd())
	cmd.AddCommand(newSourceListCmd())
	cmd.AddCommand(newSourceSearchCmd())
	cmd.AddCommand(newSourceDeleteCmd())
	return cmd
}

func newSourceAddCmd() *cobra.Command {
	var name, typ, content, file string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a data source from text, a file, or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required")
			}
			t := domain.DataSourceType(typ)
			if !t.Valid() {
				return fmt.Errorf("unknown source type %q (want text, url or file)", typ)
			}
			if file != "" {
				data, err := readInput(file)
				if err != nil {
					return err
				}
				content = string(data)
			}

			return withApp(func(a *app) error {
				ctx := cmd.Context()
				if err := a.billing.Check(ctx, userFlag, billing.ResourceDataSources); err != nil {
					return err
				}
				ds := &domain.DataSource{
					UserID:  userFlag,
					Name:    strings.TrimSpace(name),
					Type:    t,
					Content: content,
				}
				if err := a.sources.Create(ctx, ds); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added data source %s (%s, %d bytes)\n", ds.ID, ds.Name, len(ds.Content))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "data source name")
	cmd.Flags().StringVar(&typ, "type", string(domain.DataSourceText), "source type: text, url or file")
	cmd.Flags().StringVar(&content, "content", "", "inline content")
	cmd.Flags().StringVar(&file, "file", "", "read content from a file (- for stdin)")
	return cmd
}

func newSourceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your data sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				sources, err := a.sources.ListByUser(cmd.Context(), userFlag)
				if err != nil {
					return err
				}
				printSources(cmd, sources)
				return nil
			})
		},
	}
}

func newSourceSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <words...>",
		Short: "Full-text search over data source names and content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := store.TermsQuery(strings.Join(args, " "))
			if q == "" {
				return fmt.Errorf("nothing to search for")
			}
			return withApp(func(a *app) error {
				sources, err := a.sources.Search(cmd.Context(), userFlag, q, limit)
				if err != nil {
					return err
				}
				printSources(cmd, sources)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results")
	return cmd
}

func newSourceDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <source-id>",
		Short: "Delete a data source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				ctx := cmd.Context()
				ds, err := a.sources.Get(ctx, args[0])
				if err == nil && ds.UserID != userFlag {
					err = store.ErrNotFound
				}
				if err != nil {
					return fmt.Errorf("data source %s: %w", args[0], err)
				}
				if err := a.sources.Delete(ctx, ds.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted data source %s\n", ds.ID)
				return nil
			})
		},
	}
}

func printSources(cmd *cobra.Command, sources []domain.DataSource) {
	out := cmd.OutOrStdout()
	if len(sources) == 0 {
		fmt.Fprintln(out, "No data sources.")
		return
	}
	for _, ds := range sources {
		fmt.Fprintf(out, "  %s  %-24s %-5s %d bytes\n", ds.ID, ds.Name, ds.Type, len(ds.Content))
	}
}
