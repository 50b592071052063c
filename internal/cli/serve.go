package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/taskweaver/internal/config"
	"github.com/soyeahso/taskweaver/internal/gateway"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadedConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				c.Gateway.Port = port
			}
			if bind != "" {
				c.Gateway.Bind = bind
			}

			if issues := config.Validate(c); len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}
			for _, name := range config.MissingCredentials(c) {
				log.Warn().Str("env", name).Msg("credential not set")
			}

			return withApp(func(a *app) error {
				if _, err := a.runner.RecoverStale(context.Background()); err != nil {
					log.Warn().Err(err).Msg("stale task recovery failed")
				}
				log.Info().
					Strs("providers", a.registry.List()).
					Str("database", paths.DatabasePath(c)).
					Msg("starting Task Weaver")

				ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				return gateway.New(*c, a.gatewayDeps(), log).Start(ctx)
			})
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}
