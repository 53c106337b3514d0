package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/melih/blitzkrieg/internal/adapters/http"
	"github.com/melih/blitzkrieg/internal/core/workspace"
)

func newServeCmd(env func() (*app, error), v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workspace status API and the <container>.localhost proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env()
			if err != nil {
				return err
			}
			defer a.Close()

			plan := func(name string) (*workspace.Plan, error) { return a.plan(name, "") }
			handler := httpadapter.NewWorkspaceHandler(a.log, a.service(a.cfg.Timeout), a.docker, plan)
			server := httpadapter.NewApp(handler, httpadapter.NewProxyHandler(a.docker))

			eg, ctx := errgroup.WithContext(cmd.Context())
			eg.Go(func() error {
				a.log.Info().Str("addr", a.cfg.APIAddr).Msg("api listening")
				return server.Listen(a.cfg.APIAddr)
			})
			eg.Go(func() error {
				<-ctx.Done()
				a.log.Info().Msg("shutting down api")
				return server.ShutdownWithContext(context.Background())
			})
			if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", ":3000", "listen address")
	_ = v.BindPFlag("api.addr", cmd.Flags().Lookup("addr"))
	return cmd
}
