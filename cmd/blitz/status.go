package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/melih/blitzkrieg/internal/core/domain"
	"github.com/melih/blitzkrieg/internal/ui"
)

func newStatusCmd(env func() (*app, error)) *cobra.Command {
	var manifest string
	cmd := &cobra.Command{
		Use:   "status <workspace>",
		Short: "Show the state of each workspace resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env()
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.plan(args[0], manifest)
			if err != nil {
				return err
			}
			svc := a.service(a.cfg.Timeout)
			handles := svc.Status(cmd.Context(), p)
			fmt.Fprintln(cmd.OutOrStdout(), ui.HandleTable(handles))

			conn, err := svc.Connection(cmd.Context(), p)
			if domain.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			a.console.Info("database: %s", conn.URL())
			if conn.PgAdminURL != "" {
				a.console.Info("pgAdmin:  %s", conn.PgAdminURL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&manifest, "manifest", "", "YAML file used when the workspace was created")
	return cmd
}
