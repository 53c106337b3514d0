package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/melih/blitzkrieg/internal/ui"
)

func newCreateCmd(env func() (*app, error)) *cobra.Command {
	var (
		manifest string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create <workspace>",
		Short: "Create a workspace: network, PostgreSQL, pgAdmin and its directory",
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
			if timeout <= 0 {
				timeout = a.cfg.Timeout
			}

			res := a.service(timeout).Create(cmd.Context(), p)
			fmt.Fprintln(cmd.OutOrStdout(), ui.HandleTable(res.Handles))
			if !res.Success {
				a.console.Failure("workspace %s failed at %s", p.Name, res.FailedStep)
				return errFailed
			}
			for _, err := range res.Errors {
				a.console.Info("warning: %v", err)
			}
			a.console.Success("workspace %s is ready", p.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&manifest, "manifest", "", "YAML file with extra or overriding resources")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "readiness timeout per resource (default from config)")
	return cmd
}
