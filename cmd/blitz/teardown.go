package main

import (
	"github.com/spf13/cobra"
)

func newTeardownCmd(env func() (*app, error)) *cobra.Command {
	var (
		manifest string
		purge    bool
	)
	cmd := &cobra.Command{
		Use:   "teardown <workspace>",
		Short: "Remove the containers, network and volumes of a workspace",
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
			a.console.Step("Tearing down " + p.Name)
			res := a.service(a.cfg.Timeout).Teardown(cmd.Context(), p, purge)
			if !res.Success() {
				a.console.Failure("teardown of %s finished with %d error(s)", p.Name, len(res.Errors()))
				return errFailed
			}
			a.console.Success("workspace %s removed", p.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&manifest, "manifest", "", "YAML file used when the workspace was created")
	cmd.Flags().BoolVar(&purge, "purge", false, "also delete the workspace directory")
	return cmd
}
