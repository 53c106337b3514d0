package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/melih/blitzkrieg/internal/adapters/docker"
	"github.com/melih/blitzkrieg/internal/adapters/probe"
	"github.com/melih/blitzkrieg/internal/adapters/scaffold"
	"github.com/melih/blitzkrieg/internal/adapters/store"
	"github.com/melih/blitzkrieg/internal/config"
	"github.com/melih/blitzkrieg/internal/core/ports"
	"github.com/melih/blitzkrieg/internal/core/provision"
	"github.com/melih/blitzkrieg/internal/core/workspace"
	"github.com/melih/blitzkrieg/internal/logging"
	"github.com/melih/blitzkrieg/internal/ui"
)

// errFailed signals a workflow that ran to completion but reported failure.
// Details have already been printed.
var errFailed = errors.New("failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	root := &cobra.Command{
		Use:           "blitz",
		Short:         "Provision local PostgreSQL + pgAdmin development workspaces",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.blitz/blitz.yaml or ./blitz.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("root", ".", "directory that holds workspace directories")
	root.PersistentFlags().String("docker-host", "", "Docker daemon address (default from DOCKER_HOST)")
	_ = v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("workspace.root", root.PersistentFlags().Lookup("root"))
	_ = v.BindPFlag("docker.host", root.PersistentFlags().Lookup("docker-host"))

	env := func() (*app, error) { return newApp(v, cfgFile) }
	root.AddCommand(
		newCreateCmd(env),
		newTeardownCmd(env),
		newStatusCmd(env),
		newServeCmd(env, v),
	)
	return root
}

// app holds what every subcommand needs once configuration is resolved.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	console *ui.Console
	docker  *docker.Adapter
}

func newApp(v *viper.Viper, cfgFile string) (*app, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	log := logging.Stderr(cfg.LogLevel).With().Str("component", "blitz").Logger()
	rt, err := docker.NewAdapter(log, cfg.DockerHost)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, console: ui.NewConsole(os.Stdout), docker: rt}, nil
}

func (a *app) Close() error {
	return a.docker.Close()
}

func (a *app) settings() workspace.Settings {
	return workspace.Settings{
		PostgresImage: a.cfg.PostgresImage,
		PostgresPort:  a.cfg.PostgresPort,
		PgAdminImage:  a.cfg.PgAdminImage,
		PgAdminPort:   a.cfg.PgAdminPort,
		Email:         a.cfg.Email,
		Password:      a.cfg.Password,
	}
}

// plan builds the workspace plan, overlaying manifest when given.
func (a *app) plan(name, manifest string) (*workspace.Plan, error) {
	p, err := workspace.NewPlan(name, a.settings())
	if err != nil {
		return nil, err
	}
	if manifest == "" {
		return p, nil
	}
	m, err := workspace.LoadManifest(manifest)
	if err != nil {
		return nil, err
	}
	if err := p.Merge(m.Specs()); err != nil {
		return nil, err
	}
	return p, nil
}

func (a *app) service(timeout time.Duration) *workspace.Service {
	return workspace.NewService(workspace.Deps{
		Env: provision.Env{
			Log:      a.log,
			Reporter: a.console,
			Timeout:  timeout,
			Interval: a.cfg.Interval,
		},
		Runtime:   a.docker,
		Probe:     probe.Localhost(),
		ScanLimit: a.cfg.ScanLimit,
		Scaffold:  scaffold.NewAdapter(a.log, a.cfg.WorkspaceRoot),
		Recorder:  openRecorder,
		HTTP: func(url string) provision.Predicate {
			return probe.HTTPStatus(url, 200, 2*time.Second)
		},
	})
}

func openRecorder(ctx context.Context, conn workspace.Connection) (ports.WorkspaceRecorder, error) {
	w, err := store.OpenPostgres(ctx, conn.DSN())
	if err != nil {
		return nil, err
	}
	return w, nil
}
