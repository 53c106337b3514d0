package workspace

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/melih/blitzkrieg/internal/core/domain"
	"github.com/melih/blitzkrieg/internal/core/ports"
	"github.com/melih/blitzkrieg/internal/core/provision"
)

// HTTPCheck builds a readiness predicate that GETs url.
type HTTPCheck func(url string) provision.Predicate

// RecorderFunc opens a recorder against the workspace database.
type RecorderFunc func(ctx context.Context, conn Connection) (ports.WorkspaceRecorder, error)

// Deps are the collaborators of a Service. Scaffolder, Recorder and HTTP are
// optional; the matching steps are skipped when nil.
type Deps struct {
	Env       provision.Env
	Runtime   ports.ContainerRuntime
	Probe     ports.PortProbe
	ScanLimit int
	Scaffold  ports.Scaffolder
	Recorder  RecorderFunc
	HTTP      HTTPCheck
}

// Service creates, inspects and removes workspaces.
type Service struct {
	deps Deps
}

func NewService(d Deps) *Service {
	return &Service{deps: d}
}

func (s *Service) workflow(p *Plan) *provision.Workflow {
	alloc := provision.NewPortAllocator(s.deps.Probe, s.deps.ScanLimit)
	return provision.NewWorkflow(s.deps.Env, s.deps.Runtime, alloc, s.readiness(p))
}

// readiness: a PostgreSQL database must answer pg_isready, the admin UI its
// ping endpoint on the published port. Other containers only need to run.
func (s *Service) readiness(p *Plan) provision.ReadinessFunc {
	rt := s.deps.Runtime
	return func(spec domain.ResourceSpec, h *domain.ResourceHandle) provision.Predicate {
		switch spec.Kind {
		case domain.KindDatabase:
			if !strings.Contains(spec.Image, "postgres") {
				return nil
			}
			cmd := []string{"pg_isready",
				"-U", envOr(spec.Env, "POSTGRES_USER", "postgres"),
				"-d", envOr(spec.Env, "POSTGRES_DB", "postgres")}
			return provision.All(provision.ContainerRunning(rt), provision.ExecSucceeds(rt, cmd, "accepting connections"))
		case domain.KindAdminUI:
			if s.deps.HTTP == nil || h.Port == 0 {
				return nil
			}
			url := fmt.Sprintf("http://localhost:%d/misc/ping", h.Port)
			return provision.All(provision.ContainerRunning(rt), s.deps.HTTP(url))
		}
		return nil
	}
}

// Create provisions the plan and, once everything is running, scaffolds the
// workspace directory, registers the database in pgAdmin and records the
// workspace in its own database.
func (s *Service) Create(ctx context.Context, p *Plan) domain.ProvisioningResult {
	return s.workflow(p).Run(ctx, p.Resources, s.postSteps(p)...)
}

func (s *Service) postSteps(p *Plan) []provision.PostStep {
	var (
		path  string
		steps []provision.PostStep
	)
	doc, docErr := p.ServerRegistration().Marshal()

	if s.deps.Scaffold != nil {
		steps = append(steps, provision.PostStep{
			Name: "Scaffold workspace directory",
			Run: func(ctx context.Context, _ map[string]domain.ResourceHandle) error {
				if docErr != nil {
					return docErr
				}
				dir, err := s.deps.Scaffold.Scaffold(ctx, p.Name, map[string][]byte{"servers.json": doc})
				if err != nil {
					return err
				}
				path = dir
				s.deps.Env.Log.Info().Str("workspace", p.Name).Str("path", dir).Msg("workspace directory ready")
				return nil
			},
		})
	}

	if _, ok := p.Resource(PgAdminName(p.Name)); ok {
		steps = append(steps, provision.PostStep{
			Name: "Register database in pgAdmin",
			Run: func(ctx context.Context, _ map[string]domain.ResourceHandle) error {
				if docErr != nil {
					return docErr
				}
				admin, _ := p.Resource(PgAdminName(p.Name))
				user := envOr(admin.Env, "PGADMIN_DEFAULT_EMAIL", p.Settings.Email)
				uploaded, err := RegisterServer(ctx, s.deps.Runtime, admin.Name, user, doc)
				if err != nil {
					return err
				}
				if !uploaded {
					s.deps.Env.Log.Info().Str("workspace", p.Name).Msg("pgAdmin already has a servers file")
				}
				return nil
			},
		})
	}

	if s.deps.Recorder != nil {
		steps = append(steps, provision.PostStep{
			Name: "Record workspace",
			Run: func(ctx context.Context, handles map[string]domain.ResourceHandle) error {
				db, ok := handles[PostgresName(p.Name)]
				if !ok || db.Port == 0 {
					return domain.NotFoundf("database port of workspace %s", p.Name)
				}
				conn := p.connection(db.Port, handles[PgAdminName(p.Name)].Port)
				rec, err := s.deps.Recorder(ctx, conn)
				if err != nil {
					return err
				}
				defer rec.Close()
				return rec.Record(ctx, p.Name, path, conn.Vars())
			},
		})
	}
	return steps
}

// Teardown removes every resource of the plan. With purge the workspace
// directory is removed too.
func (s *Service) Teardown(ctx context.Context, p *Plan, purge bool) domain.TeardownResult {
	res := s.workflow(p).Teardown(ctx, p.Resources)
	if purge && s.deps.Scaffold != nil {
		step := domain.TeardownStep{Name: p.Name, Kind: "directory"}
		if err := s.deps.Scaffold.Remove(p.Name); err != nil {
			step.Err = err
			s.deps.Env.Log.Warn().Err(err).Str("workspace", p.Name).Msg("remove workspace directory")
		}
		res.Steps = append(res.Steps, step)
	}
	return res
}

// Status reconstructs the handle of each resource from what the runtime
// currently reports.
func (s *Service) Status(ctx context.Context, p *Plan) []domain.ResourceHandle {
	out := make([]domain.ResourceHandle, 0, len(p.Resources))
	for _, spec := range p.Resources {
		h := domain.ResourceHandle{Name: spec.Name, Kind: spec.Kind, State: domain.StateAbsent, Updated: time.Now()}
		if spec.Kind == domain.KindNetwork {
			exists, err := s.deps.Runtime.NetworkExists(ctx, spec.Name)
			switch {
			case err != nil:
				h.State, h.LastErr = domain.StateFailed, err
			case exists:
				h.State = domain.StateRunning
			}
			out = append(out, h)
			continue
		}

		c, err := s.deps.Runtime.ContainerGet(ctx, spec.Name)
		switch {
		case domain.IsNotFound(err):
		case err != nil:
			h.State, h.LastErr = domain.StateFailed, err
		default:
			h.Port, _ = c.HostPort(spec.ContainerPort)
			h.State = containerState(c)
			if h.State == domain.StateFailed {
				h.LastErr = fmt.Errorf("container is %s", c.State)
			}
		}
		out = append(out, h)
	}
	return out
}

func containerState(c domain.Container) domain.State {
	switch c.State {
	case "running":
		return domain.StateRunning
	case "created", "restarting":
		return domain.StateStarting
	case "removing":
		return domain.StateStopping
	default:
		return domain.StateFailed
	}
}

// Connection returns the host-side connection details of a running
// workspace database.
func (s *Service) Connection(ctx context.Context, p *Plan) (Connection, error) {
	db, ok := p.Resource(PostgresName(p.Name))
	if !ok {
		return Connection{}, domain.NotFoundf("database of workspace %s", p.Name)
	}
	c, err := s.deps.Runtime.ContainerGet(ctx, db.Name)
	if err != nil {
		return Connection{}, err
	}
	port, ok := c.HostPort(db.ContainerPort)
	if !ok || !c.Running() {
		return Connection{}, domain.NotFoundf("published port of %s", db.Name)
	}
	adminPort := 0
	if admin, err := s.deps.Runtime.ContainerGet(ctx, PgAdminName(p.Name)); err == nil {
		adminPort, _ = admin.HostPort(PgAdminContainerPort)
	}
	return p.connection(port, adminPort), nil
}
