// Package workspace turns a workspace name into the network, PostgreSQL and
// pgAdmin resources that back it, and runs the steps that configure them
// once they are up.
package workspace

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/melih/blitzkrieg/internal/core/domain"
)

const (
	PostgresContainerPort = "5432/tcp"
	PgAdminContainerPort  = "80/tcp"

	postgresDataDir = "/var/lib/postgresql/data"
	pgAdminDataDir  = "/var/lib/pgadmin"
)

// Settings are the per-installation inputs of a plan.
type Settings struct {
	PostgresImage string
	PostgresPort  int
	PgAdminImage  string
	PgAdminPort   int
	Email         string
	Password      string
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		PostgresImage: "postgres:latest",
		PostgresPort:  5432,
		PgAdminImage:  "dpage/pgadmin4",
		PgAdminPort:   5050,
		Email:         "admin@example.com",
		Password:      "0101",
	}
}

var namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,48}[a-z0-9])?$`)

// ValidateName checks that name can prefix Docker object names.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid workspace name %q: use 1-50 lowercase letters, digits and inner dashes", name)
	}
	return nil
}

func NetworkName(ws string) string  { return ws + "-network" }
func PostgresName(ws string) string { return ws + "-postgres" }
func PgAdminName(ws string) string  { return ws + "-pgadmin" }
func DatabaseUser(ws string) string { return ws + "-db-user" }

// Plan is the ordered set of resources of one workspace.
type Plan struct {
	Name      string
	Settings  Settings
	Resources []domain.ResourceSpec
}

// NewPlan builds the default network, database and admin UI resources.
func NewPlan(name string, s Settings) (*Plan, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	network := NetworkName(name)
	return &Plan{
		Name:     name,
		Settings: s,
		Resources: []domain.ResourceSpec{
			{Name: network, Kind: domain.KindNetwork},
			{
				Name:          PostgresName(name),
				Kind:          domain.KindDatabase,
				Image:         s.PostgresImage,
				PreferredPort: s.PostgresPort,
				ContainerPort: PostgresContainerPort,
				Network:       network,
				Env: map[string]string{
					"POSTGRES_DB":          name,
					"POSTGRES_USER":        DatabaseUser(name),
					"POSTGRES_PASSWORD":    s.Password,
					"POSTGRES_INITDB_ARGS": "--auth-local=md5",
				},
				Volumes:   []domain.VolumeMount{{Volume: name + "-pgdata", Target: postgresDataDir}},
				DependsOn: []string{network},
			},
			{
				Name:          PgAdminName(name),
				Kind:          domain.KindAdminUI,
				Image:         s.PgAdminImage,
				PreferredPort: s.PgAdminPort,
				ContainerPort: PgAdminContainerPort,
				Network:       network,
				Env: map[string]string{
					"PGADMIN_DEFAULT_EMAIL":    s.Email,
					"PGADMIN_DEFAULT_PASSWORD": s.Password,
				},
				Volumes:   []domain.VolumeMount{{Volume: name + "-pgadmin-data", Target: pgAdminDataDir}},
				DependsOn: []string{network, PostgresName(name)},
			},
		},
	}, nil
}

// Merge overlays extra resources onto the plan: a resource with an existing
// name replaces it, any other is appended. Containers without a network join
// the workspace network and depend on it.
func (p *Plan) Merge(extra []domain.ResourceSpec) error {
	network := NetworkName(p.Name)
	for _, r := range extra {
		if !r.Kind.Valid() {
			return domain.NewError("merge manifest", r.Name, domain.ErrDependency, fmt.Errorf("unknown kind %q", r.Kind))
		}
		if r.Kind.IsContainer() && r.Network == "" {
			r.Network = network
		}
		if r.Kind.IsContainer() && r.Network == network && !contains(r.DependsOn, network) {
			r.DependsOn = append([]string{network}, r.DependsOn...)
		}
		if i := p.index(r.Name); i >= 0 {
			p.Resources[i] = r
			continue
		}
		p.Resources = append(p.Resources, r)
	}
	return nil
}

func (p *Plan) index(name string) int {
	for i, r := range p.Resources {
		if r.Name == name {
			return i
		}
	}
	return -1
}

// Resource returns the named resource spec.
func (p *Plan) Resource(name string) (domain.ResourceSpec, bool) {
	if i := p.index(name); i >= 0 {
		return p.Resources[i], true
	}
	return domain.ResourceSpec{}, false
}

// ServerRegistration is the pgAdmin document describing the workspace
// database as seen from inside the workspace network.
func (p *Plan) ServerRegistration() *domain.ServerRegistration {
	doc := domain.NewServerRegistration()
	db, _ := p.Resource(PostgresName(p.Name))
	doc.Add(1, domain.ServerEntry{
		Name:          title(p.Name) + " PostgreSQL",
		Group:         "Servers",
		Host:          PostgresName(p.Name),
		Port:          5432,
		MaintenanceDB: envOr(db.Env, "POSTGRES_DB", p.Name),
		Username:      envOr(db.Env, "POSTGRES_USER", DatabaseUser(p.Name)),
		SSLMode:       "prefer",
	})
	return doc
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func envOr(env map[string]string, key, fallback string) string {
	if v, ok := env[key]; ok && v != "" {
		return v
	}
	return fallback
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
