package workspace

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Connection holds what a developer needs to reach the workspace database
// from the host.
type Connection struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Database   string `json:"database"`
	User       string `json:"user"`
	Password   string `json:"password"`
	PgAdminURL string `json:"pgadmin_url,omitempty"`
}

// DSN returns a libpq key/value connection string. Every value is quoted.
func (c Connection) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		dsnQuote(c.Host), c.Port, dsnQuote(c.User), dsnQuote(c.Password), dsnQuote(c.Database))
}

var dsnEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func dsnQuote(v string) string {
	return "'" + dsnEscaper.Replace(v) + "'"
}

// URL returns the postgres:// form of the connection.
func (c Connection) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Vars renders the connection as environment variables.
func (c Connection) Vars() map[string]string {
	vars := map[string]string{
		"DB_HOST":      c.Host,
		"DB_PORT":      strconv.Itoa(c.Port),
		"DB_NAME":      c.Database,
		"DB_USER":      c.User,
		"DB_PASSWORD":  c.Password,
		"DATABASE_URL": c.URL(),
	}
	if c.PgAdminURL != "" {
		vars["PGADMIN_URL"] = c.PgAdminURL
	}
	return vars
}

func (p *Plan) connection(dbPort, adminPort int) Connection {
	db, _ := p.Resource(PostgresName(p.Name))
	c := Connection{
		Host:     "localhost",
		Port:     dbPort,
		Database: envOr(db.Env, "POSTGRES_DB", p.Name),
		User:     envOr(db.Env, "POSTGRES_USER", DatabaseUser(p.Name)),
		Password: envOr(db.Env, "POSTGRES_PASSWORD", p.Settings.Password),
	}
	if adminPort > 0 {
		c.PgAdminURL = fmt.Sprintf("http://localhost:%d", adminPort)
	}
	return c
}
