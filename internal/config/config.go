package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the settings of a blitz invocation.
type Config struct {
	WorkspaceRoot string

	PostgresImage string
	PostgresPort  int
	PgAdminImage  string
	PgAdminPort   int

	Email    string
	Password string

	Timeout   time.Duration
	Interval  time.Duration
	ScanLimit int

	DockerHost string
	APIAddr    string
	LogLevel   string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workspace.root", ".")
	v.SetDefault("postgres.image", "postgres:latest")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("pgadmin.image", "dpage/pgadmin4")
	v.SetDefault("pgadmin.port", 5050)
	v.SetDefault("credentials.email", "admin@example.com")
	v.SetDefault("credentials.password", "0101")
	v.SetDefault("provision.timeout", 60*time.Second)
	v.SetDefault("provision.interval", time.Second)
	v.SetDefault("ports.scan_limit", 100)
	v.SetDefault("docker.host", "")
	v.SetDefault("api.addr", ":3000")
	v.SetDefault("log.level", "info")
}

// New returns a viper instance with defaults, BLITZ_* environment bindings
// and the blitz.yaml search path configured.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("blitz")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("blitz")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.blitz")
	v.AddConfigPath(".")
	return v
}

// Load reads the optional config file (or file, when non-empty) into v and
// decodes the result. A missing default config file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		WorkspaceRoot: v.GetString("workspace.root"),
		PostgresImage: v.GetString("postgres.image"),
		PostgresPort:  v.GetInt("postgres.port"),
		PgAdminImage:  v.GetString("pgadmin.image"),
		PgAdminPort:   v.GetInt("pgadmin.port"),
		Email:         v.GetString("credentials.email"),
		Password:      v.GetString("credentials.password"),
		Timeout:       v.GetDuration("provision.timeout"),
		Interval:      v.GetDuration("provision.interval"),
		ScanLimit:     v.GetInt("ports.scan_limit"),
		DockerHost:    v.GetString("docker.host"),
		APIAddr:       v.GetString("api.addr"),
		LogLevel:      v.GetString("log.level"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	for _, p := range []struct {
		name string
		port int
	}{
		{"postgres.port", c.PostgresPort},
		{"pgadmin.port", c.PgAdminPort},
	} {
		if p.port <= 0 || p.port > 65535 {
			errs = append(errs, fmt.Errorf("%s: %d is not a valid port", p.name, p.port))
		}
	}
	if c.Interval <= 0 {
		errs = append(errs, errors.New("provision.interval must be positive"))
	}
	if c.Timeout < c.Interval {
		errs = append(errs, fmt.Errorf("provision.timeout (%s) is shorter than provision.interval (%s)", c.Timeout, c.Interval))
	}
	if c.ScanLimit <= 0 {
		errs = append(errs, errors.New("ports.scan_limit must be positive"))
	}
	if c.Password == "" {
		errs = append(errs, errors.New("credentials.password is empty"))
	}
	return errors.Join(errs...)
}
