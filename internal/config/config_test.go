package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	require.Equal(t, 5432, cfg.PostgresPort)
	require.Equal(t, 5050, cfg.PgAdminPort)
	require.Equal(t, "postgres:latest", cfg.PostgresImage)
	require.Equal(t, "dpage/pgadmin4", cfg.PgAdminImage)
	require.Equal(t, 60*time.Second, cfg.Timeout)
	require.Equal(t, time.Second, cfg.Interval)
	require.Equal(t, 100, cfg.ScanLimit)
	require.Equal(t, ":3000", cfg.APIAddr)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BLITZ_POSTGRES_PORT", "6543")
	t.Setenv("BLITZ_PROVISION_TIMEOUT", "90s")
	t.Setenv("BLITZ_CREDENTIALS_EMAIL", "dev@example.com")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	require.Equal(t, 6543, cfg.PostgresPort)
	require.Equal(t, 90*time.Second, cfg.Timeout)
	require.Equal(t, "dev@example.com", cfg.Email)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "blitz.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
workspace:
  root: /tmp/workspaces
pgadmin:
  port: 8080
provision:
  interval: 2s
`), 0o644))

	cfg, err := Load(New(), file)
	require.NoError(t, err)
	require.Equal(t, "/tmp/workspaces", cfg.WorkspaceRoot)
	require.Equal(t, 8080, cfg.PgAdminPort)
	require.Equal(t, 2*time.Second, cfg.Interval)
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BLITZ_PGADMIN_PORT", "70000")
	t.Setenv("BLITZ_PROVISION_TIMEOUT", "100ms")

	_, err := Load(New(), "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "pgadmin.port")
	require.Contains(t, err.Error(), "provision.timeout")
}

func TestValidateReportsPortsInOrder(t *testing.T) {
	cfg := &Config{
		PostgresPort: 0,
		PgAdminPort:  70000,
		Timeout:      time.Minute,
		Interval:     time.Second,
		ScanLimit:    100,
		Password:     "0101",
	}
	for range 5 {
		err := cfg.Validate()
		require.Error(t, err)
		require.Equal(t, "postgres.port: 0 is not a valid port\npgadmin.port: 70000 is not a valid port", err.Error())
	}
}
