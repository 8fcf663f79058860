package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-circulation/library"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return cfgPath
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadPartialPolicyKeepsDefaults(t *testing.T) {
	cfgPath := writeConfig(t, `
databasePath: "/var/lib/circ/circ.db"
logLevel: "debug"
policy:
  maxLoans: 10
  pickupWindow: 7
`)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	want := library.DefaultPolicy()
	want.MaxLoans = 10
	want.PickupWindow = 7
	assert.Equal(t, "/var/lib/circ/circ.db", cfg.DatabasePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, want, cfg.Policy)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CIRC_DB_PATH", "/tmp/override.db")
	t.Setenv("CIRC_LOG_LEVEL", "warn")
	t.Setenv("CIRC_MAX_LOANS", "3")
	t.Setenv("CIRC_MAX_RESERVATIONS", "2")

	cfg, err := Load(writeConfig(t, "databasePath: \"from-file.db\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.DatabasePath)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 3, cfg.Policy.MaxLoans)
	assert.Equal(t, 2, cfg.Policy.MaxReservations)
}

func TestLoadRejectsNonNumericEnvLimits(t *testing.T) {
	for _, name := range []string{"CIRC_MAX_LOANS", "CIRC_MAX_RESERVATIONS"} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, "ten")

			_, err := Load(writeConfig(t, "databasePath: \"circ.db\"\n"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "parse "+name)
		})
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "policy: [unterminated\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*FileConfig)
	}{
		{"empty database path", func(c *FileConfig) { c.DatabasePath = " " }},
		{"zero max loans", func(c *FileConfig) { c.Policy.MaxLoans = 0 }},
		{"negative pickup window", func(c *FileConfig) { c.Policy.PickupWindow = -1 }},
		{"zero membership period", func(c *FileConfig) { c.Policy.MembershipPeriod = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}

	assert.NoError(t, validateConfig(Default()))
}
