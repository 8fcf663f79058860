package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"library-circulation/library"
)

// ConfigPath is read when no path is given.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	DatabasePath string         `yaml:"databasePath"`
	LogLevel     string         `yaml:"logLevel"`
	Policy       library.Policy `yaml:"policy"`
}

// Default returns the configuration used when no file exists.
func Default() FileConfig {
	return FileConfig{
		DatabasePath: "data/circulation.db",
		LogLevel:     "info",
		Policy:       library.DefaultPolicy(),
	}
}

// Load reads config from path (defaults to config.yaml). A missing file
// leaves the defaults in place; fields absent from the file keep theirs.
func Load(path string) (FileConfig, error) {
	cfg := Default()
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	// Override with environment variables
	if v := os.Getenv("CIRC_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("CIRC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if err := envInt("CIRC_MAX_LOANS", &cfg.Policy.MaxLoans); err != nil {
		return cfg, err
	}
	if err := envInt("CIRC_MAX_RESERVATIONS", &cfg.Policy.MaxReservations); err != nil {
		return cfg, err
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// envInt overrides dst with the named variable when it is set.
func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = n
	return nil
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return errors.New("config: databasePath is required (set in config.yaml or CIRC_DB_PATH)")
	}
	p := cfg.Policy
	periods := []struct {
		name  string
		value int
	}{
		{"membershipPeriod", p.MembershipPeriod},
		{"standardBorrowPeriod", p.StandardBorrowPeriod},
		{"staffBorrowPeriod", p.StaffBorrowPeriod},
		{"renewalWindow", p.RenewalWindow},
		{"reservationValidity", p.ReservationValidity},
		{"pickupWindow", p.PickupWindow},
		{"maxLoans", p.MaxLoans},
		{"maxRenewals", p.MaxRenewals},
		{"maxReservations", p.MaxReservations},
	}
	for _, f := range periods {
		if f.value <= 0 {
			return fmt.Errorf("config: policy.%s must be > 0", f.name)
		}
	}
	return nil
}
