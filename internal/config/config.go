// Package config loads sudokuserver's configuration from an optional YAML
// file, then applies command-line flag overrides on top. This two-layer
// shape — a single structured file, flags as the override mechanism — is
// grounded on the teacher pack's bureau config loader, widened here from
// its environment-override sections to a flat set of server settings.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config is the complete, resolved configuration for one sudokuserver
// process.
type Config struct {
	// Addr is the address the HTTP server listens on, e.g. ":8080".
	Addr string `yaml:"addr"`

	// DatabaseDSN is the Postgres connection string for the rooms table.
	DatabaseDSN string `yaml:"database_dsn"`

	// FlushInterval is how often the persistence loop visits resident
	// rooms to save dirty boards and reap idle ones.
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Default returns the configuration used when no file and no flags
// override anything.
func Default() Config {
	return Config{
		Addr:          ":8080",
		DatabaseDSN:   "",
		FlushInterval: 5 * time.Second,
	}
}

// Load reads path (if non-empty) as a YAML file on top of Default, then
// applies overrides from args (typically os.Args[1:]). Flags take
// precedence over the file, and the file takes precedence over the
// built-in defaults.
func Load(path string, args []string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	fs := pflag.NewFlagSet("sudokuserver", pflag.ContinueOnError)
	addr := fs.String("addr", cfg.Addr, "address to listen on")
	dsn := fs.String("database-dsn", cfg.DatabaseDSN, "Postgres connection string")
	flushInterval := fs.Duration("flush-interval", cfg.FlushInterval, "persistence flush interval")
	fs.String("config", path, "accepted but not used: the YAML file read is the path argument given to Load")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("config: parsing flags: %w", err)
	}

	cfg.Addr = *addr
	cfg.DatabaseDSN = *dsn
	cfg.FlushInterval = *flushInterval

	return cfg, nil
}
