package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
log:
  level: debug
  pretty: true
store:
  driver: postgres
  lock_timeout: 250ms
postgres:
  host: localhost
  port: 5433
  name: curvestock
  user: trader
  password: testpass
market:
  initial_shares: 0.001
  starting_balance: 500
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "debug" || !cfg.Log.Pretty {
		t.Errorf("Log = %+v, want debug/pretty", cfg.Log)
	}
	if cfg.Store.Driver != DriverPostgres {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, DriverPostgres)
	}
	if cfg.Store.LockTimeout != 250*time.Millisecond {
		t.Errorf("Store.LockTimeout = %v, want %v", cfg.Store.LockTimeout, 250*time.Millisecond)
	}
	if cfg.Postgres.Port != 5433 {
		t.Errorf("Postgres.Port = %d, want %d", cfg.Postgres.Port, 5433)
	}
	if cfg.Market.InitialShares != 0.001 {
		t.Errorf("Market.InitialShares = %v, want %v", cfg.Market.InitialShares, 0.001)
	}
	if cfg.Market.StartingBalance != 500 {
		t.Errorf("Market.StartingBalance = %v, want %v", cfg.Market.StartingBalance, 500.0)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
store:
  driver: postgres
postgres:
  host: localhost
  name: curvestock
  user: trader
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Postgres.Password != "secret123" {
		t.Errorf("Postgres.Password = %q, want %q", cfg.Postgres.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "log:\n  level: warn\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
	if cfg.Store.Driver != DefaultDriver {
		t.Errorf("Store.Driver = %q, want default %q", cfg.Store.Driver, DefaultDriver)
	}
	if cfg.Store.SqlitePath != DefaultSqlitePath {
		t.Errorf("Store.SqlitePath = %q, want default %q", cfg.Store.SqlitePath, DefaultSqlitePath)
	}
	if cfg.Store.LockTimeout != DefaultLockTimeout {
		t.Errorf("Store.LockTimeout = %v, want default %v", cfg.Store.LockTimeout, DefaultLockTimeout)
	}
	if cfg.Postgres.Port != DefaultDBPort {
		t.Errorf("Postgres.Port = %d, want default %d", cfg.Postgres.Port, DefaultDBPort)
	}
	if cfg.Market.InitialShares != 0 {
		t.Errorf("Market.InitialShares = %v, want 0", cfg.Market.InitialShares)
	}
	if cfg.Market.StartingBalance != DefaultStartingBalance {
		t.Errorf("Market.StartingBalance = %v, want default %v", cfg.Market.StartingBalance, DefaultStartingBalance)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.HasPrefix(err.Error(), "read config file") {
		t.Errorf("Load() error = %v, want read config file error", err)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeTempFile(t, "market:\n  initial_share: 0.5\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "initial_share") {
		t.Errorf("Load() error = %v, want unknown field error naming initial_share", err)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeTempFile(t, "")
	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Store.Driver != DefaultDriver {
		t.Errorf("Store.Driver = %q, want default %q", cfg.Store.Driver, DefaultDriver)
	}
}

func TestLoadAndValidateRejects(t *testing.T) {
	path := writeTempFile(t, "market:\n  initial_shares: 1\n")
	_, err := LoadAndValidate(path)
	want := "validate config: market.initial_shares must be in [0, 1), got 1"
	if err == nil || err.Error() != want {
		t.Errorf("LoadAndValidate() error = %v, want %q", err, want)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return *Default()
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "defaults",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: `log.level must be one of trace, debug, info, warn, error, got "loud"`,
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Store.Driver = "mysql" },
			wantErr: `store.driver must be sqlite, postgres or memory, got "mysql"`,
		},
		{
			name:    "missing postgres host",
			mutate:  func(c *Config) { c.Store.Driver = DriverPostgres },
			wantErr: "postgres.host is required",
		},
		{
			name: "missing postgres password",
			mutate: func(c *Config) {
				c.Store.Driver = DriverPostgres
				c.Postgres.Host, c.Postgres.Name, c.Postgres.User = "localhost", "db", "user"
			},
			wantErr: "postgres.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Store.Driver = DriverPostgres
				c.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "memory driver ignores postgres",
			mutate:  func(c *Config) { c.Store.Driver = DriverMemory },
			wantErr: "",
		},
		{
			name:    "negative lock timeout",
			mutate:  func(c *Config) { c.Store.LockTimeout = -time.Second },
			wantErr: "store.lock_timeout must be positive",
		},
		{
			name:    "negative initial shares",
			mutate:  func(c *Config) { c.Market.InitialShares = -0.1 },
			wantErr: "market.initial_shares must be in [0, 1), got -0.1",
		},
		{
			name:    "negative starting balance",
			mutate:  func(c *Config) { c.Market.StartingBalance = -5 },
			wantErr: "market.starting_balance must be positive, got -5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
