package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of trace, debug, info, warn, error, got %q", c.Log.Level)
	}

	switch c.Store.Driver {
	case DriverSqlite:
		if c.Store.SqlitePath == "" {
			return errors.New("store.sqlite_path is required")
		}
	case DriverPostgres:
		if err := c.Postgres.validate("postgres"); err != nil {
			return err
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver must be sqlite, postgres or memory, got %q", c.Store.Driver)
	}
	if c.Store.LockTimeout <= 0 {
		return errors.New("store.lock_timeout must be positive")
	}

	if !(c.Market.InitialShares >= 0 && c.Market.InitialShares < 1) {
		return fmt.Errorf("market.initial_shares must be in [0, 1), got %v", c.Market.InitialShares)
	}
	if !(c.Market.StartingBalance > 0) {
		return fmt.Errorf("market.starting_balance must be positive, got %v", c.Market.StartingBalance)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
