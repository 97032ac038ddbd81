package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel        = "info"
	DefaultDriver          = DriverSqlite
	DefaultSqlitePath      = "curvestock.db"
	DefaultLockTimeout     = 5 * time.Second
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 10
	DefaultMinConns        = 2
	DefaultStartingBalance = 1000.0
)

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	if c.Store.Driver == "" {
		c.Store.Driver = DefaultDriver
	}
	if c.Store.SqlitePath == "" {
		c.Store.SqlitePath = DefaultSqlitePath
	}
	if c.Store.LockTimeout == 0 {
		c.Store.LockTimeout = DefaultLockTimeout
	}

	if c.Postgres.Port == 0 {
		c.Postgres.Port = DefaultDBPort
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = DefaultDBSSLMode
	}
	if c.Postgres.MaxConns == 0 {
		c.Postgres.MaxConns = DefaultMaxConns
	}
	if c.Postgres.MinConns == 0 {
		c.Postgres.MinConns = DefaultMinConns
	}

	// initial_shares defaults to 0, the zero value.
	if c.Market.StartingBalance == 0 {
		c.Market.StartingBalance = DefaultStartingBalance
	}
}

// Default returns a config with every default applied, for running without
// a config file.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}
