package config

import "time"

// Store drivers.
const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the root configuration.
type Config struct {
	Log      LogConfig    `yaml:"log"`
	Store    StoreConfig  `yaml:"store"`
	Postgres DBConfig     `yaml:"postgres"`
	Market   MarketConfig `yaml:"market"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"` // console writer instead of JSON
}

// StoreConfig selects where the market and accounts live.
type StoreConfig struct {
	Driver      string        `yaml:"driver"`
	SqlitePath  string        `yaml:"sqlite_path"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// DBConfig holds a single PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MarketConfig holds the values new state is created with.
type MarketConfig struct {
	InitialShares   float64 `yaml:"initial_shares"`
	StartingBalance float64 `yaml:"starting_balance"`
}
