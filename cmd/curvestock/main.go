package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/domino14/curvestock/pkg/config"
	"github.com/domino14/curvestock/pkg/marketapi"
	"github.com/domino14/curvestock/pkg/memstore"
	"github.com/domino14/curvestock/pkg/pgstore"
	"github.com/domino14/curvestock/pkg/sqlitestore"
)

const usage = `usage: curvestock [-config path] <command> [flags]

commands:
  migrate                               bring the schema up to date
  register -username u -credential-hash h
  buy      -account id -budget b
  sell     -account id -budget b
  look     -account id
  quote    -side buy|sell -budget b
  simulate -accounts n -budget b        concurrent buys from fresh accounts
`

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadAndValidate(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("config", *configPath).Msg("config-load-failed")
		}
	}
	setupLogging(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("store-open-failed")
	}
	defer store.Close()

	engine := marketapi.NewEngine(store, cfg.Market.StartingBalance)
	out, err := run(ctx, engine, flag.Arg(0), flag.Args()[1:])
	if err != nil {
		fail(err)
	}
	if out != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			log.Fatal().Err(err).Msg("encode-failed")
		}
	}
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// openStore migrates the configured backend and seeds the market row.
func openStore(ctx context.Context, cfg *config.Config) (marketapi.Store, error) {
	var store marketapi.Store
	switch cfg.Store.Driver {
	case config.DriverSqlite:
		if err := sqlitestore.EnsureMigrations(cfg.Store.SqlitePath); err != nil {
			return nil, err
		}
		s, err := sqlitestore.NewSqliteStore(cfg.Store.SqlitePath, cfg.Store.LockTimeout)
		if err != nil {
			return nil, err
		}
		store = s
	case config.DriverPostgres:
		if err := pgstore.EnsureMigrations(pgstore.BuildConnString(cfg.Postgres)); err != nil {
			return nil, err
		}
		pool, err := pgstore.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		store = pgstore.New(pool, cfg.Store.LockTimeout)
	case config.DriverMemory:
		store = memstore.New(cfg.Store.LockTimeout)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err := store.EnsureMarket(ctx, cfg.Market.InitialShares); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

type failure struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeFailure(w io.Writer, err error) error {
	return json.NewEncoder(w).Encode(failure{Error: err.Error(), Kind: marketapi.KindOf(err).String()})
}

func fail(err error) {
	if encErr := writeFailure(os.Stdout, err); encErr != nil {
		log.Err(encErr).Str("failure", err.Error()).Msg("encode-failed")
	}
	os.Exit(1)
}
