package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/domino14/curvestock/pkg/config"
	"github.com/domino14/curvestock/pkg/marketapi"
)

// SQLSTATE codes mapped onto marketapi kinds.
const (
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeUniqueViolation      = "23505"
)

type PgStore struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// New wraps an open pool. Row lock waits inside InTx are bounded by
// lockTimeout.
func New(pool *pgxpool.Pool, lockTimeout time.Duration) *PgStore {
	return &PgStore{pool: pool, lockTimeout: lockTimeout}
}

// Connect creates a connection pool from config.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	return ConnectString(ctx, BuildConnString(cfg), cfg.MinConns, cfg.MaxConns)
}

// ConnectString creates a connection pool from a connection string.
func ConnectString(ctx context.Context, connStr string, minConns, maxConns int) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if minConns > 0 {
		poolCfg.MinConns = int32(minConns)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

func translate(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeDeadlockDetected, codeSerializationFailure:
			return marketapi.E(marketapi.KindBusy, op, err, "row lock not acquired")
		case codeUniqueViolation:
			return marketapi.E(marketapi.KindConflict, op, err, "duplicate key")
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return marketapi.E(marketapi.KindBusy, op, err, "deadline exceeded")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *PgStore) InTx(ctx context.Context, fn func(tx marketapi.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return translate("begin", err)
	}
	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`,
			fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())); err != nil {
			return translate("set lock timeout", err)
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translate("commit", err)
	}
	return nil
}

func (s *PgStore) View(ctx context.Context, accountID string) (float64, *marketapi.Account, error) {
	shares, err := s.market(ctx, "view")
	if err != nil {
		return 0, nil, err
	}
	acct := &marketapi.Account{}
	err = s.pool.QueryRow(ctx, `
		SELECT id, username, credential_hash, balance, holdings
		FROM accounts WHERE id = $1`, accountID).Scan(
		&acct.ID, &acct.Username, &acct.CredentialHash, &acct.Balance, &acct.Holdings)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, marketapi.E(marketapi.KindNotFound, "view", nil, "account %s not found", accountID)
	}
	if err != nil {
		return 0, nil, translate("view", err)
	}
	return shares, acct, nil
}

func (s *PgStore) Market(ctx context.Context) (float64, error) {
	return s.market(ctx, "market")
}

func (s *PgStore) market(ctx context.Context, op string) (float64, error) {
	var shares float64
	err := s.pool.QueryRow(ctx, `SELECT total_shares_bought FROM market WHERE id = 1`).Scan(&shares)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, marketapi.E(marketapi.KindNotFound, op, nil, "market not initialized")
	}
	if err != nil {
		return 0, translate(op, err)
	}
	return shares, nil
}

func (s *PgStore) CreateAccount(ctx context.Context, acct *marketapi.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, username, credential_hash, balance, holdings)
		VALUES ($1, $2, $3, $4, $5)`,
		acct.ID, acct.Username, acct.CredentialHash, acct.Balance, acct.Holdings)
	if err != nil {
		err = translate("create account", err)
		if marketapi.KindOf(err) == marketapi.KindConflict {
			return marketapi.E(marketapi.KindConflict, "create account", nil, "username %q already taken", acct.Username)
		}
		return err
	}
	return nil
}

func (s *PgStore) EnsureMarket(ctx context.Context, initial float64) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO market (id, total_shares_bought) VALUES (1, $1)
		ON CONFLICT (id) DO NOTHING`, initial)
	if err != nil {
		return translate("ensure market", err)
	}
	if tag.RowsAffected() > 0 {
		log.Info().Float64("totalSharesBought", initial).Msg("market-seeded")
	}
	return nil
}

func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockMarket(ctx context.Context) (float64, error) {
	var shares float64
	err := t.tx.QueryRow(ctx, `
		SELECT total_shares_bought FROM market WHERE id = 1
		FOR UPDATE`).Scan(&shares)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, marketapi.E(marketapi.KindNotFound, "lock market", nil, "market not initialized")
	}
	if err != nil {
		return 0, translate("lock market", err)
	}
	return shares, nil
}

func (t *pgTx) SetMarket(ctx context.Context, shares float64) error {
	if _, err := t.tx.Exec(ctx, `UPDATE market SET total_shares_bought = $1 WHERE id = 1`, shares); err != nil {
		return translate("set market", err)
	}
	return nil
}

func (t *pgTx) LockAccount(ctx context.Context, id string) (*marketapi.Account, error) {
	acct := &marketapi.Account{}
	err := t.tx.QueryRow(ctx, `
		SELECT id, username, credential_hash, balance, holdings
		FROM accounts WHERE id = $1
		FOR UPDATE`, id).Scan(
		&acct.ID, &acct.Username, &acct.CredentialHash, &acct.Balance, &acct.Holdings)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, marketapi.E(marketapi.KindNotFound, "lock account", nil, "account %s not found", id)
	}
	if err != nil {
		return nil, translate("lock account", err)
	}
	return acct, nil
}

func (t *pgTx) SetAccount(ctx context.Context, acct *marketapi.Account) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE accounts
		SET balance = $1, holdings = $2
		WHERE id = $3`, acct.Balance, acct.Holdings, acct.ID)
	if err != nil {
		return translate("set account", err)
	}
	return nil
}

func (t *pgTx) RecordTrade(ctx context.Context, trade *marketapi.Trade) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO trades (id, account_id, side, amount, shares, total_shares_bought, price, date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		trade.ID, trade.AccountID, string(trade.Side), trade.Amount, trade.Shares,
		trade.TotalSharesBought, trade.Price, trade.Date)
	if err != nil {
		return translate("record trade", err)
	}
	return nil
}
