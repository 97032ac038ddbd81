package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/domino14/curvestock/pkg/marketapi"
)

// SqliteStore implements marketapi.Store. Every transaction starts with
// BEGIN IMMEDIATE, which takes the database write lock up front, so trades
// are serialized before they read the market.
type SqliteStore struct {
	db *sql.DB
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func dsn(dbPath string, lockTimeout time.Duration) string {
	return fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on",
		dbPath, lockTimeout.Milliseconds())
}

// NewSqliteStore opens the database at dbPath. Waiting for the write lock
// is bounded by lockTimeout, after which transactions fail with KindBusy.
// The schema must already be migrated; see EnsureMigrations.
func NewSqliteStore(dbPath string, lockTimeout time.Duration) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath, lockTimeout))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{db: db}, nil
}

// translate maps driver errors onto marketapi kinds.
func translate(op string, err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch {
		case serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked:
			return marketapi.E(marketapi.KindBusy, op, err, "database lock not acquired")
		case serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return marketapi.E(marketapi.KindConflict, op, err, "duplicate key")
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return marketapi.E(marketapi.KindBusy, op, err, "deadline exceeded")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *SqliteStore) InTx(ctx context.Context, fn func(tx marketapi.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate("begin", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate("commit", err)
	}
	return nil
}

func (s *SqliteStore) View(ctx context.Context, accountID string) (float64, *marketapi.Account, error) {
	shares, err := marketRow(ctx, s.db, "view")
	if err != nil {
		return 0, nil, err
	}
	acct := &marketapi.Account{}
	err = s.db.QueryRowContext(ctx, `
		SELECT id, username, credential_hash, balance, holdings
		FROM accounts WHERE id = ?`, accountID).Scan(
		&acct.ID, &acct.Username, &acct.CredentialHash, &acct.Balance, &acct.Holdings)
	if err == sql.ErrNoRows {
		return 0, nil, marketapi.E(marketapi.KindNotFound, "view", nil, "account %s not found", accountID)
	}
	if err != nil {
		return 0, nil, translate("view", err)
	}
	return shares, acct, nil
}

func (s *SqliteStore) Market(ctx context.Context) (float64, error) {
	return marketRow(ctx, s.db, "market")
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func marketRow(ctx context.Context, q queryer, op string) (float64, error) {
	var shares float64
	err := q.QueryRowContext(ctx, `SELECT total_shares_bought FROM market WHERE id = 1`).Scan(&shares)
	if err == sql.ErrNoRows {
		return 0, marketapi.E(marketapi.KindNotFound, op, nil, "market not initialized")
	}
	if err != nil {
		return 0, translate(op, err)
	}
	return shares, nil
}

func (s *SqliteStore) CreateAccount(ctx context.Context, acct *marketapi.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, credential_hash, balance, holdings, date_created)
		VALUES (?, ?, ?, ?, ?, ?)`,
		acct.ID, acct.Username, acct.CredentialHash, acct.Balance, acct.Holdings, now())
	if err != nil {
		err = translate("create account", err)
		if marketapi.KindOf(err) == marketapi.KindConflict {
			return marketapi.E(marketapi.KindConflict, "create account", nil, "username %q already taken", acct.Username)
		}
		return err
	}
	return nil
}

func (s *SqliteStore) EnsureMarket(ctx context.Context, initial float64) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO market (id, total_shares_bought) VALUES (1, ?)
		ON CONFLICT (id) DO NOTHING`, initial)
	if err != nil {
		return translate("ensure market", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Info().Float64("totalSharesBought", initial).Msg("market-seeded")
	}
	return nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	tx *sql.Tx
}

// LockMarket is a plain read: BEGIN IMMEDIATE already holds the write lock.
func (t *sqliteTx) LockMarket(ctx context.Context) (float64, error) {
	return marketRow(ctx, t.tx, "lock market")
}

func (t *sqliteTx) SetMarket(ctx context.Context, shares float64) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE market SET total_shares_bought = ? WHERE id = 1`, shares)
	if err != nil {
		return translate("set market", err)
	}
	return nil
}

func (t *sqliteTx) LockAccount(ctx context.Context, id string) (*marketapi.Account, error) {
	acct := &marketapi.Account{}
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, username, credential_hash, balance, holdings
		FROM accounts WHERE id = ?`, id).Scan(
		&acct.ID, &acct.Username, &acct.CredentialHash, &acct.Balance, &acct.Holdings)
	if err == sql.ErrNoRows {
		return nil, marketapi.E(marketapi.KindNotFound, "lock account", nil, "account %s not found", id)
	}
	if err != nil {
		return nil, translate("lock account", err)
	}
	return acct, nil
}

func (t *sqliteTx) SetAccount(ctx context.Context, acct *marketapi.Account) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = ?, holdings = ?
		WHERE id = ?`, acct.Balance, acct.Holdings, acct.ID)
	if err != nil {
		return translate("set account", err)
	}
	return nil
}

func (t *sqliteTx) RecordTrade(ctx context.Context, trade *marketapi.Trade) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO trades (id, account_id, side, amount, shares, total_shares_bought, price, date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.AccountID, string(trade.Side), trade.Amount, trade.Shares,
		trade.TotalSharesBought, trade.Price, trade.Date.Format(time.RFC3339Nano))
	if err != nil {
		return translate("record trade", err)
	}
	return nil
}
