package marketapi

import (
	"context"
	"time"
)

// DefaultStartingBalance is the balance of a freshly registered account.
const DefaultStartingBalance = 1000.0

// Account is one user's cash and fractional share count.
type Account struct {
	ID             string
	Username       string
	CredentialHash string
	Balance        float64
	Holdings       float64
}

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is a committed trade as written to the journal.
type Trade struct {
	ID                string
	AccountID         string
	Side              Side
	Amount            float64
	Shares            float64
	TotalSharesBought float64
	Price             float64
	Date              time.Time
}

// TradeReceipt is returned to the caller of Buy and Sell. It is not stored.
type TradeReceipt struct {
	TradeID           string  `json:"tradeId,omitempty"`
	Side              Side    `json:"side"`
	Amount            float64 `json:"amount"`
	SharesTraded      float64 `json:"sharesTraded"`
	TotalSharesBought float64 `json:"totalSharesBought"`
	Price             float64 `json:"price"`
	Balance           float64 `json:"balance"`
	Holdings          float64 `json:"holdings"`
}

// Snapshot is a read-only view of the market and one account.
type Snapshot struct {
	AccountID         string  `json:"accountId"`
	Username          string  `json:"username"`
	TotalSharesBought float64 `json:"totalSharesBought"`
	Price             float64 `json:"price"`
	Balance           float64 `json:"balance"`
	Holdings          float64 `json:"holdings"`
}

// Quote previews a trade at the current market state.
type Quote struct {
	Side              Side    `json:"side"`
	Budget            float64 `json:"budget"`
	Shares            float64 `json:"shares"`
	TotalSharesBought float64 `json:"totalSharesBought"`
	Price             float64 `json:"price"`
}

// Store persists the market row and the accounts.
type Store interface {
	// InTx runs fn in a single transaction. The transaction commits only
	// if fn returns nil; any error or panic rolls it back. Failing to take
	// the locks within the store's lock timeout yields a KindBusy error.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// View reads the market scalar and one account without locking.
	View(ctx context.Context, accountID string) (float64, *Account, error)
	// Market reads the market scalar without locking.
	Market(ctx context.Context) (float64, error)
	// CreateAccount inserts a new account. A taken username yields
	// KindConflict.
	CreateAccount(ctx context.Context, acct *Account) error
	// EnsureMarket inserts the market row with the given value unless it
	// already exists.
	EnsureMarket(ctx context.Context, initial float64) error
	Close() error
}

// Tx is the view of the store inside InTx. Lock methods must be called
// market first, then account.
type Tx interface {
	LockMarket(ctx context.Context) (float64, error)
	SetMarket(ctx context.Context, s float64) error
	LockAccount(ctx context.Context, id string) (*Account, error)
	SetAccount(ctx context.Context, acct *Account) error
	RecordTrade(ctx context.Context, trade *Trade) error
}
