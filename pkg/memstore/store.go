// Package memstore keeps the market and accounts in process memory.
//
// A single-slot lock serializes transactions. Writes made inside a
// transaction are staged and only become visible when it commits.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/domino14/curvestock/pkg/marketapi"
)

type MemStore struct {
	lockTimeout time.Duration
	sem         chan struct{}

	// mu guards the committed state below for readers outside a transaction.
	mu        sync.RWMutex
	market    float64
	hasMarket bool
	accounts  map[string]marketapi.Account
	usernames map[string]string
	trades    []marketapi.Trade
}

// New returns an empty store. lockTimeout bounds how long InTx waits for
// the transaction lock; zero means wait until ctx is done.
func New(lockTimeout time.Duration) *MemStore {
	return &MemStore{
		lockTimeout: lockTimeout,
		sem:         make(chan struct{}, 1),
		accounts:    map[string]marketapi.Account{},
		usernames:   map[string]string{},
	}
}

func (s *MemStore) acquire(ctx context.Context) error {
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return marketapi.E(marketapi.KindBusy, "begin", ctx.Err(), "transaction lock not acquired")
		}
		return ctx.Err()
	}
}

func (s *MemStore) InTx(ctx context.Context, fn func(tx marketapi.Tx) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-s.sem }()

	tx := &memTx{st: s, accounts: map[string]*marketapi.Account{}}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemStore) View(ctx context.Context, accountID string) (float64, *marketapi.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasMarket {
		return 0, nil, errNoMarket("view")
	}
	acct, ok := s.accounts[accountID]
	if !ok {
		return 0, nil, errNoAccount("view", accountID)
	}
	return s.market, &acct, nil
}

func (s *MemStore) Market(ctx context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasMarket {
		return 0, errNoMarket("market")
	}
	return s.market, nil
}

func (s *MemStore) CreateAccount(ctx context.Context, acct *marketapi.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usernames[acct.Username]; ok {
		return marketapi.E(marketapi.KindConflict, "create account", nil, "username %q already taken", acct.Username)
	}
	if _, ok := s.accounts[acct.ID]; ok {
		return marketapi.E(marketapi.KindConflict, "create account", nil, "account %s already exists", acct.ID)
	}
	s.accounts[acct.ID] = *acct
	s.usernames[acct.Username] = acct.ID
	return nil
}

func (s *MemStore) EnsureMarket(ctx context.Context, initial float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasMarket {
		s.market = initial
		s.hasMarket = true
	}
	return nil
}

// Trades returns a copy of the trade journal.
func (s *MemStore) Trades() []marketapi.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]marketapi.Trade(nil), s.trades...)
}

func (s *MemStore) Close() error {
	return nil
}

func errNoMarket(op string) error {
	return marketapi.E(marketapi.KindNotFound, op, nil, "market not initialized")
}

func errNoAccount(op, id string) error {
	return marketapi.E(marketapi.KindNotFound, op, nil, "account %s not found", id)
}

type memTx struct {
	st       *MemStore
	market   *float64
	accounts map[string]*marketapi.Account
	trades   []marketapi.Trade
}

func (t *memTx) LockMarket(ctx context.Context) (float64, error) {
	if t.market != nil {
		return *t.market, nil
	}
	return t.st.Market(ctx)
}

func (t *memTx) SetMarket(ctx context.Context, v float64) error {
	if !(v >= 0 && v < 1) {
		return fmt.Errorf("set market: %v outside [0, 1)", v)
	}
	t.market = &v
	return nil
}

func (t *memTx) LockAccount(ctx context.Context, id string) (*marketapi.Account, error) {
	if acct, ok := t.accounts[id]; ok {
		cp := *acct
		return &cp, nil
	}
	t.st.mu.RLock()
	acct, ok := t.st.accounts[id]
	t.st.mu.RUnlock()
	if !ok {
		return nil, errNoAccount("lock account", id)
	}
	return &acct, nil
}

func (t *memTx) SetAccount(ctx context.Context, acct *marketapi.Account) error {
	if acct.Balance < 0 || acct.Holdings < 0 {
		return fmt.Errorf("set account %s: negative balance or holdings", acct.ID)
	}
	cp := *acct
	t.accounts[acct.ID] = &cp
	return nil
}

func (t *memTx) RecordTrade(ctx context.Context, trade *marketapi.Trade) error {
	t.trades = append(t.trades, *trade)
	return nil
}

func (t *memTx) commit() {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if t.market != nil {
		t.st.market = *t.market
	}
	for id, acct := range t.accounts {
		t.st.accounts[id] = *acct
	}
	t.st.trades = append(t.st.trades, t.trades...)
}
