package marketapi

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid"
	"github.com/rs/zerolog/log"

	"github.com/domino14/curvestock/pkg/curve"
)

// Engine prices and settles trades against the single shared market.
// It holds no per-request state; every call names its account.
type Engine struct {
	store           Store
	startingBalance float64
}

func NewEngine(store Store, startingBalance float64) *Engine {
	if startingBalance <= 0 {
		startingBalance = DefaultStartingBalance
	}
	return &Engine{store: store, startingBalance: startingBalance}
}

func validBudget(b float64) bool {
	return b > 0 && !math.IsInf(b, 1)
}

func domainErr(op string, err error) error {
	if errors.Is(err, curve.ErrDomain) {
		return E(KindDomain, op, err, "curve rejected trade")
	}
	return err
}

// logFailure reports a failed call. Domain errors mean the [0, 1) invariant
// was about to break, so they are loud.
func logFailure(op, accountID string, budget float64, err error) {
	switch KindOf(err) {
	case KindDomain:
		log.Error().Err(err).Str("op", op).Str("accountID", accountID).
			Float64("budget", budget).Msg("consistency-alarm")
	case KindBusy:
		log.Warn().Err(err).Str("op", op).Str("accountID", accountID).Msg("lock-timeout")
	default:
		log.Debug().Err(err).Str("op", op).Str("accountID", accountID).Msg("trade-rejected")
	}
}

// maxFillSteps bounds the ulp walk in fill.
const maxFillSteps = 4

// fill walks s1 back toward s0 one ulp at a time until moving the market
// between them is worth at most limit. It returns the settled s1 and what
// the move is worth, capped at limit, so curve rounding never favors the
// trader.
func fill(s0, s1, limit float64) (float64, float64, error) {
	p0, err := curve.Price(s0)
	if err != nil {
		return 0, 0, err
	}
	for i := 0; ; i++ {
		p1, err := curve.Price(s1)
		if err != nil {
			return 0, 0, err
		}
		worth := math.Abs(p1 - p0)
		if worth <= limit || s1 == s0 || i == maxFillSteps {
			return s1, math.Min(worth, limit), nil
		}
		s1 = math.Nextafter(s1, s0)
	}
}

// settle writes the market and account back and journals the trade.
func settle(ctx context.Context, tx Tx, acct *Account, side Side,
	amount, shares, s1 float64) (*TradeReceipt, error) {

	price, err := curve.Price(s1)
	if err != nil {
		return nil, domainErr(string(side), err)
	}
	if err := tx.SetMarket(ctx, s1); err != nil {
		return nil, err
	}
	if err := tx.SetAccount(ctx, acct); err != nil {
		return nil, err
	}
	receipt := &TradeReceipt{
		Side:              side,
		Amount:            amount,
		SharesTraded:      shares,
		TotalSharesBought: s1,
		Price:             price,
		Balance:           acct.Balance,
		Holdings:          acct.Holdings,
	}
	if shares == 0 {
		return receipt, nil
	}
	trade := &Trade{
		ID:                shortuuid.New(),
		AccountID:         acct.ID,
		Side:              side,
		Amount:            amount,
		Shares:            shares,
		TotalSharesBought: s1,
		Price:             price,
		Date:              time.Now().UTC(),
	}
	if err := tx.RecordTrade(ctx, trade); err != nil {
		return nil, err
	}
	receipt.TradeID = trade.ID
	return receipt, nil
}

// Buy spends up to budget of the account's balance on shares. A budget above
// the balance is reduced to the balance rather than rejected, and one too
// small to move the market at all is InvalidAmount.
func (e *Engine) Buy(ctx context.Context, accountID string, budget float64) (*TradeReceipt, error) {
	const op = "buy"
	if !validBudget(budget) {
		return nil, E(KindInvalidAmount, op, nil, "budget %v must be positive", budget)
	}
	var receipt *TradeReceipt
	err := e.store.InTx(ctx, func(tx Tx) error {
		s0, err := tx.LockMarket(ctx)
		if err != nil {
			return err
		}
		acct, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		spend := math.Min(budget, acct.Balance)
		if spend <= 0 {
			return E(KindInvalidAmount, op, nil, "account %s has no balance to spend", accountID)
		}
		shares, err := curve.BuyWorth(s0, spend)
		if err != nil {
			return domainErr(op, err)
		}
		shares = math.Max(shares, 0)
		s1 := s0 + shares
		if s1 >= 1 {
			return E(KindDomain, op, nil, "total shares bought would reach %v", s1)
		}
		s1, _, err = fill(s0, s1, spend)
		if err != nil {
			return domainErr(op, err)
		}
		shares = s1 - s0
		if shares <= 0 {
			return E(KindInvalidAmount, op, nil, "budget %v buys no shares at %v", spend, s0)
		}
		acct.Balance -= spend
		acct.Holdings += shares
		receipt, err = settle(ctx, tx, acct, SideBuy, spend, shares, s1)
		return err
	})
	if err != nil {
		logFailure(op, accountID, budget, err)
		return nil, err
	}
	log.Debug().Str("accountID", accountID).Float64("amount", receipt.Amount).
		Float64("shares", receipt.SharesTraded).Float64("totalSharesBought", receipt.TotalSharesBought).
		Msg("buy-committed")
	return receipt, nil
}

// Sell liquidates shares worth up to budget and pays what the shares sold
// are worth on the curve. If the holdings are worth less than budget, all
// of them are sold. An account with no holdings gets an empty receipt.
func (e *Engine) Sell(ctx context.Context, accountID string, budget float64) (*TradeReceipt, error) {
	const op = "sell"
	if !validBudget(budget) {
		return nil, E(KindInvalidAmount, op, nil, "budget %v must be positive", budget)
	}
	var receipt *TradeReceipt
	err := e.store.InTx(ctx, func(tx Tx) error {
		s0, err := tx.LockMarket(ctx)
		if err != nil {
			return err
		}
		acct, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		// Holdings can drift above s0 by rounding when one account owns
		// nearly the whole pool.
		sellable := math.Min(acct.Holdings, s0)
		if sellable <= 0 {
			receipt, err = settle(ctx, tx, acct, SideSell, 0, 0, s0)
			return err
		}
		worth, err := curve.Proceeds(s0, sellable)
		if err != nil {
			return domainErr(op, err)
		}

		shares := sellable
		if budget < worth {
			shares, err = curve.SellWorth(s0, budget)
			if err != nil {
				return domainErr(op, err)
			}
			shares = math.Max(math.Min(shares, sellable), 0)
		}
		s1 := s0 - shares
		settled, amount, err := fill(s0, s1, budget)
		if err != nil {
			return domainErr(op, err)
		}
		if settled != s1 || settled == s0 {
			shares, s1 = s0-settled, settled
		}
		if shares <= 0 {
			return E(KindInvalidAmount, op, nil, "budget %v sells no shares at %v", budget, s0)
		}
		if s1 < 0 {
			return E(KindDomain, op, nil, "total shares bought would drop to %v", s1)
		}
		acct.Balance += amount
		acct.Holdings = math.Max(acct.Holdings-shares, 0)
		receipt, err = settle(ctx, tx, acct, SideSell, amount, shares, s1)
		return err
	})
	if err != nil {
		logFailure(op, accountID, budget, err)
		return nil, err
	}
	log.Debug().Str("accountID", accountID).Float64("amount", receipt.Amount).
		Float64("shares", receipt.SharesTraded).Float64("totalSharesBought", receipt.TotalSharesBought).
		Msg("sell-committed")
	return receipt, nil
}

// Snapshot returns the current market and the account's position. It takes
// no locks and may be stale by the time it returns.
func (e *Engine) Snapshot(ctx context.Context, accountID string) (*Snapshot, error) {
	const op = "snapshot"
	s, acct, err := e.store.View(ctx, accountID)
	if err != nil {
		return nil, err
	}
	price, err := curve.Price(s)
	if err != nil {
		err = domainErr(op, err)
		logFailure(op, accountID, 0, err)
		return nil, err
	}
	return &Snapshot{
		AccountID:         acct.ID,
		Username:          acct.Username,
		TotalSharesBought: s,
		Price:             price,
		Balance:           acct.Balance,
		Holdings:          acct.Holdings,
	}, nil
}

// Quote previews how many shares budget buys or sells at the current state
// without touching any account.
func (e *Engine) Quote(ctx context.Context, side Side, budget float64) (*Quote, error) {
	const op = "quote"
	if !validBudget(budget) {
		return nil, E(KindInvalidAmount, op, nil, "budget %v must be positive", budget)
	}
	s0, err := e.store.Market(ctx)
	if err != nil {
		return nil, err
	}
	var shares, s1 float64
	switch side {
	case SideBuy:
		shares, err = curve.BuyWorth(s0, budget)
		s1 = s0 + shares
	case SideSell:
		shares, err = curve.SellWorth(s0, budget)
		s1 = s0 - shares
	default:
		return nil, E(KindInvalidAmount, op, nil, "unknown side %q", side)
	}
	if err != nil {
		return nil, domainErr(op, err)
	}
	price, err := curve.Price(s1)
	if err != nil {
		return nil, domainErr(op, err)
	}
	return &Quote{
		Side:              side,
		Budget:            budget,
		Shares:            shares,
		TotalSharesBought: s1,
		Price:             price,
	}, nil
}

// CreateAccount registers username with the starting balance and no
// holdings, and returns the new account's id.
func (e *Engine) CreateAccount(ctx context.Context, username, credentialHash string) (string, error) {
	acct := &Account{
		ID:             uuid.NewString(),
		Username:       username,
		CredentialHash: credentialHash,
		Balance:        e.startingBalance,
	}
	if err := e.store.CreateAccount(ctx, acct); err != nil {
		return "", err
	}
	log.Info().Str("accountID", acct.ID).Str("username", username).Msg("account-created")
	return acct.ID, nil
}
