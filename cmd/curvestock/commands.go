package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"

	"github.com/lithammer/shortuuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/domino14/curvestock/pkg/curve"
	"github.com/domino14/curvestock/pkg/marketapi"
)

var errUsage = errors.New("bad usage")

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// run dispatches one command and returns the value to print.
func run(ctx context.Context, engine *marketapi.Engine, cmd string, args []string) (any, error) {
	switch cmd {
	case "migrate":
		// Opening the store already migrated it.
		log.Info().Msg("schema-up-to-date")
		return nil, nil

	case "register":
		fs := newFlagSet(cmd)
		username := fs.String("username", "", "unique username")
		hash := fs.String("credential-hash", "", "opaque credential hash")
		if err := fs.Parse(args); err != nil || *username == "" {
			return nil, fmt.Errorf("%w: register needs -username", errUsage)
		}
		id, err := engine.CreateAccount(ctx, *username, *hash)
		if err != nil {
			return nil, err
		}
		return map[string]string{"message": "Account created", "accountId": id}, nil

	case "buy", "sell":
		fs := newFlagSet(cmd)
		account := fs.String("account", "", "account id")
		budget := fs.Float64("budget", 0, "currency amount")
		if err := fs.Parse(args); err != nil || *account == "" {
			return nil, fmt.Errorf("%w: %s needs -account and -budget", errUsage, cmd)
		}
		if cmd == "buy" {
			return engine.Buy(ctx, *account, *budget)
		}
		return engine.Sell(ctx, *account, *budget)

	case "look":
		fs := newFlagSet(cmd)
		account := fs.String("account", "", "account id")
		if err := fs.Parse(args); err != nil || *account == "" {
			return nil, fmt.Errorf("%w: look needs -account", errUsage)
		}
		return engine.Snapshot(ctx, *account)

	case "quote":
		fs := newFlagSet(cmd)
		side := fs.String("side", string(marketapi.SideBuy), "buy or sell")
		budget := fs.Float64("budget", 0, "currency amount")
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%w: quote needs -side and -budget", errUsage)
		}
		return engine.Quote(ctx, marketapi.Side(*side), *budget)

	case "simulate":
		fs := newFlagSet(cmd)
		accounts := fs.Int("accounts", 10, "number of fresh accounts")
		budget := fs.Float64("budget", 10, "budget per buy")
		if err := fs.Parse(args); err != nil || *accounts < 1 {
			return nil, fmt.Errorf("%w: simulate needs -accounts >= 1", errUsage)
		}
		return simulate(ctx, engine, *accounts, *budget)
	}
	return nil, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

type simulation struct {
	Accounts      int     `json:"accounts"`
	Budget        float64 `json:"budget"`
	PriceBefore   float64 `json:"priceBefore"`
	PriceAfter    float64 `json:"priceAfter"`
	ExpectedPrice float64 `json:"expectedPrice"`
	Spent         float64 `json:"spent"`
	SharesBefore  float64 `json:"sharesBefore"`
	SharesAfter   float64 `json:"sharesAfter"`
	Consistent    bool    `json:"consistent"`
}

// simulate registers n accounts and has them all buy at once. Every buy
// moves the price up by exactly what it spent, so whatever order the
// trades serialize in, the final price must be the starting price plus the
// total spent.
func simulate(ctx context.Context, engine *marketapi.Engine, n int, budget float64) (*simulation, error) {
	ids := make([]string, n)
	for i := range ids {
		id, err := engine.CreateAccount(ctx, fmt.Sprintf("sim-%d-%s", i, shortuuid.New()), "")
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	before, err := engine.Snapshot(ctx, ids[0])
	if err != nil {
		return nil, err
	}

	spent := make([]float64, n)
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			r, err := engine.Buy(gctx, id, budget)
			if err != nil {
				return err
			}
			spent[i] = r.Amount
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	after, err := engine.Snapshot(ctx, ids[0])
	if err != nil {
		return nil, err
	}
	var total float64
	for _, s := range spent {
		total += s
	}
	expected := before.Price + total
	sim := &simulation{
		Accounts:      n,
		Budget:        budget,
		PriceBefore:   before.Price,
		PriceAfter:    after.Price,
		ExpectedPrice: expected,
		Spent:         total,
		SharesBefore:  before.TotalSharesBought,
		SharesAfter:   after.TotalSharesBought,
	}
	// Compare in share space, where the curve is well conditioned.
	want, err := curve.BuyWorth(before.TotalSharesBought, total)
	if err != nil {
		return nil, err
	}
	sim.Consistent = math.Abs(before.TotalSharesBought+want-after.TotalSharesBought) < 1e-9
	log.Info().Int("accounts", n).Float64("priceAfter", after.Price).
		Bool("consistent", sim.Consistent).Msg("simulation-finished")
	return sim, nil
}
