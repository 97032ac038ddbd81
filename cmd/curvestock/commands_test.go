package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/domino14/curvestock/pkg/config"
	"github.com/domino14/curvestock/pkg/marketapi"
)

func memEngine(t *testing.T) *marketapi.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Driver = config.DriverMemory
	cfg.Store.LockTimeout = time.Second
	store, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	return marketapi.NewEngine(store, cfg.Market.StartingBalance)
}

func TestRegisterBuyLook(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	engine := memEngine(t)

	out, err := run(ctx, engine, "register", []string{"-username", "cesar", "-credential-hash", "h"})
	is.NoErr(err)
	id := out.(map[string]string)["accountId"]
	is.True(id != "")

	out, err = run(ctx, engine, "buy", []string{"-account", id, "-budget", "100"})
	is.NoErr(err)
	receipt := out.(*marketapi.TradeReceipt)
	is.Equal(receipt.Balance, 900.0)

	out, err = run(ctx, engine, "look", []string{"-account", id})
	is.NoErr(err)
	snap := out.(*marketapi.Snapshot)
	is.Equal(snap.Username, "cesar")
	is.Equal(snap.Holdings, receipt.Holdings)

	out, err = run(ctx, engine, "sell", []string{"-account", id, "-budget", "5000"})
	is.NoErr(err)
	is.Equal(out.(*marketapi.TradeReceipt).Holdings, 0.0)
}

func TestQuoteCommand(t *testing.T) {
	is := is.New(t)
	engine := memEngine(t)
	out, err := run(context.Background(), engine, "quote", []string{"-side", "buy", "-budget", "100"})
	is.NoErr(err)
	is.Equal(out.(*marketapi.Quote).Side, marketapi.SideBuy)
}

func TestSimulate(t *testing.T) {
	is := is.New(t)
	engine := memEngine(t)
	out, err := run(context.Background(), engine, "simulate", []string{"-accounts", "25", "-budget", "3"})
	is.NoErr(err)
	sim := out.(*simulation)
	is.Equal(sim.Spent, 75.0)
	is.True(sim.Consistent)
}

func TestBadUsage(t *testing.T) {
	is := is.New(t)
	engine := memEngine(t)
	ctx := context.Background()

	_, err := run(ctx, engine, "dance", nil)
	is.True(errors.Is(err, errUsage))
	_, err = run(ctx, engine, "buy", []string{"-budget", "5"})
	is.True(errors.Is(err, errUsage))
	_, err = run(ctx, engine, "register", nil)
	is.True(errors.Is(err, errUsage))
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("stdout closed")
}

func TestWriteFailure(t *testing.T) {
	is := is.New(t)
	var buf bytes.Buffer
	err := marketapi.E(marketapi.KindBusy, "buy", nil, "lock not acquired")
	is.NoErr(writeFailure(&buf, err))
	is.Equal(buf.String(), `{"error":"buy: lock not acquired","kind":"busy"}`+"\n")

	is.True(writeFailure(brokenWriter{}, err) != nil)
}
