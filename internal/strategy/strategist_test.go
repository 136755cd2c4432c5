package strategy

import (
	"context"
	"testing"
	"time"

	"condor_trader/internal/account"
	"condor_trader/internal/core"
	"condor_trader/internal/mock"
	"condor_trader/internal/position"
	"condor_trader/pkg/concurrency"
	"condor_trader/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type strategistFixture struct {
	strategist *Strategist
	broker     *mock.Broker
}

func newStrategistFixture(t *testing.T, f *chainFixture, cfg BuilderConfig) *strategistFixture {
	t.Helper()

	builder := newBuilderFixture(t, f, cfg)

	accountFeed := mock.NewAccountFeed()
	events, err := account.New(context.Background(), accountFeed, "5WT00001", logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close() })

	broker := mock.NewBroker(accountFeed)
	broker.SetAutoFill(true, 0)
	for symbol, bid := range f.bids {
		// Orders execute at the quoted bid; Symbol is StreamerSymbol minus
		// the leading dot.
		broker.SetFillPrice(symbol[1:], bid)
	}

	manager := position.NewManager(events, broker, position.Config{
		AccountNumber:   "5WT00001",
		OpenLimitPrice:  decimal.NewFromFloat(0.05),
		CloseLimitPrice: decimal.NewFromFloat(-0.05),
		Quantity:        decimal.NewFromInt(1),
		FillPollEvery:   5 * time.Millisecond,
	}, logging.NewNop())

	actions := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "test-actions",
		MaxWorkers:  1,
		MaxCapacity: 4,
	}, logging.NewNop())
	t.Cleanup(actions.Stop)

	strategist := NewStrategist(builder.quotes, builder, manager, time.Second, actions, logging.NewNop())
	return &strategistFixture{strategist: strategist, broker: broker}
}

func defaultStrategistFixture(t *testing.T) *strategistFixture {
	fixture := newChainFixture(decimal.NewFromInt(5000), decimal.NewFromInt(5), 30, decayingBids(decimal.NewFromInt(5)))
	return newStrategistFixture(t, fixture, BuilderConfig{
		SearchInterval:  decimal.NewFromInt(100),
		PriceThreshold:  decimal.NewFromFloat(3.5),
		InsuranceOffset: decimal.NewFromInt(30),
	})
}

func TestStrategist_RebuildCommitsCandidate(t *testing.T) {
	f := defaultStrategistFixture(t)
	s := f.strategist

	assert.Equal(t, position.NoPosition, s.State())
	assert.False(t, s.IsStrategyAvailable())

	s.rebuild(context.Background())

	assert.Equal(t, position.Pending, s.State())
	assert.True(t, s.IsStrategyAvailable())

	condor, ok := s.Manager().Position()
	require.True(t, ok)
	assert.True(t, condor.MainPut.Strike.Equal(decimal.NewFromInt(4980)))
	assert.True(t, condor.MainCall.Strike.Equal(decimal.NewFromInt(5020)))
}

func TestStrategist_NoCandidateLeavesStateAlone(t *testing.T) {
	// Every bid is rich, so no cycle ever finds a main leg.
	expensive := func(_ core.OptionType, _ decimal.Decimal) decimal.Decimal {
		return decimal.NewFromFloat(9.0)
	}
	fixture := newChainFixture(decimal.NewFromInt(5000), decimal.NewFromInt(5), 10, expensive)
	f := newStrategistFixture(t, fixture, BuilderConfig{
		SearchInterval:  decimal.NewFromInt(50),
		PriceThreshold:  decimal.NewFromFloat(3.5),
		InsuranceOffset: decimal.NewFromInt(30),
	})

	f.strategist.rebuild(context.Background())

	assert.Equal(t, position.NoPosition, f.strategist.State())
	assert.False(t, f.strategist.IsStrategyAvailable())
}

func TestStrategist_LegPrices(t *testing.T) {
	f := defaultStrategistFixture(t)
	s := f.strategist
	s.rebuild(context.Background())

	// Sold legs at the bid, bought legs at the ask (bid + 0.10).
	mainPutBid, err := s.MainPutPrice(false)
	require.NoError(t, err)
	assert.True(t, mainPutBid.Equal(decimal.NewFromFloat(3.4)), "main put bid %s", mainPutBid)

	insurancePutAsk, err := s.InsurancePutPrice(true)
	require.NoError(t, err)
	assert.True(t, insurancePutAsk.Equal(decimal.NewFromFloat(1.1)), "insurance put ask %s", insurancePutAsk)
}

func TestStrategist_EstimatedBuyingPowerEffects(t *testing.T) {
	f := defaultStrategistFixture(t)
	s := f.strategist
	s.rebuild(context.Background())

	// Open: sell mains at bid 3.4 each, buy insurance at ask 1.1 each.
	open, err := s.EstimatedBuyingPowerEffectOpen()
	require.NoError(t, err)
	assert.True(t, open.Equal(decimal.NewFromInt(460)), "estimated open %s", open)

	winnings, err := s.Winnings()
	require.NoError(t, err)
	assert.True(t, winnings.Equal(open))

	// Close: buy mains back at ask 3.5 each, sell insurance at bid 1.0 each.
	closeEstimate, err := s.EstimatedBuyingPowerEffectClose()
	require.NoError(t, err)
	assert.True(t, closeEstimate.Equal(decimal.NewFromInt(-500)), "estimated close %s", closeEstimate)
}

func TestStrategist_FrozenPositionDiscardsCandidates(t *testing.T) {
	f := defaultStrategistFixture(t)
	s := f.strategist
	s.rebuild(context.Background())

	require.NoError(t, s.TriggerOpen(context.Background()))
	require.Eventually(t, func() bool { return s.State() == position.Open },
		2*time.Second, time.Millisecond)

	before, ok := s.Manager().Position()
	require.True(t, ok)

	s.rebuild(context.Background())

	after, ok := s.Manager().Position()
	require.True(t, ok)
	assert.Equal(t, position.Open, s.State())
	assert.True(t, before.MainPut.Strike.Equal(after.MainPut.Strike))
}

func TestStrategist_TriggerRoundTrip(t *testing.T) {
	f := defaultStrategistFixture(t)
	s := f.strategist
	s.rebuild(context.Background())

	require.NoError(t, s.TriggerOpen(context.Background()))
	require.Eventually(t, func() bool { return s.State() == position.Open },
		2*time.Second, time.Millisecond)

	openEffect, err := s.BuyingPowerEffectOpen()
	require.NoError(t, err)
	assert.True(t, openEffect.IsPositive(), "opening a condor collects a credit, got %s", openEffect)

	require.NoError(t, s.TriggerClose(context.Background()))
	require.Eventually(t, func() bool { return s.State() == position.Closed },
		2*time.Second, time.Millisecond)

	closeEffect, err := s.BuyingPowerEffectClose()
	require.NoError(t, err)
	assert.True(t, closeEffect.IsNegative(), "closing pays a debit, got %s", closeEffect)

	total, err := s.BuyingPowerEffect()
	require.NoError(t, err)
	assert.True(t, total.Equal(openEffect.Add(closeEffect)))
}

func TestStrategist_RunStopsOnCancel(t *testing.T) {
	f := defaultStrategistFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.strategist.Run(ctx) }()

	require.Eventually(t, func() bool { return f.strategist.State() == position.Pending },
		2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("strategist did not stop on cancellation")
	}
}
