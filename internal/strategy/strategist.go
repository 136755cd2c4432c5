package strategy

import (
	"context"
	"errors"
	"time"

	"condor_trader/internal/core"
	"condor_trader/internal/marketdata"
	"condor_trader/internal/position"
	"condor_trader/pkg/concurrency"

	apperrors "condor_trader/pkg/errors"

	"github.com/shopspring/decimal"
)

// Strategist ties the builder and the position manager together: it runs the
// periodic rebuild loop and exposes the read API and the imperative
// open/close triggers consumed by the presentation layer.
type Strategist struct {
	quotes  *marketdata.QuoteCache
	builder *Builder
	manager *position.Manager
	logger  core.ILogger

	rebuildEvery time.Duration
	actions      *concurrency.WorkerPool
}

// NewStrategist wires the strategist. actions is the pool that executes the
// imperative open/close triggers off the caller's goroutine.
func NewStrategist(
	quotes *marketdata.QuoteCache,
	builder *Builder,
	manager *position.Manager,
	rebuildEvery time.Duration,
	actions *concurrency.WorkerPool,
	logger core.ILogger,
) *Strategist {
	if rebuildEvery <= 0 {
		rebuildEvery = 3 * time.Second
	}
	return &Strategist{
		quotes:       quotes,
		builder:      builder,
		manager:      manager,
		logger:       logger.WithField("component", "strategist"),
		rebuildEvery: rebuildEvery,
		actions:      actions,
	}
}

// Manager exposes the underlying position manager
func (s *Strategist) Manager() *position.Manager {
	return s.manager
}

// Run performs one synchronous build, then rebuilds on a fixed interval
// until ctx is cancelled.
func (s *Strategist) Run(ctx context.Context) error {
	s.rebuild(ctx)

	ticker := time.NewTicker(s.rebuildEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.rebuild(ctx)
		}
	}
}

// rebuild runs one build cycle. A cycle without a candidate leaves the
// previously committed position untouched; a frozen position discards the
// new candidate.
func (s *Strategist) rebuild(ctx context.Context) {
	condor, err := s.builder.Build(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoCandidate) {
			s.logger.Debug("No candidate this cycle")
		} else {
			s.logger.Warn("Strategy build failed", "error", err.Error())
		}
		return
	}

	if s.manager.State() > position.Pending {
		return
	}
	if err := s.manager.SetPosition(condor); err != nil {
		// Lost the race against a submission; the committed legs win.
		s.logger.Debug("Candidate discarded", "error", err.Error())
		return
	}

	s.logger.Debug("Candidate updated",
		"main_put", condor.MainPut.Strike,
		"insurance_put", condor.InsurancePut.Strike,
		"main_call", condor.MainCall.Strike,
		"insurance_call", condor.InsuranceCall.Strike)
}

// TriggerOpen submits the live opening order asynchronously. The fill wait
// runs on the worker pool, so a UI control binding returns immediately.
func (s *Strategist) TriggerOpen(ctx context.Context) error {
	return s.actions.Submit(func() {
		if _, err := s.manager.OpenPosition(ctx, false); err != nil {
			s.logger.Error("Open position failed", "error", err.Error())
		}
	})
}

// TriggerClose submits the live closing order asynchronously
func (s *Strategist) TriggerClose(ctx context.Context) error {
	return s.actions.Submit(func() {
		if _, err := s.manager.ClosePosition(ctx, false); err != nil {
			s.logger.Error("Close position failed", "error", err.Error())
		}
	})
}

// State returns the position lifecycle state
func (s *Strategist) State() position.State {
	return s.manager.State()
}

// IsStrategyAvailable reports whether a candidate or live position exists
func (s *Strategist) IsStrategyAvailable() bool {
	return s.manager.State() >= position.Pending
}

// ReferencePrice is the bid/ask midpoint of the underlying
func (s *Strategist) ReferencePrice() (decimal.Decimal, error) {
	return s.builder.ReferencePrice()
}

// NumOpenPositions counts account positions with positive quantity
func (s *Strategist) NumOpenPositions() int {
	return s.manager.NumOpenPositions()
}

// legPrice returns the bid or ask of one committed leg
func (s *Strategist) legPrice(pick func(*position.IronCondor) core.OptionLeg, buy bool) (decimal.Decimal, error) {
	condor, ok := s.manager.Position()
	if !ok {
		return decimal.Zero, apperrors.ErrNoPosition
	}
	q, err := s.quotes.Lookup(pick(condor).StreamerSymbol)
	if err != nil {
		return decimal.Zero, err
	}
	if buy {
		return q.AskPrice, nil
	}
	return q.BidPrice, nil
}

// MainPutPrice is the current price of the sold put
func (s *Strategist) MainPutPrice(buy bool) (decimal.Decimal, error) {
	return s.legPrice(func(c *position.IronCondor) core.OptionLeg { return c.MainPut }, buy)
}

// InsurancePutPrice is the current price of the bought put
func (s *Strategist) InsurancePutPrice(buy bool) (decimal.Decimal, error) {
	return s.legPrice(func(c *position.IronCondor) core.OptionLeg { return c.InsurancePut }, buy)
}

// MainCallPrice is the current price of the sold call
func (s *Strategist) MainCallPrice(buy bool) (decimal.Decimal, error) {
	return s.legPrice(func(c *position.IronCondor) core.OptionLeg { return c.MainCall }, buy)
}

// InsuranceCallPrice is the current price of the bought call
func (s *Strategist) InsuranceCallPrice(buy bool) (decimal.Decimal, error) {
	return s.legPrice(func(c *position.IronCondor) core.OptionLeg { return c.InsuranceCall }, buy)
}

var multiplier = decimal.NewFromInt(100)

// EstimatedBuyingPowerEffectOpen marks the candidate at current quotes:
// sell the main legs at bid, buy the insurance legs at ask. Normally
// positive since opening a condor collects a credit.
func (s *Strategist) EstimatedBuyingPowerEffectOpen() (decimal.Decimal, error) {
	mainPut, err := s.MainPutPrice(false)
	if err != nil {
		return decimal.Zero, err
	}
	mainCall, err := s.MainCallPrice(false)
	if err != nil {
		return decimal.Zero, err
	}
	insurancePut, err := s.InsurancePutPrice(true)
	if err != nil {
		return decimal.Zero, err
	}
	insuranceCall, err := s.InsuranceCallPrice(true)
	if err != nil {
		return decimal.Zero, err
	}
	return mainPut.Add(mainCall).Sub(insurancePut).Sub(insuranceCall).Mul(multiplier), nil
}

// EstimatedBuyingPowerEffectClose marks the unwind at current quotes.
// Normally negative since closing pays a debit.
func (s *Strategist) EstimatedBuyingPowerEffectClose() (decimal.Decimal, error) {
	mainPut, err := s.MainPutPrice(true)
	if err != nil {
		return decimal.Zero, err
	}
	mainCall, err := s.MainCallPrice(true)
	if err != nil {
		return decimal.Zero, err
	}
	insurancePut, err := s.InsurancePutPrice(false)
	if err != nil {
		return decimal.Zero, err
	}
	insuranceCall, err := s.InsuranceCallPrice(false)
	if err != nil {
		return decimal.Zero, err
	}
	return insurancePut.Add(insuranceCall).Sub(mainPut).Sub(mainCall).Mul(multiplier), nil
}

// Winnings is the credit the candidate pockets at current quotes
func (s *Strategist) Winnings() (decimal.Decimal, error) {
	return s.EstimatedBuyingPowerEffectOpen()
}

// BuyingPowerEffectOpen is the realized effect of the opening order
func (s *Strategist) BuyingPowerEffectOpen() (decimal.Decimal, error) {
	return s.manager.BuyingPowerEffectOpen()
}

// BuyingPowerEffectClose is the realized effect of the closing order
func (s *Strategist) BuyingPowerEffectClose() (decimal.Decimal, error) {
	return s.manager.BuyingPowerEffectClose()
}

// BuyingPowerEffect is the realized round-trip result, available once the
// position is closed.
func (s *Strategist) BuyingPowerEffect() (decimal.Decimal, error) {
	open, err := s.BuyingPowerEffectOpen()
	if err != nil {
		return decimal.Zero, err
	}
	closeEffect, err := s.BuyingPowerEffectClose()
	if err != nil {
		return decimal.Zero, err
	}
	return open.Add(closeEffect), nil
}

// EstimatedBuyingPowerEffect combines the realized open with the estimated
// unwind, available while the position is open.
func (s *Strategist) EstimatedBuyingPowerEffect() (decimal.Decimal, error) {
	open, err := s.BuyingPowerEffectOpen()
	if err != nil {
		return decimal.Zero, err
	}
	closeEstimate, err := s.EstimatedBuyingPowerEffectClose()
	if err != nil {
		return decimal.Zero, err
	}
	return open.Add(closeEstimate), nil
}

// MarginEstimate is the cached dry-run buying-power effect
func (s *Strategist) MarginEstimate() (decimal.Decimal, error) {
	return s.manager.MarginEstimate()
}
