// Package strategy selects condor legs from the option chain and live quotes
package strategy

import (
	"context"
	"fmt"
	"sort"

	"condor_trader/internal/core"
	"condor_trader/internal/marketdata"
	"condor_trader/internal/position"

	apperrors "condor_trader/pkg/errors"

	"github.com/shopspring/decimal"
)

// BuilderConfig holds the leg selection parameters
type BuilderConfig struct {
	UnderlyingSymbol string
	SearchInterval   decimal.Decimal // strike window on each side of the reference price
	PriceThreshold   decimal.Decimal // maximum premium to sell
	InsuranceOffset  decimal.Decimal // minimum strike distance of the protective leg
}

// Builder recomputes the four candidate condor legs from a fixed option
// chain and the quote cache.
type Builder struct {
	quotes *marketdata.QuoteCache
	chain  []core.OptionLeg
	cfg    BuilderConfig
	logger core.ILogger
}

// NewBuilder creates a builder over an option chain resolved once at startup
func NewBuilder(quotes *marketdata.QuoteCache, chain []core.OptionLeg, cfg BuilderConfig, logger core.ILogger) *Builder {
	return &Builder{
		quotes: quotes,
		chain:  chain,
		cfg:    cfg,
		logger: logger.WithField("component", "strategy_builder"),
	}
}

// ReferencePrice is the bid/ask midpoint of the underlying
func (b *Builder) ReferencePrice() (decimal.Decimal, error) {
	q, err := b.quotes.Lookup(b.cfg.UnderlyingSymbol)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Mid(), nil
}

// Build runs one selection cycle. Returns ErrNoCandidate when no strike in
// the window satisfies the threshold; that is a normal outcome, not a fault.
// The first call blocks until the candidate strikes have quote coverage;
// later calls return quickly since the subscription set is cached.
func (b *Builder) Build(ctx context.Context) (*position.IronCondor, error) {
	ref, err := b.ReferencePrice()
	if err != nil {
		return nil, err
	}

	lower := b.filterLegs(core.OptionTypePut, ref.Sub(b.cfg.SearchInterval), ref)
	// nearest the money first: puts scan downward
	sort.Slice(lower, func(i, j int) bool { return lower[i].Strike.GreaterThan(lower[j].Strike) })

	higher := b.filterLegs(core.OptionTypeCall, ref, ref.Add(b.cfg.SearchInterval))
	sort.Slice(higher, func(i, j int) bool { return higher[i].Strike.LessThan(higher[j].Strike) })

	symbols := make([]string, 0, len(lower)+len(higher))
	for _, leg := range lower {
		symbols = append(symbols, leg.StreamerSymbol)
	}
	for _, leg := range higher {
		symbols = append(symbols, leg.StreamerSymbol)
	}
	if err := b.quotes.AddSymbols(ctx, symbols); err != nil {
		return nil, err
	}

	mainPut, insurancePut, err := b.scan(lower, func(main, candidate decimal.Decimal) bool {
		return candidate.LessThanOrEqual(main.Sub(b.cfg.InsuranceOffset))
	})
	if err != nil {
		return nil, err
	}

	mainCall, insuranceCall, err := b.scan(higher, func(main, candidate decimal.Decimal) bool {
		return candidate.GreaterThanOrEqual(main.Add(b.cfg.InsuranceOffset))
	})
	if err != nil {
		return nil, err
	}

	condor, err := position.NewIronCondor(insurancePut, mainPut, mainCall, insuranceCall)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrNoCandidate, err)
	}
	return condor, nil
}

// filterLegs picks chain legs of one type with strikes inside [lo, hi]
func (b *Builder) filterLegs(optionType core.OptionType, lo, hi decimal.Decimal) []core.OptionLeg {
	var legs []core.OptionLeg
	for _, leg := range b.chain {
		if leg.OptionType != optionType {
			continue
		}
		if leg.Strike.GreaterThanOrEqual(lo) && leg.Strike.LessThanOrEqual(hi) {
			legs = append(legs, leg)
		}
	}
	return legs
}

// scan walks the legs from the money outward. The first leg whose bid is
// below the threshold becomes the main leg; the insurance leg is the first
// one, continuing outward, whose strike clears the offset predicate.
func (b *Builder) scan(legs []core.OptionLeg, farEnough func(main, candidate decimal.Decimal) bool) (*core.OptionLeg, *core.OptionLeg, error) {
	for i, leg := range legs {
		q, err := b.quotes.Lookup(leg.StreamerSymbol)
		if err != nil {
			return nil, nil, err
		}
		if q.BidPrice.GreaterThanOrEqual(b.cfg.PriceThreshold) {
			continue
		}

		main := legs[i]
		for j := i + 1; j < len(legs); j++ {
			if farEnough(main.Strike, legs[j].Strike) {
				insurance := legs[j]
				return &main, &insurance, nil
			}
		}
		return &main, nil, nil
	}
	return nil, nil, nil
}
