package mock

import (
	"context"
	"sync"
	"time"

	"condor_trader/internal/core"

	"github.com/shopspring/decimal"
)

// PaperEnvironment bundles the in-process feeds and broker into a self
// contained sandbox: every subscribed symbol gets synthetic quotes, live
// orders fill automatically, and the whole strategy can run end to end
// without brokerage credentials.
type PaperEnvironment struct {
	MarketFeed  *MarketFeed
	AccountFeed *AccountFeed
	Broker      *Broker

	underlying string
	reference  decimal.Decimal
	legs       map[string]core.OptionLeg // streamer symbol -> leg

	mu   sync.Mutex
	tick decimal.Decimal // guarded; quoteFor runs on subscription goroutines
}

var (
	paperBasePremium  = decimal.RequireFromString("6.0")
	paperPremiumSlope = decimal.RequireFromString("0.05") // premium lost per point of distance
	paperMinPremium   = decimal.RequireFromString("0.25")
	paperHalfSpread   = decimal.RequireFromString("0.05")
)

// NewPaperEnvironment creates a sandbox pricing the given chain around a
// reference price for the underlying.
func NewPaperEnvironment(underlying string, reference decimal.Decimal, chain []core.OptionLeg) *PaperEnvironment {
	accountFeed := NewAccountFeed()
	broker := NewBroker(accountFeed)
	broker.SetOptionChain(chain)
	broker.SetAutoFill(true, 500*time.Millisecond)

	env := &PaperEnvironment{
		MarketFeed:  NewMarketFeed(),
		AccountFeed: accountFeed,
		Broker:      broker,
		underlying:  underlying,
		reference:   reference,
		legs:        make(map[string]core.OptionLeg, len(chain)),
	}
	for _, leg := range chain {
		env.legs[leg.StreamerSymbol] = leg
		broker.SetFillPrice(leg.Symbol, env.premium(leg.Strike))
	}

	env.MarketFeed.OnSubscribe(func(symbol string) {
		env.MarketFeed.PushQuote(env.quoteFor(symbol))
	})

	return env
}

// premium decays linearly with distance from the reference price
func (env *PaperEnvironment) premium(strike decimal.Decimal) decimal.Decimal {
	dist := strike.Sub(env.reference).Abs()
	p := paperBasePremium.Sub(dist.Mul(paperPremiumSlope))
	if p.LessThan(paperMinPremium) {
		return paperMinPremium
	}
	return p
}

// quoteFor prices one symbol, underlying or option leg
func (env *PaperEnvironment) quoteFor(symbol string) core.Quote {
	mid := env.reference
	if leg, ok := env.legs[symbol]; ok {
		mid = env.premium(leg.Strike)
	}
	env.mu.Lock()
	mid = mid.Add(env.tick)
	env.mu.Unlock()
	return core.Quote{
		Symbol:    symbol,
		BidPrice:  mid.Sub(paperHalfSpread),
		AskPrice:  mid.Add(paperHalfSpread),
		Timestamp: time.Now(),
	}
}

// advanceTick flips the wobble applied to every quoted mid price
func (env *PaperEnvironment) advanceTick(wobble decimal.Decimal) {
	env.mu.Lock()
	env.tick = env.tick.Neg()
	if env.tick.IsZero() {
		env.tick = wobble
	}
	env.mu.Unlock()
}

// Run re-quotes every subscribed symbol on a fixed cadence with a small
// deterministic wobble, until ctx is cancelled.
func (env *PaperEnvironment) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	wobble := decimal.RequireFromString("0.05")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			env.advanceTick(wobble)
			for symbol := range env.legs {
				if env.MarketFeed.Subscribed(symbol) {
					env.MarketFeed.PushQuote(env.quoteFor(symbol))
				}
			}
			if env.MarketFeed.Subscribed(env.underlying) {
				env.MarketFeed.PushQuote(env.quoteFor(env.underlying))
			}
		}
	}
}
