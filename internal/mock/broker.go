package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"condor_trader/internal/core"

	"github.com/shopspring/decimal"
)

// Broker implements core.Broker against in-memory state. Live orders can
// fill automatically through the attached account feed, or tests can drive
// fills by hand via the feed.
type Broker struct {
	mu          sync.Mutex
	accountFeed *AccountFeed
	orders      map[int64]*core.PlacedOrder
	nextID      int64
	chain       []core.OptionLeg
	fillPrices  map[string]decimal.Decimal
	placeErr    error
	autoFill    bool
	fillDelay   time.Duration
}

// NewBroker creates a paper broker. Order and fill events are pushed to
// accountFeed when auto-fill is enabled.
func NewBroker(accountFeed *AccountFeed) *Broker {
	return &Broker{
		accountFeed: accountFeed,
		orders:      make(map[int64]*core.PlacedOrder),
		nextID:      1000,
		fillPrices:  make(map[string]decimal.Decimal),
	}
}

// SetPlaceOrderError makes every subsequent submission fail with err
func (b *Broker) SetPlaceOrderError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.placeErr = err
}

// SetFillPrice fixes the execution price for one symbol
func (b *Broker) SetFillPrice(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fillPrices[symbol] = price
}

// SetAutoFill makes live orders fill after delay
func (b *Broker) SetAutoFill(enabled bool, delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.autoFill = enabled
	b.fillDelay = delay
}

// SetOptionChain fixes the chain returned by OptionChain
func (b *Broker) SetOptionChain(chain []core.OptionLeg) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chain = chain
}

// OptionChain returns the configured chain
func (b *Broker) OptionChain(ctx context.Context, rootSymbol string, expiration time.Time) ([]core.OptionLeg, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	chain := make([]core.OptionLeg, len(b.chain))
	copy(chain, b.chain)
	return chain, nil
}

// PlaceOrder records the ticket and reports its buying-power effect. A live
// submission with auto-fill enabled later pushes the filled order and the
// resulting positions through the account feed.
func (b *Broker) PlaceOrder(ctx context.Context, accountNumber string, ticket core.OrderTicket, dryRun bool) (*core.PlaceOrderResponse, error) {
	b.mu.Lock()
	if b.placeErr != nil {
		err := b.placeErr
		b.mu.Unlock()
		return nil, err
	}

	b.nextID++
	order := core.PlacedOrder{
		ID:     b.nextID,
		Status: core.OrderStatusReceived,
		Legs:   make([]core.OrderLeg, 0, len(ticket.Legs)),
	}
	for _, leg := range ticket.Legs {
		order.Legs = append(order.Legs, core.OrderLeg{
			Symbol:            leg.Symbol,
			Action:            leg.Action,
			RemainingQuantity: leg.Quantity,
		})
	}

	effect := b.effectLocked(ticket)
	autoFill := b.autoFill && !dryRun
	delay := b.fillDelay

	if !dryRun {
		stored := order
		b.orders[order.ID] = &stored
	}
	b.mu.Unlock()

	if autoFill {
		go func() {
			if delay > 0 {
				time.Sleep(delay)
			}
			b.fillOrder(order.ID)
		}()
	}

	return &core.PlaceOrderResponse{
		Order:             order,
		BuyingPowerEffect: core.BuyingPowerEffect{ChangeInBuyingPower: effect},
		DryRun:            dryRun,
	}, nil
}

// effectLocked marks the ticket at the configured fill prices
func (b *Broker) effectLocked(ticket core.OrderTicket) decimal.Decimal {
	effect := decimal.Zero
	for _, leg := range ticket.Legs {
		price, ok := b.fillPrices[leg.Symbol]
		if !ok {
			continue
		}
		value := price.Mul(leg.Quantity)
		if leg.Action.IsBuy() {
			effect = effect.Sub(value)
		} else {
			effect = effect.Add(value)
		}
	}
	return effect.Mul(decimal.NewFromInt(100))
}

// fillOrder executes every leg at its configured price and pushes the
// updated order and positions through the account feed.
func (b *Broker) fillOrder(id int64) {
	b.mu.Lock()
	order, ok := b.orders[id]
	if !ok {
		b.mu.Unlock()
		return
	}

	for i := range order.Legs {
		leg := &order.Legs[i]
		price := b.fillPrices[leg.Symbol]
		leg.Fills = append(leg.Fills, core.Fill{
			Quantity:  leg.RemainingQuantity,
			FillPrice: price,
		})
		leg.RemainingQuantity = decimal.Zero
	}
	order.Status = core.OrderStatusFilled

	snapshot := *order
	legs := make([]core.OrderLeg, len(order.Legs))
	copy(legs, order.Legs)
	snapshot.Legs = legs
	b.mu.Unlock()

	if b.accountFeed == nil {
		return
	}
	b.accountFeed.PushOrder(snapshot)
	for _, leg := range snapshot.Legs {
		qty := decimal.NewFromInt(1)
		if leg.Action == core.ActionSellToClose || leg.Action == core.ActionBuyToClose {
			qty = decimal.Zero
		}
		b.accountFeed.PushPosition(core.Position{Symbol: leg.Symbol, Quantity: qty})
	}
}

// Fill completes a live order by hand, for tests that drive the account
// feed themselves.
func (b *Broker) Fill(id int64) {
	b.fillOrder(id)
}

// SyntheticChain builds a symmetric chain of puts and calls around a center
// strike, one of each type per strike.
func SyntheticChain(root string, expiration time.Time, center, spacing decimal.Decimal, stepsPerSide int) []core.OptionLeg {
	exp := expiration.Format("060102")
	var chain []core.OptionLeg
	for i := -stepsPerSide; i <= stepsPerSide; i++ {
		strike := center.Add(spacing.Mul(decimal.NewFromInt(int64(i))))
		for _, t := range []core.OptionType{core.OptionTypePut, core.OptionTypeCall} {
			chain = append(chain, core.OptionLeg{
				Symbol:         fmt.Sprintf("%s %s%s%s", root, exp, t, strike.StringFixed(0)),
				StreamerSymbol: fmt.Sprintf(".%s%s%s%s", root, exp, t, strike.StringFixed(0)),
				Strike:         strike,
				OptionType:     t,
			})
		}
	}
	return chain
}
