// Package mock provides in-process feeds and a paper broker for tests and
// paper trading
package mock

import (
	"context"
	"sync"

	"condor_trader/internal/core"
)

// MarketFeed implements core.MarketFeed in process. Tests and the paper
// broker push quotes with PushQuote; only subscribed symbols are delivered.
type MarketFeed struct {
	mu         sync.Mutex
	subscribed map[string]struct{}
	events     chan core.Quote
	err        error
	closed     bool

	// onSubscribe, when set, is invoked for each newly subscribed symbol.
	// The paper broker uses it to seed synthetic quotes immediately.
	onSubscribe func(symbol string)
}

// NewMarketFeed creates an open in-process market feed
func NewMarketFeed() *MarketFeed {
	return &MarketFeed{
		subscribed: make(map[string]struct{}),
		events:     make(chan core.Quote, 256),
	}
}

// OnSubscribe installs the per-symbol subscription hook
func (f *MarketFeed) OnSubscribe(hook func(symbol string)) {
	f.mu.Lock()
	f.onSubscribe = hook
	f.mu.Unlock()
}

func (f *MarketFeed) Subscribe(ctx context.Context, symbols []string) error {
	f.mu.Lock()
	if f.err != nil {
		defer f.mu.Unlock()
		return f.err
	}
	fresh := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := f.subscribed[s]; !ok {
			f.subscribed[s] = struct{}{}
			fresh = append(fresh, s)
		}
	}
	hook := f.onSubscribe
	f.mu.Unlock()

	if hook != nil {
		for _, s := range fresh {
			hook(s)
		}
	}
	return nil
}

func (f *MarketFeed) Unsubscribe(ctx context.Context, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range symbols {
		delete(f.subscribed, s)
	}
	return nil
}

func (f *MarketFeed) Listen(ctx context.Context) (<-chan core.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

// PushQuote delivers a quote event if its symbol is subscribed
func (f *MarketFeed) PushQuote(q core.Quote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if _, ok := f.subscribed[q.Symbol]; !ok {
		return
	}
	f.events <- q
}

// Subscribed reports whether a symbol is currently subscribed
func (f *MarketFeed) Subscribed(symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subscribed[symbol]
	return ok
}

// Fail ends the session with an error; the event channel is closed
func (f *MarketFeed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.err = err
	f.closed = true
	close(f.events)
}

func (f *MarketFeed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed && f.err != nil {
		return f.err
	}
	return nil
}

func (f *MarketFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.events)
	return nil
}

// AccountFeed implements core.AccountFeed in process
type AccountFeed struct {
	mu        sync.Mutex
	account   string
	orders    chan core.PlacedOrder
	positions chan core.Position
	err       error
	closed    bool
}

// NewAccountFeed creates an open in-process account feed
func NewAccountFeed() *AccountFeed {
	return &AccountFeed{
		orders:    make(chan core.PlacedOrder, 64),
		positions: make(chan core.Position, 64),
	}
}

func (f *AccountFeed) SubscribeAccount(ctx context.Context, accountNumber string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.account = accountNumber
	return nil
}

func (f *AccountFeed) ListenOrders(ctx context.Context) (<-chan core.PlacedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.orders, nil
}

func (f *AccountFeed) ListenPositions(ctx context.Context) (<-chan core.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.positions, nil
}

// PushOrder delivers an order event
func (f *AccountFeed) PushOrder(o core.PlacedOrder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.orders <- o
}

// PushPosition delivers a position event
func (f *AccountFeed) PushPosition(p core.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.positions <- p
}

// Fail ends the session with an error; both event channels are closed
func (f *AccountFeed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.err = err
	f.closed = true
	close(f.orders)
	close(f.positions)
}

func (f *AccountFeed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed && f.err != nil {
		return f.err
	}
	return nil
}

func (f *AccountFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.orders)
	close(f.positions)
	return nil
}
