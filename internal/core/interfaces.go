// Package core defines the shared types and interfaces for the condor trader
package core

import (
	"context"
	"time"
)

// MarketFeed is the market-data transport. Implementations own the wire
// session; quote events for a given symbol arrive in feed order.
type MarketFeed interface {
	Subscribe(ctx context.Context, symbols []string) error
	Unsubscribe(ctx context.Context, symbols []string) error

	// Listen returns the event channel for this session. The channel is
	// closed when the session ends or errors; Err reports why.
	Listen(ctx context.Context) (<-chan Quote, error)
	Err() error
	Close() error
}

// AccountFeed is the account-event transport, scoped to one account after
// SubscribeAccount.
type AccountFeed interface {
	SubscribeAccount(ctx context.Context, accountNumber string) error
	ListenOrders(ctx context.Context) (<-chan PlacedOrder, error)
	ListenPositions(ctx context.Context) (<-chan Position, error)
	Err() error
	Close() error
}

// Broker is the order-entry and instrument-metadata surface of the
// brokerage client.
type Broker interface {
	// PlaceOrder submits a ticket. With dryRun the broker reports the
	// buying-power effect without executing.
	PlaceOrder(ctx context.Context, accountNumber string, ticket OrderTicket, dryRun bool) (*PlaceOrderResponse, error)

	// OptionChain resolves the legs of one expiration of an option root.
	OptionChain(ctx context.Context, rootSymbol string, expiration time.Time) ([]OptionLeg, error)
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
