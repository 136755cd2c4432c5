package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the latest market snapshot for a single streamer symbol.
// A newer event for the same symbol supersedes it in place.
type Quote struct {
	Symbol    string
	BidPrice  decimal.Decimal
	AskPrice  decimal.Decimal
	Timestamp time.Time
}

// Mid returns the bid/ask midpoint.
func (q Quote) Mid() decimal.Decimal {
	return q.BidPrice.Add(q.AskPrice).Div(decimal.NewFromInt(2))
}

// OptionType distinguishes puts from calls
type OptionType string

const (
	OptionTypePut  OptionType = "P"
	OptionTypeCall OptionType = "C"
)

// OptionLeg is one option contract resolved from the chain. Symbol is the
// OCC symbol used for order placement, StreamerSymbol the market-data one.
type OptionLeg struct {
	Symbol         string
	StreamerSymbol string
	Strike         decimal.Decimal
	OptionType     OptionType
}

// OrderAction is the direction of a single order leg
type OrderAction string

const (
	ActionBuyToOpen   OrderAction = "BUY_TO_OPEN"
	ActionSellToOpen  OrderAction = "SELL_TO_OPEN"
	ActionBuyToClose  OrderAction = "BUY_TO_CLOSE"
	ActionSellToClose OrderAction = "SELL_TO_CLOSE"
)

// IsBuy reports whether the action pays premium
func (a OrderAction) IsBuy() bool {
	return a == ActionBuyToOpen || a == ActionBuyToClose
}

// OrderStatus mirrors the broker's order lifecycle states
type OrderStatus string

const (
	OrderStatusReceived  OrderStatus = "RECEIVED"
	OrderStatusLive      OrderStatus = "LIVE"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
)

// OrderType for submitted tickets
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// TimeInForce for submitted tickets
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "DAY"
	TimeInForceGTC TimeInForce = "GTC"
)

// TicketLeg is one leg of an order ticket before submission
type TicketLeg struct {
	Symbol   string
	Action   OrderAction
	Quantity decimal.Decimal
}

// OrderTicket is a multi-leg order ready for submission
type OrderTicket struct {
	ClientOrderID string
	TimeInForce   TimeInForce
	OrderType     OrderType
	Price         decimal.Decimal // limit price; negative means debit
	Legs          []TicketLeg
}

// Fill is a partial or full execution of one order leg
type Fill struct {
	Quantity  decimal.Decimal
	FillPrice decimal.Decimal
}

// OrderLeg is the broker's view of one leg of a placed order
type OrderLeg struct {
	Symbol            string
	Action            OrderAction
	RemainingQuantity decimal.Decimal
	Fills             []Fill
}

// PlacedOrder is the broker's view of a submitted order, superseded in the
// account-event map as fill and status events arrive.
type PlacedOrder struct {
	ID     int64
	Status OrderStatus
	Legs   []OrderLeg
}

// IsFilled reports whether the order is fully executed
func (o *PlacedOrder) IsFilled() bool {
	return o != nil && o.Status == OrderStatusFilled
}

// Position is the broker's view of one held instrument
type Position struct {
	Symbol   string
	Quantity decimal.Decimal
}

// BuyingPowerEffect is the broker-reported margin impact of an order
type BuyingPowerEffect struct {
	ChangeInBuyingPower decimal.Decimal
}

// PlaceOrderResponse is returned by the broker for both live and dry-run
// submissions.
type PlaceOrderResponse struct {
	Order             PlacedOrder
	BuyingPowerEffect BuyingPowerEffect
	DryRun            bool
}
