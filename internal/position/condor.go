// Package position drives one iron condor through its order lifecycle
package position

import (
	"condor_trader/internal/core"

	apperrors "condor_trader/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IronCondor is the four-leg spread: a sold put and call near the money,
// each protected by a bought leg further out.
type IronCondor struct {
	InsurancePut  core.OptionLeg
	MainPut       core.OptionLeg
	MainCall      core.OptionLeg
	InsuranceCall core.OptionLeg
}

// NewIronCondor builds a condor from four resolved legs. Construction fails
// if any leg is missing.
func NewIronCondor(insurancePut, mainPut, mainCall, insuranceCall *core.OptionLeg) (*IronCondor, error) {
	if insurancePut == nil || mainPut == nil || mainCall == nil || insuranceCall == nil {
		return nil, apperrors.ErrIncompleteCondor
	}
	return &IronCondor{
		InsurancePut:  *insurancePut,
		MainPut:       *mainPut,
		MainCall:      *mainCall,
		InsuranceCall: *insuranceCall,
	}, nil
}

// StreamerSymbols lists the market-data symbols of all four legs
func (c *IronCondor) StreamerSymbols() []string {
	return []string{
		c.InsurancePut.StreamerSymbol,
		c.MainPut.StreamerSymbol,
		c.MainCall.StreamerSymbol,
		c.InsuranceCall.StreamerSymbol,
	}
}

// ticket assembles the four-leg limit order. Opening sells the main legs
// and buys the insurance legs; closing mirrors every action.
func (c *IronCondor) ticket(opening bool, limit, quantity decimal.Decimal) core.OrderTicket {
	buy, sell := core.ActionBuyToOpen, core.ActionSellToOpen
	if !opening {
		buy, sell = core.ActionSellToClose, core.ActionBuyToClose
	}

	return core.OrderTicket{
		ClientOrderID: uuid.NewString(),
		TimeInForce:   core.TimeInForceDay,
		OrderType:     core.OrderTypeLimit,
		Price:         limit,
		Legs: []core.TicketLeg{
			{Symbol: c.InsurancePut.Symbol, Action: buy, Quantity: quantity},
			{Symbol: c.MainPut.Symbol, Action: sell, Quantity: quantity},
			{Symbol: c.MainCall.Symbol, Action: sell, Quantity: quantity},
			{Symbol: c.InsuranceCall.Symbol, Action: buy, Quantity: quantity},
		},
	}
}

// OpeningOrder collects a credit, so the limit is normally positive
func (c *IronCondor) OpeningOrder(limit, quantity decimal.Decimal) core.OrderTicket {
	return c.ticket(true, limit, quantity)
}

// ClosingOrder pays a debit, so the limit is normally negative
func (c *IronCondor) ClosingOrder(limit, quantity decimal.Decimal) core.OrderTicket {
	return c.ticket(false, limit, quantity)
}
