package position

import (
	"testing"

	"condor_trader/internal/core"

	apperrors "condor_trader/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLeg(symbol string, strike int64, optionType core.OptionType) *core.OptionLeg {
	return &core.OptionLeg{
		Symbol:         symbol,
		StreamerSymbol: "." + symbol,
		Strike:         decimal.NewFromInt(strike),
		OptionType:     optionType,
	}
}

func testCondor(t *testing.T) *IronCondor {
	t.Helper()
	condor, err := NewIronCondor(
		testLeg("IP", 4960, core.OptionTypePut),
		testLeg("MP", 4990, core.OptionTypePut),
		testLeg("MC", 5010, core.OptionTypeCall),
		testLeg("IC", 5040, core.OptionTypeCall),
	)
	require.NoError(t, err)
	return condor
}

func TestNewIronCondor_MissingLeg(t *testing.T) {
	_, err := NewIronCondor(nil, testLeg("MP", 4990, core.OptionTypePut),
		testLeg("MC", 5010, core.OptionTypeCall), testLeg("IC", 5040, core.OptionTypeCall))
	assert.ErrorIs(t, err, apperrors.ErrIncompleteCondor)

	_, err = NewIronCondor(testLeg("IP", 4960, core.OptionTypePut),
		testLeg("MP", 4990, core.OptionTypePut), testLeg("MC", 5010, core.OptionTypeCall), nil)
	assert.ErrorIs(t, err, apperrors.ErrIncompleteCondor)
}

func TestIronCondor_StreamerSymbols(t *testing.T) {
	condor := testCondor(t)
	assert.Equal(t, []string{".IP", ".MP", ".MC", ".IC"}, condor.StreamerSymbols())
}

func TestIronCondor_OpeningOrder(t *testing.T) {
	condor := testCondor(t)
	qty := decimal.NewFromInt(2)
	ticket := condor.OpeningOrder(decimal.NewFromFloat(0.05), qty)

	assert.NotEmpty(t, ticket.ClientOrderID)
	assert.Equal(t, core.TimeInForceDay, ticket.TimeInForce)
	assert.Equal(t, core.OrderTypeLimit, ticket.OrderType)
	assert.True(t, ticket.Price.Equal(decimal.NewFromFloat(0.05)))

	require.Len(t, ticket.Legs, 4)
	assert.Equal(t, core.TicketLeg{Symbol: "IP", Action: core.ActionBuyToOpen, Quantity: qty}, ticket.Legs[0])
	assert.Equal(t, core.TicketLeg{Symbol: "MP", Action: core.ActionSellToOpen, Quantity: qty}, ticket.Legs[1])
	assert.Equal(t, core.TicketLeg{Symbol: "MC", Action: core.ActionSellToOpen, Quantity: qty}, ticket.Legs[2])
	assert.Equal(t, core.TicketLeg{Symbol: "IC", Action: core.ActionBuyToOpen, Quantity: qty}, ticket.Legs[3])
}

func TestIronCondor_ClosingOrderMirrorsActions(t *testing.T) {
	condor := testCondor(t)
	qty := decimal.NewFromInt(1)
	ticket := condor.ClosingOrder(decimal.NewFromFloat(-0.05), qty)

	assert.True(t, ticket.Price.IsNegative())

	require.Len(t, ticket.Legs, 4)
	assert.Equal(t, core.ActionSellToClose, ticket.Legs[0].Action)
	assert.Equal(t, core.ActionBuyToClose, ticket.Legs[1].Action)
	assert.Equal(t, core.ActionBuyToClose, ticket.Legs[2].Action)
	assert.Equal(t, core.ActionSellToClose, ticket.Legs[3].Action)
}

func TestIronCondor_TicketIDsAreUnique(t *testing.T) {
	condor := testCondor(t)
	qty := decimal.NewFromInt(1)
	first := condor.OpeningOrder(decimal.NewFromFloat(0.05), qty)
	second := condor.OpeningOrder(decimal.NewFromFloat(0.05), qty)
	assert.NotEqual(t, first.ClientOrderID, second.ClientOrderID)
}
