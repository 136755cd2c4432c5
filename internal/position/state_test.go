package position

import (
	"testing"

	apperrors "condor_trader/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestState_String(t *testing.T) {
	assert.Equal(t, "NO_POSITION", NoPosition.String())
	assert.Equal(t, "PENDING", Pending.String())
	assert.Equal(t, "OPENING_REQUESTED", OpeningRequested.String())
	assert.Equal(t, "OPEN", Open.String())
	assert.Equal(t, "CLOSING_REQUESTED", ClosingRequested.String())
	assert.Equal(t, "CLOSED", Closed.String())
}

func TestState_Ordering(t *testing.T) {
	// The lifecycle is a total order; downstream gates rely on comparisons.
	assert.True(t, NoPosition < Pending)
	assert.True(t, Pending < OpeningRequested)
	assert.True(t, OpeningRequested < Open)
	assert.True(t, Open < ClosingRequested)
	assert.True(t, ClosingRequested < Closed)
}

func TestState_LegalTransitions(t *testing.T) {
	legal := []struct{ from, to State }{
		{NoPosition, Pending},
		{Pending, Pending},
		{Pending, OpeningRequested},
		{OpeningRequested, Open},
		{Open, ClosingRequested},
		{ClosingRequested, Closed},
	}
	for _, edge := range legal {
		assert.NoErrorf(t, validateTransition(edge.from, edge.to),
			"%s -> %s should be legal", edge.from, edge.to)
	}
}

func TestState_IllegalTransitions(t *testing.T) {
	illegal := []struct{ from, to State }{
		{NoPosition, OpeningRequested},
		{NoPosition, Open},
		{Pending, Open},
		{Pending, ClosingRequested},
		{OpeningRequested, Pending},
		{OpeningRequested, ClosingRequested},
		{Open, Pending},
		{Open, Closed},
		{ClosingRequested, Open},
		{Closed, Pending},
		{Closed, NoPosition},
	}
	for _, edge := range illegal {
		err := validateTransition(edge.from, edge.to)
		assert.ErrorIsf(t, err, apperrors.ErrIllegalTransition,
			"%s -> %s should be rejected", edge.from, edge.to)
	}
}
