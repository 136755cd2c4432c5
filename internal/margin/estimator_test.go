package margin

import (
	"context"
	"errors"
	"testing"
	"time"

	"condor_trader/internal/account"
	"condor_trader/internal/core"
	"condor_trader/internal/mock"
	"condor_trader/internal/position"
	"condor_trader/pkg/logging"

	apperrors "condor_trader/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leg(symbol string, strike int64, optionType core.OptionType) *core.OptionLeg {
	return &core.OptionLeg{
		Symbol:         symbol,
		StreamerSymbol: "." + symbol,
		Strike:         decimal.NewFromInt(strike),
		OptionType:     optionType,
	}
}

func newEstimatorFixture(t *testing.T) (*Estimator, *position.Manager, *mock.Broker) {
	t.Helper()

	feed := mock.NewAccountFeed()
	events, err := account.New(context.Background(), feed, "5WT00001", logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close() })

	broker := mock.NewBroker(feed)
	broker.SetFillPrice("MP", decimal.NewFromFloat(3.00))
	broker.SetFillPrice("MC", decimal.NewFromFloat(3.20))
	broker.SetFillPrice("IP", decimal.NewFromFloat(1.00))
	broker.SetFillPrice("IC", decimal.NewFromFloat(0.90))

	manager := position.NewManager(events, broker, position.Config{
		AccountNumber:   "5WT00001",
		OpenLimitPrice:  decimal.NewFromFloat(0.05),
		CloseLimitPrice: decimal.NewFromFloat(-0.05),
		Quantity:        decimal.NewFromInt(1),
	}, logging.NewNop())

	estimator := NewEstimator(manager, 10*time.Millisecond, logging.NewNop())
	return estimator, manager, broker
}

func commitCandidate(t *testing.T, manager *position.Manager) {
	t.Helper()
	condor, err := position.NewIronCondor(
		leg("IP", 4960, core.OptionTypePut),
		leg("MP", 4990, core.OptionTypePut),
		leg("MC", 5010, core.OptionTypeCall),
		leg("IC", 5040, core.OptionTypeCall),
	)
	require.NoError(t, err)
	require.NoError(t, manager.SetPosition(condor))
}

func TestEstimator_SkipsWithoutCandidate(t *testing.T) {
	estimator, manager, _ := newEstimatorFixture(t)

	estimator.refresh(context.Background())

	_, err := manager.MarginEstimate()
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}

func TestEstimator_RefreshesEstimate(t *testing.T) {
	estimator, manager, _ := newEstimatorFixture(t)
	commitCandidate(t, manager)

	estimator.refresh(context.Background())

	estimate, err := manager.MarginEstimate()
	require.NoError(t, err)
	assert.True(t, estimate.Equal(decimal.NewFromInt(430)), "estimate was %s", estimate)

	// State is untouched: the refresh is a dry run.
	assert.Equal(t, position.Pending, manager.State())
}

func TestEstimator_KeepsStaleEstimateOnError(t *testing.T) {
	estimator, manager, broker := newEstimatorFixture(t)
	commitCandidate(t, manager)

	estimator.refresh(context.Background())
	first, err := manager.MarginEstimate()
	require.NoError(t, err)

	broker.SetPlaceOrderError(errors.New("brokerage unreachable"))
	estimator.refresh(context.Background())

	// A failing dry run never clobbers the last good number.
	stale, err := manager.MarginEstimate()
	require.NoError(t, err)
	assert.True(t, stale.Equal(first))
}

func TestEstimator_RunStopsOnCancel(t *testing.T) {
	estimator, manager, _ := newEstimatorFixture(t)
	commitCandidate(t, manager)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- estimator.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := manager.MarginEstimate()
		return err == nil
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("estimator did not stop on cancellation")
	}
}
