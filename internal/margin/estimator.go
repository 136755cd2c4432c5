// Package margin keeps a live buying-power estimate via dry-run submissions
package margin

import (
	"context"
	"errors"
	"time"

	"condor_trader/internal/core"
	"condor_trader/internal/position"
	"condor_trader/pkg/retry"

	apperrors "condor_trader/pkg/errors"

	"github.com/shopspring/decimal"
)

// dryRunRetry bounds retries of a failed dry run within one refresh cycle.
// Only the estimation path retries; live submissions never do.
var dryRunRetry = retry.Policy{
	MaxAttempts:  3,
	InitialDelay: 50 * time.Millisecond,
	MaxDelay:     500 * time.Millisecond,
}

// Estimator refreshes the cached buying-power estimate on a fixed cadence
// by issuing dry-run opening orders through the position manager. Dry-run
// failures are logged and the previous estimate is kept: stale-but-available
// beats unavailable.
type Estimator struct {
	manager *position.Manager
	every   time.Duration
	logger  core.ILogger
}

// NewEstimator creates an estimator over the given position manager
func NewEstimator(manager *position.Manager, every time.Duration, logger core.ILogger) *Estimator {
	if every <= 0 {
		every = 300 * time.Millisecond
	}
	return &Estimator{
		manager: manager,
		every:   every,
		logger:  logger.WithField("component", "margin_estimator"),
	}
}

// Run refreshes the estimate until ctx is cancelled
func (e *Estimator) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.refresh(ctx)
		}
	}
}

// transientDryRunError reports whether a failed dry run is worth retrying
// within the same cycle. Missing candidates and cancellation are not.
func transientDryRunError(err error) bool {
	return !errors.Is(err, apperrors.ErrUnavailable) && !errors.Is(err, context.Canceled)
}

// refresh performs one dry-run cycle. Skipped while no candidate exists.
func (e *Estimator) refresh(ctx context.Context) {
	if e.manager.State() < position.Pending {
		return
	}

	var estimate decimal.Decimal
	err := retry.Do(ctx, dryRunRetry, transientDryRunError, func() error {
		var err error
		estimate, err = e.manager.RefreshMarginEstimate(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrUnavailable) || errors.Is(err, context.Canceled) {
			return
		}
		e.logger.Warn("Could not execute dry-run order", "error", err.Error())
		return
	}

	e.logger.Debug("Margin estimate refreshed", "change_in_buying_power", estimate)
}
