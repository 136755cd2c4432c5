package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"condor_trader/internal/account"
	"condor_trader/internal/core"
	"condor_trader/pkg/telemetry"

	apperrors "condor_trader/pkg/errors"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

// contractMultiplier converts per-share option premium to dollars
var contractMultiplier = decimal.NewFromInt(100)

// OrderSource tags where an order view came from
type OrderSource string

const (
	// OrderSourceLive means the account-event stream has confirmed the order
	OrderSourceLive OrderSource = "live"
	// OrderSourceLocal means only the local submission response is known yet
	OrderSourceLocal OrderSource = "local"
)

// OrderView is an order snapshot tagged with its provenance, so callers can
// distinguish live-confirmed state from submitted-but-unconfirmed state.
type OrderView struct {
	Order  core.PlacedOrder
	Source OrderSource
}

// Config holds the order submission parameters of one Manager
type Config struct {
	AccountNumber   string
	OpenLimitPrice  decimal.Decimal
	CloseLimitPrice decimal.Decimal
	Quantity        decimal.Decimal
	FillPollEvery   time.Duration
	RateLimit       float64
	RateBurst       int
}

// Manager is the order-lifecycle state machine for a single condor. At most
// one condor is live per Manager; once an order is submitted the legs are
// frozen until the lifecycle completes.
type Manager struct {
	events *account.EventStream
	broker core.Broker
	cfg    Config
	logger core.ILogger

	// rate limits all submissions, dry-run included
	limiter *rate.Limiter

	mu       sync.RWMutex
	state    State
	position *IronCondor
	// openResponse and closeResponse hold live submissions only; dry-run
	// responses go to estimateResponse so a margin refresh can never clobber
	// the order id the fill wait reconciles against.
	openResponse     *core.PlaceOrderResponse
	closeResponse    *core.PlaceOrderResponse
	estimateResponse *core.PlaceOrderResponse
	bpOpen           *decimal.Decimal
	bpClose          *decimal.Decimal

	ordersPlaced metric.Int64Counter
	ordersFilled metric.Int64Counter
}

// NewManager creates a position manager on top of the account event stream
func NewManager(events *account.EventStream, broker core.Broker, cfg Config, logger core.ILogger) *Manager {
	if cfg.FillPollEvery <= 0 {
		cfg.FillPollEvery = 200 * time.Millisecond
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 5
	}
	if cfg.Quantity.IsZero() {
		cfg.Quantity = decimal.NewFromInt(1)
	}

	meter := telemetry.GetMeter("position-manager")
	ordersPlaced, _ := meter.Int64Counter("condor_orders_placed_total",
		metric.WithDescription("Total order submissions, dry runs included"))
	ordersFilled, _ := meter.Int64Counter("condor_orders_filled_total",
		metric.WithDescription("Total fully filled condor orders"))

	return &Manager{
		events:       events,
		broker:       broker,
		cfg:          cfg,
		logger:       logger.WithField("component", "position_manager"),
		limiter:      rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		state:        NoPosition,
		ordersPlaced: ordersPlaced,
		ordersFilled: ordersFilled,
	}
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Position returns the current condor, if any
func (m *Manager) Position() (*IronCondor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.position == nil {
		return nil, false
	}
	c := *m.position
	return &c, true
}

// SetPosition replaces the candidate condor and resets the state to Pending.
// Rejected once an order has been submitted: the committed legs are frozen.
func (m *Manager) SetPosition(c *IronCondor) error {
	if c == nil {
		return apperrors.ErrIncompleteCondor
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state > Pending {
		return fmt.Errorf("%w: state is %s", apperrors.ErrPositionImmutable, m.state)
	}
	if err := validateTransition(m.state, Pending); err != nil {
		return err
	}

	m.position = c
	m.state = Pending
	return nil
}

// OpenPosition submits the opening order. A dry run records the response for
// margin estimation and never changes state. A live submission transitions
// Pending -> OpeningRequested, then polls the account-event view until the
// order is fully filled and transitions to Open. No deadline is imposed on
// the fill wait; cancel ctx to abandon it. A submission error restores the
// prior state and propagates, so the caller may retry.
func (m *Manager) OpenPosition(ctx context.Context, dryRun bool) (*core.PlaceOrderResponse, error) {
	m.mu.Lock()
	pos := m.position
	if pos == nil {
		m.mu.Unlock()
		return nil, apperrors.ErrNoPosition
	}
	var prev State
	if !dryRun {
		if err := validateTransition(m.state, OpeningRequested); err != nil {
			m.mu.Unlock()
			return nil, err
		}
		// Claim the transition before the broker call; a second caller now
		// fails the pre-check instead of submitting a duplicate order.
		prev = m.state
		m.state = OpeningRequested
	}
	m.mu.Unlock()

	ticket := pos.OpeningOrder(m.cfg.OpenLimitPrice, m.cfg.Quantity)
	resp, err := m.submit(ctx, ticket, dryRun)

	m.mu.Lock()
	if err != nil {
		if !dryRun {
			m.state = prev
		}
		m.mu.Unlock()
		return nil, err
	}
	m.estimateResponse = resp
	if !dryRun {
		m.openResponse = resp
	}
	m.mu.Unlock()

	if dryRun {
		return resp, nil
	}

	m.logger.Info("Opening order submitted", "order_id", resp.Order.ID)
	if err := m.waitForFill(ctx, m.OpenOrder); err != nil {
		return resp, err
	}

	m.mu.Lock()
	m.state = Open
	m.mu.Unlock()

	m.ordersFilled.Add(ctx, 1, metric.WithAttributes(attribute.String("side", "open")))
	m.logOrderSummary("open")
	return resp, nil
}

// ClosePosition is the mirror of OpenPosition for the closing order. A live
// close is only legal from Open: a premature close attempt is rejected until
// the opening order is confirmed filled.
func (m *Manager) ClosePosition(ctx context.Context, dryRun bool) (*core.PlaceOrderResponse, error) {
	m.mu.Lock()
	pos := m.position
	if pos == nil {
		m.mu.Unlock()
		return nil, apperrors.ErrNoPosition
	}
	var prev State
	if !dryRun {
		if err := validateTransition(m.state, ClosingRequested); err != nil {
			m.mu.Unlock()
			return nil, err
		}
		prev = m.state
		m.state = ClosingRequested
	}
	m.mu.Unlock()

	ticket := pos.ClosingOrder(m.cfg.CloseLimitPrice, m.cfg.Quantity)
	resp, err := m.submit(ctx, ticket, dryRun)

	m.mu.Lock()
	if err != nil {
		if !dryRun {
			m.state = prev
		}
		m.mu.Unlock()
		return nil, err
	}
	if !dryRun {
		m.closeResponse = resp
	}
	m.mu.Unlock()

	if dryRun {
		return resp, nil
	}

	m.logger.Info("Closing order submitted", "order_id", resp.Order.ID)
	if err := m.waitForFill(ctx, m.CloseOrder); err != nil {
		return resp, err
	}

	m.mu.Lock()
	m.state = Closed
	m.mu.Unlock()

	m.ordersFilled.Add(ctx, 1, metric.WithAttributes(attribute.String("side", "close")))
	m.logOrderSummary("close")
	return resp, nil
}

// submit rate-limits and places one ticket
func (m *Manager) submit(ctx context.Context, ticket core.OrderTicket, dryRun bool) (*core.PlaceOrderResponse, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	m.ordersPlaced.Add(ctx, 1, metric.WithAttributes(attribute.Bool("dry_run", dryRun)))

	resp, err := m.broker.PlaceOrder(ctx, m.cfg.AccountNumber, ticket, dryRun)
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	return resp, nil
}

// waitForFill polls the order view on a fixed interval until it reports
// FILLED. The interval poll is deliberate: each iteration re-reads the
// event-stream view, and cancellation is honored between iterations.
func (m *Manager) waitForFill(ctx context.Context, view func() (OrderView, error)) error {
	ticker := time.NewTicker(m.cfg.FillPollEvery)
	defer ticker.Stop()

	for {
		if v, err := view(); err == nil && v.Order.IsFilled() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// OpenOrder returns the opening order, preferring the account-event view and
// falling back to the local submission response while the event stream has
// not yet delivered an update. The Source tag tells the two apart.
func (m *Manager) OpenOrder() (OrderView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state <= Pending || m.openResponse == nil {
		return OrderView{}, apperrors.ErrUnavailable
	}
	if live, ok := m.events.Order(m.openResponse.Order.ID); ok {
		return OrderView{Order: live, Source: OrderSourceLive}, nil
	}
	return OrderView{Order: m.openResponse.Order, Source: OrderSourceLocal}, nil
}

// CloseOrder is the closing-side counterpart of OpenOrder
func (m *Manager) CloseOrder() (OrderView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state < ClosingRequested || m.closeResponse == nil {
		return OrderView{}, apperrors.ErrUnavailable
	}
	if live, ok := m.events.Order(m.closeResponse.Order.ID); ok {
		return OrderView{Order: live, Source: OrderSourceLive}, nil
	}
	return OrderView{Order: m.closeResponse.Order, Source: OrderSourceLocal}, nil
}

// MarginEstimate returns the buying-power effect reported by the most
// recent open submission, dry-run or live.
func (m *Manager) MarginEstimate() (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.estimateResponse == nil {
		return decimal.Zero, apperrors.ErrUnavailable
	}
	return m.estimateResponse.BuyingPowerEffect.ChangeInBuyingPower, nil
}

// RefreshMarginEstimate issues a dry-run open submission to refresh the
// cached estimate. Requires a candidate position.
func (m *Manager) RefreshMarginEstimate(ctx context.Context) (decimal.Decimal, error) {
	if m.State() < Pending {
		return decimal.Zero, apperrors.ErrUnavailable
	}
	resp, err := m.OpenPosition(ctx, true)
	if err != nil {
		return decimal.Zero, err
	}
	return resp.BuyingPowerEffect.ChangeInBuyingPower, nil
}

// calculateBuyingPowerEffect sums the signed fill value of all legs times
// the contract multiplier. Any leg with remaining quantity makes the whole
// result unavailable: no partial numbers are ever reported.
func calculateBuyingPowerEffect(legs []core.OrderLeg) (decimal.Decimal, error) {
	profit := decimal.Zero
	for _, leg := range legs {
		if leg.RemainingQuantity.IsPositive() {
			return decimal.Zero, apperrors.ErrUnavailable
		}
		for _, fill := range leg.Fills {
			cost := fill.Quantity.Mul(fill.FillPrice)
			if leg.Action.IsBuy() {
				profit = profit.Sub(cost)
			} else {
				profit = profit.Add(cost)
			}
		}
	}
	return profit.Mul(contractMultiplier), nil
}

// BuyingPowerEffectOpen returns the realized effect of the opening order.
// Computed once the position is Open and memoized forever after.
func (m *Manager) BuyingPowerEffectOpen() (decimal.Decimal, error) {
	m.mu.RLock()
	if m.bpOpen != nil {
		v := *m.bpOpen
		m.mu.RUnlock()
		return v, nil
	}
	state := m.state
	m.mu.RUnlock()

	if state < Open {
		return decimal.Zero, apperrors.ErrUnavailable
	}
	view, err := m.OpenOrder()
	if err != nil {
		return decimal.Zero, err
	}
	profit, err := calculateBuyingPowerEffect(view.Order.Legs)
	if err != nil {
		return decimal.Zero, err
	}

	m.mu.Lock()
	m.bpOpen = &profit
	m.mu.Unlock()
	return profit, nil
}

// BuyingPowerEffectClose returns the realized effect of the closing order,
// available only once the position is Closed. Memoized like the open side.
func (m *Manager) BuyingPowerEffectClose() (decimal.Decimal, error) {
	m.mu.RLock()
	if m.bpClose != nil {
		v := *m.bpClose
		m.mu.RUnlock()
		return v, nil
	}
	state := m.state
	m.mu.RUnlock()

	if state != Closed {
		return decimal.Zero, apperrors.ErrUnavailable
	}
	view, err := m.CloseOrder()
	if err != nil {
		return decimal.Zero, err
	}
	profit, err := calculateBuyingPowerEffect(view.Order.Legs)
	if err != nil {
		return decimal.Zero, err
	}

	m.mu.Lock()
	m.bpClose = &profit
	m.mu.Unlock()
	return profit, nil
}

// NumOpenPositions exposes the account-event view for monitoring
func (m *Manager) NumOpenPositions() int {
	return m.events.NumOpenPositions()
}

func (m *Manager) logOrderSummary(side string) {
	view, err := m.OpenOrder()
	if side == "close" {
		view, err = m.CloseOrder()
	}
	if err != nil {
		return
	}
	m.logger.Info("Order summary",
		"side", side,
		"order_id", view.Order.ID,
		"status", view.Order.Status,
		"source", view.Source,
		"legs", len(view.Order.Legs))
}
