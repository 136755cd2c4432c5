// Package account consumes the account-event feed for one brokerage account
package account

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"condor_trader/internal/core"

	apperrors "condor_trader/pkg/errors"

	"golang.org/x/sync/errgroup"
)

// EventStream merges order and position events into per-key maps. Each map
// is mutated only by its own listener goroutine and read by everyone else.
type EventStream struct {
	feed   core.AccountFeed
	logger core.ILogger

	mu        sync.RWMutex
	orders    map[int64]core.PlacedOrder
	positions map[string]core.Position

	cancel      context.CancelFunc
	group       *errgroup.Group
	sessionOnce sync.Once
	closeOnce   sync.Once
	closeErr    error
}

// New subscribes to order and position events scoped to one account and
// starts one listener per event type.
func New(ctx context.Context, feed core.AccountFeed, accountNumber string, logger core.ILogger) (*EventStream, error) {
	if err := feed.SubscribeAccount(ctx, accountNumber); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSubscriptionFailed, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())

	// The account subscription is live past this point; release the session
	// on every constructor failure.
	orderEvents, err := feed.ListenOrders(listenCtx)
	if err != nil {
		cancel()
		closeFeed(feed, logger)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSubscriptionFailed, err)
	}
	positionEvents, err := feed.ListenPositions(listenCtx)
	if err != nil {
		cancel()
		closeFeed(feed, logger)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSubscriptionFailed, err)
	}

	es := &EventStream{
		feed:      feed,
		logger:    logger.WithField("component", "account_stream").WithField("account", accountNumber),
		orders:    make(map[int64]core.PlacedOrder),
		positions: make(map[string]core.Position),
		cancel:    cancel,
	}

	g, gctx := errgroup.WithContext(listenCtx)
	es.group = g

	g.Go(func() error { return es.listenOrders(gctx, orderEvents) })
	g.Go(func() error { return es.listenPositions(gctx, positionEvents) })

	es.logger.Info("Account event stream started")
	return es, nil
}

func (es *EventStream) listenOrders(ctx context.Context, events <-chan core.PlacedOrder) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case o, ok := <-events:
			if !ok {
				return es.feedFailure("order")
			}
			es.mu.Lock()
			es.orders[o.ID] = o
			es.mu.Unlock()
			es.logger.Debug("Order update", "order_id", o.ID, "status", o.Status)
		}
	}
}

func (es *EventStream) listenPositions(ctx context.Context, events <-chan core.Position) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-events:
			if !ok {
				return es.feedFailure("position")
			}
			es.mu.Lock()
			es.positions[p.Symbol] = p
			es.mu.Unlock()
		}
	}
}

// feedFailure closes the session before propagating the error so the
// connection is released even on abnormal teardown.
func (es *EventStream) feedFailure(which string) error {
	err := es.feed.Err()
	if err == nil {
		err = apperrors.ErrFeedClosed
	}
	es.logger.Error("Account feed failed", "listener", which, "error", err.Error())
	es.closeSession()
	return err
}

func closeFeed(feed core.AccountFeed, logger core.ILogger) {
	if err := feed.Close(); err != nil {
		logger.Warn("Account feed close failed", "error", err.Error())
	}
}

func (es *EventStream) closeSession() {
	es.sessionOnce.Do(func() {
		if err := es.feed.Close(); err != nil {
			es.logger.Warn("Account feed close failed", "error", err.Error())
		}
	})
}

// Order returns the event-stream view of one order
func (es *EventStream) Order(id int64) (core.PlacedOrder, bool) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	o, ok := es.orders[id]
	return o, ok
}

// Orders returns a snapshot of all tracked orders
func (es *EventStream) Orders() map[int64]core.PlacedOrder {
	es.mu.RLock()
	defer es.mu.RUnlock()

	snapshot := make(map[int64]core.PlacedOrder, len(es.orders))
	for id, o := range es.orders {
		snapshot[id] = o
	}
	return snapshot
}

// Positions returns a snapshot of all tracked positions
func (es *EventStream) Positions() map[string]core.Position {
	es.mu.RLock()
	defer es.mu.RUnlock()

	snapshot := make(map[string]core.Position, len(es.positions))
	for s, p := range es.positions {
		snapshot[s] = p
	}
	return snapshot
}

// NumOpenPositions counts positions with strictly positive quantity
func (es *EventStream) NumOpenPositions() int {
	es.mu.RLock()
	defer es.mu.RUnlock()

	count := 0
	for _, p := range es.positions {
		if p.Quantity.IsPositive() {
			count++
		}
	}
	return count
}

// Close cancels both listeners, awaits them and closes the feed session.
// Safe to call more than once.
func (es *EventStream) Close() error {
	es.closeOnce.Do(func() {
		es.cancel()
		err := es.group.Wait()
		es.closeSession()
		if err != nil && !errors.Is(err, context.Canceled) {
			es.closeErr = err
		}
		es.logger.Info("Closed account event stream")
	})
	return es.closeErr
}
