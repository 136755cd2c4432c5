// Package marketdata owns the live quote cache fed by the market-data stream
package marketdata

import (
	"context"
	"fmt"
	"sync"

	"condor_trader/internal/core"
	"condor_trader/pkg/telemetry"

	apperrors "condor_trader/pkg/errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QuoteCache maps streamer symbols to their latest quote. One background
// listener applies feed events in arrival order per symbol; all other tasks
// only read. The subscription set only grows until Close.
type QuoteCache struct {
	feed   core.MarketFeed
	logger core.ILogger

	mu         sync.RWMutex
	quotes     map[string]core.Quote
	subscribed map[string]struct{}
	notify     chan struct{} // closed and replaced on every applied quote
	listenErr  error

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	quoteCounter metric.Int64Counter
}

// New opens the feed, subscribes to the given symbols, starts the background
// listener and blocks until every requested symbol has received at least one
// quote. No internal deadline is imposed; attach one to ctx if a bounded wait
// is wanted.
func New(ctx context.Context, feed core.MarketFeed, symbols []string, logger core.ILogger) (*QuoteCache, error) {
	meter := telemetry.GetMeter("quote-cache")
	quoteCounter, _ := meter.Int64Counter("condor_quotes_received_total",
		metric.WithDescription("Total quote events applied to the cache"))

	qc := &QuoteCache{
		feed:         feed,
		logger:       logger.WithField("component", "quote_cache"),
		quotes:       make(map[string]core.Quote),
		subscribed:   make(map[string]struct{}),
		notify:       make(chan struct{}),
		done:         make(chan struct{}),
		quoteCounter: quoteCounter,
	}

	if err := feed.Subscribe(ctx, symbols); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSubscriptionFailed, err)
	}
	for _, s := range symbols {
		qc.subscribed[s] = struct{}{}
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	qc.cancel = cancel

	events, err := feed.Listen(listenCtx)
	if err != nil {
		cancel()
		// The subscribe already succeeded; release the session before
		// reporting the failure.
		qc.teardownFeed()
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSubscriptionFailed, err)
	}

	go qc.listen(listenCtx, events)

	if err := qc.waitForCoverage(ctx, symbols); err != nil {
		qc.Close()
		return nil, err
	}

	qc.logger.Info("Quote cache ready", "symbols", len(symbols))
	return qc, nil
}

// listen applies feed events to the shared map. On any exit path, including
// a feed error, it unsubscribes and closes the session before signalling
// termination so the connection is never leaked.
func (qc *QuoteCache) listen(ctx context.Context, events <-chan core.Quote) {
	defer close(qc.done)
	defer qc.teardownFeed()

	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-events:
			if !ok {
				err := qc.feed.Err()
				qc.mu.Lock()
				if err != nil {
					qc.listenErr = err
				} else {
					qc.listenErr = apperrors.ErrFeedClosed
				}
				qc.broadcastLocked()
				qc.mu.Unlock()
				if err != nil {
					qc.logger.Error("Quote feed failed", "error", err.Error())
				}
				return
			}
			qc.apply(q)
		}
	}
}

// apply stores a quote and wakes coverage waiters
func (qc *QuoteCache) apply(q core.Quote) {
	qc.mu.Lock()
	qc.quotes[q.Symbol] = q
	qc.broadcastLocked()
	qc.mu.Unlock()

	qc.quoteCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("symbol", q.Symbol)))
}

// broadcastLocked wakes every waiter; callers hold qc.mu
func (qc *QuoteCache) broadcastLocked() {
	close(qc.notify)
	qc.notify = make(chan struct{})
}

// teardownFeed unsubscribes everything and closes the session
func (qc *QuoteCache) teardownFeed() {
	qc.mu.RLock()
	symbols := make([]string, 0, len(qc.subscribed))
	for s := range qc.subscribed {
		symbols = append(symbols, s)
	}
	qc.mu.RUnlock()

	if err := qc.feed.Unsubscribe(context.Background(), symbols); err != nil {
		qc.logger.Warn("Unsubscribe during teardown failed", "error", err.Error())
	}
	if err := qc.feed.Close(); err != nil {
		qc.logger.Warn("Feed close failed", "error", err.Error())
	}
	qc.logger.Info("Unsubscribed from quotes")
}

// waitForCoverage blocks until each symbol has a cached quote. The wait is
// event-driven: waiters are woken on every applied quote rather than
// sleep-polling the map.
func (qc *QuoteCache) waitForCoverage(ctx context.Context, symbols []string) error {
	for {
		qc.mu.RLock()
		if qc.listenErr != nil {
			err := qc.listenErr
			qc.mu.RUnlock()
			return err
		}
		missing := 0
		for _, s := range symbols {
			if _, ok := qc.quotes[s]; !ok {
				missing++
			}
		}
		wake := qc.notify
		qc.mu.RUnlock()

		if missing == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-qc.done:
			return apperrors.ErrFeedClosed
		case <-wake:
		}
	}
}

// AddSymbols subscribes to the symbols not already covered and blocks until
// each has a quote. Re-adding subscribed symbols is a no-op that never
// blocks; the subscription set never shrinks before Close. On a subscribe
// failure the set is left untouched, so a later call retries the symbols.
func (qc *QuoteCache) AddSymbols(ctx context.Context, symbols []string) error {
	qc.mu.Lock()
	fresh := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := qc.subscribed[s]; !ok {
			fresh = append(fresh, s)
		}
	}
	qc.mu.Unlock()
	if len(fresh) == 0 {
		return nil
	}

	if err := qc.feed.Subscribe(ctx, fresh); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrSubscriptionFailed, err)
	}

	qc.mu.Lock()
	for _, s := range fresh {
		qc.subscribed[s] = struct{}{}
	}
	qc.mu.Unlock()

	qc.logger.Debug("Subscribed to new symbols", "count", len(fresh))
	return qc.waitForCoverage(ctx, fresh)
}

// Lookup returns the latest quote for a symbol
func (qc *QuoteCache) Lookup(symbol string) (core.Quote, error) {
	qc.mu.RLock()
	defer qc.mu.RUnlock()

	q, ok := qc.quotes[symbol]
	if !ok {
		return core.Quote{}, fmt.Errorf("%w: %s", apperrors.ErrNoQuote, symbol)
	}
	return q, nil
}

// Symbols returns the current subscription set
func (qc *QuoteCache) Symbols() []string {
	qc.mu.RLock()
	defer qc.mu.RUnlock()

	symbols := make([]string, 0, len(qc.subscribed))
	for s := range qc.subscribed {
		symbols = append(symbols, s)
	}
	return symbols
}

// Covered reports whether every subscribed symbol has a quote
func (qc *QuoteCache) Covered() bool {
	qc.mu.RLock()
	defer qc.mu.RUnlock()

	for s := range qc.subscribed {
		if _, ok := qc.quotes[s]; !ok {
			return false
		}
	}
	return true
}

// Close cancels the listener, awaits its termination and releases the feed
// session. The listener performs unsubscribe and session close during its
// own unwind, so cancel-then-close ordering always holds. Safe to call more
// than once.
func (qc *QuoteCache) Close() error {
	qc.closeOnce.Do(func() {
		qc.cancel()
		<-qc.done
		qc.logger.Info("Closed quote listener")
	})
	return qc.closeErr
}
