package marketdata

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"condor_trader/internal/core"
	"condor_trader/internal/mock"
	"condor_trader/pkg/logging"

	apperrors "condor_trader/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQuote(symbol string, bid, ask float64) core.Quote {
	return core.Quote{
		Symbol:    symbol,
		BidPrice:  decimal.NewFromFloat(bid),
		AskPrice:  decimal.NewFromFloat(ask),
		Timestamp: time.Now(),
	}
}

// seededFeed quotes every subscribed symbol immediately, so coverage waits
// never block.
func seededFeed() *mock.MarketFeed {
	feed := mock.NewMarketFeed()
	feed.OnSubscribe(func(symbol string) {
		feed.PushQuote(testQuote(symbol, 1.0, 1.2))
	})
	return feed
}

func TestQuoteCache_CoverageOnStartup(t *testing.T) {
	qc, err := New(context.Background(), seededFeed(), []string{"SPX", ".SPXW1P5000"}, logging.NewNop())
	require.NoError(t, err)
	defer qc.Close()

	assert.True(t, qc.Covered())

	q, err := qc.Lookup("SPX")
	require.NoError(t, err)
	assert.Equal(t, "SPX", q.Symbol)
}

func TestQuoteCache_BlocksUntilEverySymbolQuoted(t *testing.T) {
	feed := mock.NewMarketFeed()

	ready := make(chan *QuoteCache, 1)
	go func() {
		qc, err := New(context.Background(), feed, []string{"A", "B"}, logging.NewNop())
		if err != nil {
			ready <- nil
			return
		}
		ready <- qc
	}()

	require.Eventually(t, func() bool { return feed.Subscribed("A") && feed.Subscribed("B") },
		time.Second, time.Millisecond)

	feed.PushQuote(testQuote("A", 1.0, 1.1))
	select {
	case <-ready:
		t.Fatal("cache reported ready with one symbol still unquoted")
	case <-time.After(50 * time.Millisecond):
	}

	feed.PushQuote(testQuote("B", 2.0, 2.1))
	select {
	case qc := <-ready:
		require.NotNil(t, qc)
		defer qc.Close()
		assert.True(t, qc.Covered())
	case <-time.After(time.Second):
		t.Fatal("cache never became ready after full coverage")
	}
}

func TestQuoteCache_CoverageWaitHonorsContext(t *testing.T) {
	feed := mock.NewMarketFeed()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(ctx, feed, []string{"NEVER_QUOTED"}, logging.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQuoteCache_NewerQuoteSupersedes(t *testing.T) {
	feed := seededFeed()
	qc, err := New(context.Background(), feed, []string{"SPX"}, logging.NewNop())
	require.NoError(t, err)
	defer qc.Close()

	feed.PushQuote(testQuote("SPX", 5.0, 5.2))

	require.Eventually(t, func() bool {
		q, err := qc.Lookup("SPX")
		return err == nil && q.BidPrice.Equal(decimal.NewFromFloat(5.0))
	}, time.Second, time.Millisecond)
}

func TestQuoteCache_AddSymbols(t *testing.T) {
	feed := seededFeed()
	qc, err := New(context.Background(), feed, []string{"SPX"}, logging.NewNop())
	require.NoError(t, err)
	defer qc.Close()

	require.NoError(t, qc.AddSymbols(context.Background(), []string{"X", "Y"}))
	assert.True(t, qc.Covered())
	assert.Len(t, qc.Symbols(), 3)

	// Re-adding covered symbols is a no-op and must not block.
	done := make(chan struct{})
	go func() {
		_ = qc.AddSymbols(context.Background(), []string{"SPX", "X"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("re-adding subscribed symbols blocked")
	}
	assert.Len(t, qc.Symbols(), 3)
}

// flakySubscribeFeed fails Subscribe while faulted and delegates otherwise
type flakySubscribeFeed struct {
	*mock.MarketFeed
	subscribeErr error
}

func (f *flakySubscribeFeed) Subscribe(ctx context.Context, symbols []string) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	return f.MarketFeed.Subscribe(ctx, symbols)
}

func TestQuoteCache_AddSymbolsRetriesAfterSubscribeFailure(t *testing.T) {
	feed := &flakySubscribeFeed{MarketFeed: seededFeed()}
	qc, err := New(context.Background(), feed, []string{"SPX"}, logging.NewNop())
	require.NoError(t, err)
	defer qc.Close()

	feed.subscribeErr = errors.New("stream hiccup")
	err = qc.AddSymbols(context.Background(), []string{".SPXWP4980"})
	require.ErrorIs(t, err, apperrors.ErrSubscriptionFailed)

	// The failed symbols are not marked subscribed, so the next cycle can
	// subscribe them for real instead of waiting on quotes that never come.
	assert.Len(t, qc.Symbols(), 1)

	feed.subscribeErr = nil
	require.NoError(t, qc.AddSymbols(context.Background(), []string{".SPXWP4980"}))

	_, err = qc.Lookup(".SPXWP4980")
	require.NoError(t, err)
	assert.Len(t, qc.Symbols(), 2)
}

// brokenListenFeed accepts subscriptions but cannot open an event channel
type brokenListenFeed struct {
	*mock.MarketFeed
	closes atomic.Int32
}

func (f *brokenListenFeed) Listen(ctx context.Context) (<-chan core.Quote, error) {
	return nil, errors.New("no event channel")
}

func (f *brokenListenFeed) Close() error {
	f.closes.Add(1)
	return f.MarketFeed.Close()
}

func TestQuoteCache_ListenFailureReleasesSession(t *testing.T) {
	feed := &brokenListenFeed{MarketFeed: seededFeed()}

	_, err := New(context.Background(), feed, []string{"SPX"}, logging.NewNop())
	require.ErrorIs(t, err, apperrors.ErrSubscriptionFailed)

	assert.False(t, feed.Subscribed("SPX"))
	assert.EqualValues(t, 1, feed.closes.Load())
}

func TestQuoteCache_LookupMiss(t *testing.T) {
	qc, err := New(context.Background(), seededFeed(), []string{"SPX"}, logging.NewNop())
	require.NoError(t, err)
	defer qc.Close()

	_, err = qc.Lookup("UNKNOWN")
	assert.ErrorIs(t, err, apperrors.ErrNoQuote)
}

func TestQuoteCache_FeedFailureWakesWaiters(t *testing.T) {
	feed := mock.NewMarketFeed()
	feedErr := errors.New("stream lost")

	errCh := make(chan error, 1)
	go func() {
		_, err := New(context.Background(), feed, []string{"A"}, logging.NewNop())
		errCh <- err
	}()

	require.Eventually(t, func() bool { return feed.Subscribed("A") }, time.Second, time.Millisecond)
	feed.Fail(feedErr)

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("coverage wait did not observe the feed failure")
	}
}

func TestQuoteCache_CloseIsIdempotent(t *testing.T) {
	feed := seededFeed()
	qc, err := New(context.Background(), feed, []string{"SPX"}, logging.NewNop())
	require.NoError(t, err)

	require.NoError(t, qc.Close())
	require.NoError(t, qc.Close())

	// The listener tears down the feed session on its way out.
	assert.False(t, feed.Subscribed("SPX"))
}
