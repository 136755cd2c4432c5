package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = Policy{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
}

func always(error) bool { return false }

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testPolicy, always, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	transientErr := errors.New("flaky")
	calls := 0
	err := Do(context.Background(), testPolicy, func(error) bool { return true }, func() error {
		calls++
		if calls < 3 {
			return transientErr
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonTransientAbortsImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Do(context.Background(), testPolicy, always, func() error {
		calls++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustionReturnsLastError(t *testing.T) {
	transientErr := errors.New("still broken")
	calls := 0
	err := Do(context.Background(), testPolicy, func(error) bool { return true }, func() error {
		calls++
		return transientErr
	})
	assert.ErrorIs(t, err, transientErr)
	assert.Equal(t, testPolicy.MaxAttempts, calls)
}

func TestDo_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, testPolicy, func(error) bool { return true }, func() error {
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
