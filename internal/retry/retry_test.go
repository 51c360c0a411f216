package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jermoo/realms-core/internal/retry"
)

func TestNever_DoesNotRetry(t *testing.T) {
	calls := 0
	err := retry.Never().Do(context.Background(), func(context.Context) error {
		calls++
		return retry.MarkRetriable(errors.New("boom"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestOnce_RetriesExactlyOneMoreTime(t *testing.T) {
	calls := 0
	err := retry.Once().Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return retry.MarkRetriable(errors.New("transient"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestOnce_DoesNotRetryPermanentError(t *testing.T) {
	calls := 0
	err := retry.Once().Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("domain rejection")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestConstant_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := retry.Constant(time.Millisecond).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return retry.MarkRetriable(errors.New("transient"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExponential_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	policy := retry.Exponential(time.Millisecond, 2, 10*time.Millisecond, 2, 0)
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return retry.MarkRetriable(errors.New("always transient"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial attempt + 2 retries
}

func TestDo_NonRetriableErrorPassesThroughImmediately(t *testing.T) {
	calls := 0
	domainErr := errors.New("rejection")
	policy := retry.DefaultExponential(time.Millisecond, time.Second, 5)
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return domainErr
	})
	require.ErrorIs(t, err, domainErr)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledContextStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	policy := retry.Constant(10 * time.Millisecond)
	err := policy.Do(ctx, func(context.Context) error {
		calls++
		return retry.MarkRetriable(errors.New("transient"))
	})
	require.Error(t, err)
}
