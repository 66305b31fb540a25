package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-locations/internal/weather"
)

var fastBackoff = BackoffConfig{
	MaxRetries:      3,
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
}

func TestRetry_RetriesNetworkErrors(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastBackoff, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &weather.NetworkError{Provider: "p", Err: errors.New("reset")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastBackoff, func(context.Context) error {
		attempts++
		return &weather.NetworkError{Provider: "p", Err: errors.New("reset")}
	})
	assert.True(t, weather.IsNetwork(err))
	assert.Equal(t, fastBackoff.MaxRetries+1, attempts)
}

func TestRetry_DoesNotRetryOtherErrors(t *testing.T) {
	for _, fail := range []error{
		&weather.ProviderError{Provider: "p", Reason: "bad key"},
		&weather.ValidationError{Field: "lat", Reason: "out of range"},
		errors.New("plain"),
	} {
		attempts := 0
		err := Retry(context.Background(), fastBackoff, func(context.Context) error {
			attempts++
			return fail
		})
		assert.Equal(t, fail, err)
		assert.Equal(t, 1, attempts)
	}
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := BackoffConfig{MaxRetries: 10, InitialInterval: time.Hour}

	attempts := 0
	err := Retry(ctx, cfg, func(context.Context) error {
		attempts++
		cancel()
		return &weather.NetworkError{Provider: "p", Err: errors.New("reset")}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetry_InvalidConfig(t *testing.T) {
	err := Retry(context.Background(), BackoffConfig{MaxRetries: 1}, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, errInvalidConfig)
}

type fakeRefresher struct {
	calls  atomic.Int32
	failed int
	err    error
}

func (f *fakeRefresher) RefreshSaved(context.Context, time.Duration) (int, error) {
	f.calls.Add(1)
	return f.failed, f.err
}

func TestScheduler_RunRetriesTransientFailures(t *testing.T) {
	r := &fakeRefresher{failed: 1, err: &weather.NetworkError{Provider: "p", Err: errors.New("down")}}
	s := New(r, time.Minute, time.Minute)
	s.backoff = fastBackoff

	s.run()
	assert.EqualValues(t, fastBackoff.MaxRetries+1, r.calls.Load())
}

func TestScheduler_DisabledInterval(t *testing.T) {
	r := &fakeRefresher{}
	s := New(r, 0, time.Minute)
	require.NoError(t, s.Start())
	s.Stop()
	assert.EqualValues(t, 0, r.calls.Load())
}

func TestScheduler_StartAndStop(t *testing.T) {
	r := &fakeRefresher{}
	s := New(r, 30*time.Second, time.Minute)
	require.NoError(t, s.Start())
	s.Stop()
	// WaitForSchedule: nothing runs before the first tick.
	assert.EqualValues(t, 0, r.calls.Load())
}
