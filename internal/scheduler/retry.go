package scheduler

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/i474232898/weather-locations/internal/weather"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultBackoff = BackoffConfig{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

var errInvalidConfig = errors.New("invalid backoff configuration")

// Retry calls fn until it succeeds, returns a non-network error, or the
// retry budget runs out. Only *weather.NetworkError is retried; provider and
// validation errors are returned immediately.
func Retry(ctx context.Context, cfg BackoffConfig, fn func(context.Context) error) error {
	if cfg.MaxRetries < 0 || cfg.InitialInterval <= 0 {
		return errInvalidConfig
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !weather.IsNetwork(err) || attempt >= cfg.MaxRetries {
			return err
		}

		// Backoff with exponential delay.
		delay := cfg.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.MaxInterval && cfg.MaxInterval > 0 {
			delay = cfg.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// continue to next attempt
		}
	}
}
