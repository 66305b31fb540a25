package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-locations/internal/weather"
)

// HTTPClientConfig bundles the HTTP client and circuit breaker settings.
type HTTPClientConfig struct {
	Client *http.Client

	// Breaker trips after this many consecutive network failures.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

var (
	errRateLimited  = errors.New("rate limited")
	errServerError  = errors.New("server error")
	errNoHTTPClient = errors.New("http client not configured")
)

// maxErrorBody bounds how much of an error response is read for the message.
const maxErrorBody = 4 << 10

// statusError carries a non-2xx response that is the provider's fault, not the network's.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status code %d", e.code)
	}
	return fmt.Sprintf("unexpected status code %d: %s", e.code, e.body)
}

func newCircuitBreaker(name string, cfg HTTPClientConfig) *gobreaker.CircuitBreaker {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    1 * time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	})
}

// doRequest executes exactly one HTTP request through the circuit breaker
// and classifies failures into *weather.NetworkError and *weather.ProviderError.
// Retrying is left to the caller.
func doRequest(
	ctx context.Context,
	provider string,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, &weather.ProviderError{Provider: provider, Reason: "misconfigured", Err: errNoHTTPClient}
	}

	req, err := buildRequest()
	if err != nil {
		return nil, &weather.ProviderError{Provider: provider, Reason: "can't build request", Err: err}
	}
	// Ensure the request obeys context cancellation.
	req = req.WithContext(ctx)

	var rejected *statusError
	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := cfg.Client.Do(req)
		if execErr != nil {
			return nil, execErr
		}

		// Rate limiting and server errors are transient and count against the breaker.
		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			return nil, errRateLimited
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
			// A rejected request says nothing about provider health.
			rejected = &statusError{code: resp.StatusCode, body: providerMessage(body)}
			return nil, nil
		}

		return resp, nil
	})

	if rejected != nil {
		return nil, &weather.ProviderError{Provider: provider, Reason: "request rejected", Err: rejected}
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &weather.NetworkError{Provider: provider, Err: fmt.Errorf("circuit breaker open: %w", err)}
		}
		return nil, &weather.NetworkError{Provider: provider, Err: err}
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, &weather.ProviderError{Provider: provider, Reason: "unexpected result type from circuit breaker"}
	}
	return resp, nil
}

// decodeJSON reads a successful response body; decode failures are provider errors.
func decodeJSON(provider string, resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return &weather.NetworkError{Provider: provider, Err: err}
		}
		return &weather.ProviderError{Provider: provider, Reason: "malformed response", Err: err}
	}
	return nil
}

// providerMessage extracts a human readable reason from common error bodies.
func providerMessage(body []byte) string {
	var payload struct {
		Reason  string          `json:"reason"`
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		var nested struct {
			Message string `json:"message"`
		}
		switch {
		case payload.Reason != "":
			return payload.Reason
		case payload.Message != "":
			return payload.Message
		case json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "":
			return nested.Message
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// parseUTC parses a provider timestamp that carries no zone as UTC.
func parseUTC(layout, value string) (time.Time, error) {
	return time.ParseInLocation(layout, value, time.UTC)
}
