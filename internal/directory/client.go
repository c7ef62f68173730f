package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// errUnavailable marks responses that count against the circuit breaker.
var errUnavailable = errors.New("directory unavailable")

// baseClient issues GET requests through a circuit breaker. 5xx, 429 and
// network errors count as failures; 404 is a valid answer.
type baseClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// StatusError is a non-2xx directory answer.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("directory returned %d: %s", e.StatusCode, e.Body)
}

func newBaseClient(name, baseURL string, timeout time.Duration, logger *zap.Logger) *baseClient {
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, errUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("directory circuit breaker changed state",
				zap.String("directory", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &baseClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    cb,
	}
}

// getJSON fetches path and decodes the body into out.
// A 404 comes back as *StatusError; callers map it to a domain error.
func (c *baseClient) getJSON(ctx context.Context, out any, segments ...string) error {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := c.baseURL + "/" + strings.Join(escaped, "/")

	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errUnavailable, err)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %w", errUnavailable, err)
		}
		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: %w", errUnavailable, &StatusError{StatusCode: resp.StatusCode, Body: snippet(b)})
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet(b)}
		}
		return b, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", u, err)
	}
	return nil
}

func (c *baseClient) close() {
	c.httpClient.CloseIdleConnections()
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

func snippet(b []byte) string {
	if len(b) > 256 {
		b = b[:256]
	}
	return strings.TrimSpace(string(b))
}
