package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// gatewayResponse maps the 2xx body returned by every HTTP gateway.
type gatewayResponse struct {
	ID string `json:"id"`
}

// gateway POSTs JSON to a provider endpoint through a circuit breaker.
// The base URL is injected from config so tests can point to a local mock.
type gateway struct {
	name       string
	url        string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[string]
}

func newGateway(name, url string, timeout time.Duration, logger *zap.Logger) *gateway {
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// A rejected payload says nothing about the provider's health.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTemporary(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("transport circuit breaker changed state",
				zap.String("transport", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &gateway{
		name:       name,
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    cb,
	}
}

// post sends payload and returns the provider's delivery id.
// 429, 5xx and network errors are temporary; any other non-2xx is permanent.
func (g *gateway) post(ctx context.Context, payload any) (string, error) {
	id, err := g.breaker.Execute(func() (string, error) {
		return g.do(ctx, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", temporary(g.name, 0, err)
	}
	return id, err
}

func (g *gateway) do(ctx context.Context, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", permanent(g.name, 0, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", permanent(g.name, 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", temporary(g.name, 0, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", temporary(g.name, resp.StatusCode, fmt.Errorf("provider unavailable: %s", readSnippet(resp.Body)))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", permanent(g.name, resp.StatusCode, fmt.Errorf("provider rejected request: %s", readSnippet(resp.Body)))
	}

	var out gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", temporary(g.name, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return out.ID, nil
}

func (g *gateway) close() {
	g.httpClient.CloseIdleConnections()
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(bytes.TrimSpace(b))
}
