package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/notifyhub/salon-notifier/internal/broker"
)

// errBrokerNotConnected is reported by the queue snapshot until the
// topology has been declared.
var errBrokerNotConnected = errors.New("broker not connected")

// startupRetry runs op with exponential backoff until it succeeds, ctx is
// cancelled, or timeout elapses. The HTTP server is already up while this
// runs, so liveness is served and readiness reports false.
func startupRetry(ctx context.Context, logger *zap.Logger, what string, timeout time.Duration, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 15 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn(what+" unavailable, retrying", zap.Error(err), zap.Duration("next_attempt_in", next))
		}),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// lateQueues serves the queue snapshot once the topology exists.
type lateQueues struct {
	topology atomic.Pointer[broker.Topology]
}

func (q *lateQueues) set(t *broker.Topology) { q.topology.Store(t) }

func (q *lateQueues) QueueDepths() (map[string]int, error) {
	t := q.topology.Load()
	if t == nil {
		return nil, errBrokerNotConnected
	}
	return t.QueueDepths()
}

// brokerLink is the connection and admin session that survive startup.
type brokerLink struct {
	conn     broker.Connection
	admin    *broker.Session
	topology *broker.Topology
}

func (l *brokerLink) close() {
	_ = l.admin.Close()
	_ = l.conn.Close()
}

// connectBroker dials, opens the admin session and declares the topology.
// A failure at any step tears down what was opened so the next attempt
// starts clean.
func connectBroker(ctx context.Context, url string, cfg broker.TopologyConfig, logger *zap.Logger) (*brokerLink, error) {
	conn, err := broker.Dial(url)
	if err != nil {
		return nil, err
	}
	admin, err := broker.NewSession(conn, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	topology := broker.NewTopology(admin, cfg, logger)
	if err := topology.Ensure(ctx); err != nil {
		_ = admin.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare topology: %w", err)
	}
	return &brokerLink{conn: conn, admin: admin, topology: topology}, nil
}
