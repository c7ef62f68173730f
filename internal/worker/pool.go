package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/notifyhub/salon-notifier/internal/broker"
)

// Consumer is one broker consumer instance; *broker.Consumer satisfies it.
type Consumer interface {
	Run(ctx context.Context, handler broker.Handler) error
}

// Pool manages the lifecycle of all consumer instances. Each instance owns
// its own channel and handles one message at a time; scaling out means more
// instances, never more goroutines per instance.
type Pool struct {
	consumers []Consumer
	handler   broker.Handler
	logger    *zap.Logger

	wg   sync.WaitGroup
	errs chan error
}

// NewPool wires every consumer to the same handler.
func NewPool(consumers []Consumer, handler broker.Handler, logger *zap.Logger) *Pool {
	return &Pool{
		consumers: consumers,
		handler:   handler,
		logger:    logger,
		errs:      make(chan error, len(consumers)),
	}
}

// Start launches all consumers as goroutines. Cancelling ctx stops them
// after their in-flight message is settled.
func (p *Pool) Start(ctx context.Context) {
	for i, c := range p.consumers {
		p.wg.Add(1)
		go func(id int, c Consumer) {
			defer p.wg.Done()
			if err := c.Run(ctx, p.handler); err != nil {
				p.logger.Error("consumer exited", zap.Int("consumer_id", id), zap.Error(err))
				p.errs <- err
			}
		}(i, c)
	}
}

// Errors reports consumers that stopped on their own, e.g. on connection
// loss. It is never closed.
func (p *Pool) Errors() <-chan error {
	return p.errs
}

// Wait blocks until every consumer has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
