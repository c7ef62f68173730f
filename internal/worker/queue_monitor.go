package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DepthInspector reports ready message counts per queue;
// *broker.Topology satisfies it.
type DepthInspector interface {
	QueueDepths() (map[string]int, error)
}

// QueueMonitor samples broker queue depths on a ticker and hands them to a
// gauge setter. A growing dead-letter queue is the signal operators alert on.
type QueueMonitor struct {
	inspector DepthInspector
	interval  time.Duration
	setDepth  func(queue string, depth int)
	logger    *zap.Logger
}

func NewQueueMonitor(
	inspector DepthInspector,
	interval time.Duration,
	setDepth func(queue string, depth int),
	logger *zap.Logger,
) *QueueMonitor {
	if setDepth == nil {
		setDepth = func(string, int) {}
	}
	return &QueueMonitor{inspector: inspector, interval: interval, setDepth: setDepth, logger: logger}
}

// Run samples once immediately, then every interval, until ctx is cancelled.
func (qm *QueueMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(qm.interval)
	defer ticker.Stop()

	qm.logger.Info("queue monitor started", zap.Duration("interval", qm.interval))
	qm.poll()

	for {
		select {
		case <-ctx.Done():
			qm.logger.Info("queue monitor stopping")
			return
		case <-ticker.C:
			qm.poll()
		}
	}
}

func (qm *QueueMonitor) poll() {
	depths, err := qm.inspector.QueueDepths()
	if err != nil {
		qm.logger.Warn("queue depth poll error", zap.Error(err))
		return
	}
	for q, n := range depths {
		qm.setDepth(q, n)
	}
}
