package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/salon-notifier/internal/worker"
)

type fakeInspector struct {
	depths map[string]int
	err    error
}

func (f fakeInspector) QueueDepths() (map[string]int, error) { return f.depths, f.err }

type gauge struct {
	mu  sync.Mutex
	got map[string]int
}

func (g *gauge) set(q string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.got[q] = n
}

func (g *gauge) get(q string) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.got[q]
	return n, ok
}

func TestQueueMonitor_PollsImmediately(t *testing.T) {
	g := &gauge{got: map[string]int{}}
	qm := worker.NewQueueMonitor(fakeInspector{depths: map[string]int{"notifications.dead": 2, "notifications.work": 9}},
		time.Hour, g.set, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { qm.Run(ctx); close(done) }()

	deadline := time.Now().Add(time.Second)
	for {
		if n, ok := g.get("notifications.work"); ok {
			if n != 9 {
				t.Fatalf("expected depth 9, got %d", n)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("monitor did not sample on start")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if n, _ := g.get("notifications.dead"); n != 2 {
		t.Fatalf("expected dead-letter depth 2, got %d", n)
	}
}

func TestQueueMonitor_ErrorLeavesGaugesUntouched(t *testing.T) {
	g := &gauge{got: map[string]int{}}
	qm := worker.NewQueueMonitor(fakeInspector{err: errors.New("channel closed")}, 5*time.Millisecond, g.set, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	qm.Run(ctx)

	if len(g.got) != 0 {
		t.Fatalf("expected no samples, got %v", g.got)
	}
}
