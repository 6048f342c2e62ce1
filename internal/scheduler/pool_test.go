package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/logging"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/metrics"
)

var testMetrics = metrics.NewCollector("scheduler_test")

func testLogger() *logging.StructuredLogger {
	return logging.NewStructuredLogger("scheduler-test", "test", logging.FatalLevel)
}

func stopPool(t *testing.T, pool *Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestPoolExecutesTasks(t *testing.T) {
	pool := NewPool(2, 16, testLogger(), testMetrics)
	pool.Start()
	defer stopPool(t, pool)

	var done sync.WaitGroup
	var count int64
	for i := 0; i < 8; i++ {
		done.Add(1)
		err := pool.Submit(PriorityInteractive, func(ctx context.Context) {
			atomic.AddInt64(&count, 1)
			done.Done()
		})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	waitDone(t, &done)
	if got := atomic.LoadInt64(&count); got != 8 {
		t.Errorf("Expected 8 tasks executed, got %d", got)
	}
}

func TestPoolInteractiveBeforeBackground(t *testing.T) {
	pool := NewPool(1, 16, testLogger(), testMetrics)

	// Queue everything before the worker starts so the drain order is
	// observable: the single worker must take all interactive tasks first.
	gate := make(chan struct{})
	started := pool.Submit(PriorityInteractive, func(ctx context.Context) {
		<-gate
	})
	if started != nil {
		t.Fatalf("Submit() error = %v", started)
	}

	var order []string
	var mu sync.Mutex
	var done sync.WaitGroup
	record := func(label string) Task {
		return func(ctx context.Context) {
			mu.Lock()
			order = append(order, label)
			mu.Unlock()
			done.Done()
		}
	}

	for i := 0; i < 3; i++ {
		done.Add(1)
		if err := pool.Submit(PriorityBackground, record("background")); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		done.Add(1)
		if err := pool.Submit(PriorityInteractive, record("interactive")); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	pool.Start()
	close(gate)
	waitDone(t, &done)
	stopPool(t, pool)

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < 3; i++ {
		if order[i] != "interactive" {
			t.Fatalf("order[%d] = %v, want interactive drained first (full order %v)", i, order[i], order)
		}
	}
}

func TestPoolSubmitQueueFull(t *testing.T) {
	// No workers running, so submissions only fill the queue
	pool := NewPool(1, 2, testLogger(), testMetrics)

	for i := 0; i < 2; i++ {
		if err := pool.Submit(PriorityBackground, func(ctx context.Context) {}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	if err := pool.Submit(PriorityBackground, func(ctx context.Context) {}); err == nil {
		t.Error("Expected an error when the background queue is full")
	}

	// The interactive queue is independent of the background queue
	if err := pool.Submit(PriorityInteractive, func(ctx context.Context) {}); err != nil {
		t.Errorf("Submit() error = %v", err)
	}
}

func TestPoolStopHaltsWorkers(t *testing.T) {
	pool := NewPool(2, 4, testLogger(), testMetrics)
	pool.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func waitDone(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for tasks")
	}
}
