package eventsync

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WorkerConfig contains worker configuration.
type WorkerConfig struct {
	PollInterval time.Duration
	NumWorkers   int
}

// QueueProcessor drains one batch of the sync queue.
type QueueProcessor interface {
	ProcessQueue(ctx context.Context) DispatchStats
}

// Worker periodically drains the sync queue so retries fire once their
// backoff has elapsed, even when nothing new is emitted.
type Worker struct {
	config    WorkerConfig
	processor QueueProcessor

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a new queue worker.
func NewWorker(config WorkerConfig, processor QueueProcessor) *Worker {
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}
	return &Worker{
		config:    config,
		processor: processor,
		stopCh:    make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting sync worker",
		"workers", w.config.NumWorkers,
		"poll_interval", w.config.PollInterval,
	)

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	slog.Info("sync worker stopped")
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			stats := w.processor.ProcessQueue(ctx)
			if stats.Claimed > 0 {
				slog.Debug("sync worker drained batch", "worker", workerID, "claimed", stats.Claimed)
			}
		}
	}
}
