package pipeline

import (
	"context"
	"log/slog"
	"time"

	"dicom-archive/internal/queue"
)

// Worker drains the durable queue on a poll interval, processing items one at
// a time. There is no signaling between receiver and worker; polling trades a
// small latency bound for crash-safety.
type Worker struct {
	queue    *queue.Queue
	pipe     *Pipeline
	interval time.Duration
	log      *slog.Logger
}

// NewWorker creates a queue-drain worker.
func NewWorker(q *queue.Queue, pipe *Pipeline, interval time.Duration, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{queue: q, pipe: pipe, interval: interval, log: log}
}

// Run polls until the context is cancelled. The file in flight when
// cancellation arrives is processed to completion; nothing is abandoned
// mid-file.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("queue worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("queue worker stopped")
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain processes at most the number of items pending when it is called, so
// an item requeued after a retryable failure is not retried within the same
// tick.
func (w *Worker) Drain(ctx context.Context) {
	n := w.queue.Size()
	if n > 0 {
		w.log.Debug("draining queue", "pending", n)
	}
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		path, ok := w.queue.Dequeue()
		if !ok {
			return
		}

		res := w.pipe.Process(path)
		switch {
		case res.Status == StatusDone:
			if err := w.queue.Remove(path); err != nil {
				w.log.Warn("could not remove processed item", "item", path, "error", err)
			}
		case res.Status.Terminal():
			w.log.Info("queue item rejected", "item", path,
				"status", string(res.Status), "reason", res.Reason)
			if err := w.queue.Remove(path); err != nil {
				w.log.Warn("could not remove rejected item", "item", path, "error", err)
			}
		default:
			w.log.Warn("queue item will be retried", "item", path,
				"status", string(res.Status), "error", res.Err)
			if err := w.queue.Requeue(path); err != nil {
				w.log.Error("could not requeue item", "item", path, "error", err)
			}
		}
	}
}
