package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Processor runs one document through the pipeline.
type Processor interface {
	Process(ctx context.Context, id int64) (int, error)
}

// Worker processes documents in the background on a fixed number of goroutines.
// Failures are logged and not retried; the document records its own failure.
type Worker struct {
	proc   Processor
	ctx    context.Context
	jobs   chan int64
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewWorker starts workers goroutines that process queued document IDs with ctx.
func NewWorker(ctx context.Context, proc Processor, workers, queueSize int, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	w := &Worker{
		proc:   proc,
		ctx:    ctx,
		jobs:   make(chan int64, queueSize),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.run()
	}
	return w
}

// Enqueue schedules a document for processing. It blocks while the queue is full.
func (w *Worker) Enqueue(id int64) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrQueueClosed
	}
	w.jobs <- id
	return nil
}

// Close stops accepting work and waits until every queued document is processed.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()
	for id := range w.jobs {
		start := time.Now()
		chunks, err := w.proc.Process(w.ctx, id)
		if err != nil {
			w.logger.Error("Background processing failed", "document_id", id, "error", err)
			continue
		}
		w.logger.Info("Background processing complete",
			"document_id", id,
			"chunks", chunks,
			"duration", time.Since(start),
		)
	}
}
