package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eremenai/agentlytics/pkg/config"
)

// Worker is a single queue worker: poll, claim, dispatch, report, repeat.
// An empty claim sleeps the poll interval; a non-empty one loops immediately
// so a backlog drains at full speed.
type Worker struct {
	id        string
	podID     string
	cfg       *config.WorkerConfig
	claimer   *Claimer
	processor Processor
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	// Health tracking
	mu              sync.RWMutex
	status          WorkerStatus
	batchesDone     int
	eventsProcessed int
	eventsFailed    int
	lastActivity    time.Time
}

// NewWorker creates a queue worker.
func NewWorker(id, podID string, cfg *config.WorkerConfig, claimer *Claimer, processor Processor) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		cfg:          cfg,
		claimer:      claimer,
		processor:    processor,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the in-flight batch to finish.
// It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:              w.id,
		Status:          w.status,
		BatchesDone:     w.batchesDone,
		EventsProcessed: w.eventsProcessed,
		EventsFailed:    w.eventsFailed,
		LastActivity:    w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("Worker started",
		"poll_interval", w.cfg.PollInterval, "batch_size", w.cfg.BatchSize)

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx, log); err != nil {
				if errors.Is(err, ErrNoEventsAvailable) {
					w.sleep(w.cfg.PollInterval)
					continue
				}
				log.Error("Error processing batch", "error", err)
				w.sleep(time.Second) // Brief backoff on error
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims one batch and hands it to the processor.
func (w *Worker) pollAndProcess(ctx context.Context, log *slog.Logger) error {
	batch, err := w.claimer.Claim(ctx, w.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return ErrNoEventsAvailable
	}

	w.setStatus(WorkerStatusWorking)
	defer w.setStatus(WorkerStatusIdle)

	eventsClaimed.Add(float64(len(batch)))

	start := time.Now()
	res := w.processor.Process(ctx, batch)
	batchDuration.Observe(time.Since(start).Seconds())
	eventsProcessed.Add(float64(res.Processed))
	eventsFailed.Add(float64(res.Failed))

	w.mu.Lock()
	w.batchesDone++
	w.eventsProcessed += res.Processed
	w.eventsFailed += res.Failed
	w.mu.Unlock()

	// Remaining backlog after every non-empty batch, for the operator log.
	remaining, err := w.claimer.Depth(ctx)
	if err != nil {
		log.Warn("Failed to count remaining queue depth", "error", err)
	} else {
		queueDepth.Set(float64(remaining))
	}

	log.Info("Batch complete",
		"claimed", len(batch), "processed", res.Processed,
		"failed", res.Failed, "remaining", remaining)
	return nil
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.lastActivity = time.Now()
}
