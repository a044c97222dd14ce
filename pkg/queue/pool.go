package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eremenai/agentlytics/pkg/config"
)

// WorkerPool manages a pool of queue workers sharing one claimer and one
// processor. Replicas need no coordinator: skip-locked claiming distributes
// work, and the dispatcher's canonical lock order serialises overlapping
// groups.
type WorkerPool struct {
	podID   string
	db      *pgxpool.Pool
	cfg     *config.WorkerConfig
	claimer *Claimer
	workers []*Worker
	started bool
}

// NewWorkerPool creates a worker pool. The processor is selected by
// configuration: the group-locking dispatcher by default, the per-event
// fallback when WORKER_USE_BATCH_PROCESSOR is false.
func NewWorkerPool(podID string, db *pgxpool.Pool, cfg *config.WorkerConfig) *WorkerPool {
	return &WorkerPool{
		podID:   podID,
		db:      db,
		cfg:     cfg,
		claimer: NewClaimer(db),
		workers: make([]*Worker, 0, cfg.WorkerCount),
	}
}

// Start spawns the worker goroutines. Safe to call multiple times; subsequent
// calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return
	}
	p.started = true

	var processor Processor
	if p.cfg.UseBatchProcessor {
		processor = NewDispatcher(p.db)
	} else {
		slog.Warn("Batch processor disabled, using per-event fallback", "pod_id", p.podID)
		processor = NewPerEventProcessor(p.db)
	}

	slog.Info("Starting worker pool", "pod_id", p.podID, "worker_count", p.cfg.WorkerCount)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.podID, p.cfg, p.claimer, processor)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}
}

// Stop signals all workers to stop and waits for in-flight batches to finish.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")
	for _, worker := range p.workers {
		worker.Stop()
	}
	slog.Info("Worker pool stopped gracefully")
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	ctx := context.Background()

	depth, err := p.claimer.Depth(ctx)
	if err != nil {
		slog.Error("Failed to query queue depth for health check",
			"pod_id", p.podID, "error", err)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	dbHealthy := err == nil

	health := &PoolHealth{
		IsHealthy:     len(p.workers) > 0 && dbHealthy,
		DBReachable:   dbHealthy,
		PodID:         p.podID,
		ActiveWorkers: activeWorkers,
		TotalWorkers:  len(p.workers),
		QueueDepth:    depth,
		WorkerStats:   workerStats,
	}
	if err != nil {
		health.DBError = fmt.Sprintf("queue depth query failed: %v", err)
	}
	return health
}
