package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgallion1/docnarrate/internal/config"
	"github.com/dgallion1/docnarrate/internal/metrics"
)

// Orchestrator queues uploaded documents and narrates them one at a time.
// A single worker keeps the speech service and the fault counters to one
// caller.
type Orchestrator struct {
	jobs    *JobStore
	queue   chan *Job
	conv    *ChunkConverter
	metrics *metrics.Metrics
	log     *slog.Logger
	cfg     config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// ErrStopped is returned by Submit once Stop has been called.
var ErrStopped = errors.New("pipeline is shutting down")

// NewOrchestrator creates the pipeline. Call Start to begin processing.
func NewOrchestrator(cfg config.Config, conv *ChunkConverter, m *metrics.Metrics, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:    NewJobStore(cfg.JobTTL),
		queue:   make(chan *Job, cfg.MaxQueueSize),
		conv:    conv,
		metrics: m,
		log:     log,
		cfg:     cfg,
	}
}

// Start launches the worker goroutine.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		w := NewWorker(o.conv, o.metrics, o.log, o.cfg)
		for {
			select {
			case <-workerCtx.Done():
				return
			case job, ok := <-o.queue:
				if !ok {
					return
				}
				w.Process(workerCtx, job)
			}
		}
	}()

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.cleanup()
			}
		}
	}()
}

func (o *Orchestrator) cleanup() {
	for _, job := range o.jobs.Cleanup() {
		if dir := job.OutputDir(); dir != "" {
			if err := os.RemoveAll(dir); err != nil {
				o.log.Warn("remove expired job output", "job_id", job.ID, "error", err)
			}
		}
	}
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Lock()
	if !o.stopped {
		o.stopped = true
		close(o.queue)
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.stopped {
		return ErrStopped
	}

	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Converter returns the shared chunk converter for stats reporting.
func (o *Orchestrator) Converter() *ChunkConverter {
	return o.conv
}
