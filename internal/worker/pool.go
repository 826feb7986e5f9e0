// Package worker runs pipeline jobs on a bounded pool. Enqueue blocks
// when the buffer is full, which is the backpressure signal upstream
// submitters see.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"finspread/internal/common"
	"finspread/internal/entity"
)

// Job is the smallest useful unit of work.
type Job struct {
	DocumentID  uuid.UUID
	SubmittedAt time.Time
	TraceID     string
}

// Runner drives one document through the pipeline.
type Runner interface {
	Run(ctx context.Context, documentID uuid.UUID) (*entity.PipelineRun, error)
	Resume(ctx context.Context, run *entity.PipelineRun) error
}

// Pool is a fixed-size worker pool over a buffered job channel.
type Pool struct {
	runner     Runner
	jobs       chan Job
	workers    int
	runTimeout time.Duration
	log        *slog.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	sending sync.WaitGroup // submissions in flight; Shutdown waits before closing jobs
	closed  bool
}

func NewPool(runner Runner, cfg common.PipelineConfig, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	return &Pool{
		runner:     runner,
		jobs:       make(chan Job, size),
		workers:    workers,
		runTimeout: cfg.RunTimeout,
		log:        log,
	}
}

// Start launches the workers. They exit when the queue is closed and
// drained, or when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
	p.log.Info("worker.pool_started", "workers", p.workers, "queue_size", cap(p.jobs))
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.runJob(ctx, id, job)
		}
	}
}

func (p *Pool) runJob(ctx context.Context, worker int, job Job) {
	runCtx := ctx
	var cancel context.CancelFunc
	if p.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.runTimeout)
		defer cancel()
	}
	if job.TraceID != "" {
		runCtx = common.WithRequestID(runCtx, job.TraceID)
	}

	started := time.Now()
	run, err := p.runner.Run(runCtx, job.DocumentID)
	if err != nil {
		p.log.Error("worker.run_failed", "worker", worker,
			"document_id", job.DocumentID, "trace_id", job.TraceID, "error", err)
		return
	}
	p.log.Info("worker.run_done", "worker", worker,
		"document_id", job.DocumentID, "run_id", run.ID,
		"status", run.Status, "duration", time.Since(started), "trace_id", job.TraceID)
}

// Enqueue submits a job, blocking while the buffer is full. Fails once
// the pool is shut down or ctx expires. The closed check and the send
// registration happen under one lock so Shutdown never closes the job
// channel while a send is in flight.
func (p *Pool) Enqueue(ctx context.Context, job Job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("worker pool is shut down")
	}
	p.sending.Add(1)
	p.mu.Unlock()
	defer p.sending.Done()

	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResumeStranded replays runs left pending or processing by a previous
// process, synchronously, before new intake starts.
func (p *Pool) ResumeStranded(ctx context.Context, runs []*entity.PipelineRun) {
	for _, run := range runs {
		if err := p.runner.Resume(ctx, run); err != nil {
			p.log.Error("worker.resume_failed", "run_id", run.ID, "error", err)
			continue
		}
		p.log.Info("worker.resumed", "run_id", run.ID, "status", run.Status)
	}
}

// Shutdown stops intake, drains queued jobs, and waits for workers up
// to ctx's deadline. In-flight Enqueue calls finish or give up on their
// own contexts before the job channel closes.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.sending.Wait()
	close(p.jobs)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.log.Info("worker.pool_drained")
	case <-ctx.Done():
		p.log.Warn("worker.shutdown_timeout", "error", ctx.Err())
	}
}
