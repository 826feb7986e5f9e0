package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"finspread/constants"
	"finspread/internal/common"
	"finspread/internal/entity"
)

type stubRunner struct {
	mu      sync.Mutex
	ran     []uuid.UUID
	resumed []uuid.UUID
	block   chan struct{} // when set, Run waits until closed
}

func (s *stubRunner) Run(ctx context.Context, documentID uuid.UUID) (*entity.PipelineRun, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	s.ran = append(s.ran, documentID)
	s.mu.Unlock()
	run := entity.NewPipelineRun(documentID)
	run.Finish(constants.RunStatusCompleted)
	return run, nil
}

func (s *stubRunner) Resume(_ context.Context, run *entity.PipelineRun) error {
	s.mu.Lock()
	s.resumed = append(s.resumed, run.ID)
	s.mu.Unlock()
	run.Finish(constants.RunStatusCompleted)
	return nil
}

func (s *stubRunner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ran)
}

func testPoolConfig() common.PipelineConfig {
	return common.PipelineConfig{WorkerCount: 2, QueueSize: 8, RunTimeout: time.Second}
}

func TestPoolProcessesJobs(t *testing.T) {
	runner := &stubRunner{}
	pool := NewPool(runner, testPoolConfig(), nil)
	ctx := context.Background()
	pool.Start(ctx)

	for i := 0; i < 5; i++ {
		if err := pool.Enqueue(ctx, Job{DocumentID: uuid.New()}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	pool.Shutdown(shutdownCtx)

	if got := runner.count(); got != 5 {
		t.Errorf("processed %d jobs, want 5", got)
	}
}

func TestPoolEnqueueAfterShutdown(t *testing.T) {
	pool := NewPool(&stubRunner{}, testPoolConfig(), nil)
	pool.Start(context.Background())
	pool.Shutdown(context.Background())

	if err := pool.Enqueue(context.Background(), Job{DocumentID: uuid.New()}); err == nil {
		t.Error("enqueue after shutdown succeeded")
	}
}

func TestPoolEnqueueBackpressure(t *testing.T) {
	runner := &stubRunner{block: make(chan struct{})}
	cfg := common.PipelineConfig{WorkerCount: 1, QueueSize: 1}
	pool := NewPool(runner, cfg, nil)
	ctx := context.Background()
	pool.Start(ctx)

	// One job occupies the worker, one fills the buffer; the next must
	// block until the submit context gives up.
	for i := 0; i < 2; i++ {
		if err := pool.Enqueue(ctx, Job{DocumentID: uuid.New()}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	blockedCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := pool.Enqueue(blockedCtx, Job{DocumentID: uuid.New()}); err == nil {
		t.Error("enqueue into a full queue did not block")
	}

	close(runner.block)
	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 2*time.Second)
	defer cancelShutdown()
	pool.Shutdown(shutdownCtx)
}

func TestPoolEnqueueDuringShutdown(t *testing.T) {
	runner := &stubRunner{}
	cfg := common.PipelineConfig{WorkerCount: 2, QueueSize: 2}
	pool := NewPool(runner, cfg, nil)
	ctx := context.Background()
	pool.Start(ctx)

	// Hammer the queue from several submitters while the pool shuts
	// down; every Enqueue must return cleanly, never panic on a closed
	// channel.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			submitCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			for j := 0; j < 50; j++ {
				if err := pool.Enqueue(submitCtx, Job{DocumentID: uuid.New()}); err != nil {
					return
				}
			}
		}()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	pool.Shutdown(shutdownCtx)
	wg.Wait()

	if err := pool.Enqueue(ctx, Job{DocumentID: uuid.New()}); err == nil {
		t.Error("enqueue after shutdown succeeded")
	}
}

func TestPoolResumeStranded(t *testing.T) {
	runner := &stubRunner{}
	pool := NewPool(runner, testPoolConfig(), nil)

	stranded := []*entity.PipelineRun{
		entity.NewPipelineRun(uuid.New()),
		entity.NewPipelineRun(uuid.New()),
	}
	pool.ResumeStranded(context.Background(), stranded)

	if len(runner.resumed) != 2 {
		t.Errorf("resumed %d runs, want 2", len(runner.resumed))
	}
}
