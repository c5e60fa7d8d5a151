package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lab-notebook/notebook_go/pkg/logger"
)

// Handler processes one claimed job. An error sends the job through the
// retry path; nil completes it.
type Handler func(ctx context.Context, job *ConversionJob) error

// Pool runs a fixed number of workers polling the queue. Conversions are
// independent per file, so workers run fully in parallel; shared
// per-experiment state is guarded downstream by the memory store's
// single-writer lock, not here.
type Pool struct {
	queue    *Queue
	handler  Handler
	workers  int
	interval time.Duration
	logger   logger.ExtendedLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool. workers <= 0 defaults to 2.
func NewPool(queue *Queue, handler Handler, workers int, log logger.ExtendedLogger) *Pool {
	if workers <= 0 {
		workers = 2
	}
	return &Pool{
		queue:    queue,
		handler:  handler,
		workers:  workers,
		interval: 250 * time.Millisecond,
		logger:   log,
	}
}

// Start resets stuck jobs and launches the workers.
func (p *Pool) Start(ctx context.Context) error {
	reset, err := p.queue.ResetStuck(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		p.logger.Warnf("reset %d stuck conversion jobs to pending", reset)
	}

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		workerID := fmt.Sprintf("worker-%d", i+1)
		go p.run(ctx, workerID)
	}
	p.logger.Infof("conversion worker pool started with %d workers", p.workers)
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, workerID string) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Claim(ctx, workerID)
		if err != nil {
			p.logger.Errorf("%s failed to claim a job: %v", workerID, err)
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.interval):
			}
			continue
		}

		p.logger.Infof("%s processing conversion of %q (attempt %d)", workerID, job.OriginalName, job.Attempts)
		if err := p.handler(ctx, job); err != nil {
			p.logger.Errorf("%s conversion of %q failed: %v", workerID, job.OriginalName, err)
			if ferr := p.queue.Fail(ctx, job.ID, err); ferr != nil {
				p.logger.Errorf("%s failed to record job failure: %v", workerID, ferr)
			}
			continue
		}
		if err := p.queue.Complete(ctx, job.ID); err != nil {
			p.logger.Errorf("%s failed to mark job completed: %v", workerID, err)
		}
	}
}
