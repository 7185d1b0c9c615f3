package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/docingest/internal/pipeline"
)

// ProcessorQueue feeds jobs to a pipeline.Processor from a fixed pool of
// workers. Enqueue blocks when the buffer fills, which is the backpressure.
type ProcessorQueue struct {
	proc    *pipeline.Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration
	handle  func(ctx context.Context, job Job, res *pipeline.Result)

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithResultHandler installs a sink invoked with every successful result,
// still under the job's timeout context.
func WithResultHandler(fn func(ctx context.Context, job Job, res *pipeline.Result)) Option {
	return func(q *ProcessorQueue) {
		q.handle = fn
	}
}

func NewProcessorQueue(proc *pipeline.Processor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 2,
		timeout: 5 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("queue worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					res, err := q.proc.Process(ctx, pipeline.Request{
						Key:          job.Key,
						VisionBudget: job.VisionBudget,
					})
					if err != nil {
						cancel()
						q.logger.Error("document processing failed",
							"worker_id", workerID, "key", job.Key, "trace_id", job.TraceID, "error", err)
						continue
					}
					if q.handle != nil {
						q.handle(ctx, job, res)
					}
					cancel()
					q.logger.Info("document processed",
						"worker_id", workerID,
						"key", job.Key,
						"trace_id", job.TraceID,
						"pages", res.Stats.TotalPages,
						"vision_pages", res.Stats.VisionPages,
					)
				}

				q.logger.Info("queue worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "key", job.Key)
		return nil
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued document", "key", job.Key, "trace_id", job.TraceID)
	default:
		q.logger.Warn("queue full, applying backpressure", "key", job.Key)
		q.ch <- job
	}
	return nil
}

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
