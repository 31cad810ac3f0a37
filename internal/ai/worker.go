package ai

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

const (
	defaultWorkerCount   = 4
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	defaultJobTimeout    = 2 * time.Minute
	defaultFailureBuffer = 64
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// JobHandler runs a single reply job.
type JobHandler interface {
	HandleAIReply(ctx context.Context, job Job) (Outcome, error)
}

// JobFailure reports a job that ended in error.
type JobFailure struct {
	Job   Job
	Stage Stage
	Err   error
}

// Worker consumes reply jobs from the queue on a fixed number of goroutines.
type Worker struct {
	handler  JobHandler
	queue    Queue
	jobs     JobUpdater
	logger   *logging.Logger
	failures chan JobFailure

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	jobTimeout       time.Duration
	failureBuffer    int
	jobs             JobUpdater
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many jobs to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithJobTimeout bounds one job end to end, including the reply delay.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d > 0 {
			cfg.jobTimeout = d
		}
	}
}

// WithFailureBuffer sets the capacity of the failure channel.
func WithFailureBuffer(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n > 0 {
			cfg.failureBuffer = n
		}
	}
}

// WithJobUpdater records terminal job status for tracked jobs.
func WithJobUpdater(jobs JobUpdater) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.jobs = jobs
	}
}

// NewWorker constructs a queue consumer around the handler.
func NewWorker(handler JobHandler, queue Queue, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if handler == nil {
		panic("ai: handler cannot be nil")
	}
	if queue == nil {
		panic("ai: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		jobTimeout:       defaultJobTimeout,
		failureBuffer:    defaultFailureBuffer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		handler:  handler,
		queue:    queue,
		jobs:     cfg.jobs,
		logger:   logger,
		failures: make(chan JobFailure, cfg.failureBuffer),
		cfg:      cfg,
	}
}

// Failures streams failed jobs. When nobody drains it, failures beyond the
// buffer are dropped; they are still logged and counted.
func (w *Worker) Failures() <-chan JobFailure {
	return w.failures
}

// Start launches the worker goroutines. Call Wait after cancelling ctx.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("ai worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("ai worker stopping", "worker_id", workerID)
			return
		default:
		}

		msgs, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive ai jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range msgs {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg QueueMessage) {
	var job Job
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		w.logger.Error("failed to decode ai job", "error", err, "msg_id", msg.ID)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.jobTimeout)
	outcome, err := w.handler.HandleAIReply(jobCtx, job)
	cancel()

	if err != nil {
		w.reportFailure(JobFailure{Job: job, Stage: outcome.Stage, Err: err})
	}
	if job.TrackStatus && w.jobs != nil {
		replyID := ""
		if outcome.Reply != nil {
			replyID = outcome.Reply.ID
		}
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		} else if outcome.Status == JobStatusSkipped {
			errMsg = outcome.Reason
		}
		if storeErr := w.jobs.MarkFinished(context.Background(), job.ID, outcome.Status, string(outcome.Stage), replyID, errMsg); storeErr != nil {
			w.logger.Error("failed to update ai job status", "error", storeErr, "job_id", job.ID)
		}
	}

	// failed jobs are not redelivered: a retry could send a second reply
	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) reportFailure(f JobFailure) {
	select {
	case w.failures <- f:
	default:
		w.logger.Warn("ai failure channel full, dropping report", "job_id", f.Job.ID, "stage", f.Stage)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete ai job", "error", err)
	}
}
