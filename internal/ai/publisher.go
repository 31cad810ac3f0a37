package ai

import (
	"context"
	"fmt"

	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

// Publisher enqueues reply jobs for asynchronous processing.
type Publisher struct {
	queue  Queue
	jobs   JobRecorder
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher. jobs may be nil.
func NewPublisher(queue Queue, jobs JobRecorder, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("ai: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, jobs: jobs, logger: logger}
}

// Enqueue publishes a reply job and returns it with its id populated.
func (p *Publisher) Enqueue(ctx context.Context, job Job) (Job, error) {
	job.TrackStatus = p.jobs != nil
	job, body, err := encodeJob(job)
	if err != nil {
		return Job{}, err
	}
	if p.jobs != nil {
		if err := p.jobs.PutPending(ctx, &JobRecord{
			JobID:            job.ID,
			OrgID:            job.OrgID,
			ConversationID:   job.ConversationID,
			InboundMessageID: job.InboundMessageID,
		}); err != nil {
			// tracking is best effort; the job itself still runs
			p.logger.Warn("failed to record pending ai job", "job_id", job.ID, "error", err)
			job.TrackStatus = false
			job, body, err = encodeJob(job)
			if err != nil {
				return Job{}, err
			}
		}
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return Job{}, fmt.Errorf("ai: failed to enqueue job: %w", err)
	}
	p.logger.Debug("ai reply job enqueued", "job_id", job.ID, "org_id", job.OrgID, "conversation_id", job.ConversationID)
	return job, nil
}
