package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
)

// Queue transports reply jobs between the ingest path and the workers.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// QueueMessage is one received job body.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Job asks for an AI reply to one stored inbound message.
type Job struct {
	ID               string               `json:"id"`
	OrgID            string               `json:"org_id"`
	ConversationID   string               `json:"conversation_id"`
	InboundMessageID string               `json:"inbound_message_id"`
	Channel          channels.ChannelType `json:"channel"`
	EnqueuedAt       time.Time            `json:"enqueued_at"`
	TrackStatus      bool                 `json:"track_status"`
}

func encodeJob(job Job) (Job, string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, "", fmt.Errorf("ai: failed to encode job: %w", err)
	}
	return job, string(body), nil
}
