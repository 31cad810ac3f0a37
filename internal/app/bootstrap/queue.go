package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rabbitmq/amqp091-go"

	"github.com/wolfman30/inbox-ai-platform/internal/ai"
	appconfig "github.com/wolfman30/inbox-ai-platform/internal/config"
)

// BuildAIQueue returns the reply job queue for the configured backend.
func BuildAIQueue(cfg *appconfig.Config, awsCfg aws.Config, amqpConn *amqp091.Connection) (ai.Queue, error) {
	switch cfg.AIQueueBackend {
	case appconfig.QueueBackendMemory, "":
		return ai.NewMemoryQueue(cfg.AIQueueBuffer), nil
	case appconfig.QueueBackendSQS:
		if cfg.AIQueueURL == "" {
			return nil, fmt.Errorf("bootstrap: AI_QUEUE_URL is required for the sqs backend")
		}
		return ai.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.AIQueueURL), nil
	case appconfig.QueueBackendAMQP:
		if amqpConn == nil {
			return nil, fmt.Errorf("bootstrap: AMQP_URL is required for the amqp backend")
		}
		queue, err := ai.NewAMQPQueue(amqpConn, cfg.AMQPAIQueue, cfg.AIWorkerCount*2)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: amqp ai queue: %w", err)
		}
		return queue, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown AI_QUEUE_BACKEND %q", cfg.AIQueueBackend)
	}
}

// InProcessWorkers reports whether the API process must consume the queue
// itself. The memory queue is not shared with cmd/ai-worker.
func InProcessWorkers(cfg *appconfig.Config) bool {
	return cfg.AIQueueBackend == appconfig.QueueBackendMemory || cfg.AIQueueBackend == ""
}
