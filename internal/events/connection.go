package events

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

const maxDialDelay = 30 * time.Second

// DialAMQP connects to the broker with exponential backoff, giving up after
// attempts tries or when ctx is done.
func DialAMQP(ctx context.Context, url string, attempts int, logger *logging.Logger) (*amqp091.Connection, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if attempts <= 0 {
		attempts = 1
	}
	delay := 500 * time.Millisecond
	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp091.Dial(url)
		if err == nil {
			if i > 1 {
				logger.Info("amqp connected", "attempt", i)
			}
			return conn, nil
		}
		lastErr = err
		if i == attempts {
			break
		}
		logger.Warn("amqp dial failed", "attempt", i, "sleep", delay, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("events: amqp dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
		delay *= 2
		if delay > maxDialDelay {
			delay = maxDialDelay
		}
	}
	return nil, fmt.Errorf("events: amqp dial failed after %d attempts: %w", attempts, lastErr)
}
