package ai

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// AMQPQueue implements Queue on a durable RabbitMQ queue. Deliveries are
// acknowledged by Delete; unacknowledged jobs are redelivered by the broker.
type AMQPQueue struct {
	conn     *amqp091.Connection
	queue    string
	prefetch int

	subscribe func() (amqpSubscription, <-chan amqp091.Delivery, error)

	mu         sync.Mutex
	consumeCh  amqpSubscription
	deliveries <-chan amqp091.Delivery
	pending    map[string]amqp091.Delivery
}

// amqpSubscription is the consuming channel; *amqp091.Channel satisfies it.
type amqpSubscription interface {
	IsClosed() bool
	Close() error
}

// NewAMQPQueue declares the durable queue on conn.
func NewAMQPQueue(conn *amqp091.Connection, queue string, prefetch int) (*AMQPQueue, error) {
	if conn == nil {
		panic("ai: amqp connection cannot be nil")
	}
	if queue == "" {
		panic("ai: amqp queue name cannot be empty")
	}
	if prefetch <= 0 {
		prefetch = 10
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("ai: open amqp channel: %w", err)
	}
	defer ch.Close()
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("ai: declare amqp queue: %w", err)
	}
	q := &AMQPQueue{conn: conn, queue: queue, prefetch: prefetch, pending: make(map[string]amqp091.Delivery)}
	q.subscribe = q.openConsumer
	return q, nil
}

func (q *AMQPQueue) Send(ctx context.Context, body string) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("ai: open amqp channel: %w", err)
	}
	defer ch.Close()
	err = ch.PublishWithContext(ctx, "", q.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         []byte(body),
	})
	if err != nil {
		return fmt.Errorf("ai: failed to publish amqp job: %w", err)
	}
	return nil
}

// consume returns the live delivery channel, subscribing again when the
// previous channel was closed. Deliveries from a dead channel cannot be
// acked, so pending is reset on every new subscription.
func (q *AMQPQueue) consume() (<-chan amqp091.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil && q.consumeCh != nil && !q.consumeCh.IsClosed() {
		return q.deliveries, nil
	}
	sub, deliveries, err := q.subscribe()
	if err != nil {
		return nil, err
	}
	q.consumeCh = sub
	q.deliveries = deliveries
	q.pending = make(map[string]amqp091.Delivery)
	return deliveries, nil
}

func (q *AMQPQueue) openConsumer() (amqpSubscription, <-chan amqp091.Delivery, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("ai: open amqp channel: %w", err)
	}
	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("ai: set amqp qos: %w", err)
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("ai: consume amqp queue: %w", err)
	}
	return ch, deliveries, nil
}

func (q *AMQPQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error) {
	deliveries, err := q.consume()
	if err != nil {
		return nil, err
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}
	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	var out []QueueMessage
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case d, ok := <-deliveries:
		if !ok {
			return nil, fmt.Errorf("ai: amqp delivery channel closed")
		}
		out = append(out, q.track(d))
	}
	for len(out) < maxMessages {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return out, nil
			}
			out = append(out, q.track(d))
		default:
			return out, nil
		}
	}
	return out, nil
}

func (q *AMQPQueue) track(d amqp091.Delivery) QueueMessage {
	handle := strconv.FormatUint(d.DeliveryTag, 10)
	q.mu.Lock()
	q.pending[handle] = d
	q.mu.Unlock()
	return QueueMessage{ID: d.MessageId, Body: string(d.Body), ReceiptHandle: handle}
}

// Delete acknowledges the delivery.
func (q *AMQPQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	d, ok := q.pending[receiptHandle]
	delete(q.pending, receiptHandle)
	q.mu.Unlock()
	if !ok {
		return nil
	}
	if err := d.Ack(false); err != nil {
		return fmt.Errorf("ai: ack amqp job: %w", err)
	}
	return nil
}

// Close stops consuming.
func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.consumeCh == nil {
		return nil
	}
	return q.consumeCh.Close()
}
