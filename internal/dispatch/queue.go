package dispatch

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/streadway/amqp"

	"event-router/internal/common/errors"
	"event-router/internal/storage"
)

func (d *Dispatcher) dispatchQueue(ctx context.Context, event *storage.DataEvent, rule *storage.RoutingRule) error {
	if d.queue == nil {
		return errors.DispatchError("queue destinations are not configured", nil)
	}

	queueName, err := configString(rule.DestinationConfig, "queue_name")
	if err != nil {
		return err
	}

	body, err := json.Marshal(webhookBody{
		EventID:   event.ID,
		EventType: event.EventType,
		Payload:   event.Payload,
		Metadata:  event.Metadata,
	})
	if err != nil {
		return errors.DispatchError("failed to encode queue message", err)
	}

	if err := d.queue.Publish(ctx, queueName, body); err != nil {
		return errors.DispatchError("failed to publish to queue", err)
	}

	return nil
}

// AMQPPublisher publishes events to RabbitMQ queues. Queues are declared
// durable on first use.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared map[string]bool
}

// NewAMQPPublisher connects to RabbitMQ and opens a channel
func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.ConnectionError("failed to connect to RabbitMQ", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.ConnectionError("failed to open RabbitMQ channel", err)
	}

	return &AMQPPublisher{
		conn:     conn,
		channel:  channel,
		declared: make(map[string]bool),
	}, nil
}

// Publish sends a persistent JSON message to the named queue
func (p *AMQPPublisher) Publish(ctx context.Context, queueName string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared[queueName] {
		_, err := p.channel.QueueDeclare(
			queueName,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return err
		}
		p.declared[queueName] = true
	}

	return p.channel.Publish(
		"",        // default exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
}

// Close shuts down the channel and connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
