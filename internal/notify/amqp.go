package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ignite/newsletter-service/internal/pkg/logger"
)

// AMQPTopology names the exchange, queue and routing key used for jobs.
type AMQPTopology struct {
	Exchange   string
	Queue      string
	RoutingKey string
}

// amqpChannel is the subset of *amqp.Channel used here.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// DialAMQP opens a connection and channel and declares the job topology.
func DialAMQP(rawURL string, topo AMQPTopology) (*amqp.Connection, *amqp.Channel, error) {
	cleanURL, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, nil, err
	}
	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := declareTopology(ch, topo); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

func declareTopology(ch amqpChannel, topo AMQPTopology) error {
	if err := ch.ExchangeDeclare(topo.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", topo.Exchange, err)
	}
	q, err := ch.QueueDeclare(topo.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", topo.Queue, err)
	}
	if err := ch.QueueBind(q.Name, topo.RoutingKey, topo.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", q.Name, err)
	}
	return nil
}

// AMQPPublisher enqueues jobs on a RabbitMQ exchange.
type AMQPPublisher struct {
	ch   amqpChannel
	topo AMQPTopology
}

// NewAMQPPublisher creates a publisher on an open channel.
func NewAMQPPublisher(ch *amqp.Channel, topo AMQPTopology) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, topo: topo}
}

func (p *AMQPPublisher) Publish(ctx context.Context, j Job) error {
	body, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := p.ch.PublishWithContext(ctx, p.topo.Exchange, p.topo.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(j.Kind),
		Timestamp:    j.EnqueuedAt,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publish job to %s: %w", p.topo.Exchange, err)
	}
	return nil
}

const (
	amqpRetryDelay    = 2 * time.Second
	amqpMaxRetryDelay = time.Minute
)

// AMQPConsumer consumes jobs from a RabbitMQ queue.
type AMQPConsumer struct {
	ch      amqpChannel
	queue   string
	handler JobHandler

	// retryDelay is the pause before the first requeue; it doubles per
	// consecutive failure up to maxRetryDelay.
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	failures      int
}

// NewAMQPConsumer creates a consumer on an open channel.
func NewAMQPConsumer(ch *amqp.Channel, queue string, handler JobHandler) *AMQPConsumer {
	return &AMQPConsumer{
		ch:            ch,
		queue:         queue,
		handler:       handler,
		retryDelay:    amqpRetryDelay,
		maxRetryDelay: amqpMaxRetryDelay,
	}
}

// Run consumes until ctx is done or the channel closes.
func (c *AMQPConsumer) Run(ctx context.Context) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	logger.Info("newsletter AMQP consumer started", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// handle acks processed jobs, drops malformed ones and requeues failed ones
// after a backoff, so a downed SES does not turn into a redelivery loop.
func (c *AMQPConsumer) handle(ctx context.Context, d amqp.Delivery) {
	j, err := DecodeJob(d.Body)
	if err != nil {
		logger.Warn("AMQP bad message dropped", "error", err)
		d.Nack(false, false)
		return
	}
	if err := c.handler(ctx, j); err != nil {
		c.failures++
		delay := c.backoff()
		logger.Warn("newsletter job failed, requeueing",
			"kind", j.Kind,
			"subscriber_id", j.Subscriber.ID,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
		d.Nack(false, true)
		return
	}
	c.failures = 0
	d.Ack(false)
}

func (c *AMQPConsumer) backoff() time.Duration {
	if c.retryDelay <= 0 || c.failures == 0 {
		return 0
	}
	delay := c.retryDelay
	for i := 1; i < c.failures; i++ {
		delay *= 2
		if c.maxRetryDelay > 0 && delay >= c.maxRetryDelay {
			return c.maxRetryDelay
		}
	}
	return delay
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
