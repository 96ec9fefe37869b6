package mq

import (
	"Go_Uploader/config"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeTasks  = "upload.exchange"
	ExchangeRetry  = "upload.retry.exchange"
	ExchangeDLQ    = "upload.dlq.exchange"
	ExchangeEvents = "upload.events.exchange"

	QueueTasks = "upload.queue"
	QueueRetry = "upload.retry.queue"
	QueueDLQ   = "upload.dlq.queue"

	RoutingTask  = "upload"
	RoutingRetry = "upload.retry"
	RoutingDLQ   = "upload.dlq"
)

// Publisher is the publishing side of Client.
type Publisher interface {
	PublishTask(ctx context.Context, body []byte) error
	PublishRetry(ctx context.Context, body []byte, delay time.Duration) error
	PublishDLQ(ctx context.Context, body []byte) error
	PublishEvent(ctx context.Context, routingKey string, body []byte) error
}

// Client is one AMQP connection with a single channel. Publishes are
// serialised since channels are not safe for concurrent use.
type Client struct {
	Conn      *amqp.Connection
	Channel   *amqp.Channel
	publishMu sync.Mutex
}

var publisherMu sync.Mutex
var publisher *Client

// Dial opens a client on the configured broker.
func Dial() (*Client, error) {
	conn, err := amqp.Dial(config.AppConfig.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	return &Client{Conn: conn, Channel: ch}, nil
}

// GetPublisher returns the shared publishing client, redialing when the
// connection was lost.
func GetPublisher() (*Client, error) {
	publisherMu.Lock()
	defer publisherMu.Unlock()
	if publisher != nil {
		if !publisher.Conn.IsClosed() && !publisher.Channel.IsClosed() {
			return publisher, nil
		}
		publisher.Close()
		publisher = nil
	}
	client, err := Dial()
	if err != nil {
		return nil, err
	}
	if err := client.DeclareTopology(); err != nil {
		client.Close()
		return nil, err
	}
	publisher = client
	return publisher, nil
}

// ClosePublisher closes the shared publishing client.
func ClosePublisher() {
	publisherMu.Lock()
	defer publisherMu.Unlock()
	publisher.Close()
	publisher = nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.Channel != nil {
		_ = c.Channel.Close()
	}
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

type queueSpec struct {
	queue, key, exchange string
	args                 amqp.Table
}

// topology lists the durable queues of the upload pipeline. Messages parked in
// the retry queue dead-letter back into the task queue once their TTL expires.
var topology = []queueSpec{
	{queue: QueueTasks, key: RoutingTask, exchange: ExchangeTasks},
	{queue: QueueRetry, key: RoutingRetry, exchange: ExchangeRetry, args: amqp.Table{
		"x-dead-letter-exchange":    ExchangeTasks,
		"x-dead-letter-routing-key": RoutingTask,
	}},
	{queue: QueueDLQ, key: RoutingDLQ, exchange: ExchangeDLQ},
}

// DeclareTopology declares the exchanges and queues. The events exchange has
// no queue of its own; subscribers bind theirs.
func (c *Client) DeclareTopology() error {
	exchanges := map[string]string{
		ExchangeTasks:  amqp.ExchangeDirect,
		ExchangeRetry:  amqp.ExchangeDirect,
		ExchangeDLQ:    amqp.ExchangeDirect,
		ExchangeEvents: amqp.ExchangeTopic,
	}
	for name, kind := range exchanges {
		if err := c.Channel.ExchangeDeclare(name, kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	for _, q := range topology {
		if _, err := c.Channel.QueueDeclare(q.queue, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.queue, err)
		}
		if err := c.Channel.QueueBind(q.queue, q.key, q.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q.queue, err)
		}
	}
	return nil
}

func (c *Client) PublishTask(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeTasks, RoutingTask, body, "")
}

func (c *Client) PublishRetry(ctx context.Context, body []byte, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	return c.publish(ctx, ExchangeRetry, RoutingRetry, body, strconv.FormatInt(delay.Milliseconds(), 10))
}

func (c *Client) PublishDLQ(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeDLQ, RoutingDLQ, body, "")
}

// PublishEvent sends a session event to the events exchange. Consumers bind
// with keys like "upload.event.#".
func (c *Client) PublishEvent(ctx context.Context, routingKey string, body []byte) error {
	return c.publish(ctx, ExchangeEvents, routingKey, body, "")
}

func (c *Client) publish(ctx context.Context, exchange, key string, body []byte, expiration string) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	return c.Channel.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		AppId:        "go-uploader",
		Expiration:   expiration,
	})
}

// Shared publishes through GetPublisher so a lost connection is redialed on
// the next call.
type Shared struct{}

func (Shared) PublishTask(ctx context.Context, body []byte) error {
	c, err := GetPublisher()
	if err != nil {
		return err
	}
	return c.PublishTask(ctx, body)
}

func (Shared) PublishRetry(ctx context.Context, body []byte, delay time.Duration) error {
	c, err := GetPublisher()
	if err != nil {
		return err
	}
	return c.PublishRetry(ctx, body, delay)
}

func (Shared) PublishDLQ(ctx context.Context, body []byte) error {
	c, err := GetPublisher()
	if err != nil {
		return err
	}
	return c.PublishDLQ(ctx, body)
}

func (Shared) PublishEvent(ctx context.Context, routingKey string, body []byte) error {
	c, err := GetPublisher()
	if err != nil {
		return err
	}
	return c.PublishEvent(ctx, routingKey, body)
}
