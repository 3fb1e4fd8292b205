package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"go-storefront/pkg/logger"
)

// Connection manages a RabbitMQ connection with reconnect capability
type Connection struct {
	url        string
	conn       *amqp.Connection
	channel    *amqp.Channel
	log        *logger.Logger
	mu         sync.RWMutex
	closeChan  chan struct{}
	closeOnce  sync.Once
	reconnects int

	// reconnected is closed and replaced after every successful redial
	reconnected chan struct{}
}

// NewConnection creates a new RabbitMQ connection
func NewConnection(url string, log *logger.Logger) (*Connection, error) {
	c := &Connection{
		url:         url,
		log:         log,
		closeChan:   make(chan struct{}),
		reconnected: make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	go c.watch()

	return c, nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	c.conn = conn
	c.channel = ch

	c.log.Info("connected to RabbitMQ", zap.Int("reconnects", c.reconnects))
	return nil
}

// watch redials with a capped backoff whenever the broker drops us
func (c *Connection) watch() {
	for {
		c.mu.RLock()
		notify := c.conn.NotifyClose(make(chan *amqp.Error, 1))
		c.mu.RUnlock()

		select {
		case <-c.closeChan:
			return
		case amqpErr, ok := <-notify:
			if !ok && amqpErr == nil {
				// graceful close from our side
				select {
				case <-c.closeChan:
					return
				default:
				}
			}
			c.log.Warn("RabbitMQ connection lost", zap.Any("reason", amqpErr))
		}

		backoff := time.Second
		for {
			select {
			case <-c.closeChan:
				return
			case <-time.After(backoff):
			}

			if err := c.connect(); err != nil {
				c.log.Error("RabbitMQ reconnect failed", zap.Error(err))
				if backoff < 30*time.Second {
					backoff *= 2
				}
				continue
			}

			c.markReconnected()
			break
		}
	}
}

func (c *Connection) markReconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnects++
	close(c.reconnected)
	c.reconnected = make(chan struct{})
}

// Reconnected returns a channel that is closed by the next successful redial
func (c *Connection) Reconnected() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnected
}

// Done is closed once Close has been called
func (c *Connection) Done() <-chan struct{} {
	return c.closeChan
}

// Channel returns the current channel
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the connection
func (c *Connection) Close() error {
	c.closeOnce.Do(func() { close(c.closeChan) })

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Publisher publishes messages to RabbitMQ
type Publisher struct {
	conn     *Connection
	exchange string
	log      *logger.Logger
}

// NewPublisher creates a new publisher
func NewPublisher(conn *Connection, exchange string, log *logger.Logger) (*Publisher, error) {
	if err := declareExchange(conn.Channel(), exchange); err != nil {
		return nil, err
	}

	return &Publisher{
		conn:     conn,
		exchange: exchange,
		log:      log,
	}, nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return nil
}

// Publish publishes a message
func (p *Publisher) Publish(ctx context.Context, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	traceID := logger.GetTraceID(ctx)

	err = p.conn.Channel().PublishWithContext(
		ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			Body:          body,
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now(),
			CorrelationId: traceID,
			Headers: amqp.Table{
				"x-trace-id": traceID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.log.WithContext(ctx).Debug("message published",
		zap.String("exchange", p.exchange),
		zap.String("routing_key", routingKey),
	)

	return nil
}

// resubscribeRetry bounds the wait between failed resubscribe attempts
const resubscribeRetry = 5 * time.Second

// Consumer consumes messages from RabbitMQ. Its delivery stream is reopened
// on the new channel after every redial.
type Consumer struct {
	conn        *Connection
	queue       string
	exchange    string
	routingKeys []string
	log         *logger.Logger
	wg          sync.WaitGroup
	open        func() (<-chan amqp.Delivery, error)
}

// NewConsumer creates a new consumer. The source exchange and a dead-letter
// exchange with its parking queue are declared alongside the work queue.
func NewConsumer(conn *Connection, queue, exchange string, routingKeys []string, log *logger.Logger) (*Consumer, error) {
	c := &Consumer{
		conn:        conn,
		queue:       queue,
		exchange:    exchange,
		routingKeys: routingKeys,
		log:         log,
	}
	c.open = c.openChannel

	if err := c.declare(conn.Channel()); err != nil {
		return nil, err
	}
	return c, nil
}

// declare is idempotent; it runs again on every resubscribe
func (c *Consumer) declare(ch *amqp.Channel) error {
	if err := declareExchange(ch, c.exchange); err != nil {
		return err
	}

	dlx := c.exchange + ".dlx"
	if err := ch.ExchangeDeclare(dlx, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(c.queue+".dead", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(c.queue+".dead", "", dlx, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}

	_, err := ch.QueueDeclare(
		c.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		amqp.Table{
			"x-dead-letter-exchange": dlx,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range c.routingKeys {
		if err := ch.QueueBind(c.queue, key, c.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue: %w", err)
		}
	}
	return nil
}

// openChannel declares the topology on the current channel and starts a
// delivery stream on it
func (c *Consumer) openChannel() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if err := c.declare(ch); err != nil {
		return nil, err
	}

	msgs, err := ch.Consume(
		c.queue, // queue
		"",      // consumer
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return msgs, nil
}

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, body []byte) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler failure that redelivery cannot fix; the message
// is dead-lettered instead of requeued.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Consume starts consuming messages. The loop survives broker restarts: a
// closed delivery stream waits for the connection to redial and resubscribes.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	reconnected := c.conn.Reconnected()
	msgs, err := c.open()
	if err != nil {
		return err
	}

	c.wg.Add(1)
	go c.run(ctx, msgs, reconnected, handler)

	c.log.Info("consumer started",
		zap.String("queue", c.queue),
		zap.Strings("routing_keys", c.routingKeys),
	)

	return nil
}

func (c *Consumer) run(ctx context.Context, msgs <-chan amqp.Delivery, reconnected <-chan struct{}, handler MessageHandler) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if ok {
				c.handle(ctx, msg, handler)
				continue
			}
		}

		c.log.Warn("delivery stream closed, waiting for reconnect", zap.String("queue", c.queue))
		msgs, reconnected = c.resubscribe(ctx, reconnected)
		if msgs == nil {
			return
		}
	}
}

// resubscribe waits for a redial and reopens the delivery stream. It returns
// nil once ctx is done or the connection has been closed.
func (c *Consumer) resubscribe(ctx context.Context, reconnected <-chan struct{}) (<-chan amqp.Delivery, <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-c.conn.Done():
			return nil, nil
		case <-reconnected:
		case <-time.After(resubscribeRetry):
		}

		reconnected = c.conn.Reconnected()
		msgs, err := c.open()
		if err != nil {
			c.log.Error("failed to resubscribe consumer", zap.Error(err), zap.String("queue", c.queue))
			continue
		}

		c.log.Info("consumer resubscribed", zap.String("queue", c.queue))
		return msgs, reconnected
	}
}

func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery, handler MessageHandler) {
	// Extract trace ID from headers
	traceID := ""
	if tid, ok := msg.Headers["x-trace-id"].(string); ok {
		traceID = tid
	}
	msgCtx := logger.WithTraceIDContext(ctx, traceID)

	c.log.WithContext(msgCtx).Debug("message received",
		zap.String("queue", c.queue),
		zap.String("routing_key", msg.RoutingKey),
	)

	err := handler(msgCtx, msg.Body)
	switch {
	case err == nil:
		msg.Ack(false)
	case IsPermanent(err):
		c.log.WithContext(msgCtx).Warn("dead-lettering message",
			zap.Error(err),
			zap.String("queue", c.queue),
		)
		msg.Nack(false, false)
	default:
		c.log.WithContext(msgCtx).Error("failed to handle message",
			zap.Error(err),
			zap.String("queue", c.queue),
		)
		// Retry with delay (basic retry)
		time.Sleep(time.Second)
		msg.Nack(false, true)
	}
}

// Wait blocks until the consume loop has exited
func (c *Consumer) Wait() {
	c.wg.Wait()
}
