package mq

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/plantbox/plantbox-api/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// MessageHandler processes one message body. A returned error dead-letters the message.
type MessageHandler func(ctx context.Context, logger *zap.Logger, body []byte) error

// Consumer reads telemetry messages from the ingest queue
type Consumer struct {
	channel       *amqp.Channel
	queue         string
	prefetchCount int
	logger        *zap.Logger
	handler       MessageHandler
	cancel        context.CancelFunc
	done          chan struct{}
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Connection    *Connection
	Exchange      string
	Queue         string
	RoutingKey    string
	DLQQueue      string
	PrefetchCount int
	Logger        *zap.Logger
	Handler       MessageHandler
}

// NewConsumer declares the ingest topology and returns a consumer ready to start
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	ch, err := cfg.Connection.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// rejected messages are routed to the DLQ through the default exchange
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.DLQQueue,
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}

	if _, err := ch.QueueDeclare(cfg.DLQQueue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare DLQ: %w", err)
	}

	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &Consumer{
		channel:       ch,
		queue:         cfg.Queue,
		prefetchCount: cfg.PrefetchCount,
		logger:        cfg.Logger,
		handler:       cfg.Handler,
	}, nil
}

// Start begins consuming in a background goroutine until Stop is called
func (c *Consumer) Start() error {
	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	c.logger.Info("Ingest consumer started",
		zap.String("queue", c.queue),
		zap.Int("prefetch", c.prefetchCount),
	)

	go func() {
		defer close(c.done)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn("Ingest delivery channel closed")
					return
				}
				c.processMessage(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *Consumer) processMessage(ctx context.Context, msg amqp.Delivery) {
	requestID := msg.MessageId
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := logging.WithRequestID(c.logger, requestID)

	if err := c.handler(ctx, logger, msg.Body); err != nil {
		logger.Warn("Rejecting ingest message",
			zap.String("routing_key", msg.RoutingKey),
			zap.Error(err),
		)
		if nackErr := msg.Nack(false, false); nackErr != nil {
			logger.Error("Failed to NACK message", zap.Error(nackErr))
		}
		return
	}

	if ackErr := msg.Ack(false); ackErr != nil {
		logger.Error("Failed to ACK message", zap.Error(ackErr))
	}
}

// Stop cancels consumption and closes the channel
func (c *Consumer) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
		select {
		case <-c.done:
		case <-ctx.Done():
		}
	}
	if err := c.channel.Close(); err != nil {
		return fmt.Errorf("failed to close consumer channel: %w", err)
	}
	c.logger.Info("Ingest consumer stopped")
	return nil
}

// RegisterLifecycle starts and stops the consumer with the app
func (c *Consumer) RegisterLifecycle(lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return c.Start()
		},
		OnStop: func(ctx context.Context) error {
			return c.Stop(ctx)
		},
	})
}
