package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AlertRoutingPrefix prefixes the level in alert routing keys, e.g. plantbox.alert.critical
const AlertRoutingPrefix = "plantbox.alert."

// Publisher publishes JSON events to a topic exchange
type Publisher struct {
	mu       sync.Mutex
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher opens a channel and declares the exchange
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// AlertEvent is the message published for every notification
type AlertEvent struct {
	ID        string `json:"id"`
	Level     string `json:"level"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	DeviceID  string `json:"device_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

// AlertRoutingKey returns the routing key for a notification level
func AlertRoutingKey(level string) string {
	return AlertRoutingPrefix + level
}

// Publish marshals event and publishes it persistently
func (p *Publisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Published event", zap.String("routing_key", routingKey))
	return nil
}

// PublishAlert publishes a notification event keyed by its level
func (p *Publisher) PublishAlert(ctx context.Context, event AlertEvent) error {
	return p.Publish(ctx, AlertRoutingKey(event.Level), event)
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
