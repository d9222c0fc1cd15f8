package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Connection wraps the RabbitMQ connection shared by the ingest consumer and the alert publisher
type Connection struct {
	conn *amqp.Connection
}

// NewConnection dials RabbitMQ and closes the connection when the app stops
func NewConnection(lc fx.Lifecycle, logger *zap.Logger, url string) (*Connection, error) {
	logger.Info("Connecting to RabbitMQ", zap.String("url", maskURL(url)))

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ (check RABBITMQ_URL and broker availability): %w", err)
	}

	mqConn := &Connection{conn: conn}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if conn.IsClosed() {
				return nil
			}
			if err := conn.Close(); err != nil {
				logger.Warn("Failed to close RabbitMQ connection", zap.Error(err))
				return err
			}
			logger.Info("RabbitMQ connection closed")
			return nil
		},
	})

	return mqConn, nil
}

// Channel opens a new channel on the connection
func (c *Connection) Channel() (*amqp.Channel, error) {
	return c.conn.Channel()
}

func maskURL(raw string) string {
	uri, err := amqp.ParseURI(raw)
	if err != nil {
		return "invalid-url"
	}
	if uri.Password != "" {
		uri.Password = "****"
	}
	return uri.String()
}
