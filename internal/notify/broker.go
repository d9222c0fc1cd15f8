package notify

import (
	"context"
	"time"

	"github.com/plantbox/plantbox-api/internal/mq"
)

// AlertPublisher publishes alert events to the message broker
type AlertPublisher interface {
	PublishAlert(ctx context.Context, event mq.AlertEvent) error
}

// Broker forwards alerts to RabbitMQ so downstream workers can react
type Broker struct {
	publisher AlertPublisher
	now       func() time.Time
}

// NewBroker creates a broker notifier. A nil publisher yields a disabled notifier.
func NewBroker(publisher AlertPublisher) *Broker {
	return &Broker{publisher: publisher, now: time.Now}
}

func (b *Broker) Enabled() bool {
	return b.publisher != nil
}

func (b *Broker) Send(ctx context.Context, msg Message) error {
	if !b.Enabled() {
		return nil
	}
	return b.publisher.PublishAlert(ctx, mq.AlertEvent{
		ID:        msg.ID,
		Level:     msg.Level,
		Subject:   msg.Subject,
		Message:   msg.Body,
		DeviceID:  msg.DeviceID,
		CreatedAt: b.now().UTC().Format(time.RFC3339Nano),
	})
}
