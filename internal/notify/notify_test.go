package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/plantbox/plantbox-api/internal/config"
	"github.com/plantbox/plantbox-api/internal/mq"
	"github.com/plantbox/plantbox-api/internal/notify"
)

type recordingNotifier struct {
	enabled bool
	err     error
	sent    []notify.Message
}

func (r *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func (r *recordingNotifier) Enabled() bool { return r.enabled }

type recordingPublisher struct {
	events []mq.AlertEvent
}

func (p *recordingPublisher) PublishAlert(_ context.Context, event mq.AlertEvent) error {
	p.events = append(p.events, event)
	return nil
}

func TestSubject(t *testing.T) {
	if got := notify.Subject("critical"); got != "Plantbox alert: CRITICAL" {
		t.Errorf("Unexpected subject %q", got)
	}
}

func TestMulti_SkipsDisabledAndJoinsErrors(t *testing.T) {
	errA := errors.New("smtp down")
	errB := errors.New("broker down")
	a := &recordingNotifier{enabled: true, err: errA}
	b := &recordingNotifier{enabled: true, err: errB}
	off := &recordingNotifier{enabled: false}

	m := notify.NewMulti(a, off, b, nil)
	if !m.Enabled() {
		t.Fatal("Expected multi notifier to be enabled")
	}

	err := m.Send(context.Background(), notify.Message{Subject: "s", Body: "b"})
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Expected both errors joined, got %v", err)
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Error("Expected a failing notifier not to stop the next one")
	}
	if len(off.sent) != 0 {
		t.Error("Expected disabled notifier to be skipped")
	}
}

func TestMulti_Empty(t *testing.T) {
	m := notify.NewMulti(notify.Noop{})
	if m.Enabled() {
		t.Error("Expected multi with only noop to be disabled")
	}
	if err := m.Send(context.Background(), notify.Message{}); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
}

func TestEmail_DisabledConfig(t *testing.T) {
	e, err := notify.NewEmail(config.SMTPConfig{Server: "smtp.example.com"})
	if err != nil {
		t.Fatalf("NewEmail failed: %v", err)
	}
	if e.Enabled() {
		t.Error("Expected incomplete SMTP config to disable email")
	}
	if err := e.Send(context.Background(), notify.Message{}); err != nil {
		t.Errorf("Expected disabled email send to be a no-op, got %v", err)
	}
}

func TestEmail_EnabledConfig(t *testing.T) {
	e, err := notify.NewEmail(config.SMTPConfig{
		Server:     "smtp.example.com",
		Port:       587,
		Username:   "alerts",
		Password:   "secret",
		From:       "plantbox@example.com",
		UseTLS:     true,
		Recipients: []string{"grower@example.com"},
	})
	if err != nil {
		t.Fatalf("NewEmail failed: %v", err)
	}
	if !e.Enabled() {
		t.Error("Expected complete SMTP config to enable email")
	}
}

func TestBroker_PublishesEvent(t *testing.T) {
	pub := &recordingPublisher{}
	b := notify.NewBroker(pub)

	err := b.Send(context.Background(), notify.Message{
		Subject:  notify.Subject("warning"),
		Body:     "Temperature drift above 10 percent.",
		Level:    "warning",
		ID:       "n-1",
		DeviceID: "PlantBox-492",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("Expected one event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Level != "warning" || ev.ID != "n-1" || ev.DeviceID != "PlantBox-492" || ev.CreatedAt == "" {
		t.Errorf("Unexpected event %+v", ev)
	}
}

func TestBroker_Disabled(t *testing.T) {
	b := notify.NewBroker(nil)
	if b.Enabled() {
		t.Error("Expected broker without publisher to be disabled")
	}
}
