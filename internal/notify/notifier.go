// Package notify delivers alert notifications. Every implementation makes a
// single attempt per call; callers log failures and move on.
package notify

import (
	"context"
	"errors"
	"strings"
)

// Message is one alert to deliver
type Message struct {
	Subject  string
	Body     string
	Level    string
	ID       string
	DeviceID string
}

// Notifier sends a message through one channel
type Notifier interface {
	Send(ctx context.Context, msg Message) error
	Enabled() bool
}

// Subject builds the alert subject line for a level
func Subject(level string) string {
	return "Plantbox alert: " + strings.ToUpper(level)
}

// Noop is the absent notifier
type Noop struct{}

func (Noop) Send(context.Context, Message) error { return nil }

func (Noop) Enabled() bool { return false }

// Multi fans out to every enabled notifier. Each send is independent and
// all failures are returned joined.
type Multi []Notifier

// NewMulti keeps only the enabled notifiers
func NewMulti(notifiers ...Notifier) Multi {
	var out Multi
	for _, n := range notifiers {
		if n != nil && n.Enabled() {
			out = append(out, n)
		}
	}
	return out
}

func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Enabled() bool {
	return len(m) > 0
}
