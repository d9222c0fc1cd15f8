package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/plantbox/plantbox-api/internal/config"
	"github.com/wneessen/go-mail"
)

// Email sends alerts over SMTP to a fixed recipient list
type Email struct {
	mu         sync.Mutex
	client     *mail.Client
	from       string
	recipients []string
}

// NewEmail creates the SMTP notifier. A disabled config yields a disabled notifier.
func NewEmail(cfg config.SMTPConfig) (*Email, error) {
	if !cfg.Enabled() {
		return &Email{}, nil
	}

	policy := mail.TLSMandatory
	if !cfg.UseTLS {
		policy = mail.TLSOpportunistic
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(policy),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}

	client, err := mail.NewClient(cfg.Server, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &Email{
		client:     client,
		from:       cfg.From,
		recipients: cfg.Recipients,
	}, nil
}

func (e *Email) Enabled() bool {
	return e.client != nil
}

// Send delivers one plain-text email
func (e *Email) Send(ctx context.Context, msg Message) error {
	if !e.Enabled() {
		return nil
	}

	m := mail.NewMsg()
	if err := m.From(e.from); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(e.recipients...); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
