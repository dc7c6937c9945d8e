package mail

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by the disabled mailer.
var ErrNotConfigured = errors.New("email service not configured")

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          []string
	ReplyTo     string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Mailer delivers messages through an external transport.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
	Configured() bool
}

// Verifier checks connectivity and credentials without sending.
type Verifier interface {
	Verify(ctx context.Context) error
}

// New returns an SMTP mailer for a configured transport, else a disabled one.
func New(cfg Config) Mailer {
	if !cfg.Configured() {
		return Disabled{}
	}
	return NewSMTPMailer(cfg)
}

// Disabled is used when no mail transport is configured.
type Disabled struct{}

func (Disabled) Send(context.Context, Message) error { return ErrNotConfigured }

func (Disabled) Configured() bool { return false }

func (Disabled) Verify(context.Context) error { return ErrNotConfigured }
