package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/jordan-wright/email"
)

// SMTPMailer sends through an authenticated SMTP relay.
type SMTPMailer struct {
	cfg  Config
	send func(ctx context.Context, e *email.Email) error
}

func NewSMTPMailer(cfg Config) *SMTPMailer {
	m := &SMTPMailer{cfg: cfg}
	m.send = m.transmit
	return m
}

func (m *SMTPMailer) Configured() bool { return true }

func (m *SMTPMailer) addr() string {
	return net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
}

func (m *SMTPMailer) tlsConfig() *tls.Config {
	return &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
}

// Send delivers msg. The connection carries the deadline of ctx or the
// configured timeout, whichever is sooner, so a stalled relay fails the call.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	e, err := m.build(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	if err := m.send(ctx, e); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return fmt.Errorf("send email via %s: %w: %w", m.cfg.Provider, ctxErr, err)
		}
		return fmt.Errorf("send email via %s: %w", m.cfg.Provider, err)
	}
	return nil
}

// transmit renders e and writes it through a deadline-bound SMTP session.
func (m *SMTPMailer) transmit(ctx context.Context, e *email.Email) error {
	raw, err := e.Bytes()
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}
	client, stop, err := m.open(ctx)
	if err != nil {
		return err
	}
	defer stop()
	defer client.Close()
	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range recipients(e) {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return client.Quit()
}

func recipients(e *email.Email) []string {
	out := make([]string, 0, len(e.To)+len(e.Cc)+len(e.Bcc))
	out = append(out, e.To...)
	out = append(out, e.Cc...)
	return append(out, e.Bcc...)
}

func (m *SMTPMailer) build(msg Message) (*email.Email, error) {
	if len(msg.To) == 0 {
		return nil, errors.New("email recipient required")
	}
	e := email.NewEmail()
	e.From = m.fromHeader()
	e.To = msg.To
	if msg.ReplyTo != "" {
		e.ReplyTo = []string{msg.ReplyTo}
	}
	e.Subject = msg.Subject
	if msg.Text != "" {
		e.Text = []byte(msg.Text)
	}
	if msg.HTML != "" {
		e.HTML = []byte(msg.HTML)
	}
	for _, a := range msg.Attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if _, err := e.Attach(bytes.NewReader(a.Data), a.Filename, contentType); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Filename, err)
		}
	}
	return e, nil
}

func (m *SMTPMailer) fromHeader() string {
	if m.cfg.FromName == "" {
		return m.cfg.From
	}
	return fmt.Sprintf("%q <%s>", m.cfg.FromName, m.cfg.From)
}

// Verify dials the relay and authenticates without sending.
func (m *SMTPMailer) Verify(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	client, stop, err := m.open(ctx)
	if err != nil {
		return err
	}
	defer stop()
	defer client.Close()
	return client.Quit()
}

// open dials the relay, upgrades to TLS and authenticates. The connection is
// closed as soon as ctx is done; stop releases that hook.
func (m *SMTPMailer) open(ctx context.Context) (*smtp.Client, func() bool, error) {
	dialer := &net.Dialer{}
	var conn net.Conn
	var err error
	if m.cfg.Secure {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: m.tlsConfig()}).DialContext(ctx, "tcp", m.addr())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", m.addr())
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		stop()
		conn.Close()
		return nil, nil, fmt.Errorf("smtp handshake: %w", err)
	}
	fail := func(err error) (*smtp.Client, func() bool, error) {
		stop()
		client.Close()
		return nil, nil, err
	}
	if !m.cfg.Secure {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(m.tlsConfig()); err != nil {
				return fail(fmt.Errorf("smtp starttls: %w", err))
			}
		}
	}
	if ok, _ := client.Extension("AUTH"); ok {
		if err := client.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return fail(fmt.Errorf("smtp auth: %w", err))
		}
	}
	return client, stop, nil
}

// Describe reports the resolved transport without secrets.
func (c Config) Describe() map[string]any {
	return map[string]any{
		"configured": c.Configured(),
		"provider":   c.Provider,
		"host":       c.Host,
		"port":       c.Port,
		"secure":     c.Secure,
		"user":       maskUser(c.Username),
		"from":       c.From,
	}
}

func maskUser(u string) string {
	if u == "" {
		return ""
	}
	at := strings.IndexByte(u, '@')
	if at <= 1 {
		return "***"
	}
	return u[:1] + "***" + u[at:]
}
