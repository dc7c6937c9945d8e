package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taravani/internal/util"
	"taravani/pkg/domain"
	"taravani/pkg/events"
	"taravani/pkg/intake"
	"taravani/pkg/mail"
	"taravani/pkg/store"
)

// SubmitContact stores a contact message and forwards it to the business inbox.
func (a *App) SubmitContact(ctx context.Context, p intake.ContactPayload) (domain.Contact, error) {
	p, err := intake.ValidateContact(p)
	if err != nil {
		return domain.Contact{}, err
	}
	contact := domain.Contact{
		ID:        util.NewUUID(),
		Name:      p.Name,
		Email:     p.Email,
		Message:   p.Message,
		CreatedAt: a.clock(),
	}
	if err := a.store.CreateContact(ctx, contact); err != nil {
		return domain.Contact{}, fmt.Errorf("create contact: %w", err)
	}
	a.publish(ctx, events.ContactReceived, "", map[string]string{"contactId": contact.ID})

	to := strings.TrimSpace(a.contactTo)
	if to == "" {
		util.LoggerFromContext(ctx).Warn("no destination configured for contact form", "contact_id", contact.ID)
		return contact, nil
	}
	a.sendBestEffort(ctx, "", domain.EmailContact, contactMessage(to, contact.Name, contact.Email, contact.Message))
	return contact, nil
}

func (a *App) ListContacts(ctx context.Context, read *bool, limit int) ([]domain.Contact, error) {
	contacts, err := a.store.ListContacts(ctx, store.ContactFilter{Read: read, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	if contacts == nil {
		contacts = []domain.Contact{}
	}
	return contacts, nil
}

func (a *App) SetContactRead(ctx context.Context, id string, read bool) (domain.Contact, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Contact{}, intake.Invalid("id", "Contact id is required")
	}
	contact, ok, err := a.store.SetContactRead(ctx, id, read)
	if err != nil {
		return domain.Contact{}, fmt.Errorf("update contact: %w", err)
	}
	if !ok {
		return domain.Contact{}, ErrNotFound
	}
	return contact, nil
}

// MailCheck is the outcome of an admin test email.
type MailCheck struct {
	Configured bool           `json:"configured"`
	Config     map[string]any `json:"config"`
	Recipient  string         `json:"recipient"`
	Connection CheckStep      `json:"connectionTest"`
	Send       CheckStep      `json:"sendTest"`
}

type CheckStep struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TestEmail verifies the mail transport and sends a test message to the
// given address, or the admin's own when empty.
func (a *App) TestEmail(ctx context.Context, admin domain.Admin, recipient string) (MailCheck, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		recipient = admin.Email
	}
	if !intake.ValidEmail(recipient) {
		return MailCheck{}, intake.Invalid("testEmail", "Please enter a valid email")
	}
	check := MailCheck{
		Configured: a.mailer.Configured(),
		Config:     a.mailCfg.Describe(),
		Recipient:  recipient,
	}
	if !check.Configured {
		return check, ErrMailNotConfigured
	}
	if v, ok := a.mailer.(mail.Verifier); ok {
		if err := v.Verify(ctx); err != nil {
			check.Connection.Error = err.Error()
			return check, nil
		}
	}
	check.Connection.Success = true
	if err := a.deliver(ctx, "", domain.EmailTest, testMessage(recipient, a.clock())); err != nil {
		if errors.Is(err, mail.ErrNotConfigured) {
			return check, ErrMailNotConfigured
		}
		check.Send.Error = err.Error()
		return check, nil
	}
	check.Send.Success = true
	return check, nil
}
