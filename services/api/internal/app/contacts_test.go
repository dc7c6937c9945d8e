package app

import (
	"context"
	"errors"
	"testing"

	"taravani/pkg/domain"
	"taravani/pkg/intake"
)

func TestSubmitContactForwardsMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c, err := env.app.SubmitContact(ctx, intake.ContactPayload{Name: "Ravi", Email: "ravi@example.com", Message: "Hello <there>, a question"})
	if err != nil {
		t.Fatalf("submit contact: %v", err)
	}
	if c.Read {
		t.Fatalf("new contacts are unread")
	}
	sent := env.mailer.messages()
	if len(sent) != 1 {
		t.Fatalf("expected forwarded message, got %d", len(sent))
	}
	msg := sent[0]
	if msg.To[0] != "owner@taravani.com" || msg.ReplyTo != "ravi@example.com" || msg.Subject != "New contact form message from Ravi" {
		t.Fatalf("unexpected message %+v", msg)
	}

	env.mailer.err = errBoom
	if _, err := env.app.SubmitContact(ctx, intake.ContactPayload{Name: "Ravi", Email: "ravi@example.com", Message: "Second message here"}); err != nil {
		t.Fatalf("mail failure must not fail contact: %v", err)
	}

	if _, err := env.app.SubmitContact(ctx, intake.ContactPayload{Name: "Ravi", Email: "ravi@example.com", Message: "short"}); err == nil {
		t.Fatalf("expected short message to fail")
	}
}

func TestContactsListAndMarkRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c, _ := env.app.SubmitContact(ctx, intake.ContactPayload{Name: "A", Email: "a@example.com", Message: "first message"})
	env.now = env.now.Add(1)
	_, _ = env.app.SubmitContact(ctx, intake.ContactPayload{Name: "B", Email: "b@example.com", Message: "second message"})

	updated, err := env.app.SetContactRead(ctx, c.ID, true)
	if err != nil || !updated.Read {
		t.Fatalf("mark read: %v %+v", err, updated)
	}
	unread := false
	list, err := env.app.ListContacts(ctx, &unread, 0)
	if err != nil || len(list) != 1 || list[0].Name != "B" {
		t.Fatalf("unexpected unread list %+v %v", list, err)
	}
	all, _ := env.app.ListContacts(ctx, nil, 1)
	if len(all) != 1 || all[0].Name != "B" {
		t.Fatalf("expected newest first with limit, got %+v", all)
	}
	if _, err := env.app.SetContactRead(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTestEmail(t *testing.T) {
	env := newTestEnv(t)
	admin := domain.Admin{Email: "admin@taravani.com"}
	check, err := env.app.TestEmail(context.Background(), admin, "")
	if err != nil {
		t.Fatalf("test email: %v", err)
	}
	if !check.Connection.Success || !check.Send.Success || check.Recipient != "admin@taravani.com" {
		t.Fatalf("unexpected check %+v", check)
	}

	env.mailer.verifyErr = errBoom
	check, err = env.app.TestEmail(context.Background(), admin, "ops@taravani.com")
	if err != nil || check.Connection.Success || check.Send.Success || check.Connection.Error != "boom" {
		t.Fatalf("expected connection failure report, got %+v %v", check, err)
	}

	env.mailer.configured = false
	if _, err := env.app.TestEmail(context.Background(), admin, ""); !errors.Is(err, ErrMailNotConfigured) {
		t.Fatalf("expected ErrMailNotConfigured, got %v", err)
	}
}
