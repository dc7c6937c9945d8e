package store

import (
	"context"
	"errors"
	"time"

	"taravani/pkg/domain"
)

// ErrNotFound is returned by updates that target a missing row.
var ErrNotFound = errors.New("record not found")

// Store defines persistence operations for readings, contacts, admins, and email logs.
type Store interface {
	// readings
	CreateReading(ctx context.Context, r domain.Reading) error
	GetReading(ctx context.Context, id string) (domain.Reading, bool, error)
	ListReadings(ctx context.Context, f ReadingFilter) ([]domain.Reading, error)
	UpdateReading(ctx context.Context, id string, p ReadingPatch) (domain.Reading, bool, error)
	DeleteReading(ctx context.Context, id string) error
	PurgeExpiredReadings(ctx context.Context, cutoff time.Time) ([]PurgedReading, error)

	// contacts
	CreateContact(ctx context.Context, c domain.Contact) error
	ListContacts(ctx context.Context, f ContactFilter) ([]domain.Contact, error)
	SetContactRead(ctx context.Context, id string, read bool) (domain.Contact, bool, error)

	// admins
	EnsureAdmin(ctx context.Context, a domain.Admin) (bool, error)
	GetAdminByEmail(ctx context.Context, email string) (domain.Admin, bool, error)
	GetAdminByID(ctx context.Context, id string) (domain.Admin, bool, error)
	SetAdminPassword(ctx context.Context, id, hash string) error

	// email logs
	AppendEmailLog(ctx context.Context, l domain.EmailLog) error
	ListEmailLogs(ctx context.Context, readingID string) ([]domain.EmailLog, error)

	Ping(ctx context.Context) error
}

// ReadingFilter narrows ListReadings. Zero values mean no restriction.
type ReadingFilter struct {
	Status domain.ReadingStatus
	Limit  int
}

// ReadingPatch lists workflow fields to overwrite. Nil fields are left alone.
// Input fields of a reading are never patched.
type ReadingPatch struct {
	Status            *domain.ReadingStatus
	PaymentStatus     *domain.PaymentStatus
	ReportText        *string
	ReportPDF         *domain.ReportPDF
	ReportSentAt      *time.Time
	RazorpayOrderID   *string
	RazorpayPaymentID *string
	PaymentNotes      map[string]string
}

func (p ReadingPatch) Empty() bool {
	return p.Status == nil && p.PaymentStatus == nil && p.ReportText == nil && p.ReportPDF == nil &&
		p.ReportSentAt == nil && p.RazorpayOrderID == nil && p.RazorpayPaymentID == nil && p.PaymentNotes == nil
}

// PurgedReading identifies a removed reading and the stored object it referenced.
type PurgedReading struct {
	ID      string
	PDFPath string
}

type ContactFilter struct {
	Read  *bool
	Limit int
}

const (
	DefaultContactLimit = 100
	MaxContactLimit     = 500
)

func (f ContactFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultContactLimit
	case f.Limit > MaxContactLimit:
		return MaxContactLimit
	}
	return f.Limit
}

// SessionStore persists admin session tokens.
type SessionStore interface {
	NewSession(adminID string) (string, time.Time, error)
	GetAdminIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// AdminSessionRevoker is an optional capability that revokes all sessions
// issued for an admin before a cutoff time.
type AdminSessionRevoker interface {
	RevokeAdminSessions(adminID string, since time.Time) error
}
