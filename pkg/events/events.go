package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the reading lifecycle.
const (
	ReadingCreated        = "reading.created"
	ReadingOrderCreated   = "reading.order_created"
	ReadingPaid           = "reading.paid"
	ReadingDelivered      = "reading.delivered"
	ReadingDeliveryFailed = "reading.delivery_failed"
	ReadingPDFAttached    = "reading.pdf_attached"
	ReadingsPurged        = "readings.purged"
	ContactReceived       = "contact.received"
	AdminPasswordChanged  = "admin.password_changed"
)

// Event carries identifiers only. Personal data never leaves the service.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	ReadingID  string            `json:"readingId,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

func New(eventType, readingID string, attrs map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		ReadingID:  readingID,
		Attributes: attrs,
		OccurredAt: time.Now().UTC(),
	}
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher emits lifecycle events. Publishing is best effort for callers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	r.Events = append(r.Events, e)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Type)
	}
	return out
}
