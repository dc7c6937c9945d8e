package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"taravani/pkg/domain"
)

var errDuplicateID = errors.New("duplicate id")

// MemoryStore keeps records in-process. Used for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	readings map[string]domain.Reading
	order    map[string]int
	seq      int
	contacts map[string]domain.Contact
	admins   map[string]domain.Admin
	emails   map[string]string // email -> admin ID
	logs     []domain.EmailLog
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		readings: make(map[string]domain.Reading),
		order:    make(map[string]int),
		contacts: make(map[string]domain.Contact),
		admins:   make(map[string]domain.Admin),
		emails:   make(map[string]string),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) CreateReading(_ context.Context, r domain.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.readings[r.ID]; exists {
		return errDuplicateID
	}
	m.seq++
	m.order[r.ID] = m.seq
	m.readings[r.ID] = cloneReading(r)
	return nil
}

func (m *MemoryStore) GetReading(_ context.Context, id string) (domain.Reading, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.readings[id]
	if !ok {
		return domain.Reading{}, false, nil
	}
	return cloneReading(r), true, nil
}

// ListReadings returns readings newest first, ties broken by insertion order.
func (m *MemoryStore) ListReadings(_ context.Context, f ReadingFilter) ([]domain.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Reading, 0, len(m.readings))
	for _, r := range m.readings {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		res = append(res, cloneReading(r))
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return m.order[res[i].ID] > m.order[res[j].ID]
	})
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func (m *MemoryStore) UpdateReading(_ context.Context, id string, p ReadingPatch) (domain.Reading, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.readings[id]
	if !ok {
		return domain.Reading{}, false, nil
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		r.PaymentStatus = *p.PaymentStatus
	}
	if p.ReportText != nil {
		r.ReportText = *p.ReportText
	}
	if p.ReportPDF != nil {
		r.ReportPDF = clonePDF(*p.ReportPDF)
	}
	if p.ReportSentAt != nil {
		at := p.ReportSentAt.UTC()
		r.ReportSentAt = &at
	}
	if p.RazorpayOrderID != nil {
		r.RazorpayOrderID = *p.RazorpayOrderID
	}
	if p.RazorpayPaymentID != nil {
		r.RazorpayPaymentID = *p.RazorpayPaymentID
	}
	if p.PaymentNotes != nil {
		r.PaymentNotes = cloneNotes(p.PaymentNotes)
	}
	r.UpdatedAt = time.Now().UTC()
	m.readings[id] = r
	return cloneReading(r), true, nil
}

func (m *MemoryStore) DeleteReading(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteReadingLocked(id)
	return nil
}

func (m *MemoryStore) PurgeExpiredReadings(_ context.Context, cutoff time.Time) ([]PurgedReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PurgedReading
	for id, r := range m.readings {
		if r.DeleteAt.After(cutoff) {
			continue
		}
		p := PurgedReading{ID: id}
		if r.ReportPDF.IsStored() {
			p.PDFPath = r.ReportPDF.Path
		}
		out = append(out, p)
		m.deleteReadingLocked(id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) deleteReadingLocked(id string) {
	delete(m.readings, id)
	delete(m.order, id)
	kept := m.logs[:0]
	for _, l := range m.logs {
		if l.ReadingID != id {
			kept = append(kept, l)
		}
	}
	m.logs = kept
}

func (m *MemoryStore) CreateContact(_ context.Context, c domain.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.contacts[c.ID]; exists {
		return errDuplicateID
	}
	m.contacts[c.ID] = c
	return nil
}

func (m *MemoryStore) ListContacts(_ context.Context, f ContactFilter) ([]domain.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Contact, 0, len(m.contacts))
	for _, c := range m.contacts {
		if f.Read != nil && c.Read != *f.Read {
			continue
		}
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID > res[j].ID
	})
	if limit := f.limit(); len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *MemoryStore) SetContactRead(_ context.Context, id string, read bool) (domain.Contact, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok {
		return domain.Contact{}, false, nil
	}
	c.Read = read
	m.contacts[id] = c
	return c, true, nil
}

func (m *MemoryStore) EnsureAdmin(_ context.Context, a domain.Admin) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(a.Email)
	if _, exists := m.emails[key]; exists {
		return false, nil
	}
	m.admins[a.ID] = a
	m.emails[key] = a.ID
	return true, nil
}

func (m *MemoryStore) GetAdminByEmail(_ context.Context, email string) (domain.Admin, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[strings.ToLower(email)]
	if !ok {
		return domain.Admin{}, false, nil
	}
	a, ok := m.admins[id]
	return a, ok, nil
}

func (m *MemoryStore) GetAdminByID(_ context.Context, id string) (domain.Admin, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.admins[id]
	return a, ok, nil
}

func (m *MemoryStore) SetAdminPassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = hash
	a.UpdatedAt = time.Now().UTC()
	m.admins[id] = a
	return nil
}

func (m *MemoryStore) AppendEmailLog(_ context.Context, l domain.EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
	return nil
}

func (m *MemoryStore) ListEmailLogs(_ context.Context, readingID string) ([]domain.EmailLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.EmailLog
	for _, l := range m.logs {
		if l.ReadingID == readingID {
			res = append(res, l)
		}
	}
	return res, nil
}

func cloneReading(r domain.Reading) domain.Reading {
	r.ReportPDF = clonePDF(r.ReportPDF)
	r.PaymentNotes = cloneNotes(r.PaymentNotes)
	if r.ReportSentAt != nil {
		at := *r.ReportSentAt
		r.ReportSentAt = &at
	}
	return r
}

func clonePDF(p domain.ReportPDF) domain.ReportPDF {
	if p.Data != nil {
		data := make([]byte, len(p.Data))
		copy(data, p.Data)
		p.Data = data
	}
	return p
}

func cloneNotes(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
