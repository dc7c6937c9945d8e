package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"taravani/pkg/events"
	"taravani/pkg/mail"
	"taravani/pkg/payment"
	"taravani/pkg/storage"
	"taravani/pkg/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeMailer struct {
	mu         sync.Mutex
	configured bool
	err        error
	verifyErr  error
	sent       []mail.Message
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) Configured() bool { return m.configured }

func (m *fakeMailer) Verify(context.Context) error { return m.verifyErr }

func (m *fakeMailer) messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

type fakeGateway struct {
	configured bool
	err        error
	valid      bool
	requests   []payment.OrderRequest
}

func (g *fakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (payment.Order, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return payment.Order{}, g.err
	}
	return payment.Order{ID: "order_test", Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

func (g *fakeGateway) VerifyPayment(_, _, _ string) bool { return g.valid }

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

func (g *fakeGateway) Configured() bool { return g.configured }

type fakeObjects struct {
	mu      sync.Mutex
	putErr  error
	objects map[string][]byte
	deleted []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (o *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if o.putErr != nil {
		return o.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.objects[key] = data
	o.mu.Unlock()
	return nil
}

func (o *fakeObjects) Get(_ context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(data), nil
}

func (o *fakeObjects) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	o.deleted = append(o.deleted, key)
	return nil
}

type testEnv struct {
	app     *App
	store   *store.MemoryStore
	mailer  *fakeMailer
	gateway *fakeGateway
	objects *fakeObjects
	events  *events.Recorder
	now     time.Time
}

type envOption func(*Config)

func withInlinePDFs() envOption {
	return func(c *Config) {
		c.Reports = nil
		c.InlinePDFs = true
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   store.NewMemoryStore(),
		mailer:  &fakeMailer{configured: true},
		gateway: &fakeGateway{configured: true, valid: true},
		objects: newFakeObjects(),
		events:  &events.Recorder{},
		now:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	sessions, err := store.NewJWTSessionStore(testSecret, time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	cfg := Config{
		Store:                env.store,
		Sessions:             sessions,
		Mailer:               env.mailer,
		Gateway:              env.gateway,
		Reports:              env.objects,
		Publisher:            env.events,
		ContactTo:            "owner@taravani.com",
		AdminEmail:           "admin@taravani.com",
		DefaultAdminPassword: "admin123",
		Now:                  func() time.Time { return env.now },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	env.app = a
	return env
}

var errBoom = errors.New("boom")

func storeFilterAll() store.ReadingFilter { return store.ReadingFilter{} }
