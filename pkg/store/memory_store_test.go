package store

import (
	"context"
	"testing"
	"time"

	"taravani/pkg/domain"
)

func testReading(id string, createdAt time.Time) domain.Reading {
	return domain.NewReading(id, domain.ReadingInput{
		Name:         "Asha",
		Email:        "asha@example.com",
		DateOfBirth:  time.Date(1990, 5, 14, 0, 0, 0, 0, time.UTC),
		TimeOfBirth:  "04:35",
		PlaceOfBirth: "Pune",
		FocusArea:    domain.FocusCareer,
	}, createdAt)
}

func TestMemoryStoreReadingLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()
	if err := s.CreateReading(ctx, testReading("r1", now)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateReading(ctx, testReading("r1", now)); err == nil {
		t.Fatalf("expected duplicate id to fail")
	}

	status := domain.StatusInProgress
	text := "Your chart"
	pdf := domain.InlinePDF([]byte("%PDF-1.4"))
	got, ok, err := s.UpdateReading(ctx, "r1", ReadingPatch{Status: &status, ReportText: &text, ReportPDF: &pdf})
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	if got.Status != status || got.ReportText != text || !got.ReportPDF.IsInline() {
		t.Fatalf("unexpected reading %+v", got)
	}
	if !got.DeleteAt.Equal(now.Add(domain.RetentionPeriod)) {
		t.Fatalf("deleteAt must not move on update, got %v", got.DeleteAt)
	}

	got.ReportPDF.Data[0] = 'X'
	again, _, _ := s.GetReading(ctx, "r1")
	if again.ReportPDF.Data[0] != '%' {
		t.Fatalf("expected stored bytes to be isolated from callers")
	}

	if _, ok, err := s.UpdateReading(ctx, "missing", ReadingPatch{Status: &status}); err != nil || ok {
		t.Fatalf("expected missing reading to report not found, ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreListReadingsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		if err := s.CreateReading(ctx, testReading(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	sent := domain.StatusSent
	if _, _, err := s.UpdateReading(ctx, "b", ReadingPatch{Status: &sent}); err != nil {
		t.Fatalf("update: %v", err)
	}

	all, err := s.ListReadings(ctx, ReadingFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Fatalf("unexpected order %v", ids(all))
	}
	onlySent, _ := s.ListReadings(ctx, ReadingFilter{Status: domain.StatusSent})
	if len(onlySent) != 1 || onlySent[0].ID != "b" {
		t.Fatalf("unexpected filter result %v", ids(onlySent))
	}
}

func TestMemoryStorePurgeExpiredReadings(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()
	old := testReading("old", now.Add(-31*24*time.Hour))
	old.ReportPDF = domain.StoredPDF("reports/old.pdf", 10)
	edge := testReading("edge", now.Add(-domain.RetentionPeriod))
	fresh := testReading("fresh", now.Add(-29*24*time.Hour))
	for _, r := range []domain.Reading{old, edge, fresh} {
		if err := s.CreateReading(ctx, r); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := s.AppendEmailLog(ctx, domain.EmailLog{ID: "l1", ReadingID: "old"}); err != nil {
		t.Fatalf("append log: %v", err)
	}

	purged, err := s.PurgeExpiredReadings(ctx, now)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if len(purged) != 2 || purged[0].ID != "edge" || purged[1].ID != "old" || purged[1].PDFPath != "reports/old.pdf" {
		t.Fatalf("unexpected purge result %+v", purged)
	}
	if _, ok, _ := s.GetReading(ctx, "fresh"); !ok {
		t.Fatalf("expected fresh reading to survive")
	}
	if logs, _ := s.ListEmailLogs(ctx, "old"); len(logs) != 0 {
		t.Fatalf("expected email logs of purged reading to be removed")
	}

	again, err := s.PurgeExpiredReadings(ctx, now)
	if err != nil || len(again) != 0 {
		t.Fatalf("expected second purge to be a no-op, got %d err=%v", len(again), err)
	}
}

func TestMemoryStoreContacts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Now().UTC()
	for i, id := range []string{"c1", "c2", "c3"} {
		if err := s.CreateContact(ctx, domain.Contact{ID: id, Name: "n", Email: "e@example.com", Message: "hello there", CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("create contact: %v", err)
		}
	}
	c, ok, err := s.SetContactRead(ctx, "c2", true)
	if err != nil || !ok || !c.Read {
		t.Fatalf("set read: ok=%v err=%v", ok, err)
	}
	unread := false
	list, _ := s.ListContacts(ctx, ContactFilter{Read: &unread})
	if len(list) != 2 || list[0].ID != "c3" {
		t.Fatalf("unexpected unread list %+v", list)
	}
	limited, _ := s.ListContacts(ctx, ContactFilter{Limit: 1})
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
	if _, ok, _ := s.SetContactRead(ctx, "missing", true); ok {
		t.Fatalf("expected missing contact")
	}
}

func TestMemoryStoreEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	created, err := s.EnsureAdmin(ctx, domain.Admin{ID: "a1", Email: "admin@taravani.com", PasswordHash: "h1"})
	if err != nil || !created {
		t.Fatalf("expected admin to be created, err=%v", err)
	}
	created, err = s.EnsureAdmin(ctx, domain.Admin{ID: "a2", Email: "Admin@Taravani.com", PasswordHash: "h2"})
	if err != nil || created {
		t.Fatalf("expected existing admin to be kept, err=%v", err)
	}
	a, ok, _ := s.GetAdminByEmail(ctx, "admin@taravani.com")
	if !ok || a.ID != "a1" || a.PasswordHash != "h1" {
		t.Fatalf("unexpected admin %+v", a)
	}
	if err := s.SetAdminPassword(ctx, "a1", "h3"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if err := s.SetAdminPassword(ctx, "nope", "h3"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMigrationURL(t *testing.T) {
	if got := migrationURL("postgres://u:p@db:5432/app?sslmode=disable"); got != "postgres://u:p@db:5432/app?sslmode=disable&x-migrations-table="+MigrationsTable {
		t.Fatalf("unexpected url %q", got)
	}
	if got := migrationURL("postgres://db/app"); got != "postgres://db/app?x-migrations-table="+MigrationsTable {
		t.Fatalf("unexpected url %q", got)
	}
	custom := "postgres://db/app?x-migrations-table=other"
	if got := migrationURL(custom); got != custom {
		t.Fatalf("expected custom table to be kept, got %q", got)
	}
}

func TestMigrationFilesEmbedded(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected up and down migrations, got %d", len(entries))
	}
}

func ids(rs []domain.Reading) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}
