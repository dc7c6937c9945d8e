package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRemoteCleanup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/admin/cleanup" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"Unauthorized"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"deletedCount":3,"deletedAt":"2026-03-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	res, err := remoteCleanup(context.Background(), srv.Client(), srv.URL+"/", "s3cret")
	if err != nil {
		t.Fatalf("remote cleanup: %v", err)
	}
	if res.DeletedCount != 3 {
		t.Fatalf("expected 3 deleted, got %d", res.DeletedCount)
	}

	_, err = remoteCleanup(context.Background(), srv.Client(), srv.URL, "wrong")
	if err == nil || !strings.Contains(err.Error(), "Unauthorized") {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cmd := migrateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "database url required") {
		t.Fatalf("expected missing database url error, got %v", err)
	}
}
