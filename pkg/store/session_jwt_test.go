package store

import (
	"errors"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-session-secret-0123456789abcdef"

func newTestSessionStore(t *testing.T, revoker TokenRevoker, opts JWTOptions) *JWTSessionStore {
	t.Helper()
	s, err := NewJWTSessionStore(testSecret, time.Hour, revoker, opts)
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	return s
}

func TestNewJWTSessionStoreRejectsShortSecret(t *testing.T) {
	if _, err := NewJWTSessionStore("short", time.Hour, nil, JWTOptions{}); err == nil {
		t.Fatalf("expected short secret to fail")
	}
}

func TestJWTSessionStoreRoundTrip(t *testing.T) {
	s := newTestSessionStore(t, nil, JWTOptions{})
	token, exp, err := s.NewSession("admin-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Fatalf("unexpected expiry %v", exp)
	}
	id, ok, err := s.GetAdminIDByToken(token)
	if err != nil || !ok || id != "admin-1" {
		t.Fatalf("expected admin-1, got id=%q ok=%v err=%v", id, ok, err)
	}
}

func TestJWTSessionStoreRejectsTamperedToken(t *testing.T) {
	s := newTestSessionStore(t, nil, JWTOptions{})
	token, _, err := s.NewSession("admin-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	other, err := NewJWTSessionStore(strings.Repeat("x", 40), time.Hour, nil, JWTOptions{})
	if err != nil {
		t.Fatalf("other store: %v", err)
	}
	if _, ok, err := other.GetAdminIDByToken(token); err == nil || ok {
		t.Fatalf("expected foreign signature to fail")
	}
	if _, ok, err := s.GetAdminIDByToken(token + "x"); err == nil || ok {
		t.Fatalf("expected tampered token to fail")
	}
}

func TestJWTSessionStoreRejectsOtherAlgorithms(t *testing.T) {
	s := newTestSessionStore(t, nil, JWTOptions{})
	claims := jwt.RegisteredClaims{
		Subject:   "admin-1",
		Issuer:    defaultJWTIssuer,
		Audience:  jwt.ClaimStrings{defaultJWTAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ID:        "jti",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, ok, err := s.GetAdminIDByToken(token); err == nil || ok {
		t.Fatalf("expected alg none to fail")
	}
}

func TestJWTSessionStoreEnforcesAudience(t *testing.T) {
	signing := newTestSessionStore(t, nil, JWTOptions{Issuer: "issuer-a", Audience: "aud-a", Leeway: time.Second})
	verify := newTestSessionStore(t, nil, JWTOptions{Issuer: "issuer-a", Audience: "aud-b", Leeway: time.Second})

	token, _, err := signing.NewSession("admin-claim")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, _, err := verify.GetAdminIDByToken(token); err == nil {
		t.Fatalf("expected audience mismatch to fail")
	}
}

func TestJWTSessionStoreExpires(t *testing.T) {
	s := newTestSessionStore(t, nil, JWTOptions{Leeway: time.Second})
	token, _, err := s.NewSession("admin-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, ok, err := s.GetAdminIDByToken(token); err == nil || ok {
		t.Fatalf("expected expired token to fail")
	}
}

func TestJWTSessionStoreRevokesByJTI(t *testing.T) {
	s := newTestSessionStore(t, NewMemoryTokenRevoker(), JWTOptions{})
	token, _, err := s.NewSession("admin-revoke")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, err := s.GetAdminIDByToken(token); !errors.Is(err, ErrTokenRevoked) || ok {
		t.Fatalf("expected revoked token to fail, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreRevokesByAdminCutoff(t *testing.T) {
	s := newTestSessionStore(t, NewMemoryTokenRevoker(), JWTOptions{})
	token, _, err := s.NewSession("admin-cutoff")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.RevokeAdminSessions("admin-cutoff", time.Now().Add(2*time.Second)); err != nil {
		t.Fatalf("revoke admin sessions: %v", err)
	}
	if _, ok, err := s.GetAdminIDByToken(token); err == nil || ok {
		t.Fatalf("expected token issued before cutoff to fail")
	}

	s.now = func() time.Time { return time.Now().Add(5 * time.Second) }
	fresh, _, err := s.NewSession("admin-cutoff")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := s.GetAdminIDByToken(fresh); err != nil || !ok {
		t.Fatalf("expected token issued after cutoff to pass, err=%v", err)
	}
}
