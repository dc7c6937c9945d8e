package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taravani/internal/util"
	"taravani/pkg/auth"
	"taravani/pkg/domain"
	"taravani/pkg/events"
	"taravani/pkg/intake"
	"taravani/pkg/store"
)

// LoginResult is returned after successful admin authentication.
type LoginResult struct {
	Admin                  domain.Admin `json:"admin"`
	Token                  string       `json:"token"`
	ExpiresAt              time.Time    `json:"expiresAt"`
	RequiresPasswordChange bool         `json:"requiresPasswordChange"`
}

// Login validates admin credentials and issues a session token.
func (a *App) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	admin, ok, err := a.store.GetAdminByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("fetch admin: %w", err)
	}
	if !ok || !auth.CheckPassword(password, admin.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}
	token, expiresAt, err := a.sessions.NewSession(admin.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}
	return LoginResult{
		Admin:                  admin,
		Token:                  token,
		ExpiresAt:              expiresAt,
		RequiresPasswordChange: a.defaultPassword != "" && auth.CheckPassword(a.defaultPassword, admin.PasswordHash),
	}, nil
}

// Authenticate resolves a bearer token to an existing admin.
// Every failure is reported as ErrUnauthorized.
func (a *App) Authenticate(ctx context.Context, token string) (domain.Admin, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Admin{}, ErrUnauthorized
	}
	adminID, ok, err := a.sessions.GetAdminIDByToken(token)
	if err != nil {
		if !errors.Is(err, store.ErrTokenRevoked) {
			util.LoggerFromContext(ctx).Debug("session token rejected", "err", err)
		}
		return domain.Admin{}, ErrUnauthorized
	}
	if !ok {
		return domain.Admin{}, ErrUnauthorized
	}
	admin, ok, err := a.store.GetAdminByID(ctx, adminID)
	if err != nil {
		util.LoggerFromContext(ctx).Error("admin lookup failed", "admin_id", adminID, "err", err)
		return domain.Admin{}, ErrUnauthorized
	}
	if !ok {
		return domain.Admin{}, ErrUnauthorized
	}
	return admin, nil
}

// Logout revokes the presented token until it expires.
func (a *App) Logout(_ context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrUnauthorized
	}
	if err := a.sessions.DeleteSession(token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// ChangePassword re-hashes the admin password and revokes every session
// issued before the change, including the current one. The cutoff uses wall
// time because session tokens are stamped with it.
func (a *App) ChangePassword(ctx context.Context, admin domain.Admin, token, current, next string) error {
	if current == "" || next == "" {
		return intake.Invalid("password", "Current and new password are required")
	}
	if !auth.CheckPassword(current, admin.PasswordHash) {
		return intake.Invalid("currentPassword", "Current password is incorrect")
	}
	if err := auth.ValidatePassword(next); err != nil {
		return intake.Invalid("newPassword", passwordMessage(err))
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := a.store.SetAdminPassword(ctx, admin.ID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthorized
		}
		return fmt.Errorf("update password: %w", err)
	}

	logger := util.LoggerFromContext(ctx).With("admin_id", admin.ID)
	if revoker, ok := a.sessions.(store.AdminSessionRevoker); ok {
		if err := revoker.RevokeAdminSessions(admin.ID, time.Now()); err != nil {
			logger.Error("revoke admin sessions failed", "err", err)
		}
	}
	if token != "" {
		if err := a.sessions.DeleteSession(token); err != nil {
			logger.Warn("revoke current session failed", "err", err)
		}
	}
	a.publish(ctx, events.AdminPasswordChanged, "", map[string]string{"adminId": admin.ID})
	return nil
}

func passwordMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrPasswordTooShort):
		return fmt.Sprintf("New password must be at least %d characters", auth.MinPasswordLength)
	case errors.Is(err, auth.ErrPasswordTooLong):
		return "New password is too long"
	}
	return err.Error()
}

// SeedAdmin creates the configured admin account with the default password
// unless an account with that email already exists.
func (a *App) SeedAdmin(ctx context.Context) (bool, error) {
	if a.adminEmail == "" || a.defaultPassword == "" {
		return false, errors.New("admin email and default password are required")
	}
	if !intake.ValidEmail(a.adminEmail) {
		return false, fmt.Errorf("invalid admin email %q", a.adminEmail)
	}
	hash, err := auth.HashPassword(a.defaultPassword)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	now := a.clock()
	name := a.adminName
	if name == "" {
		name = "Admin"
	}
	created, err := a.store.EnsureAdmin(ctx, domain.Admin{
		ID:           util.NewUUID(),
		Email:        a.adminEmail,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	return created, nil
}
