package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"taravani/internal/ratelimit"
	"taravani/internal/security"
	"taravani/internal/util"
	"taravani/pkg/domain"
	"taravani/pkg/intake"
	"taravani/services/api/internal/app"
)

const maxJSONBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                       *app.App
	RedisAddr                 string
	RedisPassword             string
	SubmitRateLimitPerMinute  int
	ContactRateLimitPerMinute int
	PaymentRateLimitPerMinute int
	LoginRateLimitPerMinute   int
	TrustedProxies            []string
	CORSAllowedOrigins        []string
	CronSecret                string
	Now                       func() time.Time
}

// Server exposes the HTTP API.
type Server struct {
	app        *app.App
	router     chi.Router
	proxies    *util.TrustedProxies
	alerter    *security.AuditAlerter
	cronSecret string
	now        func() time.Time
	cors       []string

	submitLimiter  *ratelimit.FixedWindowLimiter
	contactLimiter *ratelimit.FixedWindowLimiter
	paymentLimiter *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured. Rate limiting and
// security alerting are enabled only when a Redis address is configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires app")
	}
	proxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{
		app:        cfg.App,
		proxies:    proxies,
		cronSecret: strings.TrimSpace(cfg.CronSecret),
		now:        cfg.Now,
		cors:       cfg.CORSAllowedOrigins,
	}

	if strings.TrimSpace(cfg.RedisAddr) != "" {
		newLimiter := func(name string, limit, fallback int) (*ratelimit.FixedWindowLimiter, error) {
			if limit <= 0 {
				limit = fallback
			}
			limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "taravani:ratelimit:"+name, limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		if s.submitLimiter, err = newLimiter("submit", cfg.SubmitRateLimitPerMinute, 10); err != nil {
			return nil, err
		}
		if s.contactLimiter, err = newLimiter("contact", cfg.ContactRateLimitPerMinute, 5); err != nil {
			return nil, err
		}
		if s.paymentLimiter, err = newLimiter("payment", cfg.PaymentRateLimitPerMinute, 20); err != nil {
			return nil, err
		}
		if s.loginLimiter, err = newLimiter("login", cfg.LoginRateLimitPerMinute, 10); err != nil {
			return nil, err
		}
		s.alerter = security.NewAuditAlerter(cfg.RedisAddr, cfg.RedisPassword, "taravani:alerts")
	}

	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(util.WithRequestID)
	r.Use(util.WithRequestLog)
	r.Use(middleware.Recoverer)
	r.Use(util.WithSecurityHeaders)
	r.Use(util.WithCORS(s.cors))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		methodNotAllowed(w)
	})

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/submissions", s.handleCreateSubmission)
		r.Post("/payments/create-order", s.handleCreateOrder)
		r.Post("/payments/verify", s.handleVerifyPayment)
		r.Post("/contact", s.handleContact)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Get("/cleanup", s.handleCleanup)
			r.Post("/cleanup", s.handleCleanup)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Post("/logout", s.handleLogout)
				r.Post("/change-password", s.handleChangePassword)
				r.Get("/submissions", s.handleListReadings)
				r.Get("/submissions/{id}", s.handleGetReading)
				r.Patch("/submissions/{id}", s.handleUpdateReading)
				r.Get("/submissions/{id}/pdf", s.handleReadingPDF)
				r.Get("/contacts", s.handleListContacts)
				r.Patch("/contacts", s.handleUpdateContact)
				r.Post("/upload-pdf", s.handleUploadPDF)
				r.Post("/send-email", s.handleSendEmail)
				r.Post("/test-email", s.handleTestEmail)
			})
		})
	})
	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.app.Ping(ctx); err != nil {
		util.LoggerFromContext(r.Context()).Error("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type adminContextKey struct{}

// requireAdmin resolves the bearer token to an admin or answers 401.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		admin, err := s.app.Authenticate(r.Context(), token)
		if err != nil {
			s.audit(r, security.EventAdminAuthorize, "fail")
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), adminContextKey{}, admin)
		ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("admin_id", admin.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func adminFromContext(ctx context.Context) domain.Admin {
	admin, _ := ctx.Value(adminContextKey{}).(domain.Admin)
	return admin
}

// cronAuthorized checks the shared cleanup secret in constant time.
// Without a configured secret the endpoint is open.
func (s *Server) cronAuthorized(r *http.Request) bool {
	if s.cronSecret == "" {
		return true
	}
	token, ok := bearerToken(r)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cronSecret)) == 1
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.proxies)
}

// audit writes a security_event record and feeds failures to the alerter.
func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := s.clientIP(r)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	result, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Warn("security alert counter failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", result.Count,
			"threshold", result.Threshold,
			"window", result.Window.String(),
		)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	decision := limiter.Check(r.Context(), r.URL.Path+"|"+s.clientIP(r))
	if decision.Allowed {
		return true
	}
	retry := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	s.audit(r, "ratelimit", "rate_limited")
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// writeAppError maps application errors onto HTTP responses. Gateway
// messages reach admins verbatim and end users as a generic message.
func writeAppError(w http.ResponseWriter, r *http.Request, err error, admin bool) {
	if ve, ok := intake.AsValidation(err); ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Validation error",
			"errors":  ve.Fields,
		})
		return
	}
	var gwErr *app.GatewayError
	switch {
	case errors.Is(err, app.ErrUnauthorized), errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, app.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, "Invalid payment signature")
	case errors.Is(err, app.ErrPaymentNotConfigured):
		writeError(w, http.StatusInternalServerError, "Payment gateway not configured")
	case errors.Is(err, app.ErrMailNotConfigured):
		writeError(w, http.StatusBadRequest, "Email not configured")
	case errors.As(err, &gwErr):
		util.LoggerFromContext(r.Context()).Error("gateway failure", "op", gwErr.Op, "err", gwErr.Err)
		if admin {
			writeError(w, http.StatusInternalServerError, gwErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Unable to reach the payment provider, please try again")
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success":   false,
			"error":     "internal server error",
			"requestId": util.RequestIDFromContext(r.Context()),
		})
	}
}
