package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"taravani/internal/util"
	"taravani/pkg/events"
	"taravani/pkg/mail"
	"taravani/pkg/payment"
	"taravani/pkg/storage"
	"taravani/pkg/store"
)

const (
	DefaultAmount   = 49900
	DefaultCurrency = "INR"
)

// Config holds runtime configuration for the readings application.
// Nil collaborators are built from the plain settings.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	SessionSecret string
	SessionTTL    time.Duration
	DataDir       string
	InlinePDFs    bool

	RazorpayKeyID     string
	RazorpayKeySecret string
	Amount            int64
	Currency          string

	Mail      mail.Config
	ContactTo string

	AdminEmail           string
	AdminName            string
	DefaultAdminPassword string

	Store     store.Store
	Sessions  store.SessionStore
	Mailer    mail.Mailer
	Gateway   payment.Gateway
	Reports   storage.ObjectStore
	Publisher events.Publisher
	Now       func() time.Time
}

// App is the reading lifecycle manager, admin session guard and retention sweeper.
type App struct {
	store     store.Store
	sessions  store.SessionStore
	mailer    mail.Mailer
	mailCfg   mail.Config
	contactTo string
	gateway   payment.Gateway
	reports   storage.ObjectStore
	inline    bool
	events    events.Publisher
	now       func() time.Time

	amount   int64
	currency string

	adminEmail      string
	adminName       string
	defaultPassword string

	sweep singleflight.Group
}

// New constructs the application, opening the stores the config does not supply.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.Amount <= 0 {
		cfg.Amount = DefaultAmount
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = DefaultCurrency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
		if strings.TrimSpace(cfg.RedisAddr) != "" {
			revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		}
		jwtStore, err := store.NewJWTSessionStore(cfg.SessionSecret, cfg.SessionTTL, revoker, store.JWTOptions{})
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
		sessionStore = jwtStore
	}

	mailer := cfg.Mailer
	if mailer == nil {
		mailer = mail.New(cfg.Mail)
	}

	gateway := cfg.Gateway
	if gateway == nil {
		gateway = payment.NewClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	}

	reports := cfg.Reports
	if reports == nil && !cfg.InlinePDFs && strings.TrimSpace(cfg.DataDir) != "" {
		fs, err := storage.NewFileStore(cfg.DataDir)
		if err != nil {
			slog.Warn("report directory unavailable, storing pdfs inline", "dir", cfg.DataDir, "err", err)
		} else {
			reports = fs
		}
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	return &App{
		store:           dataStore,
		sessions:        sessionStore,
		mailer:          mailer,
		mailCfg:         cfg.Mail,
		contactTo:       cfg.ContactTo,
		gateway:         gateway,
		reports:         reports,
		inline:          cfg.InlinePDFs || reports == nil,
		events:          publisher,
		now:             cfg.Now,
		amount:          cfg.Amount,
		currency:        strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		adminEmail:      strings.ToLower(strings.TrimSpace(cfg.AdminEmail)),
		adminName:       strings.TrimSpace(cfg.AdminName),
		defaultPassword: cfg.DefaultAdminPassword,
	}, nil
}

// Ping checks the record store.
func (a *App) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

// Close releases the store and the event publisher.
func (a *App) Close() error {
	var errs []error
	if c, ok := a.store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, a.events.Close())
	return errors.Join(errs...)
}

func (a *App) publish(ctx context.Context, eventType, readingID string, attrs map[string]string) {
	if err := a.events.Publish(ctx, events.New(eventType, readingID, attrs)); err != nil {
		util.LoggerFromContext(ctx).Warn("event publish failed", "type", eventType, "reading_id", readingID, "err", err)
	}
}

func (a *App) clock() time.Time {
	return a.now().UTC()
}
