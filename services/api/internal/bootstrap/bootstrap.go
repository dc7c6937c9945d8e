// Package bootstrap assembles the readings application from resolved configuration.
package bootstrap

import (
	"fmt"
	"log/slog"
	"strings"

	"taravani/pkg/events"
	"taravani/pkg/mail"
	"taravani/pkg/storage"
	"taravani/pkg/store"
	"taravani/services/api/internal/app"
	"taravani/services/api/internal/config"
)

// OpenStore returns the record store selected by storeDriver.
func OpenStore(cfg config.FileConfig) (store.Store, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), nil
	}
	s, err := store.NewGormStore(cfg.DatabaseURL, store.WithMaxOpenConns(cfg.DBMaxConns))
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	return s, nil
}

// Reports returns the object store for uploaded PDFs, or nil when PDFs are
// kept inline in the record store. A read-only filesystem always keeps PDFs
// inline, even when MinIO is configured.
func Reports(cfg config.FileConfig) (storage.ObjectStore, error) {
	if cfg.ReadOnlyFilesystem() {
		return nil, nil
	}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		s, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init minio: %w", err)
		}
		return s, nil
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return nil, nil
	}
	fs, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		slog.Warn("report directory unavailable, storing pdfs inline", "dir", cfg.DataDir, "err", err)
		return nil, nil
	}
	return fs, nil
}

// Publisher prefers AMQP, then a Redis stream, and otherwise discards events.
func Publisher(cfg config.FileConfig) (events.Publisher, error) {
	switch {
	case strings.TrimSpace(cfg.AMQPURL) != "":
		p, err := events.NewAMQPPublisher(events.AMQPConfig{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange})
		if err != nil {
			return nil, fmt.Errorf("init amqp publisher: %w", err)
		}
		return p, nil
	case strings.TrimSpace(cfg.EventStream) != "" && strings.TrimSpace(cfg.RedisAddr) != "":
		p, err := events.NewRedisStreamPublisher(events.RedisStreamConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.EventStream,
			MaxLen:   cfg.EventStreamMaxLen,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis stream publisher: %w", err)
		}
		return p, nil
	}
	return events.Nop{}, nil
}

// NewApp builds the application with every collaborator configured.
func NewApp(cfg config.FileConfig) (*app.App, error) {
	records, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	reports, err := Reports(cfg)
	if err != nil {
		return nil, err
	}
	publisher, err := Publisher(cfg)
	if err != nil {
		return nil, err
	}
	settings := cfg.MailSettings()
	mailCfg := mail.Resolve(settings)
	if !mailCfg.Configured() {
		slog.Warn("email service not configured, reports will be marked sent without delivery")
	}

	return app.New(app.Config{
		RedisAddr:            cfg.RedisAddr,
		RedisPassword:        cfg.RedisPassword,
		SessionSecret:        cfg.SessionSecret,
		SessionTTL:           cfg.SessionDuration(),
		InlinePDFs:           reports == nil,
		RazorpayKeyID:        cfg.RazorpayKeyID,
		RazorpayKeySecret:    cfg.RazorpayKeySecret,
		Amount:               cfg.ReadingAmount,
		Currency:             cfg.ReadingCurrency,
		Mail:                 mailCfg,
		ContactTo:            mail.ResolveContactTo(settings),
		AdminEmail:           cfg.AdminEmail,
		AdminName:            cfg.AdminName,
		DefaultAdminPassword: cfg.AdminPassword,
		Store:                records,
		Reports:              reports,
		Publisher:            publisher,
	})
}
