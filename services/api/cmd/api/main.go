package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"taravani/internal/util"
	"taravani/services/api/internal/bootstrap"
	"taravani/services/api/internal/config"
	"taravani/services/api/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := bootstrap.NewApp(cfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer appCore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SeedAdmin {
		created, err := appCore.SeedAdmin(ctx)
		if err != nil {
			log.Fatalf("failed to seed admin: %v", err)
		}
		if created {
			logger.Warn("seeded admin account with default password, change it after first login", "email", cfg.AdminEmail)
		}
	}

	httpServer, err := server.New(server.Config{
		App:                       appCore,
		RedisAddr:                 cfg.RedisAddr,
		RedisPassword:             cfg.RedisPassword,
		SubmitRateLimitPerMinute:  cfg.SubmitRateLimitPerMinute,
		ContactRateLimitPerMinute: cfg.ContactRateLimitPerMinute,
		PaymentRateLimitPerMinute: cfg.PaymentRateLimitPerMinute,
		LoginRateLimitPerMinute:   cfg.LoginRateLimitPerMinute,
		TrustedProxies:            cfg.TrustedProxies,
		CORSAllowedOrigins:        cfg.CORSAllowedOrigins,
		CronSecret:                cfg.CronSecret,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	if cfg.RedisAddr == "" {
		logger.Warn("redis not configured, rate limiting and security alerts disabled")
	}
	if cfg.CronSecret == "" {
		logger.Warn("CRON_SECRET not set, the cleanup endpoint is open")
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("api server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDuration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}
