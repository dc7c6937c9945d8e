package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taravani/internal/util"
	"taravani/services/api/internal/app"
	"taravani/services/api/internal/bootstrap"
	"taravani/services/api/internal/config"
)

func loadApp(configPath string) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	util.InitLogger(cfg.LogLevel)
	return bootstrap.NewApp(cfg)
}

func seedAdminCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the configured admin account if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			created, err := a.SeedAdmin(cmd.Context())
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintln(cmd.OutOrStdout(), "admin created, change the default password after first login")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "admin already exists")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.ConfigPath, "path to config.yaml")
	return cmd
}

func cleanupCmd() *cobra.Command {
	var (
		configPath string
		baseURL    string
		secret     string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete readings past their retention deadline",
		Long: `Delete readings past their retention deadline.

With --url the sweep is triggered on a running server through
/api/admin/cleanup. Otherwise it runs directly against the configured store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			var (
				res app.CleanupResult
				err error
			)
			if strings.TrimSpace(baseURL) != "" {
				res, err = remoteCleanup(ctx, http.DefaultClient, baseURL, secret)
			} else {
				var a *app.App
				if a, err = loadApp(configPath); err != nil {
					return err
				}
				defer a.Close()
				res, err = a.Cleanup(ctx, time.Now())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d reading(s)\n", res.DeletedCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.ConfigPath, "path to config.yaml")
	cmd.Flags().StringVar(&baseURL, "url", "", "base URL of a running server")
	cmd.Flags().StringVar(&secret, "secret", "", "cleanup secret (CRON_SECRET) sent as a bearer token")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall timeout")
	return cmd
}

func remoteCleanup(ctx context.Context, client *http.Client, baseURL, secret string) (app.CleanupResult, error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/api/admin/cleanup"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return app.CleanupResult{}, err
	}
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	resp, err := client.Do(req)
	if err != nil {
		return app.CleanupResult{}, fmt.Errorf("call cleanup: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return app.CleanupResult{}, fmt.Errorf("read cleanup response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &failure) == nil && failure.Error != "" {
			return app.CleanupResult{}, fmt.Errorf("cleanup failed: %s (status %d)", failure.Error, resp.StatusCode)
		}
		return app.CleanupResult{}, fmt.Errorf("cleanup failed: status %d", resp.StatusCode)
	}
	var res app.CleanupResult
	if err := json.Unmarshal(body, &res); err != nil {
		return app.CleanupResult{}, fmt.Errorf("decode cleanup response: %w", err)
	}
	if res.DeletedAt.IsZero() {
		return res, errors.New("cleanup response missing deletedAt")
	}
	return res, nil
}
