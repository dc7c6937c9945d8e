package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taravani/pkg/mail"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	oldDotEnv := DotEnvPath
	DotEnvPath = filepath.Join(dir, ".env")
	t.Cleanup(func() { DotEnvPath = oldDotEnv })
	for _, key := range []string{"CONFIG_PATH", "DATABASE_URL", "STORE_DRIVER", "ADMIN_SESSION_SECRET", "VERCEL", "VERCEL_ENV", "READ_ONLY_FS", "RAZORPAY_KEY_ID", "RAZORPAY_KEY_SECRET"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	return dir
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadYAMLThenEnvOverride(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
port: "9090"
storeDriver: postgres
databaseURL: postgres://yaml@localhost/taravani
sessionTTL: 2h
corsAllowedOrigins: ["https://taravani.com"]
`)
	t.Setenv("DATABASE_URL", "postgres://env@localhost/taravani?sslmode=disable")
	t.Setenv("ADMIN_SESSION_SECRET", testSecret)
	t.Setenv("TRUSTED_PROXY_CIDRS", "10.0.0.0/8, ,192.168.0.0/16")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected yaml port, got %q", cfg.Port)
	}
	if !strings.Contains(cfg.DatabaseURL, "env@") {
		t.Fatalf("expected env override of databaseURL, got %q", cfg.DatabaseURL)
	}
	if cfg.SessionDuration() != 2*time.Hour {
		t.Fatalf("unexpected session ttl %v", cfg.SessionDuration())
	}
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[1] != "192.168.0.0/16" {
		t.Fatalf("unexpected trusted proxies %v", cfg.TrustedProxies)
	}
	if cfg.ReadingAmount != 49900 || cfg.ReadingCurrency != "INR" {
		t.Fatalf("expected default pricing, got %d %s", cfg.ReadingAmount, cfg.ReadingCurrency)
	}
}

func TestLoadMissingFileUsesDotEnv(t *testing.T) {
	dir := isolate(t)
	writeFile(t, DotEnvPath, "STORE_DRIVER=memory\nADMIN_SESSION_SECRET="+testSecret+"\n")
	t.Cleanup(func() {
		_ = os.Unsetenv("STORE_DRIVER")
		_ = os.Unsetenv("ADMIN_SESSION_SECRET")
	})

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreDriver != StoreDriverMemory {
		t.Fatalf("expected memory driver from .env, got %q", cfg.StoreDriver)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string][]string{
		"databaseURL is required": {"ADMIN_SESSION_SECRET=" + testSecret},
		"postgres:// URL":         {"ADMIN_SESSION_SECRET=" + testSecret, "DATABASE_URL=mysql://x"},
		"sessionSecret":           {"STORE_DRIVER=memory", "ADMIN_SESSION_SECRET=short"},
		"set together":            {"STORE_DRIVER=memory", "ADMIN_SESSION_SECRET=" + testSecret, "RAZORPAY_KEY_ID=rzp"},
		"sessionTTL":              {"STORE_DRIVER=memory", "ADMIN_SESSION_SECRET=" + testSecret, "ADMIN_SESSION_TTL=soon"},
	}
	for want, envs := range cases {
		t.Run(want, func(t *testing.T) {
			dir := isolate(t)
			for _, kv := range envs {
				parts := strings.SplitN(kv, "=", 2)
				t.Setenv(parts[0], parts[1])
			}
			_, err := Load(filepath.Join(dir, "missing.yaml"))
			if err == nil || !strings.Contains(err.Error(), want) {
				t.Fatalf("expected error containing %q, got %v", want, err)
			}
		})
	}
}

func TestReadOnlyFilesystem(t *testing.T) {
	if (FileConfig{}).ReadOnlyFilesystem() {
		t.Fatalf("expected writable by default")
	}
	if !(FileConfig{Vercel: "1"}).ReadOnlyFilesystem() || !(FileConfig{VercelEnv: "production"}).ReadOnlyFilesystem() || !(FileConfig{ReadOnlyFS: true}).ReadOnlyFilesystem() {
		t.Fatalf("expected read-only detection")
	}
}

func TestMailSettingsResolveBrevo(t *testing.T) {
	cfg := Defaults()
	cfg.BrevoAPIKey = "xkeysib"
	cfg.BrevoSMTPUser = "relay@brevo"
	cfg.SMTPPassword = "ignored"
	resolved := mail.Resolve(cfg.MailSettings())
	if resolved.Provider != mail.ProviderBrevo || resolved.Host != mail.BrevoHost {
		t.Fatalf("unexpected mail config %+v", resolved)
	}
	if resolved.Timeout != 10*time.Second {
		t.Fatalf("unexpected timeout %v", resolved.Timeout)
	}
}
