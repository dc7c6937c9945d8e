package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"taravani/pkg/mail"
)

// ConfigPath is the default YAML location, overridable with CONFIG_PATH.
var ConfigPath = "config.yaml"

// DotEnvPath is loaded into the process environment when present.
var DotEnvPath = ".env"

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// FileConfig is the resolved service configuration. YAML keys come first,
// environment variables override them.
type FileConfig struct {
	Port        string `yaml:"port" env:"PORT"`
	LogLevel    string `yaml:"logLevel" env:"LOG_LEVEL"`
	StoreDriver string `yaml:"storeDriver" env:"STORE_DRIVER"`
	DatabaseURL string `yaml:"databaseURL" env:"DATABASE_URL"`
	DBMaxConns  int    `yaml:"dbMaxConns" env:"DB_MAX_CONNS"`

	DataDir    string `yaml:"dataDir" env:"DATA_DIR"`
	ReadOnlyFS bool   `yaml:"readOnlyFS" env:"READ_ONLY_FS"`
	Vercel     string `yaml:"-" env:"VERCEL"`
	VercelEnv  string `yaml:"-" env:"VERCEL_ENV"`

	MinioEndpoint  string `yaml:"minioEndpoint" env:"MINIO_ENDPOINT"`
	MinioAccessKey string `yaml:"minioAccessKey" env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `yaml:"minioSecretKey" env:"MINIO_SECRET_KEY"`
	MinioBucket    string `yaml:"minioBucket" env:"MINIO_BUCKET"`
	MinioUseSSL    bool   `yaml:"minioUseSSL" env:"MINIO_USE_SSL"`

	RedisAddr     string `yaml:"redisAddr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redisPassword" env:"REDIS_PASSWORD"`

	SessionSecret string `yaml:"sessionSecret" env:"ADMIN_SESSION_SECRET"`
	SessionTTL    string `yaml:"sessionTTL" env:"ADMIN_SESSION_TTL"`

	RazorpayKeyID     string `yaml:"razorpayKeyId" env:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret string `yaml:"razorpayKeySecret" env:"RAZORPAY_KEY_SECRET"`
	ReadingAmount     int64  `yaml:"readingAmount" env:"READING_AMOUNT"`
	ReadingCurrency   string `yaml:"readingCurrency" env:"READING_CURRENCY"`

	BrevoAPIKey   string `yaml:"brevoApiKey" env:"BREVO_API_KEY"`
	BrevoSMTPUser string `yaml:"brevoSmtpUser" env:"BREVO_SMTP_USER"`
	BrevoEmail    string `yaml:"brevoEmail" env:"BREVO_EMAIL"`
	BrevoFrom     string `yaml:"brevoFrom" env:"BREVO_FROM"`
	SMTPHost      string `yaml:"smtpHost" env:"SMTP_HOST"`
	SMTPPort      int    `yaml:"smtpPort" env:"SMTP_PORT"`
	SMTPSecure    bool   `yaml:"smtpSecure" env:"SMTP_SECURE"`
	SMTPUser      string `yaml:"smtpUser" env:"SMTP_USER"`
	SMTPPassword  string `yaml:"smtpPassword" env:"SMTP_PASSWORD"`
	SMTPFrom      string `yaml:"smtpFrom" env:"SMTP_FROM"`
	MailFromName  string `yaml:"mailFromName" env:"MAIL_FROM_NAME"`
	MailTimeout   string `yaml:"mailTimeout" env:"MAIL_TIMEOUT"`
	ContactTo     string `yaml:"contactTo" env:"CONTACT_TO"`

	CronSecret string `yaml:"cronSecret" env:"CRON_SECRET"`

	AMQPURL           string `yaml:"amqpURL" env:"AMQP_URL"`
	AMQPExchange      string `yaml:"amqpExchange" env:"AMQP_EXCHANGE"`
	EventStream       string `yaml:"eventStream" env:"EVENT_STREAM"`
	EventStreamMaxLen int64  `yaml:"eventStreamMaxLen" env:"EVENT_STREAM_MAXLEN"`

	SubmitRateLimitPerMinute  int `yaml:"submitRateLimitPerMinute" env:"SUBMIT_RATE_LIMIT_PER_MINUTE"`
	ContactRateLimitPerMinute int `yaml:"contactRateLimitPerMinute" env:"CONTACT_RATE_LIMIT_PER_MINUTE"`
	PaymentRateLimitPerMinute int `yaml:"paymentRateLimitPerMinute" env:"PAYMENT_RATE_LIMIT_PER_MINUTE"`
	LoginRateLimitPerMinute   int `yaml:"loginRateLimitPerMinute" env:"LOGIN_RATE_LIMIT_PER_MINUTE"`

	TrustedProxies     []string `yaml:"trustedProxies" env:"TRUSTED_PROXY_CIDRS" envSeparator:","`
	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	SeedAdmin     bool   `yaml:"seedAdmin" env:"SEED_ADMIN"`
	AdminEmail    string `yaml:"adminEmail" env:"ADMIN_EMAIL"`
	AdminPassword string `yaml:"adminPassword" env:"ADMIN_DEFAULT_PASSWORD"`
	AdminName     string `yaml:"adminName" env:"ADMIN_NAME"`

	ShutdownTimeout string `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
}

// Defaults returns the configuration used before any file or environment overlay.
func Defaults() FileConfig {
	return FileConfig{
		Port:                      "8080",
		LogLevel:                  "info",
		StoreDriver:               StoreDriverPostgres,
		DataDir:                   "data/reports",
		MinioBucket:               "taravani-reports",
		SessionTTL:                "12h",
		ReadingAmount:             49900,
		ReadingCurrency:           "INR",
		MailFromName:              "Taravani",
		MailTimeout:               "10s",
		AMQPExchange:              "taravani.events",
		SubmitRateLimitPerMinute:  10,
		ContactRateLimitPerMinute: 5,
		PaymentRateLimitPerMinute: 20,
		LoginRateLimitPerMinute:   10,
		AdminEmail:                "admin@taravani.com",
		AdminPassword:             "admin123",
		AdminName:                 "Admin",
		ShutdownTimeout:           "15s",
	}
}

// Load resolves configuration from defaults, the YAML file at path (optional),
// the .env file (optional) and the environment, then validates it.
func Load(path string) (FileConfig, error) {
	cfg := Defaults()
	if path == "" {
		path = ConfigPath
	}
	if v := strings.TrimSpace(os.Getenv("CONFIG_PATH")); v != "" {
		path = v
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := godotenv.Load(DotEnvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load %s: %w", DotEnvPath, err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	cfg.CORSAllowedOrigins = compact(cfg.CORSAllowedOrigins)
	cfg.TrustedProxies = compact(cfg.TrustedProxies)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required")
	}
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required (set DATABASE_URL)")
		}
		if !strings.HasPrefix(cfg.DatabaseURL, "postgres://") && !strings.HasPrefix(cfg.DatabaseURL, "postgresql://") {
			return errors.New("config: databaseURL must be a postgres:// URL")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("config: unknown storeDriver %q", cfg.StoreDriver)
	}
	if len(strings.TrimSpace(cfg.SessionSecret)) < 32 {
		return errors.New("config: sessionSecret must be at least 32 characters (set ADMIN_SESSION_SECRET)")
	}
	if (cfg.RazorpayKeyID == "") != (cfg.RazorpayKeySecret == "") {
		return errors.New("config: razorpay key id and secret must be set together")
	}
	if cfg.ReadingAmount <= 0 {
		return errors.New("config: readingAmount must be > 0")
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "") {
		return errors.New("config: minio endpoint requires access and secret keys")
	}
	if cfg.SubmitRateLimitPerMinute < 0 || cfg.ContactRateLimitPerMinute < 0 || cfg.PaymentRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	for name, raw := range map[string]string{
		"sessionTTL":      cfg.SessionTTL,
		"mailTimeout":     cfg.MailTimeout,
		"shutdownTimeout": cfg.ShutdownTimeout,
	} {
		if _, err := ParseDuration(name, raw); err != nil {
			return err
		}
	}
	return nil
}

// ReadOnlyFilesystem reports whether uploaded PDFs must be kept inline.
func (c FileConfig) ReadOnlyFilesystem() bool {
	return c.ReadOnlyFS || c.Vercel == "1" || c.VercelEnv != ""
}

// MailSettings maps the mail options onto the provider resolver input.
func (c FileConfig) MailSettings() mail.Settings {
	timeout, _ := ParseDuration("mailTimeout", c.MailTimeout)
	return mail.Settings{
		BrevoAPIKey:   c.BrevoAPIKey,
		BrevoSMTPUser: c.BrevoSMTPUser,
		BrevoEmail:    c.BrevoEmail,
		BrevoFrom:     c.BrevoFrom,
		SMTPHost:      c.SMTPHost,
		SMTPPort:      c.SMTPPort,
		SMTPSecure:    c.SMTPSecure,
		SMTPUser:      c.SMTPUser,
		SMTPPassword:  c.SMTPPassword,
		SMTPFrom:      c.SMTPFrom,
		ContactTo:     c.ContactTo,
		FromName:      c.MailFromName,
		Timeout:       timeout,
	}
}

func (c FileConfig) SessionDuration() time.Duration {
	d, _ := ParseDuration("sessionTTL", c.SessionTTL)
	return d
}

func (c FileConfig) ShutdownDuration() time.Duration {
	d, _ := ParseDuration("shutdownTimeout", c.ShutdownTimeout)
	if d <= 0 {
		return 15 * time.Second
	}
	return d
}

// ParseDuration parses an optional duration option. Empty yields zero.
func ParseDuration(name, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s duration: must not be negative", name)
	}
	return d, nil
}

func compact(in []string) []string {
	out := in[:0]
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
