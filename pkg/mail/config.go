package mail

import (
	"strings"
	"time"
)

const (
	ProviderNone  = ""
	ProviderBrevo = "brevo"
	ProviderSMTP  = "smtp"

	BrevoHost = "smtp-relay.brevo.com"
	BrevoPort = 587

	DefaultSMTPHost = "smtp.gmail.com"
	DefaultSMTPPort = 587
	DefaultFrom     = "noreply@taravani.com"
	DefaultTimeout  = 10 * time.Second
)

// Settings are the raw mail related configuration values.
type Settings struct {
	BrevoAPIKey   string
	BrevoSMTPUser string
	BrevoEmail    string
	BrevoFrom     string

	SMTPHost     string
	SMTPPort     int
	SMTPSecure   bool
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	ContactTo string
	FromName  string
	Timeout   time.Duration
}

// Config is the resolved transport for outgoing mail.
type Config struct {
	Provider string
	Host     string
	Port     int
	// Secure selects implicit TLS. Otherwise STARTTLS is used when offered.
	Secure   bool
	Username string
	Password string
	From     string
	FromName string
	Timeout  time.Duration
}

func (c Config) Configured() bool { return c.Provider != ProviderNone }

// Resolve picks Brevo when an API key and user are set, then plain SMTP
// with credentials, and otherwise leaves mail disabled.
func Resolve(s Settings) Config {
	trim := strings.TrimSpace
	cfg := Config{
		From:     ResolveFrom(s),
		FromName: trim(s.FromName),
		Timeout:  s.Timeout,
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	brevoUser := trim(s.BrevoSMTPUser)
	if brevoUser == "" {
		brevoUser = trim(s.BrevoEmail)
	}
	if key := trim(s.BrevoAPIKey); key != "" && brevoUser != "" {
		cfg.Provider = ProviderBrevo
		cfg.Host = BrevoHost
		cfg.Port = BrevoPort
		cfg.Username = brevoUser
		cfg.Password = key
		return cfg
	}

	if trim(s.SMTPUser) != "" && s.SMTPPassword != "" {
		cfg.Provider = ProviderSMTP
		cfg.Host = trim(s.SMTPHost)
		if cfg.Host == "" {
			cfg.Host = DefaultSMTPHost
		}
		cfg.Port = s.SMTPPort
		if cfg.Port <= 0 {
			cfg.Port = DefaultSMTPPort
		}
		cfg.Secure = s.SMTPSecure || cfg.Port == 465
		cfg.Username = trim(s.SMTPUser)
		cfg.Password = s.SMTPPassword
	}
	return cfg
}

// ResolveFrom returns the sender address by precedence.
func ResolveFrom(s Settings) string {
	for _, v := range []string{s.SMTPFrom, s.BrevoFrom, s.SMTPUser, s.BrevoEmail} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return DefaultFrom
}

// ResolveContactTo returns the inbox that receives contact form messages, or "".
func ResolveContactTo(s Settings) string {
	for _, v := range []string{s.ContactTo, s.SMTPFrom, s.BrevoFrom, s.SMTPUser, s.BrevoEmail} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
