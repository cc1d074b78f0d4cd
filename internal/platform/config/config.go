package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pkgstrings "ndaflow/pkg/platform/strings"
)

// Config is the full process configuration, read once in main.
type Config struct {
	Server      Server
	Log         Log
	Auth        Auth
	Database    Database
	Redis       RedisConfig
	Kafka       Kafka
	Mail        Mail
	Delivery    Delivery
	Notify      Notify
	Expiration  Expiration
	Idempotency Idempotency
	Attachments Attachments
	RateLimit   RateLimit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	// SeedDemo loads demo agreements into the in-memory stores.
	SeedDemo bool
}

type Log struct {
	Level  string
	Format string // json or text
}

type Auth struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

// Database selects Postgres when URL is set; otherwise stores are in memory.
type Database struct {
	URL      string
	MaxConns int32
}

// RedisConfig configures the idempotency key store. Empty URL keeps keys in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Kafka struct {
	Brokers            []string
	NotificationsTopic string
	Partitions         int32
	ReplicationFactor  int16
}

// Mail configures outbound transports. Transport is "log" (development) or "smtp".
type Mail struct {
	Transport       string
	Host            string
	Port            int
	Username        string
	Password        string
	From            string
	AlertFrom       string
	AlertRecipients []string
	DefaultCC       []string
	DefaultBCC      []string
	CompanyName     string
}

type Delivery struct {
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	PollInterval time.Duration
	SendTimeout  time.Duration
	ClaimTimeout time.Duration
}

// Notify selects the notification sink: "log", "mail" or "kafka".
type Notify struct {
	Sink      string
	InboxSize int
}

type Expiration struct {
	Interval time.Duration
}

type Idempotency struct {
	TTL time.Duration
}

// RateLimit caps write requests per actor. A zero limit disables it.
type RateLimit struct {
	Writes int
	Window time.Duration
}

// Attachments points at the generated-document directory. Empty keeps documents in memory.
type Attachments struct {
	Dir string
}

// FromEnv builds the configuration from environment variables, applying defaults.
func FromEnv() (Config, error) {
	var p parser
	cfg := Config{
		Server: Server{
			Addr:            p.str("NDAFLOW_ADDR", ":8080"),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
			SeedDemo:        p.boolean("SEED_DEMO", false),
		},
		Log: Log{
			Level:  p.str("LOG_LEVEL", "info"),
			Format: p.str("LOG_FORMAT", "json"),
		},
		Auth: Auth{
			// development default; override in every deployed environment
			JWTSigningKey: p.str("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        p.str("JWT_ISSUER", "ndaflow"),
			Audience:      p.str("JWT_AUDIENCE", "ndaflow-api"),
		},
		Database: Database{
			URL:      p.str("DATABASE_URL", ""),
			MaxConns: int32(p.integer("DATABASE_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			URL:          p.str("REDIS_URL", ""),
			PoolSize:     p.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:            pkgstrings.SplitList(p.str("KAFKA_BROKERS", "")),
			NotificationsTopic: p.str("KAFKA_NOTIFICATIONS_TOPIC", "agreement.notifications"),
			Partitions:         int32(p.integer("KAFKA_PARTITIONS", 3)),
			ReplicationFactor:  int16(p.integer("KAFKA_REPLICATION_FACTOR", 1)),
		},
		Mail: Mail{
			Transport:       p.str("MAIL_TRANSPORT", "log"),
			Host:            p.str("SMTP_HOST", "localhost"),
			Port:            p.integer("SMTP_PORT", 587),
			Username:        p.str("SMTP_USERNAME", ""),
			Password:        p.str("SMTP_PASSWORD", ""),
			From:            p.str("MAIL_FROM", "nda@usmax.com"),
			AlertFrom:       p.str("ALERT_FROM", "nda-alerts@usmax.com"),
			AlertRecipients: pkgstrings.SplitList(p.str("ALERT_RECIPIENTS", "")),
			DefaultCC:       pkgstrings.SplitList(p.str("MAIL_DEFAULT_CC", "")),
			DefaultBCC:      pkgstrings.SplitList(p.str("MAIL_DEFAULT_BCC", "")),
			CompanyName:     p.str("MAIL_COMPANY_NAME", "USMax"),
		},
		Delivery: Delivery{
			MaxRetries:   p.integer("DELIVERY_MAX_RETRIES", 3),
			BackoffBase:  p.duration("DELIVERY_BACKOFF_BASE", time.Second),
			BackoffMax:   p.duration("DELIVERY_BACKOFF_MAX", 5*time.Minute),
			PollInterval: p.duration("DELIVERY_POLL_INTERVAL", 5*time.Second),
			SendTimeout:  p.duration("DELIVERY_SEND_TIMEOUT", 30*time.Second),
			ClaimTimeout: p.duration("DELIVERY_CLAIM_TIMEOUT", 10*time.Minute),
		},
		Notify: Notify{
			Sink:      p.str("NOTIFY_SINK", "log"),
			InboxSize: p.integer("NOTIFY_INBOX_SIZE", 256),
		},
		Expiration: Expiration{
			Interval: p.duration("EXPIRATION_INTERVAL", time.Hour),
		},
		Idempotency: Idempotency{
			TTL: p.duration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Attachments: Attachments{
			Dir: p.str("ATTACHMENTS_DIR", ""),
		},
		RateLimit: RateLimit{
			Writes: p.integer("RATE_LIMIT_WRITES", 60),
			Window: p.duration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Mail.Transport {
	case "log", "smtp":
	default:
		return fmt.Errorf("MAIL_TRANSPORT must be log or smtp, got %q", c.Mail.Transport)
	}
	switch c.Notify.Sink {
	case "log", "mail", "kafka":
	default:
		return fmt.Errorf("NOTIFY_SINK must be log, mail or kafka, got %q", c.Notify.Sink)
	}
	if c.Notify.Sink == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("NOTIFY_SINK=kafka requires KAFKA_BROKERS")
	}
	if c.Delivery.MaxRetries < 1 {
		return fmt.Errorf("DELIVERY_MAX_RETRIES must be at least 1")
	}
	if c.RateLimit.Writes < 0 {
		return fmt.Errorf("RATE_LIMIT_WRITES must not be negative")
	}
	if c.RateLimit.Writes > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if c.Expiration.Interval <= 0 {
		return fmt.Errorf("EXPIRATION_INTERVAL must be positive")
	}
	if c.Notify.InboxSize < 1 {
		return fmt.Errorf("NOTIFY_INBOX_SIZE must be at least 1")
	}
	return nil
}

// parser reads typed values and keeps the first error.
type parser struct {
	err error
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) boolean(key string, def bool) bool {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}
