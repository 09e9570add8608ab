package infra

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MinSchedulerInterval is the floor enforced on SCHEDULER_INTERVAL.
const MinSchedulerInterval = time.Second

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"warden"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"warden"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"warden"`
	PGMaxConns  int32  `env:"PG_MAX_CONNS" envDefault:"10"`

	// Node identity
	ServerName string `env:"SERVER_NAME" envDefault:"global"`

	// JWT
	JWTSecret         string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTReporterExpiry time.Duration `env:"JWT_REPORTER_EXPIRY" envDefault:"12h"`

	// Reporting API
	APIPort            int    `env:"API_PORT" envDefault:"3100"`
	APIRateLimit       int    `env:"API_RATE_LIMIT" envDefault:"60"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopic   string `env:"KAFKA_TOPIC" envDefault:"warden.punishments"`
	KafkaGroupID string `env:"KAFKA_GROUP_ID" envDefault:"warden-audit"`

	// Proxy relay
	NATSURL            string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSEnabled        bool          `env:"NATS_ENABLED" envDefault:"false"`
	RelaySubject       string        `env:"RELAY_SUBJECT" envDefault:"warden.proxy"`
	LoginSubject       string        `env:"LOGIN_SUBJECT" envDefault:"warden.login"`
	RelayQueueCapacity int           `env:"RELAY_QUEUE_CAPACITY" envDefault:"256"`
	RelayBreakerLimit  int           `env:"RELAY_BREAKER_THRESHOLD" envDefault:"5"`
	RelayBreakerReset  time.Duration `env:"RELAY_BREAKER_RESET" envDefault:"30s"`

	// Cache
	CacheMaxEntries  int           `env:"CACHE_MAX_ENTRIES" envDefault:"10000"`
	CacheActiveTTL   time.Duration `env:"CACHE_ACTIVE_TTL" envDefault:"30s"`
	CacheIdentityTTL time.Duration `env:"CACHE_IDENTITY_TTL" envDefault:"10m"`
	CacheAltTTL      time.Duration `env:"CACHE_ALT_TTL" envDefault:"30m"`

	// Scheduler
	SchedulerInterval  time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"5s"`
	SchedulerLookahead time.Duration `env:"SCHEDULER_LOOKAHEAD" envDefault:"720h"`
	SchedulerBatch     int           `env:"SCHEDULER_BATCH" envDefault:"100"`

	// Engine policy
	MaxTempBan             time.Duration `env:"MAX_TEMPBAN" envDefault:"720h"`
	MaxTempMute            time.Duration `env:"MAX_TEMPMUTE" envDefault:"168h"`
	BroadcastSilentDefault bool          `env:"BROADCAST_SILENT_DEFAULT" envDefault:"false"`
	AltCascadeEnabled      bool          `env:"ALT_CASCADE_ENABLED" envDefault:"false"`
	WorkerPoolSize         int           `env:"WORKER_POOL_SIZE" envDefault:"8"`
	NoticeTemplatesPath    string        `env:"NOTICE_TEMPLATES_PATH"`

	// Escalation
	EscalationEnabled   bool          `env:"ESCALATION_ENABLED" envDefault:"true"`
	EscalationRulesPath string        `env:"ESCALATION_RULES_PATH"`
	EscalationCooldown  time.Duration `env:"ESCALATION_COOLDOWN" envDefault:"5s"`
	WarnDecayEnabled    bool          `env:"WARN_DECAY_ENABLED" envDefault:"false"`
	WarnDecayAfter      time.Duration `env:"WARN_DECAY_AFTER" envDefault:"720h"`
	DecaySweepInterval  time.Duration `env:"DECAY_SWEEP_INTERVAL" envDefault:"1m"`

	// Outbox
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"500ms"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig loads an optional .env file, then parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local dev.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass the secret checks (local dev only).
func (c *Config) Validate() error {
	if c.SchedulerInterval < MinSchedulerInterval {
		return fmt.Errorf("SCHEDULER_INTERVAL %s is below the %s floor", c.SchedulerInterval, MinSchedulerInterval)
	}
	if c.RelayQueueCapacity < 1 {
		return fmt.Errorf("RELAY_QUEUE_CAPACITY must be positive, got %d", c.RelayQueueCapacity)
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// Brokers splits KAFKA_BROKERS into addresses.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
