package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr       string `env:"HTTP_ADDR" env-default:":8080"`
	CRDBDSN        string `env:"CRDB_DSN"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" env-default:"true"`
	MongoURI       string `env:"MONGO_URI"`
	MongoDatabase  string `env:"MONGO_DATABASE" env-default:"marketplace"`
	RedisAddr      string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RabbitURL      string `env:"RABBIT_URL"`
	JWTSecret      string `env:"JWT_SECRET"`
	JWTPublicKey   string `env:"JWT_PUBLIC_KEY"`
	JWTIssuer      string `env:"JWT_ISSUER"`
	OTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel       string `env:"LOG_LEVEL" env-default:"info"`

	TraceSampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG" env-default:"1"`

	CatalogCacheTTL  time.Duration `env:"CATALOG_CACHE_TTL" env-default:"30s"`
	IdempotencyTTL   time.Duration `env:"IDEMPOTENCY_TTL" env-default:"24h"`
	OrderMaxAttempts int           `env:"ORDER_MAX_ATTEMPTS" env-default:"3"`

	RateLimitPerPrincipal int           `env:"RATE_LIMIT_PER_PRINCIPAL" env-default:"30"`
	RateLimitPerIP        int           `env:"RATE_LIMIT_PER_IP" env-default:"300"`
	RateLimitWindow       time.Duration `env:"RATE_LIMIT_WINDOW" env-default:"1m"`

	OutboxInterval  time.Duration `env:"OUTBOX_INTERVAL" env-default:"2s"`
	OutboxBatchSize int           `env:"OUTBOX_BATCH_SIZE" env-default:"50"`
	AuditQueue      string        `env:"AUDIT_QUEUE" env-default:"marketplace.audit"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, errors.Wrap(err, "read env")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.OrderMaxAttempts < 1 {
		return errors.Newf("ORDER_MAX_ATTEMPTS must be at least 1, got %d", c.OrderMaxAttempts)
	}
	if c.OutboxBatchSize < 1 {
		return errors.Newf("OUTBOX_BATCH_SIZE must be at least 1, got %d", c.OutboxBatchSize)
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return errors.Newf("OTEL_TRACES_SAMPLER_ARG must be within [0, 1], got %g", c.TraceSampleRatio)
	}
	return nil
}

// ValidateAuth is checked only by processes that verify tokens.
func (c *Config) ValidateAuth() error {
	if c.JWTSecret == "" && c.JWTPublicKey == "" {
		return errors.New("one of JWT_SECRET or JWT_PUBLIC_KEY must be set")
	}
	return nil
}
