package main

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/sqip/libs/config"
	"github.com/md-rashed-zaman/sqip/libs/httpx"
	"github.com/md-rashed-zaman/sqip/libs/kafkax"
	otelx "github.com/md-rashed-zaman/sqip/libs/otel"
	"github.com/md-rashed-zaman/sqip/libs/redisx"
)

// Config is read from the environment (and .env). DATABASE_URL, REDIS_URL
// and KAFKA_BROKERS are optional; without them the service runs on the
// in-memory store, process-local locks and no event relay.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"queue-service"`
	Port        string `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
	SeedFile    string `env:"SEED_FILE"`

	Redis   redisx.Config
	LockTTL time.Duration `env:"LOCK_TTL" envDefault:"10s"`

	KafkaBrokerList string        `env:"KAFKA_BROKERS"`
	KafkaGroupID    string        `env:"KAFKA_GROUP_ID" envDefault:"queue-service"`
	CategoryTopic   string        `env:"KAFKA_CATEGORY_TOPIC" envDefault:"catalog.category.status_changed.v1"`
	OutboxPoll      time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`

	// KafkaBrokers is KafkaBrokerList split on commas with blanks dropped.
	KafkaBrokers []string

	JWTSecret string `env:"JWT_SECRET"`
	JWKSURL   string `env:"JWKS_URL"`
	JWTIssuer string `env:"JWT_ISSUER"`

	RateLimit         int           `env:"RATE_LIMIT" envDefault:"120"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitFailOpen bool          `env:"RATE_LIMIT_FAIL_OPEN" envDefault:"true"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	BodyLimitBytes    int64         `env:"BODY_LIMIT_BYTES" envDefault:"1048576"`
	ShutdownGrace     time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`

	OTel otelx.Config
	CORS httpx.CORSPolicy
}

var errNoAuth = errors.New("one of JWT_SECRET or JWKS_URL is required")

func loadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	if err := config.ValidPort("PORT", cfg.Port); err != nil {
		return Config{}, err
	}
	if cfg.JWTSecret == "" && cfg.JWKSURL == "" {
		return Config{}, errNoAuth
	}
	cfg.KafkaBrokers = kafkax.SplitBrokers(cfg.KafkaBrokerList)
	return cfg, nil
}
