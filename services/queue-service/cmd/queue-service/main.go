package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/sqip/libs/auth"
	"github.com/md-rashed-zaman/sqip/libs/db"
	"github.com/md-rashed-zaman/sqip/libs/httpx"
	"github.com/md-rashed-zaman/sqip/libs/kafkax"
	otelx "github.com/md-rashed-zaman/sqip/libs/otel"
	"github.com/md-rashed-zaman/sqip/libs/redisx"
	"github.com/md-rashed-zaman/sqip/libs/runtime"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/availability"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/consumer"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/handlers"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/inbox"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/lifecycle"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/locks"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/outbox"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/queue"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/storage"
	"github.com/md-rashed-zaman/sqip/services/queue-service/migrations"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.ServiceName, runtime.LogOptions{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := runtime.SignalContext()
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("queue-service stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("queue-service stopped")
}

// backend is the storage side of the service: Postgres when configured,
// otherwise everything in memory.
type backend struct {
	store  storage.Store
	dir    storage.Directory
	events outbox.Writer
	inbox  consumer.Inbox
	checks []runtime.ReadyCheck
	start  func(ctx context.Context)
	close  func()
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	otelShutdown, err := otelx.Setup(ctx, cfg.ServiceName, cfg.OTel)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	locker, limiter, redisChecks, closeRedis, err := openRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	svc := lifecycle.NewService(be.store, be.dir,
		queue.NewEngine(be.store, locker, logger),
		availability.NewEngine(be.store, locker, logger),
		logger)

	go be.start(ctx)
	if len(cfg.KafkaBrokers) > 0 && cfg.CategoryTopic != "" {
		c := consumer.New(logger, be.inbox, consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.CategoryTopic,
		}, consumer.CategoryStatusHandler(svc, logger))
		go c.Run(ctx)
	}

	verifier := auth.NewHS256Verifier(cfg.JWTSecret)
	if cfg.JWKSURL != "" {
		verifier = auth.NewJWKSVerifier(auth.NewJWKSClient(cfg.JWKSURL, 10*time.Minute), cfg.JWTIssuer)
	}

	checks := append(be.checks, redisChecks...)
	if len(cfg.KafkaBrokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.New(svc, be.events, logger).Register(mux, auth.Middleware(verifier))

	h := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(cfg.CORS),
		httpx.RateLimit(limiter, logger, cfg.RateLimitFailOpen),
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(h, cfg.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return runtime.Serve(ctx, srv, logger, cfg.ShutdownGrace)
}

func openBackend(ctx context.Context, cfg Config, logger *slog.Logger) (backend, error) {
	var seed *storage.Seed
	if cfg.SeedFile != "" {
		f, err := os.Open(cfg.SeedFile)
		if err != nil {
			return backend{}, fmt.Errorf("open seed: %w", err)
		}
		s, err := storage.ReadSeed(f)
		_ = f.Close()
		if err != nil {
			return backend{}, err
		}
		seed = &s
	}

	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		mem := storage.NewMemory()
		if seed != nil {
			if err := mem.ApplySeed(ctx, *seed); err != nil {
				return backend{}, err
			}
		}
		return backend{
			store:  mem,
			dir:    mem,
			events: outbox.NewMemoryWriter(),
			inbox:  inbox.NewMemory(),
			start:  func(context.Context) {},
			close:  func() {},
		}, nil
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: cfg.DBMaxConns})
	if err != nil {
		return backend{}, err
	}
	if cfg.AutoMigrate {
		scripts, err := migrations.Scripts()
		if err == nil {
			err = pool.Migrate(ctx, scripts...)
		}
		if err != nil {
			pool.Close()
			return backend{}, err
		}
	}
	pg := storage.NewPostgres(pool)
	if seed != nil {
		if err := pg.ApplySeed(ctx, *seed); err != nil {
			pool.Close()
			return backend{}, err
		}
	}

	outboxRepo := outbox.NewRepository(pool)
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: cfg.OutboxPoll,
	})
	return backend{
		store:  pg,
		dir:    pg,
		events: outboxRepo,
		inbox:  inbox.NewRepository(pool),
		checks: []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}},
		start:  publisher.Run,
		close:  pool.Close,
	}, nil
}

// openRedis returns the shared locker and rate limiter, falling back to
// process-local ones when REDIS_URL is empty.
func openRedis(ctx context.Context, cfg Config, logger *slog.Logger) (locks.Locker, httpx.Limiter, []runtime.ReadyCheck, func(), error) {
	if cfg.Redis.URL == "" {
		logger.Warn("REDIS_URL not set, using process-local locks")
		return locks.NewLocal(), httpx.NewMemoryLimiter(cfg.RateLimit, cfg.RateLimitWindow), nil, func() {}, nil
	}
	client, err := redisx.Connect(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("redis: %w", err)
	}
	var rdb redis.UniversalClient = client
	checks := []runtime.ReadyCheck{{Name: "redis", Check: redisx.ReadyCheck(rdb)}}
	closeFn := func() { _ = client.Close() }
	return locks.NewRedis(rdb, cfg.LockTTL, logger),
		httpx.NewRedisLimiter(rdb, cfg.RateLimit, cfg.RateLimitWindow, cfg.ServiceName+":rl"),
		checks, closeFn, nil
}
