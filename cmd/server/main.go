package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/newsletter-service/internal/api"
	"github.com/ignite/newsletter-service/internal/config"
	"github.com/ignite/newsletter-service/internal/notify"
	"github.com/ignite/newsletter-service/internal/pkg/distlock"
	"github.com/ignite/newsletter-service/internal/pkg/logger"
	"github.com/ignite/newsletter-service/internal/repository/postgres"
	"github.com/ignite/newsletter-service/internal/service/subscription"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	configureLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisClient := connectRedis(ctx, cfg.Redis.URL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	notifier, closeNotifier, err := newNotifier(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize notifications: %v", err)
	}
	defer closeNotifier()

	customers := postgres.NewCustomerRepo(db)
	svc := subscription.NewService(subscription.Deps{
		Repo:      postgres.NewSubscriberRepo(db),
		Customers: customers,
		Notifier:  notifier,
		Config:    cfg.Newsletter,
		Stores:    cfg.Newsletter,
		Locker:    distlock.NewLocker(redisClient, db, cfg.Newsletter.LockTTL(), cfg.Newsletter.LockWait()),
	})

	router := api.SetupRoutes(
		api.NewHandlers(svc, customers),
		api.NewHealthChecker(db, redisClient, cfg.Notifications.Transport),
		api.NewIdentityResolver(cfg.Auth.JWTSecret, cfg.Newsletter),
		cfg.Server.AllowedOrigins,
	)
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("newsletter server starting", "addr", server.Addr, "transport", cfg.Notifications.Transport)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	logger.Info("newsletter server shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
}

func configureLogger(c config.LoggingConfig) {
	level, err := logger.ParseLevel(c.Level)
	if err != nil {
		log.Printf("WARNING: %v, using info", err)
	}
	logger.SetLevel(level)
	logger.SetRedactPII(c.Redact())
}

func openDB(ctx context.Context, c config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", c.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// connectRedis returns nil when Redis is not configured or unreachable;
// locks then fall back to PostgreSQL advisory locks.
func connectRedis(ctx context.Context, redisURL string) *redis.Client {
	if redisURL == "" {
		logger.Info("redis not configured, using PG advisory locks")
		return nil
	}
	var client *redis.Client
	if opts, err := redis.ParseURL(redisURL); err != nil {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	} else {
		client = redis.NewClient(opts)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis connection failed, falling back to PG advisory locks", "error", err)
		client.Close()
		return nil
	}
	return client
}

// newNotifier sends inline through SES or enqueues for cmd/worker,
// depending on the configured transport.
func newNotifier(ctx context.Context, cfg *config.Config) (subscription.Notifier, func(), error) {
	noop := func() {}
	switch cfg.Notifications.Transport {
	case config.TransportSQS:
		client, err := notify.NewSQSClient(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		return notify.NewQueueNotifier(notify.NewSQSPublisher(client, cfg.Notifications.SQSQueueURL)), noop, nil
	case config.TransportAMQP:
		topo := notify.Topology(cfg.Notifications)
		conn, ch, err := notify.DialAMQP(cfg.Notifications.AMQPURL, topo)
		if err != nil {
			return nil, noop, err
		}
		closer := func() {
			ch.Close()
			conn.Close()
		}
		return notify.NewQueueNotifier(notify.NewAMQPPublisher(ch, topo)), closer, nil
	default:
		gw, err := notify.NewGatewayFromConfig(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		return gw, noop, nil
	}
}
