package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/newsletter-service/internal/config"
	"github.com/ignite/newsletter-service/internal/notify"
	"github.com/ignite/newsletter-service/internal/pkg/logger"
)

// consumer is implemented by the SQS and AMQP job consumers.
type consumer interface {
	Run(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Printf("WARNING: %v, using info", err)
	}
	logger.SetLevel(level)
	logger.SetRedactPII(cfg.Logging.Redact())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway, err := notify.NewGatewayFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize SES gateway: %v", err)
	}

	var c consumer
	switch cfg.Notifications.Transport {
	case config.TransportSQS:
		client, err := notify.NewSQSClient(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to initialize SQS: %v", err)
		}
		c = notify.NewSQSConsumer(client, cfg.Notifications.SQSQueueURL, gateway.HandleJob)
	case config.TransportAMQP:
		conn, ch, err := notify.DialAMQP(cfg.Notifications.AMQPURL, notify.Topology(cfg.Notifications))
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer conn.Close()
		defer ch.Close()
		c = notify.NewAMQPConsumer(ch, cfg.Notifications.AMQPQueue, gateway.HandleJob)
	default:
		log.Fatalf("Worker needs transport %q or %q, got %q", config.TransportSQS, config.TransportAMQP, cfg.Notifications.Transport)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-done
		logger.Info("newsletter worker shutting down")
		cancel()
	}()

	logger.Info("newsletter worker running", "transport", cfg.Notifications.Transport)
	if err := c.Run(ctx); err != nil {
		logger.Error("newsletter worker stopped", "error", err)
		os.Exit(1)
	}
}
