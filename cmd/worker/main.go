// cmd/worker/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/minicrm-backend/internal/config"
	"github.com/unclebandit/minicrm-backend/internal/db"
	"github.com/unclebandit/minicrm-backend/internal/events"
	"github.com/unclebandit/minicrm-backend/internal/queue"
	"github.com/unclebandit/minicrm-backend/internal/repository"
	"github.com/unclebandit/minicrm-backend/internal/service"
)

// The worker reconciles delivery receipts that the server's vendor publishes
// to RabbitMQ.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration:", err)
	}
	if cfg.AMQPURL == "" {
		log.Fatal("RABBITMQ_URL is required for the receipt worker")
	}

	conn, err := db.Open(cfg.DSN())
	if err != nil {
		log.Fatal("failed to connect to DB:", err)
	}
	defer conn.Close()

	publisher, err := events.New(events.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
	if err != nil {
		log.Fatal("failed to create event publisher:", err)
	}
	defer publisher.Close()

	q, err := queue.NewAMQPQueue(cfg.AMQPURL)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ:", err)
	}

	reconciler, err := startPipeline(q,
		&repository.CommunicationLogRepository{DB: conn},
		&repository.CampaignRepository{DB: conn},
		publisher,
		service.ReconcilerConfig{BatchSize: cfg.ReceiptBatchSize, Interval: cfg.ReceiptInterval},
	)
	if err != nil {
		log.Fatal("Failed to register consumer:", err)
	}

	log.Println("Worker running, waiting for receipts...")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("Shutting down worker...")
	if err := q.Close(); err != nil {
		log.Println("⚠️ closing queue:", err)
	}
	reconciler.Close()
	log.Println("✅ Worker stopped")
}

// startPipeline feeds receipts from q into a new reconciler.
func startPipeline(
	q queue.Queue,
	logs repository.CommunicationLogRepositoryInterface,
	campaigns repository.CampaignRepositoryInterface,
	publisher events.Publisher,
	cfg service.ReconcilerConfig,
) (*service.ReceiptReconciler, error) {
	reconciler := service.NewReceiptReconciler(logs, campaigns, cfg)
	reconciler.Events = publisher
	if err := queue.StartReceiptSubscriber(q, reconciler); err != nil {
		return nil, err
	}
	return reconciler, nil
}
