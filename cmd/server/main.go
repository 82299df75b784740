// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/minicrm-backend/internal/config"
	"github.com/unclebandit/minicrm-backend/internal/controller"
	"github.com/unclebandit/minicrm-backend/internal/db"
	"github.com/unclebandit/minicrm-backend/internal/events"
	"github.com/unclebandit/minicrm-backend/internal/handler"
	"github.com/unclebandit/minicrm-backend/internal/queue"
	"github.com/unclebandit/minicrm-backend/internal/repository"
	"github.com/unclebandit/minicrm-backend/internal/scheduler"
	"github.com/unclebandit/minicrm-backend/internal/segment"
	"github.com/unclebandit/minicrm-backend/internal/service"
	"github.com/unclebandit/minicrm-backend/internal/vendor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration:", err)
	}

	if cfg.AutoMigrate {
		if err := db.Migrate(cfg.DSN(), "up"); err != nil {
			log.Fatal("failed to migrate DB:", err)
		}
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

	customerRepo := &repository.CustomerRepository{DB: conn}
	campaignRepo := &repository.CampaignRepository{DB: conn}
	logRepo := &repository.CommunicationLogRepository{DB: conn}

	reconciler := service.NewReceiptReconciler(logRepo, campaignRepo, service.ReconcilerConfig{
		BatchSize: cfg.ReceiptBatchSize,
		Interval:  cfg.ReceiptInterval,
	})
	reconciler.Events = publisher

	notifier, q, err := receiptTransport(cfg, reconciler)
	if err != nil {
		log.Fatal("failed to set up receipt transport:", err)
	}
	if q != nil {
		defer q.Close()
	}

	simCfg := vendor.DefaultSimulatorConfig()
	simCfg.SuccessRate = cfg.VendorSuccessRate
	simulator := vendor.NewSimulator(simCfg, notifier)

	delivery := &service.DeliveryService{
		CampaignRepo: campaignRepo,
		CustomerRepo: customerRepo,
		LogRepo:      logRepo,
		Vendor:       simulator,
		Events:       publisher,
		Config: service.DeliveryConfig{
			BatchSize:       cfg.DeliveryBatchSize,
			BatchPause:      cfg.DeliveryBatchPause,
			SendConcurrency: cfg.DeliveryConcurrency,
			CallbackURL:     cfg.ReceiptCallbackURL(),
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := service.NewWorker(delivery, cfg.JobBuffer)
	go worker.Start(ctx)

	sched := scheduler.New(campaignRepo, worker)
	if err := sched.Start(cfg.ScheduleSpec); err != nil {
		log.Fatal("failed to start scheduler:", err)
	}

	campaignService := &service.CampaignService{
		CampaignRepo:      campaignRepo,
		CustomerRepo:      customerRepo,
		LogRepo:           logRepo,
		Dispatcher:        worker,
		Estimator:         segment.NewEstimator(),
		PreviewPopulation: cfg.PreviewPopulation,
	}

	r := newRouter(
		&controller.CampaignController{CampaignService: campaignService},
		handler.NewReceiptHandler(reconciler),
		&handler.HealthHandler{DB: conn, Receipts: reconciler},
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server running on :%s (receipts via %s)", cfg.Port, cfg.ReceiptTransport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("⚠️ http shutdown:", err)
	}
	sched.Stop()

	// running deliveries get until the shutdown deadline to finish
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Println("⚠️ deliveries still running at shutdown deadline, cancelling")
		cancel()
		<-done
	}
	cancel()
	simulator.Wait()
	reconciler.Close()
	log.Println("✅ Server stopped")
}

func newRouter(campaigns *controller.CampaignController, receipts *handler.ReceiptHandler, health *handler.HealthHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", health.Health)
	campaigns.Routes(r)
	receipts.Routes(r)
	return r
}

// receiptTransport picks how simulated vendor receipts reach the reconciler.
// With the queue transport the receipts go to RabbitMQ and cmd/worker
// reconciles them.
func receiptTransport(cfg *config.Config, reconciler *service.ReceiptReconciler) (vendor.ReceiptNotifier, queue.Queue, error) {
	switch cfg.ReceiptTransport {
	case config.TransportQueue:
		q, err := queue.NewAMQPQueue(cfg.AMQPURL)
		if err != nil {
			return nil, nil, err
		}
		return &vendor.QueueNotifier{Queue: q, Topic: queue.ReceiptsTopic}, q, nil
	case config.TransportHTTP:
		return vendor.NewHTTPNotifier(), nil, nil
	default:
		q := queue.NewInMemoryQueue()
		if err := queue.StartReceiptSubscriber(q, reconciler); err != nil {
			return nil, nil, err
		}
		return &vendor.QueueNotifier{Queue: q, Topic: queue.ReceiptsTopic}, q, nil
	}
}
