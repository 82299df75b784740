// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Receipt transports the vendor simulator can report through.
const (
	TransportHTTP   = "http"
	TransportQueue  = "queue"
	TransportDirect = "direct"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL"`
	DBUser      string `env:"DB_USER"`
	DBPassword  string `env:"DB_PASSWORD"`
	DBHost      string `env:"DB_HOST" envDefault:"localhost"`
	DBPort      string `env:"DB_PORT" envDefault:"5432"`
	DBName      string `env:"DB_NAME"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	// AMQPURL enables the RabbitMQ receipt queue shared with cmd/worker.
	AMQPURL string `env:"RABBITMQ_URL"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"campaign-events"`

	PreviewPopulation int `env:"PREVIEW_POPULATION" envDefault:"10000"`

	DeliveryBatchSize   int           `env:"DELIVERY_BATCH_SIZE" envDefault:"25"`
	DeliveryBatchPause  time.Duration `env:"DELIVERY_BATCH_PAUSE" envDefault:"100ms"`
	DeliveryConcurrency int           `env:"DELIVERY_CONCURRENCY" envDefault:"5"`
	JobBuffer           int           `env:"JOB_BUFFER" envDefault:"100"`

	ReceiptBatchSize int           `env:"RECEIPT_BATCH_SIZE" envDefault:"10"`
	ReceiptInterval  time.Duration `env:"RECEIPT_INTERVAL" envDefault:"5s"`
	ReceiptTransport string        `env:"RECEIPT_TRANSPORT" envDefault:"direct"`
	CallbackURL      string        `env:"CALLBACK_URL"`

	VendorSuccessRate float64 `env:"VENDOR_SUCCESS_RATE" envDefault:"0.9"`

	// ScheduleSpec is the cron spec for starting due scheduled campaigns.
	ScheduleSpec string `env:"SCHEDULE_SPEC" envDefault:"@every 1m"`
}

// Load reads .env when present and parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on environment variables")
	}
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.ReceiptTransport = strings.ToLower(strings.TrimSpace(cfg.ReceiptTransport))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.ReceiptTransport {
	case TransportHTTP, TransportQueue, TransportDirect:
	default:
		return fmt.Errorf("RECEIPT_TRANSPORT must be http, queue or direct, got %q", c.ReceiptTransport)
	}
	if c.ReceiptTransport == TransportQueue && c.AMQPURL == "" {
		return fmt.Errorf("RECEIPT_TRANSPORT=queue requires RABBITMQ_URL")
	}
	if c.DeliveryBatchSize < 1 || c.ReceiptBatchSize < 1 {
		return fmt.Errorf("batch sizes must be positive")
	}
	if c.VendorSuccessRate < 0 || c.VendorSuccessRate > 1 {
		return fmt.Errorf("VENDOR_SUCCESS_RATE must be between 0 and 1")
	}
	return nil
}

// DSN returns DATABASE_URL, or a URL built from the DB_* variables.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// ReceiptCallbackURL is where the HTTP transport posts receipts.
func (c *Config) ReceiptCallbackURL() string {
	if c.CallbackURL != "" {
		return c.CallbackURL
	}
	return "http://localhost:" + c.Port + "/delivery-receipts"
}
