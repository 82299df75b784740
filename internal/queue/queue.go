package queue

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/unclebandit/minicrm-backend/internal/model"
)

// ReceiptsTopic carries vendor delivery receipts to the reconciler.
const ReceiptsTopic = "delivery_receipts"

// Handler consumes one JSON-encoded message. A returned error triggers a retry.
type Handler func(payload []byte) error

// Queue interface
type Queue interface {
	Publish(topic string, payload interface{}) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// InMemoryQueue delivers to subscribers in process, retrying failed handlers
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]Handler
	MaxRetries int
	Backoff    time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

// job wraps a message payload with retry info
type job struct {
	topic      string
	payload    []byte
	retryCount int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	q.mu.Lock()
	handlers := append([]Handler(nil), q.handlers[topic]...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		go q.processJob(handler, job{topic: topic, payload: body})
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler Handler, j job) {
	for {
		err := handler(j.payload)
		if err == nil {
			return // ACK
		}

		j.retryCount++
		log.Printf("⚠️ [queue] %s job failed (attempt %d/%d): %v", j.topic, j.retryCount, q.MaxRetries, err)

		if j.retryCount > q.MaxRetries {
			log.Printf("⚠️ [queue] %s job permanently failed after %d attempts: %s", j.topic, q.MaxRetries, j.payload)
			return // No requeue
		}

		// Linear backoff before retry
		time.Sleep(time.Duration(j.retryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

func (q *InMemoryQueue) Close() error { return nil }

// ReceiptIngester accepts decoded receipts, typically the receipt reconciler.
type ReceiptIngester interface {
	Ingest(r model.Receipt) error
}

// StartReceiptSubscriber feeds every receipt published on ReceiptsTopic into in.
func StartReceiptSubscriber(q Queue, in ReceiptIngester) error {
	err := q.Subscribe(ReceiptsTopic, func(payload []byte) error {
		var r model.Receipt
		if err := json.Unmarshal(payload, &r); err != nil {
			log.Println("⚠️ Invalid receipt payload:", err)
			return nil // malformed payloads are never retried
		}
		if r.MessageID == "" {
			log.Println("⚠️ Receipt without message id dropped")
			return nil
		}

		log.Println("📩 Receipt received for message:", r.MessageID)
		return in.Ingest(r)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", ReceiptsTopic, err)
	}
	return nil
}
