package service

import (
	"context"
	"log"
	"sync"
)

// Deliverer runs one campaign delivery
type Deliverer interface {
	Deliver(ctx context.Context, campaignID int) (*DeliveryResult, error)
}

// Worker runs campaign deliveries triggered by the API and the scheduler. Each
// delivery gets its own goroutine so campaigns never wait on each other, and a
// campaign is never delivered twice at the same time.
type Worker struct {
	Deliverer Deliverer
	JobChan   chan int

	mu       sync.Mutex
	inFlight map[int]bool
	stopped  bool
	// wg counts accepted jobs from Trigger until their delivery returns.
	wg sync.WaitGroup
}

// Constructor
func NewWorker(d Deliverer, buffer int) *Worker {
	return &Worker{
		Deliverer: d,
		JobChan:   make(chan int, buffer),
		inFlight:  make(map[int]bool),
	}
}

// Trigger queues a delivery. It returns false when the campaign is already
// queued or running, the job buffer is full, or the worker has stopped.
func (w *Worker) Trigger(campaignID int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		log.Printf("⚠️ [worker] stopped, campaign %d not queued", campaignID)
		return false
	}
	if w.inFlight == nil {
		w.inFlight = make(map[int]bool)
	}
	if w.inFlight[campaignID] {
		return false
	}

	select {
	case w.JobChan <- campaignID:
		w.inFlight[campaignID] = true
		w.wg.Add(1)
		return true
	default:
		log.Printf("⚠️ [worker] job buffer full, campaign %d not queued", campaignID)
		return false
	}
}

// Start begins processing jobs until ctx is cancelled. Jobs still queued at
// that point are dropped.
func (w *Worker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.stop()
			return
		case id := <-w.JobChan:
			go w.run(ctx, id)
		}
	}
}

// Wait blocks until every accepted delivery has finished or been dropped.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for {
		select {
		case id := <-w.JobChan:
			log.Printf("⚠️ [worker] dropping queued campaign %d", id)
			delete(w.inFlight, id)
			w.wg.Done()
		default:
			return
		}
	}
}

func (w *Worker) run(ctx context.Context, campaignID int) {
	defer w.wg.Done()
	defer func() {
		w.mu.Lock()
		delete(w.inFlight, campaignID)
		w.mu.Unlock()
	}()

	res, err := w.Deliverer.Deliver(ctx, campaignID)
	if err != nil {
		log.Printf("⚠️ [worker] delivery of campaign %d failed: %v", campaignID, err)
		return
	}
	log.Printf("✅ [worker] campaign %d delivered to %d of %d customers", campaignID, res.Delivered, res.AudienceSize)
}
