// internal/service/receipt_reconciler.go
package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unclebandit/minicrm-backend/internal/events"
	"github.com/unclebandit/minicrm-backend/internal/model"
	"github.com/unclebandit/minicrm-backend/internal/repository"
)

var ErrReconcilerClosed = errors.New("receipt reconciler is closed")

type ReconcilerConfig struct {
	BatchSize int
	Interval  time.Duration
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{BatchSize: 10, Interval: 5 * time.Second}
}

// BatchReport describes one processed batch of receipts.
type BatchReport struct {
	Received   int
	Applied    int
	Duplicates int
	Unmatched  int
}

// ReceiptReconciler queues vendor receipts in memory and applies them to
// communication logs and campaign metrics in batches. The processing loop
// starts on the first Ingest and stops once the queue is empty.
type ReceiptReconciler struct {
	LogRepo      repository.CommunicationLogRepositoryInterface
	CampaignRepo repository.CampaignRepositoryInterface
	Events       events.Publisher
	Config       ReconcilerConfig
	Now          func() time.Time

	mu      sync.Mutex
	pending []model.Receipt
	closed  bool
	running atomic.Bool
	wg      sync.WaitGroup
	kick    chan struct{}
	stop    chan struct{}
	once    sync.Once
}

func NewReceiptReconciler(logs repository.CommunicationLogRepositoryInterface, campaigns repository.CampaignRepositoryInterface, cfg ReconcilerConfig) *ReceiptReconciler {
	r := &ReceiptReconciler{LogRepo: logs, CampaignRepo: campaigns, Config: cfg}
	r.init()
	return r
}

func (r *ReceiptReconciler) init() {
	r.once.Do(func() {
		r.kick = make(chan struct{}, 1)
		r.stop = make(chan struct{})
	})
}

// Ingest queues a receipt and makes sure the processing loop is running.
func (r *ReceiptReconciler) Ingest(rc model.Receipt) error {
	r.init()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrReconcilerClosed
	}
	r.pending = append(r.pending, rc)
	r.armLocked()
	return nil
}

// ProcessNow wakes the loop so it skips its current wait, and returns the
// number of receipts waiting at the time of the call.
func (r *ReceiptReconciler) ProcessNow() int {
	r.init()
	r.mu.Lock()
	n := len(r.pending)
	if n > 0 && !r.closed {
		r.armLocked()
	}
	r.mu.Unlock()

	if n > 0 {
		select {
		case r.kick <- struct{}{}:
		default:
		}
	}
	return n
}

// Pending is the number of receipts not yet taken by the loop.
func (r *ReceiptReconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Running reports whether the processing loop is armed.
func (r *ReceiptReconciler) Running() bool {
	return r.running.Load()
}

// Close stops accepting receipts, flushes what is queued and waits for the loop.
func (r *ReceiptReconciler) Close() error {
	r.init()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stop)
	r.wg.Wait()
	return nil
}

// armLocked must be called with mu held.
func (r *ReceiptReconciler) armLocked() {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	r.wg.Add(1)
	go r.loop()
}

func (r *ReceiptReconciler) loop() {
	defer r.wg.Done()
	log.Println("[receipts] processing started")

	for {
		batch, more := r.take()
		if len(batch) == 0 {
			log.Println("[receipts] queue empty, processing stopped")
			return
		}

		report := r.ProcessBatch(context.Background(), batch)
		log.Printf("[receipts] batch of %d: applied=%d duplicates=%d unmatched=%d",
			report.Received, report.Applied, report.Duplicates, report.Unmatched)

		if !more {
			continue // take disarms the loop once the queue is drained
		}
		select {
		case <-r.stop:
		case <-r.kick:
		case <-time.After(r.Config.Interval):
		}
	}
}

// take removes up to BatchSize receipts. When the queue is already empty it
// disarms the loop under the same lock Ingest arms it with, so a receipt
// arriving concurrently always finds a running loop or starts a new one.
func (r *ReceiptReconciler) take() ([]model.Receipt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == 0 {
		r.running.Store(false)
		return nil, false
	}
	n := r.batchSize()
	if n > len(r.pending) {
		n = len(r.pending)
	}
	batch := make([]model.Receipt, n)
	copy(batch, r.pending[:n])
	r.pending = r.pending[n:]
	return batch, len(r.pending) > 0
}

// ProcessBatch applies one batch of receipts. Only logs still in "sent" are
// transitioned, so a repeated receipt is reported as a duplicate and never
// counted twice in campaign metrics.
func (r *ReceiptReconciler) ProcessBatch(ctx context.Context, batch []model.Receipt) BatchReport {
	report := BatchReport{Received: len(batch)}

	// last receipt for a message id wins within a batch
	byID := make(map[string]model.Receipt, len(batch))
	ids := make([]string, 0, len(batch))
	for _, rc := range batch {
		if _, seen := byID[rc.MessageID]; !seen {
			ids = append(ids, rc.MessageID)
		}
		byID[rc.MessageID] = rc
	}

	logs, err := r.LogRepo.FindByVendorMessageIDs(ctx, ids)
	if err != nil {
		log.Printf("⚠️ [receipts] lookup of %d message ids failed, batch dropped: %v", len(ids), err)
		report.Unmatched = len(ids)
		return report
	}

	matched := make(map[string]bool, len(logs))
	deltas := make(map[int]*model.MetricsDelta)
	for _, entry := range logs {
		rc, ok := byID[entry.VendorMessageID]
		if !ok {
			continue
		}
		matched[entry.VendorMessageID] = true

		status := model.LogFailed
		var deliveredAt *time.Time
		if rc.Delivered() {
			status = model.LogDelivered
			at := rc.Timestamp
			if at.IsZero() {
				at = r.now()
			}
			deliveredAt = &at
		}

		applied, err := r.LogRepo.ApplyReceipt(ctx, entry.ID, status, rc.FailureReason, deliveredAt)
		if err != nil {
			log.Printf("⚠️ [receipts] log %d: %v", entry.ID, err)
			continue
		}
		if !applied {
			report.Duplicates++
			continue
		}
		report.Applied++

		d := deltas[entry.CampaignID]
		if d == nil {
			d = &model.MetricsDelta{}
			deltas[entry.CampaignID] = d
		}
		if status == model.LogDelivered {
			d.Delivered++
		} else {
			d.Bounced++
		}
	}

	for _, id := range ids {
		if !matched[id] {
			report.Unmatched++
			log.Printf("[receipts] no communication log for message %s, receipt dropped", id)
		}
	}

	for campaignID, d := range deltas {
		if err := r.CampaignRepo.IncrementMetrics(ctx, campaignID, *d); err != nil {
			log.Printf("⚠️ [receipts] campaign %d metrics: %v", campaignID, err)
			continue
		}
		if r.Events != nil {
			e := events.Event{Type: events.MetricsUpdated, CampaignID: campaignID, Data: d}
			if err := r.Events.Publish(ctx, e); err != nil {
				log.Printf("⚠️ [receipts] publish %s for campaign %d: %v", e.Type, campaignID, err)
			}
		}
	}
	return report
}

func (r *ReceiptReconciler) batchSize() int {
	if r.Config.BatchSize > 0 {
		return r.Config.BatchSize
	}
	return 10
}

func (r *ReceiptReconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
