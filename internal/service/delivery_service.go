// internal/service/delivery_service.go
package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/minicrm-backend/internal/errors"
	"github.com/unclebandit/minicrm-backend/internal/events"
	"github.com/unclebandit/minicrm-backend/internal/model"
	"github.com/unclebandit/minicrm-backend/internal/repository"
	"github.com/unclebandit/minicrm-backend/internal/vendor"
)

type DeliveryConfig struct {
	BatchSize       int
	BatchPause      time.Duration
	SendConcurrency int
	CallbackURL     string
}

func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{BatchSize: 25, BatchPause: 100 * time.Millisecond, SendConcurrency: 5}
}

// DeliveryResult summarizes one delivery. Delivered+Skipped+Errors always
// equals AudienceSize.
type DeliveryResult struct {
	CampaignID   int    `json:"campaignId"`
	Name         string `json:"name"`
	AudienceSize int    `json:"audienceSize"`
	Delivered    int    `json:"delivered"`
	Skipped      int    `json:"skipped"`
	Errors       int    `json:"errors"`
}

// DeliveryService sends a campaign to its resolved audience through the vendor.
type DeliveryService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	CustomerRepo repository.CustomerRepositoryInterface
	LogRepo      repository.CommunicationLogRepositoryInterface
	Vendor       vendor.Sender
	Events       events.Publisher
	Config       DeliveryConfig
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSkipped
	outcomeError
)

func (s *DeliveryService) Deliver(ctx context.Context, campaignID int) (*DeliveryResult, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.Deliverable() {
		return nil, appErrors.NewCampaignNotDeliverable(campaignID, campaign.Status)
	}

	customers, err := s.CustomerRepo.FindBySegment(ctx, campaign.SegmentRules)
	if err != nil {
		return nil, appErrors.NewSelectionError(campaignID, err)
	}
	log.Printf("[delivery] campaign %d matched %d customers", campaignID, len(customers))

	if err := s.CampaignRepo.MarkActive(ctx, campaignID); err != nil {
		return nil, fmt.Errorf("mark campaign %d active: %w", campaignID, err)
	}
	if err := s.CampaignRepo.SetAudienceSize(ctx, campaignID, len(customers)); err != nil {
		return nil, fmt.Errorf("set audience size for campaign %d: %w", campaignID, err)
	}

	result := &DeliveryResult{CampaignID: campaignID, Name: campaign.Name, AudienceSize: len(customers)}
	size := s.batchSize()
	for start := 0; start < len(customers); start += size {
		end := start + size
		if end > len(customers) {
			end = len(customers)
		}
		s.processBatch(ctx, campaign, customers[start:end], result)
		log.Printf("[delivery] campaign %d processed %d/%d customers", campaignID, end, len(customers))

		if end < len(customers) {
			pause(ctx, s.Config.BatchPause)
		}
	}

	if err := s.CampaignRepo.SetSent(ctx, campaignID, result.Delivered); err != nil {
		return result, fmt.Errorf("record sent count for campaign %d: %w", campaignID, err)
	}
	log.Printf("✅ [delivery] campaign %d complete: delivered=%d skipped=%d errors=%d",
		campaignID, result.Delivered, result.Skipped, result.Errors)

	if s.Events != nil {
		e := events.Event{Type: events.DeliveryCompleted, CampaignID: campaignID, Data: result}
		if err := s.Events.Publish(ctx, e); err != nil {
			log.Printf("⚠️ [delivery] publish %s for campaign %d: %v", e.Type, campaignID, err)
		}
	}
	return result, nil
}

func (s *DeliveryService) processBatch(ctx context.Context, campaign *model.Campaign, batch []*model.Customer, result *DeliveryResult) {
	batchID := "batch_" + uuid.NewString()
	sem := make(chan struct{}, s.concurrency())

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, customer := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(customer *model.Customer) {
			defer wg.Done()
			defer func() { <-sem }()

			o := s.deliverOne(ctx, campaign, customer, batchID)

			mu.Lock()
			defer mu.Unlock()
			switch o {
			case outcomeSent:
				result.Delivered++
			case outcomeSkipped:
				result.Skipped++
			default:
				result.Errors++
			}
		}(customer)
	}
	wg.Wait()
}

func (s *DeliveryService) deliverOne(ctx context.Context, campaign *model.Campaign, customer *model.Customer, batchID string) outcome {
	if !customer.OptedInto(campaign.Type) {
		return outcomeSkipped
	}

	content := Personalize(campaign, customer)
	entry := &model.CommunicationLog{
		CampaignID: campaign.ID,
		CustomerID: customer.ID,
		Channel:    model.NormalizeChannel(campaign.Type),
		Subject:    content.Subject,
		Body:       content.Body,
		Status:     model.LogQueued,
		Vendor:     vendor.Name,
		BatchID:    batchID,
	}
	if err := s.LogRepo.Create(ctx, entry); err != nil {
		log.Printf("⚠️ [delivery] campaign %d customer %d: create log: %v", campaign.ID, customer.ID, err)
		return outcomeError
	}

	ack, err := s.Vendor.Send(ctx, vendor.Message{
		To:          customer.Address(campaign.Type),
		Content:     content.Body,
		Channel:     entry.Channel,
		CallbackURL: s.Config.CallbackURL,
	})
	if err != nil {
		log.Printf("⚠️ [delivery] campaign %d customer %d: send: %v", campaign.ID, customer.ID, err)
		if ferr := s.LogRepo.MarkFailed(ctx, entry.ID, err.Error()); ferr != nil {
			log.Printf("⚠️ [delivery] log %d: mark failed: %v", entry.ID, ferr)
		}
		return outcomeError
	}

	sentAt := ack.Timestamp
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	if err := s.LogRepo.MarkSent(ctx, entry.ID, ack.MessageID, sentAt); err != nil {
		log.Printf("⚠️ [delivery] log %d: mark sent: %v", entry.ID, err)
		return outcomeError
	}
	return outcomeSent
}

func (s *DeliveryService) batchSize() int {
	if s.Config.BatchSize > 0 {
		return s.Config.BatchSize
	}
	return 25
}

func (s *DeliveryService) concurrency() int {
	if s.Config.SendConcurrency > 0 {
		return s.Config.SendConcurrency
	}
	return 1
}

// pause waits between batches; a cancelled context skips the wait.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
