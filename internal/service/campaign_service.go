// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	appErrors "github.com/unclebandit/minicrm-backend/internal/errors"
	"github.com/unclebandit/minicrm-backend/internal/model"
	"github.com/unclebandit/minicrm-backend/internal/repository"
	"github.com/unclebandit/minicrm-backend/internal/segment"
)

// Trigger starts an asynchronous delivery. It reports false when the campaign
// is already being delivered.
type Trigger interface {
	Trigger(campaignID int) bool
}

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	CustomerRepo repository.CustomerRepositoryInterface
	LogRepo      repository.CommunicationLogRepositoryInterface
	Dispatcher   Trigger
	Estimator    *segment.Estimator
	// PreviewPopulation is the audience total used for previews; 0 counts customers.
	PreviewPopulation int
	Now               func() time.Time
}

type CreateCampaignInput struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Type         string          `json:"type"`
	Content      model.Content   `json:"content"`
	SegmentRules model.RuleGroup `json:"segmentRules"`
	ScheduledAt  *time.Time      `json:"scheduledAt"`
}

type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

type CampaignMetrics struct {
	ID           int           `json:"id"`
	Name         string        `json:"name"`
	Status       string        `json:"status"`
	AudienceSize int           `json:"audienceSize"`
	Metrics      model.Metrics `json:"metrics"`
	DeliveryRate float64       `json:"deliveryRate"`
	BounceRate   float64       `json:"bounceRate"`
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreateCampaign validates and stores a campaign. Campaigns scheduled in the
// future wait for the scheduler; all others start delivering right away.
func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		Type:         model.NormalizeChannel(in.Type),
		Content:      in.Content,
		SegmentRules: in.SegmentRules,
		Status:       model.StatusDraft,
		ScheduledAt:  in.ScheduledAt,
	}
	scheduled := in.ScheduledAt != nil && in.ScheduledAt.After(s.now())
	if scheduled {
		c.Status = model.StatusScheduled
	}

	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}

	if scheduled {
		log.Printf("[campaigns] campaign %d scheduled for %s", c.ID, in.ScheduledAt.Format(time.RFC3339))
	} else if s.Dispatcher != nil && !s.Dispatcher.Trigger(c.ID) {
		log.Printf("⚠️ [campaigns] delivery for campaign %d not queued", c.ID)
	}
	return c, nil
}

// UpdateCampaign replaces the editable fields of a draft or scheduled campaign.
// The status follows ScheduledAt: a future time schedules it, otherwise it is a
// draft waiting for a manual deliver.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id int, in CreateCampaignInput) (*model.Campaign, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Deliverable() {
		return nil, appErrors.NewCampaignConflict(id, fmt.Sprintf("cannot edit a campaign in status %s", c.Status))
	}

	c.Name = strings.TrimSpace(in.Name)
	c.Description = in.Description
	c.Type = model.NormalizeChannel(in.Type)
	c.Content = in.Content
	c.SegmentRules = in.SegmentRules
	c.ScheduledAt = in.ScheduledAt
	c.Status = model.StatusDraft
	if in.ScheduledAt != nil && in.ScheduledAt.After(s.now()) {
		c.Status = model.StatusScheduled
	}

	if err := s.CampaignRepo.Update(ctx, c); err != nil {
		return nil, err
	}
	log.Printf("[campaigns] campaign %d updated (%s)", id, c.Status)
	return s.CampaignRepo.GetByID(ctx, id)
}

// DeleteCampaign removes a campaign that never produced a communication log.
func (s *CampaignService) DeleteCampaign(ctx context.Context, id int) error {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == model.StatusActive {
		return appErrors.NewCampaignConflict(id, "cannot delete an active campaign")
	}
	stats, err := s.logStats(ctx, id)
	if err != nil {
		return err
	}
	if stats["total"] > 0 {
		return appErrors.NewCampaignConflict(id, "campaign has communication logs")
	}
	if err := s.CampaignRepo.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("[campaigns] campaign %d deleted", id)
	return nil
}

func validateInput(in CreateCampaignInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return appErrors.NewValidationError("name", "name is required")
	}
	if !model.IsValidChannel(in.Type) {
		return appErrors.NewValidationError("type", fmt.Sprintf("unsupported channel %q", in.Type))
	}
	return segment.Validate(in.SegmentRules)
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, channel, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, channel, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// GetCampaignDetails fetches a campaign and its communication log counts
func (s *CampaignService) GetCampaignDetails(ctx context.Context, id int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.logStats(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

func (s *CampaignService) UpdateStatus(ctx context.Context, id int, status string) (*model.Campaign, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !model.IsValidStatus(status) {
		return nil, appErrors.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	if err := s.CampaignRepo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.CampaignRepo.GetByID(ctx, id)
}

func (s *CampaignService) GetMetrics(ctx context.Context, id int) (*CampaignMetrics, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	m := &CampaignMetrics{
		ID:           c.ID,
		Name:         c.Name,
		Status:       c.Status,
		AudienceSize: c.AudienceSize,
		Metrics:      c.Metrics,
	}
	if c.Metrics.Sent > 0 {
		m.DeliveryRate = percent(c.Metrics.Delivered, c.Metrics.Sent)
		m.BounceRate = percent(c.Metrics.Bounced, c.Metrics.Sent)
	}
	return m, nil
}

// Deliver queues a manual delivery of an existing campaign.
func (s *CampaignService) Deliver(ctx context.Context, id int) (bool, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !c.Deliverable() {
		return false, appErrors.NewCampaignNotDeliverable(id, c.Status)
	}
	if s.Dispatcher == nil {
		return false, fmt.Errorf("no delivery dispatcher configured")
	}
	return s.Dispatcher.Trigger(id), nil
}

// PreviewAudience estimates the audience of a rule tree without reading customers.
func (s *CampaignService) PreviewAudience(ctx context.Context, rules model.RuleGroup) (*segment.AudienceEstimate, error) {
	if err := segment.Validate(rules); err != nil {
		return nil, err
	}

	total := s.PreviewPopulation
	if total <= 0 {
		n, err := s.CustomerRepo.Count(ctx)
		if err != nil {
			return nil, err
		}
		total = n
	}

	est := s.Estimator
	if est == nil {
		est = segment.NewEstimator()
	}
	result := est.Estimate(rules, total)
	return &result, nil
}

// ListLogs returns one page of a campaign's communication logs, newest first.
func (s *CampaignService) ListLogs(ctx context.Context, campaignID int, status string, page, limit int) ([]*model.CommunicationLog, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, nil, err
	}

	logs, total, err := s.LogRepo.List(ctx, model.LogFilter{
		CampaignID: campaignID,
		Status:     status,
		Offset:     (page - 1) * limit,
		Limit:      limit,
	})
	if err != nil {
		return nil, nil, err
	}

	pagination := map[string]int{
		"total":      total,
		"page":       page,
		"limit":      limit,
		"totalPages": (total + limit - 1) / limit,
	}
	return logs, pagination, nil
}

// LogStats counts a campaign's communication logs by status, plus a total.
func (s *CampaignService) LogStats(ctx context.Context, campaignID int) (map[string]int, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.logStats(ctx, campaignID)
}

func (s *CampaignService) logStats(ctx context.Context, campaignID int) (map[string]int, error) {
	stats, err := s.LogRepo.Stats(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	stats["total"] = total
	return stats, nil
}

func percent(part, whole int) float64 {
	return float64(int(float64(part)/float64(whole)*1000+0.5)) / 10
}
