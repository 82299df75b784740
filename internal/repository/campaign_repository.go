package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/minicrm-backend/internal/errors"
	"github.com/unclebandit/minicrm-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	ListCampaigns(ctx context.Context, offset, limit int, channel, status string) ([]*model.Campaign, int, error)
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	Create(ctx context.Context, c *model.Campaign) error
	UpdateStatus(ctx context.Context, campaignID int, status string) error
	Update(ctx context.Context, c *model.Campaign) error
	Delete(ctx context.Context, campaignID int) error

	// Delivery bookkeeping
	MarkActive(ctx context.Context, campaignID int) error
	SetAudienceSize(ctx context.Context, campaignID, size int) error
	SetSent(ctx context.Context, campaignID, sent int) error
	IncrementMetrics(ctx context.Context, campaignID int, delta model.MetricsDelta) error
	ListDueScheduled(ctx context.Context, now time.Time) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, description, type, subject, body, segment_rules, audience_size, status,
        sent, delivered, opened, clicked, bounced, unsubscribed, scheduled_at, created_at, updated_at`

func scanCampaign(row rowScanner, c *model.Campaign) error {
	return row.Scan(
		&c.ID, &c.Name, &c.Description, &c.Type, &c.Content.Subject, &c.Content.Body,
		&c.SegmentRules, &c.AudienceSize, &c.Status,
		&c.Metrics.Sent, &c.Metrics.Delivered, &c.Metrics.Opened, &c.Metrics.Clicked,
		&c.Metrics.Bounced, &c.Metrics.Unsubscribed,
		&c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt,
	)
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	query := `
        INSERT INTO campaigns (name, description, type, subject, body, segment_rules, audience_size, status, scheduled_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query,
		c.Name, c.Description, c.Type, c.Content.Subject, c.Content.Body,
		c.SegmentRules, c.AudienceSize, c.Status, c.ScheduledAt, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`

	var c model.Campaign
	if err := scanCampaign(r.DB.QueryRowContext(ctx, query, id), &c); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	filter := ` WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if channel != "" {
		filter += fmt.Sprintf(" AND type=$%d", argPos)
		args = append(args, model.NormalizeChannel(channel))
		argPos++
	}
	if status != "" {
		filter += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	// Count total
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+filter, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + filter +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c := &model.Campaign{}
		if err := scanCampaign(rows, c); err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, campaignID int, status string) error {
	return r.execOne(ctx, campaignID, `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`, status, campaignID)
}

// Update rewrites a campaign's editable fields. Only draft and scheduled rows
// are touched, so a delivery that started meanwhile is never rolled back.
func (r *CampaignRepository) Update(ctx context.Context, c *model.Campaign) error {
	query := `
        UPDATE campaigns
        SET name=$1, description=$2, type=$3, subject=$4, body=$5, segment_rules=$6,
            status=$7, scheduled_at=$8, updated_at=NOW()
        WHERE id=$9 AND status IN ($10, $11)
    `
	res, err := r.DB.ExecContext(ctx, query,
		c.Name, c.Description, c.Type, c.Content.Subject, c.Content.Body, c.SegmentRules,
		c.Status, c.ScheduledAt, c.ID, model.StatusDraft, model.StatusScheduled,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewCampaignConflict(c.ID, "only draft or scheduled campaigns can be edited")
	}
	return nil
}

// Delete removes a campaign. The communication_logs foreign key refuses the
// delete once any message was recorded.
func (r *CampaignRepository) Delete(ctx context.Context, campaignID int) error {
	err := r.execOne(ctx, campaignID, `DELETE FROM campaigns WHERE id=$1`, campaignID)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return appErrors.NewCampaignConflict(campaignID, "campaign has communication logs")
	}
	return err
}

// ====================== Delivery bookkeeping ======================

func (r *CampaignRepository) MarkActive(ctx context.Context, campaignID int) error {
	return r.UpdateStatus(ctx, campaignID, model.StatusActive)
}

func (r *CampaignRepository) SetAudienceSize(ctx context.Context, campaignID, size int) error {
	return r.execOne(ctx, campaignID, `UPDATE campaigns SET audience_size=$1, updated_at=NOW() WHERE id=$2`, size, campaignID)
}

func (r *CampaignRepository) SetSent(ctx context.Context, campaignID, sent int) error {
	return r.execOne(ctx, campaignID, `UPDATE campaigns SET sent=$1, updated_at=NOW() WHERE id=$2`, sent, campaignID)
}

// IncrementMetrics applies a delta in one statement so concurrent reconcilers
// never lose an update.
func (r *CampaignRepository) IncrementMetrics(ctx context.Context, campaignID int, delta model.MetricsDelta) error {
	if delta.IsZero() {
		return nil
	}
	query := `
        UPDATE campaigns
        SET delivered = delivered + $1, bounced = bounced + $2, updated_at = NOW()
        WHERE id = $3
    `
	return r.execOne(ctx, campaignID, query, delta.Delivered, delta.Bounced, campaignID)
}

// ListDueScheduled returns scheduled campaigns whose send time has passed.
func (r *CampaignRepository) ListDueScheduled(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns
        WHERE status=$1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
        ORDER BY scheduled_at, id`
	rows, err := r.DB.QueryContext(ctx, query, model.StatusScheduled, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c := &model.Campaign{}
		if err := scanCampaign(rows, c); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) execOne(ctx context.Context, campaignID int, query string, args ...interface{}) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
