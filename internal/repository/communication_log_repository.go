package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/unclebandit/minicrm-backend/internal/model"
)

type CommunicationLogRepositoryInterface interface {
	Create(ctx context.Context, l *model.CommunicationLog) error
	MarkSent(ctx context.Context, id int, vendorMessageID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int, reason string) error
	FindByVendorMessageIDs(ctx context.Context, ids []string) ([]*model.CommunicationLog, error)
	ApplyReceipt(ctx context.Context, id int, status, failureReason string, deliveredAt *time.Time) (bool, error)
	List(ctx context.Context, f model.LogFilter) ([]*model.CommunicationLog, int, error)
	Stats(ctx context.Context, campaignID int) (map[string]int, error)
}

type CommunicationLogRepository struct {
	DB *sql.DB
}

const logColumns = `id, campaign_id, customer_id, channel, subject, body, status, vendor,
        COALESCE(vendor_message_id, ''), batch_id, COALESCE(failure_reason, ''),
        sent_at, delivered_at, created_at, updated_at`

func scanLog(row rowScanner, l *model.CommunicationLog) error {
	return row.Scan(
		&l.ID, &l.CampaignID, &l.CustomerID, &l.Channel, &l.Subject, &l.Body, &l.Status, &l.Vendor,
		&l.VendorMessageID, &l.BatchID, &l.FailureReason,
		&l.SentAt, &l.DeliveredAt, &l.CreatedAt, &l.UpdatedAt,
	)
}

// Create inserts a new log entry and returns the created ID
func (r *CommunicationLogRepository) Create(ctx context.Context, l *model.CommunicationLog) error {
	now := time.Now()
	l.CreatedAt = now
	l.UpdatedAt = now
	if l.Status == "" {
		l.Status = model.LogQueued
	}

	query := `
        INSERT INTO communication_logs
        (campaign_id, customer_id, channel, subject, body, status, vendor, batch_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query,
		l.CampaignID, l.CustomerID, l.Channel, l.Subject, l.Body,
		l.Status, l.Vendor, l.BatchID, l.CreatedAt, l.UpdatedAt,
	).Scan(&l.ID)
}

// MarkSent records the vendor acknowledgment of a queued message.
func (r *CommunicationLogRepository) MarkSent(ctx context.Context, id int, vendorMessageID string, sentAt time.Time) error {
	query := `
        UPDATE communication_logs
        SET status=$1, vendor_message_id=$2, sent_at=$3, updated_at=NOW()
        WHERE id=$4 AND status=$5
    `
	res, err := r.DB.ExecContext(ctx, query, model.LogSent, vendorMessageID, sentAt, id, model.LogQueued)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("communication log %d is not queued", id)
	}
	return nil
}

// MarkFailed closes a queued log whose send never reached the vendor.
func (r *CommunicationLogRepository) MarkFailed(ctx context.Context, id int, reason string) error {
	query := `
        UPDATE communication_logs
        SET status=$1, failure_reason=$2, updated_at=NOW()
        WHERE id=$3 AND status=$4
    `
	_, err := r.DB.ExecContext(ctx, query, model.LogFailed, reason, id, model.LogQueued)
	return err
}

func (r *CommunicationLogRepository) FindByVendorMessageIDs(ctx context.Context, ids []string) ([]*model.CommunicationLog, error) {
	if len(ids) == 0 {
		return []*model.CommunicationLog{}, nil
	}
	query := `SELECT ` + logColumns + ` FROM communication_logs WHERE vendor_message_id = ANY($1)`
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []*model.CommunicationLog{}
	for rows.Next() {
		l := &model.CommunicationLog{}
		if err := scanLog(rows, l); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ApplyReceipt moves a sent log to its terminal status. It reports false when the
// log already left "sent", which is how duplicate receipts are recognized.
func (r *CommunicationLogRepository) ApplyReceipt(ctx context.Context, id int, status, failureReason string, deliveredAt *time.Time) (bool, error) {
	query := `
        UPDATE communication_logs
        SET status=$1, failure_reason=NULLIF($2, ''), delivered_at=$3, updated_at=NOW()
        WHERE id=$4 AND status=$5
    `
	res, err := r.DB.ExecContext(ctx, query, status, failureReason, deliveredAt, id, model.LogSent)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *CommunicationLogRepository) List(ctx context.Context, f model.LogFilter) ([]*model.CommunicationLog, int, error) {
	filter := ` WHERE campaign_id=$1`
	args := []interface{}{f.CampaignID}
	if f.Status != "" {
		filter += ` AND status=$2`
		args = append(args, f.Status)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM communication_logs`+filter, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + logColumns + ` FROM communication_logs` + filter +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.DB.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := []*model.CommunicationLog{}
	for rows.Next() {
		l := &model.CommunicationLog{}
		if err := scanLog(rows, l); err != nil {
			return nil, 0, err
		}
		logs = append(logs, l)
	}
	return logs, total, rows.Err()
}

// Stats counts a campaign's logs by status. Every known status is present in the result.
func (r *CommunicationLogRepository) Stats(ctx context.Context, campaignID int) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM communication_logs WHERE campaign_id=$1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int, len(model.LogStatuses))
	for _, s := range model.LogStatuses {
		stats[s] = 0
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

var _ CommunicationLogRepositoryInterface = (*CommunicationLogRepository)(nil)
