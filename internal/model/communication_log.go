// internal/model/communication_log.go
package model

import "time"

const (
	LogQueued    = "queued"
	LogSent      = "sent"
	LogDelivered = "delivered"
	LogFailed    = "failed"
	LogOpened    = "opened"
	LogClicked   = "clicked"
)

// LogStatuses lists every communication log status in lifecycle order.
var LogStatuses = []string{LogQueued, LogSent, LogDelivered, LogFailed, LogOpened, LogClicked}

type CommunicationLog struct {
	ID              int        `db:"id" json:"id"`
	CampaignID      int        `db:"campaign_id" json:"campaignId"`
	CustomerID      int        `db:"customer_id" json:"userId"`
	Channel         string     `db:"channel" json:"channel"`
	Subject         string     `db:"subject" json:"subject"`
	Body            string     `db:"body" json:"body"`
	Status          string     `db:"status" json:"status"`
	Vendor          string     `db:"vendor" json:"vendor"`
	VendorMessageID string     `db:"vendor_message_id" json:"vendorMessageId,omitempty"`
	BatchID         string     `db:"batch_id" json:"batchId"`
	FailureReason   string     `db:"failure_reason" json:"failureReason,omitempty"`
	SentAt          *time.Time `db:"sent_at" json:"sentAt,omitempty"`
	DeliveredAt     *time.Time `db:"delivered_at" json:"deliveredAt,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

// LogFilter narrows a communication log listing.
type LogFilter struct {
	CampaignID int
	Status     string
	Offset     int
	Limit      int
}
