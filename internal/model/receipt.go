package model

import "time"

const (
	ReceiptDelivered = "delivered"
	ReceiptFailed    = "failed"
)

// Receipt is the vendor's asynchronous delivery acknowledgment.
type Receipt struct {
	MessageID        string    `json:"messageId"`
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	FailureReason    string    `json:"failureReason,omitempty"`
	DeliveryAttempts int       `json:"deliveryAttempts,omitempty"`
}

func (r Receipt) Delivered() bool { return r.Status == ReceiptDelivered }
