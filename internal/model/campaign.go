// internal/model/campaign.go
package model

import (
	"strings"
	"time"
)

const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	ChannelEmail  = "email"
	ChannelSMS    = "sms"
	ChannelPush   = "push"
	ChannelSocial = "social"
)

var campaignStatuses = map[string]bool{
	StatusDraft:     true,
	StatusScheduled: true,
	StatusActive:    true,
	StatusPaused:    true,
	StatusCompleted: true,
	StatusCancelled: true,
}

// Channels lists every campaign channel; the campaigns.type CHECK must allow each.
var Channels = []string{ChannelEmail, ChannelSMS, ChannelPush, ChannelSocial}

var channels = func() map[string]bool {
	m := make(map[string]bool, len(Channels))
	for _, c := range Channels {
		m[c] = true
	}
	return m
}()

// NormalizeChannel lower-cases a channel name ("SMS" and "sms" are the same channel).
func NormalizeChannel(channel string) string {
	return strings.ToLower(strings.TrimSpace(channel))
}

func IsValidStatus(status string) bool { return campaignStatuses[status] }

func IsValidChannel(channel string) bool { return channels[NormalizeChannel(channel)] }

type Content struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Metrics struct {
	Sent         int `db:"sent" json:"sent"`
	Delivered    int `db:"delivered" json:"delivered"`
	Opened       int `db:"opened" json:"opened"`
	Clicked      int `db:"clicked" json:"clicked"`
	Bounced      int `db:"bounced" json:"bounced"`
	Unsubscribed int `db:"unsubscribed" json:"unsubscribed"`
}

// MetricsDelta is added to a campaign's metrics in a single atomic update.
type MetricsDelta struct {
	Delivered int
	Bounced   int
}

func (d MetricsDelta) IsZero() bool { return d.Delivered == 0 && d.Bounced == 0 }

type Campaign struct {
	ID           int        `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Description  string     `db:"description" json:"description,omitempty"`
	Type         string     `db:"type" json:"type"`
	Content      Content    `json:"content"`
	SegmentRules RuleGroup  `db:"segment_rules" json:"segmentRules"`
	AudienceSize int        `db:"audience_size" json:"audienceSize"`
	Status       string     `db:"status" json:"status"`
	Metrics      Metrics    `json:"metrics"`
	ScheduledAt  *time.Time `db:"scheduled_at" json:"scheduledAt,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}

// Deliverable reports whether a new delivery may be started for the campaign.
// Only draft and scheduled campaigns qualify; an active campaign has already
// been delivered and its metrics belong to that run.
func (c *Campaign) Deliverable() bool {
	switch c.Status {
	case StatusDraft, StatusScheduled:
		return true
	}
	return false
}
