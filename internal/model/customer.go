// internal/model/customer.go
package model

import "time"

type Location struct {
	City    string `db:"city" json:"city"`
	State   string `db:"state" json:"state"`
	Country string `db:"country" json:"country"`
}

type ChannelPreferences struct {
	Email bool `db:"email_opt_in" json:"email"`
	SMS   bool `db:"sms_opt_in" json:"sms"`
	Push  bool `db:"push_opt_in" json:"push"`
}

type Preferences struct {
	MarketingConsent bool               `db:"marketing_consent" json:"marketingConsent"`
	Channels         ChannelPreferences `json:"channels"`
}

type Customer struct {
	ID           int         `db:"id" json:"id"`
	FirstName    string      `db:"first_name" json:"firstName"`
	LastName     string      `db:"last_name" json:"lastName"`
	Email        string      `db:"email" json:"email"`
	Phone        string      `db:"phone" json:"phone"`
	Location     Location    `json:"location"`
	TotalSpend   float64     `db:"total_spend" json:"totalSpend"`
	Visits       int         `db:"visits" json:"visits"`
	Purchases    int         `db:"purchases" json:"purchases"`
	LastActiveAt time.Time   `db:"last_active_at" json:"lastActiveAt"`
	Preferences  Preferences `json:"preferences"`
	IsActive     bool        `db:"is_active" json:"isActive"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
}

// OptedInto reports whether the customer accepts marketing on the given channel.
// Channels without a per-customer switch only require marketing consent.
func (c *Customer) OptedInto(channel string) bool {
	if !c.Preferences.MarketingConsent {
		return false
	}
	switch NormalizeChannel(channel) {
	case ChannelEmail:
		return c.Preferences.Channels.Email
	case ChannelSMS:
		return c.Preferences.Channels.SMS
	case ChannelPush:
		return c.Preferences.Channels.Push
	}
	return true
}

// Address picks the recipient identifier for a channel.
func (c *Customer) Address(channel string) string {
	if NormalizeChannel(channel) == ChannelEmail {
		return c.Email
	}
	return c.Phone
}
