// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "DRAFT"
	StatusScheduled CampaignStatus = "SCHEDULED"
	StatusSending   CampaignStatus = "SENDING"
	StatusSent      CampaignStatus = "SENT"
	StatusCancelled CampaignStatus = "CANCELLED"
)

// Valid reports whether s is one of the known campaign states.
func (s CampaignStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusSending, StatusSent, StatusCancelled:
		return true
	}
	return false
}

type Campaign struct {
	ID          int            `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Subject     string         `db:"subject" json:"subject"`
	FromName    string         `db:"from_name" json:"from_name"`
	FromEmail   string         `db:"from_email" json:"from_email"`
	PreviewText *string        `db:"preview_text" json:"preview_text,omitempty"`
	Content     string         `db:"content" json:"content"`
	Status      CampaignStatus `db:"status" json:"status"`
	ScheduledAt *time.Time     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	SentAt      *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// Preview returns the preheader text or "" when none is set.
func (c *Campaign) Preview() string {
	if c.PreviewText == nil {
		return ""
	}
	return *c.PreviewText
}

// CampaignStats aggregates the recipient rows of one campaign.
type CampaignStats struct {
	Total     int `db:"total" json:"total"`
	Sent      int `db:"sent" json:"sent"`
	Delivered int `db:"delivered" json:"delivered"`
	Opened    int `db:"opened" json:"opened"`
	Clicked   int `db:"clicked" json:"clicked"`
	Bounced   int `db:"bounced" json:"bounced"`
}
