// internal/model/campaign_recipient.go
package model

import "time"

// CampaignRecipient is the per (campaign, contact) delivery record.
type CampaignRecipient struct {
	ID          int        `db:"id" json:"id"`
	CampaignID  int        `db:"campaign_id" json:"campaign_id"`
	ContactID   int        `db:"contact_id" json:"contact_id"`
	SentAt      *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	OpenedAt    *time.Time `db:"opened_at" json:"opened_at,omitempty"`
	ClickedAt   *time.Time `db:"clicked_at" json:"clicked_at,omitempty"`
	BouncedAt   *time.Time `db:"bounced_at" json:"bounced_at,omitempty"`
	BounceType  *string    `db:"bounce_type" json:"bounce_type,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// RecipientMilestone names a timestamp column on campaign_recipients that
// tracking and delivery events are allowed to stamp.
type RecipientMilestone string

const (
	MilestoneDelivered RecipientMilestone = "delivered_at"
	MilestoneOpened    RecipientMilestone = "opened_at"
	MilestoneClicked   RecipientMilestone = "clicked_at"
)

// TrackingHit is published by the open pixel and click redirect endpoints.
type TrackingHit struct {
	RecipientID int                `json:"recipient_id"`
	Milestone   RecipientMilestone `json:"milestone"`
	At          time.Time          `json:"at"`
}
