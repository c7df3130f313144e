package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

type CampaignRecipientRepositoryInterface interface {
	GetOrCreate(ctx context.Context, campaignID, contactID int) (*model.CampaignRecipient, error)
	MarkSent(ctx context.Context, id int, at time.Time) error
	ListPendingContacts(ctx context.Context, campaignID int) ([]model.Contact, error)
	SetMilestone(ctx context.Context, id int, m model.RecipientMilestone, at time.Time) (bool, error)
	RecordBounce(ctx context.Context, id int, at time.Time, bounceType string) (bool, error)
	Stats(ctx context.Context, campaignID int) (*model.CampaignStats, error)
}

type CampaignRecipientRepository struct {
	DB *sqlx.DB
}

// GetOrCreate returns the unique (campaign, contact) row, inserting it when absent.
// The no-op update makes RETURNING yield the existing row on conflict.
func (r *CampaignRecipientRepository) GetOrCreate(ctx context.Context, campaignID, contactID int) (*model.CampaignRecipient, error) {
	query := `
        INSERT INTO campaign_recipients (campaign_id, contact_id)
        VALUES ($1, $2)
        ON CONFLICT (campaign_id, contact_id) DO UPDATE SET campaign_id = EXCLUDED.campaign_id
        RETURNING id, campaign_id, contact_id, sent_at, delivered_at, opened_at, clicked_at,
                  bounced_at, bounce_type, created_at
    `
	var rec model.CampaignRecipient
	if err := r.DB.GetContext(ctx, &rec, query, campaignID, contactID); err != nil {
		return nil, fmt.Errorf("failed to upsert recipient: %w", err)
	}
	return &rec, nil
}

func (r *CampaignRecipientRepository) MarkSent(ctx context.Context, id int, at time.Time) error {
	if _, err := r.DB.ExecContext(ctx, `UPDATE campaign_recipients SET sent_at=$1 WHERE id=$2`, at, id); err != nil {
		return fmt.Errorf("failed to mark recipient sent: %w", err)
	}
	return nil
}

// ListPendingContacts loads the contacts queued for a campaign that have not
// been sent yet and can still receive marketing email.
func (r *CampaignRecipientRepository) ListPendingContacts(ctx context.Context, campaignID int) ([]model.Contact, error) {
	query := `
        SELECT ` + contactColumnsPrefixed + `
        FROM campaign_recipients cr
        JOIN contacts c ON c.id = cr.contact_id
        WHERE cr.campaign_id = $1
          AND cr.sent_at IS NULL
          AND c.solicitation = TRUE
          AND c.unsubscribed_at IS NULL
        ORDER BY cr.id ASC
    `
	contacts := []model.Contact{}
	if err := r.DB.SelectContext(ctx, &contacts, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to list pending recipients: %w", err)
	}
	return contacts, nil
}

// SetMilestone stamps one of the tracking columns. It reports false when the
// recipient row does not exist.
func (r *CampaignRecipientRepository) SetMilestone(ctx context.Context, id int, m model.RecipientMilestone, at time.Time) (bool, error) {
	switch m {
	case model.MilestoneDelivered, model.MilestoneOpened, model.MilestoneClicked:
	default:
		return false, fmt.Errorf("unknown recipient milestone %q", m)
	}
	query := fmt.Sprintf(`UPDATE campaign_recipients SET %s=$1 WHERE id=$2`, m)
	res, err := r.DB.ExecContext(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to set %s: %w", m, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *CampaignRecipientRepository) RecordBounce(ctx context.Context, id int, at time.Time, bounceType string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE campaign_recipients SET bounced_at=$1, bounce_type=$2 WHERE id=$3`, at, bounceType, id)
	if err != nil {
		return false, fmt.Errorf("failed to record bounce: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *CampaignRecipientRepository) Stats(ctx context.Context, campaignID int) (*model.CampaignStats, error) {
	query := `
        SELECT COUNT(*) AS total,
               COUNT(sent_at) AS sent,
               COUNT(delivered_at) AS delivered,
               COUNT(opened_at) AS opened,
               COUNT(clicked_at) AS clicked,
               COUNT(bounced_at) AS bounced
        FROM campaign_recipients
        WHERE campaign_id = $1
    `
	var stats model.CampaignStats
	if err := r.DB.GetContext(ctx, &stats, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to get campaign stats: %w", err)
	}
	return &stats, nil
}

var _ CampaignRecipientRepositoryInterface = (*CampaignRecipientRepository)(nil)
