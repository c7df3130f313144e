package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error)

	// State machine
	TransitionStatus(ctx context.Context, id int, from, to model.CampaignStatus) error
	MarkSent(ctx context.Context, id int, at time.Time) error
	Schedule(ctx context.Context, id int, at time.Time, contactIDs []int) error
	Cancel(ctx context.Context, id int) (int64, error)
	ListDue(ctx context.Context, now time.Time) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sqlx.DB
}

const campaignColumns = `id, name, subject, from_name, from_email, preview_text, content, status,
        scheduled_at, sent_at, created_at, updated_at`

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	query := `
        INSERT INTO campaigns (name, subject, from_name, from_email, preview_text, content, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	err := r.DB.QueryRowxContext(ctx, query,
		c.Name, c.Subject, c.FromName, c.FromEmail, c.PreviewText, c.Content, c.Status, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	var c model.Campaign
	if err := r.DB.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status=$%d", len(args))
	}

	var total int
	if err := r.DB.GetContext(ctx, &total, `SELECT COUNT(*) FROM campaigns`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	campaigns := []*model.Campaign{}
	if err := r.DB.SelectContext(ctx, &campaigns, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, total, nil
}

// ====================== State machine ======================

// TransitionStatus moves a campaign from one status to another only if it is
// still in the expected status. Zero affected rows is a guard violation.
func (r *CampaignRepository) TransitionStatus(ctx context.Context, id int, from, to model.CampaignStatus) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`
	res, err := r.DB.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}
	return guard(res, id, "move to "+string(to), from)
}

// MarkSent is the SENDING -> SENT transition, stamping sent_at.
func (r *CampaignRepository) MarkSent(ctx context.Context, id int, at time.Time) error {
	query := `UPDATE campaigns SET status=$1, sent_at=$2, updated_at=NOW() WHERE id=$3 AND status=$4`
	res, err := r.DB.ExecContext(ctx, query, model.StatusSent, at, id, model.StatusSending)
	if err != nil {
		return fmt.Errorf("failed to mark campaign sent: %w", err)
	}
	return guard(res, id, "complete", model.StatusSending)
}

// Schedule queues one recipient row per contact and moves the campaign
// DRAFT -> SCHEDULED in a single transaction.
func (r *CampaignRepository) Schedule(ctx context.Context, id int, at time.Time, contactIDs []int) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schedule tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE campaigns SET status=$1, scheduled_at=$2, updated_at=NOW() WHERE id=$3 AND status=$4`,
		model.StatusScheduled, at, id, model.StatusDraft)
	if err != nil {
		return fmt.Errorf("failed to schedule campaign: %w", err)
	}
	if err := guard(res, id, "schedule", model.StatusDraft); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO campaign_recipients (campaign_id, contact_id)
        SELECT $1, unnest($2::int[])
        ON CONFLICT (campaign_id, contact_id) DO NOTHING
    `, id, pq.Array(contactIDs))
	if err != nil {
		return fmt.Errorf("failed to queue recipients: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schedule: %w", err)
	}
	return nil
}

// Cancel reverts a SCHEDULED campaign to DRAFT and removes its queued
// recipient rows. It returns the number of rows removed.
func (r *CampaignRepository) Cancel(ctx context.Context, id int) (int64, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin cancel tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE campaigns SET status=$1, scheduled_at=NULL, updated_at=NOW() WHERE id=$2 AND status=$3`,
		model.StatusDraft, id, model.StatusScheduled)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel campaign: %w", err)
	}
	if err := guard(res, id, "cancel", model.StatusScheduled); err != nil {
		return 0, err
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM campaign_recipients WHERE campaign_id=$1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete queued recipients: %w", err)
	}
	removed, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cancel: %w", err)
	}
	return removed, nil
}

func (r *CampaignRepository) ListDue(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns
        WHERE status=$1 AND scheduled_at <= $2
        ORDER BY scheduled_at ASC`
	campaigns := []*model.Campaign{}
	if err := r.DB.SelectContext(ctx, &campaigns, query, model.StatusScheduled, now); err != nil {
		return nil, fmt.Errorf("failed to list due campaigns: %w", err)
	}
	return campaigns, nil
}

func guard(res sql.Result, id int, action string, expected model.CampaignStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewInvalidTransition(id, action, string(expected), "")
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
