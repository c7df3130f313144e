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

// ContactRepositoryInterface defines methods used by service
type ContactRepositoryInterface interface {
	ListEligible(ctx context.Context, tagIDs []int) ([]model.Contact, error)
	GetByID(ctx context.Context, id int) (*model.Contact, error)
	List(ctx context.Context, offset, limit int) ([]model.Contact, int, error)
	Search(ctx context.Context, email, name string, limit int) ([]model.Contact, error)
	Upsert(ctx context.Context, in *model.ContactInput) (*model.Contact, error)
	AddTag(ctx context.Context, contactID, tagID int) error
	ListTags(ctx context.Context, contactID int) ([]model.Tag, error)

	// Consent
	RevokeConsent(ctx context.Context, email string, unsubscribedAt *time.Time, metadata model.JSONMap) (bool, error)
	RestoreConsent(ctx context.Context, email string) (bool, error)
	Unsubscribe(ctx context.Context, id int, at time.Time) error
}

type ContactRepository struct {
	DB *sqlx.DB
}

const contactColumns = `id, email, first_name, last_name, full_name, title, phone, location,
        solicitation, unsubscribed_at, donation_total, metadata, created_at, updated_at`

const contactColumnsPrefixed = `c.id, c.email, c.first_name, c.last_name, c.full_name, c.title, c.phone,
               c.location, c.solicitation, c.unsubscribed_at, c.donation_total, c.metadata,
               c.created_at, c.updated_at`

// ListEligible returns every contact that may receive marketing email. A
// non-empty tagIDs narrows the set to contacts carrying at least one of them.
func (r *ContactRepository) ListEligible(ctx context.Context, tagIDs []int) ([]model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts c
        WHERE c.solicitation = TRUE AND c.unsubscribed_at IS NULL`
	args := []interface{}{}
	if len(tagIDs) > 0 {
		query += ` AND EXISTS (
            SELECT 1 FROM contact_tags ct WHERE ct.contact_id = c.id AND ct.tag_id = ANY($1)
        )`
		args = append(args, pq.Array(tagIDs))
	}
	query += ` ORDER BY c.id ASC`

	contacts := []model.Contact{}
	if err := r.DB.SelectContext(ctx, &contacts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list eligible contacts: %w", err)
	}
	return contacts, nil
}

// GetByID fetches a contact by ID
func (r *ContactRepository) GetByID(ctx context.Context, id int) (*model.Contact, error) {
	var c model.Contact
	err := r.DB.GetContext(ctx, &c, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewContactNotFound(id)
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return &c, nil
}

func (r *ContactRepository) List(ctx context.Context, offset, limit int) ([]model.Contact, int, error) {
	var total int
	if err := r.DB.GetContext(ctx, &total, `SELECT COUNT(*) FROM contacts`); err != nil {
		return nil, 0, fmt.Errorf("failed to count contacts: %w", err)
	}
	contacts := []model.Contact{}
	query := `SELECT ` + contactColumns + ` FROM contacts
        ORDER BY full_name ASC NULLS LAST, id ASC LIMIT $1 OFFSET $2`
	if err := r.DB.SelectContext(ctx, &contacts, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, total, nil
}

// Search matches an exact email (case-insensitive) or, without one, a
// substring of the full name.
func (r *ContactRepository) Search(ctx context.Context, email, name string, limit int) ([]model.Contact, error) {
	var (
		query string
		arg   string
	)
	if email != "" {
		query = `SELECT ` + contactColumns + ` FROM contacts WHERE email = $1 ORDER BY id LIMIT $2`
		arg = model.NormalizeEmail(email)
	} else {
		query = `SELECT ` + contactColumns + ` FROM contacts WHERE full_name ILIKE '%' || $1 || '%' ORDER BY full_name LIMIT $2`
		arg = name
	}
	contacts := []model.Contact{}
	if err := r.DB.SelectContext(ctx, &contacts, query, arg, limit); err != nil {
		return nil, fmt.Errorf("failed to search contacts: %w", err)
	}
	return contacts, nil
}

// Upsert inserts a contact or updates the one with the same email. Nil
// fields never overwrite stored values: a new contact consents unless told
// otherwise and metadata is merged.
func (r *ContactRepository) Upsert(ctx context.Context, in *model.ContactInput) (*model.Contact, error) {
	metadata := in.Metadata
	if metadata == nil {
		metadata = model.JSONMap{}
	}
	query := `
        INSERT INTO contacts (email, first_name, last_name, full_name, title, phone, location,
                              solicitation, donation_total, metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7,
                COALESCE($8::boolean, TRUE), COALESCE($9::numeric, 0), $10::jsonb)
        ON CONFLICT (email) DO UPDATE SET
            first_name     = COALESCE(EXCLUDED.first_name, contacts.first_name),
            last_name      = COALESCE(EXCLUDED.last_name, contacts.last_name),
            full_name      = COALESCE(EXCLUDED.full_name, contacts.full_name),
            title          = COALESCE(EXCLUDED.title, contacts.title),
            phone          = COALESCE(EXCLUDED.phone, contacts.phone),
            location       = COALESCE(EXCLUDED.location, contacts.location),
            solicitation   = COALESCE($8::boolean, contacts.solicitation),
            donation_total = COALESCE($9::numeric, contacts.donation_total),
            metadata       = contacts.metadata || EXCLUDED.metadata,
            updated_at     = NOW()
        RETURNING ` + contactColumns

	var c model.Contact
	err := r.DB.GetContext(ctx, &c, query,
		model.NormalizeEmail(in.Email), in.FirstName, in.LastName, in.FullName, in.Title, in.Phone, in.Location,
		in.Solicitation, in.DonationTotal, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert contact: %w", err)
	}
	return &c, nil
}

func (r *ContactRepository) AddTag(ctx context.Context, contactID, tagID int) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO contact_tags (contact_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		contactID, tagID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return appErrors.NewContactNotFound(contactID)
		}
		return fmt.Errorf("failed to tag contact: %w", err)
	}
	return nil
}

func (r *ContactRepository) ListTags(ctx context.Context, contactID int) ([]model.Tag, error) {
	tags := []model.Tag{}
	query := `
        SELECT t.id, t.name, t.created_at
        FROM tags t JOIN contact_tags ct ON ct.tag_id = t.id
        WHERE ct.contact_id = $1
        ORDER BY t.name
    `
	if err := r.DB.SelectContext(ctx, &tags, query, contactID); err != nil {
		return nil, fmt.Errorf("failed to list contact tags: %w", err)
	}
	return tags, nil
}

// ====================== Consent ======================

// RevokeConsent clears solicitation for the contact with this email, stamps
// unsubscribed_at when given and merges metadata. It reports whether a contact matched.
func (r *ContactRepository) RevokeConsent(ctx context.Context, email string, unsubscribedAt *time.Time, metadata model.JSONMap) (bool, error) {
	if metadata == nil {
		metadata = model.JSONMap{}
	}
	query := `
        UPDATE contacts
        SET solicitation = FALSE,
            unsubscribed_at = COALESCE($2, unsubscribed_at),
            metadata = metadata || $3::jsonb,
            updated_at = NOW()
        WHERE email = $1
    `
	res, err := r.DB.ExecContext(ctx, query, model.NormalizeEmail(email), unsubscribedAt, metadata)
	if err != nil {
		return false, fmt.Errorf("failed to revoke consent: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *ContactRepository) RestoreConsent(ctx context.Context, email string) (bool, error) {
	query := `UPDATE contacts SET solicitation = TRUE, unsubscribed_at = NULL, updated_at = NOW() WHERE email = $1`
	res, err := r.DB.ExecContext(ctx, query, model.NormalizeEmail(email))
	if err != nil {
		return false, fmt.Errorf("failed to restore consent: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Unsubscribe stamps unsubscribed_at. Calling it again only refreshes the timestamp.
func (r *ContactRepository) Unsubscribe(ctx context.Context, id int, at time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE contacts SET unsubscribed_at = $1, updated_at = NOW() WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to unsubscribe contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewContactNotFound(id)
	}
	return nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
