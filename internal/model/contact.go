// internal/model/contact.go
package model

import (
	"strings"
	"time"
)

type Contact struct {
	ID             int        `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	FirstName      *string    `db:"first_name" json:"first_name,omitempty"`
	LastName       *string    `db:"last_name" json:"last_name,omitempty"`
	FullName       *string    `db:"full_name" json:"full_name,omitempty"`
	Title          *string    `db:"title" json:"title,omitempty"`
	Phone          *string    `db:"phone" json:"phone,omitempty"`
	Location       *string    `db:"location" json:"location,omitempty"`
	Solicitation   bool       `db:"solicitation" json:"solicitation"`
	UnsubscribedAt *time.Time `db:"unsubscribed_at" json:"unsubscribed_at,omitempty"`
	DonationTotal  float64    `db:"donation_total" json:"donation_total"`
	Metadata       JSONMap    `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`

	Tags []Tag `db:"-" json:"tags,omitempty"`
}

// ContactInput is a create-or-update request keyed by email. A nil field
// keeps the stored value on update and takes the column default on insert.
type ContactInput struct {
	Email         string   `json:"email"`
	FirstName     *string  `json:"first_name"`
	LastName      *string  `json:"last_name"`
	FullName      *string  `json:"full_name"`
	Title         *string  `json:"title"`
	Phone         *string  `json:"phone"`
	Location      *string  `json:"location"`
	Solicitation  *bool    `json:"solicitation"`
	DonationTotal *float64 `json:"donation_total"`
	Metadata      JSONMap  `json:"metadata"`
}

// CanReceiveMarketing is true only for consenting contacts that never unsubscribed.
func (c *Contact) CanReceiveMarketing() bool {
	return c.Solicitation && c.UnsubscribedAt == nil
}

// NormalizeEmail is the canonical form used for the unique email identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (c *Contact) First() string { return deref(c.FirstName) }
func (c *Contact) Last() string  { return deref(c.LastName) }
func (c *Contact) Full() string  { return deref(c.FullName) }
