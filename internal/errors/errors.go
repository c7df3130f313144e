// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is returned when a campaign id does not resolve.
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrContactNotFound carries whatever key was used for the lookup (id or email).
type ErrContactNotFound struct {
	Key string
}

func (e *ErrContactNotFound) Error() string {
	return fmt.Sprintf("contact %s not found", e.Key)
}

func NewContactNotFound(key any) error {
	return &ErrContactNotFound{Key: fmt.Sprint(key)}
}

type ErrRecipientNotFound struct {
	RecipientID int
}

func (e *ErrRecipientNotFound) Error() string {
	return fmt.Sprintf("campaign recipient with ID %d not found", e.RecipientID)
}

func NewRecipientNotFound(id int) error {
	return &ErrRecipientNotFound{RecipientID: id}
}

// ErrInvalidTransition is a guard violation: the campaign was not in the state
// the action requires. Nothing was mutated.
type ErrInvalidTransition struct {
	CampaignID int
	Action     string
	Expected   string
	Actual     string
}

func (e *ErrInvalidTransition) Error() string {
	if e.Actual != "" {
		return fmt.Sprintf("cannot %s campaign %d: status is %s, expected %s", e.Action, e.CampaignID, e.Actual, e.Expected)
	}
	return fmt.Sprintf("cannot %s campaign %d: status is not %s", e.Action, e.CampaignID, e.Expected)
}

func NewInvalidTransition(id int, action, expected, actual string) error {
	return &ErrInvalidTransition{CampaignID: id, Action: action, Expected: expected, Actual: actual}
}

type ErrValidation struct {
	Field  string
	Reason string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ErrValidation{Field: field, Reason: reason}
}

// ErrInvalidToken is returned for unsubscribe tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// IsNotFound reports whether err is any of the not-found errors above.
func IsNotFound(err error) bool {
	var c *ErrCampaignNotFound
	var ct *ErrContactNotFound
	var r *ErrRecipientNotFound
	return errors.As(err, &c) || errors.As(err, &ct) || errors.As(err, &r)
}
