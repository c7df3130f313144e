package service

import (
	"context"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

type AudienceMode string

const (
	AudienceAll  AudienceMode = "all"
	AudienceTags AudienceMode = "tags"
)

// Audience selects the contacts a campaign goes to.
type Audience struct {
	Mode   AudienceMode
	TagIDs []int
}

// Resolver turns an Audience into the contacts allowed to receive it.
type Resolver struct {
	ContactRepo repository.ContactRepositoryInterface
}

// Resolve never returns a contact that has unsubscribed or withdrawn
// consent. Tag mode with no tags selects nobody.
func (r *Resolver) Resolve(ctx context.Context, a Audience) ([]model.Contact, error) {
	var tagIDs []int
	switch a.Mode {
	case AudienceAll, "":
	case AudienceTags:
		if len(a.TagIDs) == 0 {
			return []model.Contact{}, nil
		}
		tagIDs = a.TagIDs
	default:
		return nil, appErrors.NewValidation("mode", "must be all or tags")
	}

	candidates, err := r.ContactRepo.ListEligible(ctx, tagIDs)
	if err != nil {
		return nil, err
	}

	contacts := make([]model.Contact, 0, len(candidates))
	for _, c := range candidates {
		if c.CanReceiveMarketing() {
			contacts = append(contacts, c)
		}
	}
	return contacts, nil
}
