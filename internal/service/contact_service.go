package service

import (
	"context"
	"strings"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

type ContactService struct {
	ContactRepo repository.ContactRepositoryInterface
	TagRepo     repository.TagRepositoryInterface
}

func (s *ContactService) ListContacts(ctx context.Context, page, limit int) ([]model.Contact, map[string]int, error) {
	page, limit = clampPage(page, limit, 50, 500)
	contacts, total, err := s.ContactRepo.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, nil, err
	}
	return contacts, pagination(page, limit, total), nil
}

// SearchContacts matches an exact email first, otherwise part of the full name.
func (s *ContactService) SearchContacts(ctx context.Context, email, name string) ([]model.Contact, error) {
	email, name = strings.TrimSpace(email), strings.TrimSpace(name)
	if email == "" && name == "" {
		return nil, appErrors.NewValidation("query", "email or name parameter required")
	}
	return s.ContactRepo.Search(ctx, email, name, 10)
}

// UpsertContact creates or updates the contact keyed by email. Fields left
// nil in the input keep their stored values.
func (s *ContactService) UpsertContact(ctx context.Context, in *model.ContactInput) (*model.Contact, error) {
	in.Email = model.NormalizeEmail(in.Email)
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return nil, appErrors.NewValidation("email", "a valid address is required")
	}
	if in.DonationTotal != nil && *in.DonationTotal < 0 {
		return nil, appErrors.NewValidation("donation_total", "must not be negative")
	}
	return s.ContactRepo.Upsert(ctx, in)
}

// AddTag links the named tag to the contact, creating the tag on first use,
// and returns the contact with its tags loaded.
func (s *ContactService) AddTag(ctx context.Context, contactID int, tagName string) (*model.Contact, error) {
	contact, err := s.ContactRepo.GetByID(ctx, contactID)
	if err != nil {
		return nil, err
	}
	tag, err := s.TagRepo.FindOrCreate(ctx, tagName)
	if err != nil {
		return nil, err
	}
	if err := s.ContactRepo.AddTag(ctx, contactID, tag.ID); err != nil {
		return nil, err
	}
	tags, err := s.ContactRepo.ListTags(ctx, contactID)
	if err != nil {
		return nil, err
	}
	contact.Tags = tags
	return contact, nil
}

func (s *ContactService) ListTags(ctx context.Context) ([]model.Tag, error) {
	return s.TagRepo.List(ctx)
}
