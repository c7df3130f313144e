// internal/service/campaign_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/metrics"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/transport"
)

type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	ContactRepo   repository.ContactRepositoryInterface
	RecipientRepo repository.CampaignRecipientRepositoryInterface
	Resolver      *Resolver
	Pipeline      *SendPipeline
	Templates     *TemplateService
	Tokens        *UnsubscribeTokens
	Transport     transport.Transport
	AppURL        string
	DefaultFrom   transport.Address
	Now           func() time.Time

	// FinalizeBackoff spaces the SENDING to SENT retries. Zero means 250ms.
	FinalizeBackoff time.Duration
}

const finalizeAttempts = 4

type CreateCampaignInput struct {
	Name        string  `json:"name"`
	Subject     string  `json:"subject"`
	FromName    string  `json:"from_name"`
	FromEmail   string  `json:"from_email"`
	PreviewText *string `json:"preview_text"`
	Content     string  `json:"content"`
}

// SendRequest is the audience and optional schedule of a send.
type SendRequest struct {
	Audience    Audience
	ScheduledAt *time.Time
}

// SendOutcome is either the counts of an immediate run or the
// confirmation of a scheduled one.
type SendOutcome struct {
	SendResult
	Scheduled      bool
	ScheduledAt    time.Time
	RecipientCount int
}

type CampaignDetails struct {
	model.Campaign
	Stats model.CampaignStats `json:"stats"`
}

func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, appErrors.NewValidation("name", "is required")
	}
	if strings.TrimSpace(in.Subject) == "" {
		return nil, appErrors.NewValidation("subject", "is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, appErrors.NewValidation("content", "is required")
	}

	c := &model.Campaign{
		Name:        in.Name,
		Subject:     in.Subject,
		FromName:    in.FromName,
		FromEmail:   in.FromEmail,
		PreviewText: in.PreviewText,
		Content:     in.Content,
		Status:      model.StatusDraft,
	}
	if c.FromName == "" {
		c.FromName = s.DefaultFrom.Name
	}
	if c.FromEmail == "" {
		c.FromEmail = s.DefaultFrom.Email
	}

	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if status != "" && !model.CampaignStatus(status).Valid() {
		return nil, nil, appErrors.NewValidation("status", "unknown campaign status")
	}
	page, pageSize = clampPage(page, pageSize, 20, 100)
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	return campaigns, pagination(page, pageSize, total), nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.RecipientRepo.Stats(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: *campaign, Stats: *stats}, nil
}

// DuplicateCampaign copies the content and sender of a campaign into a new draft.
func (s *CampaignService) DuplicateCampaign(ctx context.Context, campaignID int) (*model.Campaign, error) {
	orig, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	c := &model.Campaign{
		Name:        orig.Name + " (Copy)",
		Subject:     orig.Subject,
		FromName:    orig.FromName,
		FromEmail:   orig.FromEmail,
		PreviewText: orig.PreviewText,
		Content:     orig.Content,
		Status:      model.StatusDraft,
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SendCampaign sends a DRAFT campaign now, or queues its recipients for a
// future time when req.ScheduledAt is set. An empty audience leaves the
// campaign untouched and reports zeros.
func (s *CampaignService) SendCampaign(ctx context.Context, campaignID int, req SendRequest) (*SendOutcome, error) {
	log := logger.FromContext(ctx).With().Int("campaign_id", campaignID).Logger()

	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.StatusDraft {
		return nil, appErrors.NewInvalidTransition(campaignID, "send", string(model.StatusDraft), string(campaign.Status))
	}

	now := s.now()
	if req.ScheduledAt != nil && !req.ScheduledAt.After(now) {
		return nil, appErrors.NewValidation("scheduledAt", "must be in the future")
	}

	contacts, err := s.Resolver.Resolve(ctx, req.Audience)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		log.Info().Msg("no eligible recipients, campaign left unchanged")
		return &SendOutcome{}, nil
	}

	if req.ScheduledAt != nil {
		ids := make([]int, len(contacts))
		for i, c := range contacts {
			ids[i] = c.ID
		}
		if err := s.CampaignRepo.Schedule(ctx, campaignID, *req.ScheduledAt, ids); err != nil {
			return nil, err
		}
		metrics.RecordTransition(string(model.StatusScheduled))
		log.Info().Time("scheduled_at", *req.ScheduledAt).Int("recipients", len(ids)).Msg("campaign scheduled")
		return &SendOutcome{Scheduled: true, ScheduledAt: *req.ScheduledAt, RecipientCount: len(ids)}, nil
	}

	if err := s.CampaignRepo.TransitionStatus(ctx, campaignID, model.StatusDraft, model.StatusSending); err != nil {
		return nil, err
	}
	metrics.RecordTransition(string(model.StatusSending))

	start := time.Now()
	result, runErr := s.Pipeline.Run(ctx, campaign, contacts)
	metrics.CampaignSendDuration.WithLabelValues("immediate").Observe(time.Since(start).Seconds())

	if err := s.finalize(ctx, campaignID); err != nil {
		log.Error().Err(err).Msg("failed to mark campaign sent, campaign left in SENDING")
		if runErr == nil {
			runErr = err
		}
	} else {
		metrics.RecordTransition(string(model.StatusSent))
	}

	if runErr != nil {
		return &SendOutcome{SendResult: result}, fmt.Errorf("campaign %d run: %w", campaignID, runErr)
	}
	return &SendOutcome{SendResult: result}, nil
}

// finalize completes an immediate send. Every recipient has already been
// attempted, so a store error is retried rather than leaving the campaign in
// SENDING. A guard violation is not retried.
func (s *CampaignService) finalize(ctx context.Context, campaignID int) error {
	backoff := s.FinalizeBackoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= finalizeAttempts; attempt++ {
		if err = s.CampaignRepo.MarkSent(ctx, campaignID, s.now()); err == nil {
			return nil
		}
		var guard *appErrors.ErrInvalidTransition
		if errors.As(err, &guard) || attempt == finalizeAttempts {
			break
		}
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Int("campaign_id", campaignID).Int("attempt", attempt).Msg("retrying campaign finalize")
		if perr := pause(ctx, time.Duration(attempt)*backoff); perr != nil {
			break
		}
	}
	return err
}

// CancelCampaign returns a SCHEDULED campaign to DRAFT and drops its queue.
func (s *CampaignService) CancelCampaign(ctx context.Context, campaignID int) error {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != model.StatusScheduled {
		return appErrors.NewInvalidTransition(campaignID, "cancel", string(model.StatusScheduled), string(campaign.Status))
	}
	removed, err := s.CampaignRepo.Cancel(ctx, campaignID)
	if err != nil {
		return err
	}
	metrics.RecordTransition(string(model.StatusDraft))
	log := logger.FromContext(ctx)
	log.Info().Int("campaign_id", campaignID).Int64("removed_recipients", removed).Msg("campaign cancelled")
	return nil
}

// SendTestEmail delivers a "[TEST]" copy to one address. It uses a stand-in
// contact, creates no recipient rows and adds no tracking.
func (s *CampaignService) SendTestEmail(ctx context.Context, campaignID int, email string) error {
	email = model.NormalizeEmail(email)
	if email == "" {
		return appErrors.NewValidation("email", "is required")
	}
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}

	first, last, full := "Test", "User", "Test User"
	contact := &model.Contact{Email: email, FirstName: &first, LastName: &last, FullName: &full}

	token, err := s.Tokens.Issue(0, email)
	if err != nil {
		return err
	}
	html, err := s.Templates.Wrap(Personalize(campaign.Content, contact), campaign.Preview(), UnsubscribeURL(s.AppURL, token))
	if err != nil {
		return err
	}

	return s.Transport.Send(ctx, &transport.Message{
		To:      email,
		From:    transport.Address{Email: campaign.FromEmail, Name: campaign.FromName},
		ReplyTo: campaign.FromEmail,
		Subject: "[TEST] " + campaign.Subject,
		HTML:    html,
	})
}

// RenderPreview personalizes the campaign (or override content) for one
// contact and wraps it in the shell, without tracking.
func (s *CampaignService) RenderPreview(ctx context.Context, campaignID, contactID int, overrideContent *string) (string, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return "", err
	}
	contact, err := s.ContactRepo.GetByID(ctx, contactID)
	if err != nil {
		return "", err
	}

	content := campaign.Content
	if overrideContent != nil && strings.TrimSpace(*overrideContent) != "" {
		content = *overrideContent
	}
	if strings.TrimSpace(content) == "" {
		return "", appErrors.NewValidation("content", "cannot be empty")
	}

	token, err := s.Tokens.Issue(contact.ID, contact.Email)
	if err != nil {
		return "", err
	}
	return s.Templates.Wrap(Personalize(content, contact), campaign.Preview(), UnsubscribeURL(s.AppURL, token))
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func clampPage(page, size, def, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = def
	}
	if size > max {
		size = max
	}
	return page, size
}

func pagination(page, pageSize, total int) map[string]int {
	return map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": (total + pageSize - 1) / pageSize,
	}
}
