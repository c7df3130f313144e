package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/metrics"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/transport"
)

type SendResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// SendPipeline delivers one campaign to a list of contacts, sequentially.
type SendPipeline struct {
	RecipientRepo repository.CampaignRecipientRepositoryInterface
	Transport     transport.Transport
	Templates     *TemplateService
	Tokens        *UnsubscribeTokens
	AppURL        string
	BatchSize     int
	BatchPause    time.Duration
	Now           func() time.Time
}

// Run sends to every contact. A transport failure is counted and the run
// moves on; a datastore failure or cancelled context stops the run and is
// returned together with the counts so far.
func (p *SendPipeline) Run(ctx context.Context, campaign *model.Campaign, contacts []model.Contact) (SendResult, error) {
	log := logger.FromContext(ctx).With().Int("campaign_id", campaign.ID).Logger()
	result := SendResult{Total: len(contacts)}

	for i := range contacts {
		contact := &contacts[i]
		if err := ctx.Err(); err != nil {
			return result, err
		}

		recipient, err := p.RecipientRepo.GetOrCreate(ctx, campaign.ID, contact.ID)
		if err != nil {
			return result, fmt.Errorf("recipient for contact %d: %w", contact.ID, err)
		}

		msg, err := p.buildMessage(campaign, contact, recipient.ID)
		if err != nil {
			log.Error().Err(err).Int("contact_id", contact.ID).Msg("failed to render email")
			result.Failed++
			metrics.RecordEmail(false)
			continue
		}

		if err := p.Transport.Send(ctx, msg); err != nil {
			log.Warn().Err(err).Int("recipient_id", recipient.ID).
				Bool("permanent", transport.IsPermanent(err)).Msg("transport rejected email")
			result.Failed++
			metrics.RecordEmail(false)
			continue
		}

		if err := p.RecipientRepo.MarkSent(ctx, recipient.ID, p.now()); err != nil {
			return result, fmt.Errorf("mark recipient %d sent: %w", recipient.ID, err)
		}
		result.Sent++
		metrics.RecordEmail(true)

		if p.BatchSize > 0 && p.BatchPause > 0 && result.Sent%p.BatchSize == 0 {
			if err := pause(ctx, p.BatchPause); err != nil {
				return result, err
			}
		}
	}

	log.Info().Int("sent", result.Sent).Int("failed", result.Failed).Int("total", result.Total).Msg("campaign run finished")
	return result, nil
}

func (p *SendPipeline) buildMessage(campaign *model.Campaign, contact *model.Contact, recipientID int) (*transport.Message, error) {
	token, err := p.Tokens.Issue(contact.ID, contact.Email)
	if err != nil {
		return nil, err
	}

	body := Personalize(campaign.Content, contact)
	body = InjectTracking(body, recipientID, p.AppURL)
	html, err := p.Templates.Wrap(body, campaign.Preview(), UnsubscribeURL(p.AppURL, token))
	if err != nil {
		return nil, err
	}

	return &transport.Message{
		To:      contact.Email,
		From:    transport.Address{Email: campaign.FromEmail, Name: campaign.FromName},
		ReplyTo: campaign.FromEmail,
		Subject: campaign.Subject,
		HTML:    html,
		CustomArgs: map[string]string{
			"campaign_id":  strconv.Itoa(campaign.ID),
			"recipient_id": strconv.Itoa(recipientID),
		},
	}, nil
}

func (p *SendPipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// pause waits d or until ctx is done, whichever comes first.
func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
