package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/metrics"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

// Per-campaign outcomes of a ProcessDue pass.
const (
	DueCompleted      = "completed"
	DueCompletedEmpty = "completed_empty"
	DueFailed         = "failed"
	DueSkipped        = "skipped"
)

type DueResult struct {
	CampaignID int    `json:"campaignId"`
	Status     string `json:"status"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

// Scheduler sends SCHEDULED campaigns once their time has come.
type Scheduler struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.CampaignRecipientRepositoryInterface
	Pipeline      *SendPipeline
	Interval      time.Duration
}

// ProcessDue runs every campaign due at now. A failure in one campaign is
// recorded in its result and puts it back to SCHEDULED; the pass continues.
func (s *Scheduler) ProcessDue(ctx context.Context, now time.Time) ([]DueResult, error) {
	due, err := s.CampaignRepo.ListDue(ctx, now)
	if err != nil {
		return nil, err
	}

	results := make([]DueResult, 0, len(due))
	for _, c := range due {
		results = append(results, s.processOne(ctx, c, now))
	}
	return results, nil
}

func (s *Scheduler) processOne(ctx context.Context, c *model.Campaign, now time.Time) DueResult {
	log := logger.FromContext(ctx).With().Int("campaign_id", c.ID).Logger()
	res := DueResult{CampaignID: c.ID}

	if err := s.CampaignRepo.TransitionStatus(ctx, c.ID, model.StatusScheduled, model.StatusSending); err != nil {
		var guard *appErrors.ErrInvalidTransition
		if errors.As(err, &guard) {
			log.Info().Msg("campaign already picked up elsewhere")
			res.Status = DueSkipped
			return res
		}
		res.Status = DueFailed
		res.Error = err.Error()
		return res
	}
	metrics.RecordTransition(string(model.StatusSending))

	contacts, err := s.RecipientRepo.ListPendingContacts(ctx, c.ID)
	if err != nil {
		return s.revert(ctx, log, res, err)
	}

	if len(contacts) > 0 {
		start := time.Now()
		result, err := s.Pipeline.Run(ctx, c, contacts)
		metrics.CampaignSendDuration.WithLabelValues("scheduled").Observe(time.Since(start).Seconds())
		res.Sent, res.Failed = result.Sent, result.Failed
		if err != nil {
			return s.revert(ctx, log, res, err)
		}
	}

	if err := s.CampaignRepo.MarkSent(ctx, c.ID, now); err != nil {
		return s.revert(ctx, log, res, err)
	}
	metrics.RecordTransition(string(model.StatusSent))

	res.Status = DueCompleted
	if len(contacts) == 0 {
		res.Status = DueCompletedEmpty
	}
	log.Info().Str("status", res.Status).Int("sent", res.Sent).Int("failed", res.Failed).Msg("scheduled campaign processed")
	return res
}

func (s *Scheduler) revert(ctx context.Context, log zerolog.Logger, res DueResult, cause error) DueResult {
	log.Error().Err(cause).Msg("scheduled campaign failed, reverting to SCHEDULED")
	// the revert must land even when the caller's context is done
	if err := s.CampaignRepo.TransitionStatus(context.WithoutCancel(ctx), res.CampaignID, model.StatusSending, model.StatusScheduled); err != nil {
		log.Error().Err(err).Msg("failed to revert campaign status")
	} else {
		metrics.RecordTransition(string(model.StatusScheduled))
	}
	res.Status = DueFailed
	res.Error = cause.Error()
	return res
}

// Run calls ProcessDue on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return
		case t := <-ticker.C:
			results, err := s.ProcessDue(ctx, t)
			if err != nil {
				log.Error().Err(err).Msg("failed to list due campaigns")
				continue
			}
			if len(results) > 0 {
				log.Info().Int("processed", len(results)).Msg("scheduler pass finished")
			}
		}
	}
}
