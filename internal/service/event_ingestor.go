package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/unclebandit/mailleopard-backend/internal/cache"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/metrics"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

type IngestSummary struct {
	Received  int `json:"received"`
	Applied   int `json:"applied"`
	Skipped   int `json:"skipped"`
	Duplicate int `json:"duplicate"`
	Failed    int `json:"failed"`
}

// EventIngestor applies ESP delivery events to recipient rows and contact
// consent. Every event stands alone: a failure is counted, never fatal.
type EventIngestor struct {
	ContactRepo   repository.ContactRepositoryInterface
	RecipientRepo repository.CampaignRecipientRepositoryInterface
	Deduper       cache.Deduper
}

type outcome string

const (
	outcomeApplied   outcome = "applied"
	outcomeSkipped   outcome = "skipped"
	outcomeDuplicate outcome = "duplicate"
	outcomeFailed    outcome = "failed"
)

func (i *EventIngestor) Ingest(ctx context.Context, events []model.DeliveryEvent) IngestSummary {
	summary := IngestSummary{Received: len(events)}
	for _, ev := range events {
		i.ingestOne(ctx, ev, &summary)
	}
	return summary
}

// IngestRaw decodes each element of a webhook batch on its own, so a
// malformed element is counted as failed and the rest are still applied.
func (i *EventIngestor) IngestRaw(ctx context.Context, raw []json.RawMessage) IngestSummary {
	log := logger.FromContext(ctx)
	summary := IngestSummary{Received: len(raw)}

	for n, elem := range raw {
		var ev model.DeliveryEvent
		if err := json.Unmarshal(elem, &ev); err != nil {
			log.Warn().Err(err).Int("index", n).Msg("malformed delivery event")
			metrics.RecordDeliveryEvent("malformed", string(outcomeFailed))
			summary.Failed++
			continue
		}
		i.ingestOne(ctx, ev, &summary)
	}
	return summary
}

func (i *EventIngestor) ingestOne(ctx context.Context, ev model.DeliveryEvent, summary *IngestSummary) {
	out, err := i.apply(ctx, ev)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("event", ev.Event).Str("sg_event_id", ev.SGEventID).Msg("failed to apply delivery event")
	}
	metrics.RecordDeliveryEvent(ev.Event, string(out))

	switch out {
	case outcomeApplied:
		summary.Applied++
	case outcomeDuplicate:
		summary.Duplicate++
	case outcomeFailed:
		summary.Failed++
	default:
		summary.Skipped++
	}
}

// apply claims the event id, then applies the event. A claim is released
// when applying fails so the ESP's redelivery is not mistaken for a duplicate.
func (i *EventIngestor) apply(ctx context.Context, ev model.DeliveryEvent) (outcome, error) {
	ev.Email = model.NormalizeEmail(ev.Email)
	if ev.Email == "" {
		return outcomeSkipped, nil
	}

	claimed := false
	if i.Deduper != nil && ev.SGEventID != "" {
		seen, err := i.Deduper.Seen(ctx, ev.SGEventID)
		if err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("event dedupe unavailable, applying anyway")
		} else if seen {
			return outcomeDuplicate, nil
		} else {
			claimed = true
		}
	}

	out, err := i.dispatch(ctx, ev)
	if out == outcomeFailed && claimed {
		if rerr := i.Deduper.Release(ctx, ev.SGEventID); rerr != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(rerr).Str("sg_event_id", ev.SGEventID).Msg("failed to release event claim")
		}
	}
	return out, err
}

func (i *EventIngestor) dispatch(ctx context.Context, ev model.DeliveryEvent) (outcome, error) {
	ts := ev.Time()
	var (
		applied bool
		err     error
	)

	switch ev.Event {
	case model.EventDelivered:
		applied, err = i.stamp(ctx, ev, model.MilestoneDelivered, ts)
	case model.EventOpen:
		applied, err = i.stamp(ctx, ev, model.MilestoneOpened, ts)
	case model.EventClick:
		applied, err = i.stamp(ctx, ev, model.MilestoneClicked, ts)

	case model.EventBounce, model.EventDropped:
		applied, err = i.bounce(ctx, ev, ts)

	case model.EventSpamReport:
		applied, err = i.ContactRepo.RevokeConsent(ctx, ev.Email, &ts, model.JSONMap{"unsubscribeReason": "spam_report"})
	case model.EventUnsubscribe, model.EventGroupUnsubscribe:
		applied, err = i.ContactRepo.RevokeConsent(ctx, ev.Email, &ts, nil)
	case model.EventGroupResubscribe:
		applied, err = i.ContactRepo.RestoreConsent(ctx, ev.Email)

	default:
		return outcomeSkipped, nil
	}

	if err != nil {
		return outcomeFailed, err
	}
	if !applied {
		return outcomeSkipped, nil
	}
	return outcomeApplied, nil
}

func (i *EventIngestor) stamp(ctx context.Context, ev model.DeliveryEvent, m model.RecipientMilestone, ts time.Time) (bool, error) {
	id, ok := ev.RecipientRef()
	if !ok {
		return false, nil
	}
	return i.RecipientRepo.SetMilestone(ctx, id, m, ts)
}

// bounce records the bounce on the recipient row; only a hard bounce
// revokes the contact's consent.
func (i *EventIngestor) bounce(ctx context.Context, ev model.DeliveryEvent, ts time.Time) (bool, error) {
	applied := false
	if id, ok := ev.RecipientRef(); ok {
		bounceType := ev.Type
		if bounceType == "" {
			bounceType = ev.Event
		}
		found, err := i.RecipientRepo.RecordBounce(ctx, id, ts, bounceType)
		if err != nil {
			return false, err
		}
		applied = found
	}

	if ev.IsHardBounce() {
		found, err := i.ContactRepo.RevokeConsent(ctx, ev.Email, nil, model.JSONMap{
			"bounceReason": ev.Reason,
			"bouncedAt":    ts.Format(time.RFC3339),
		})
		if err != nil {
			return applied, err
		}
		applied = applied || found
	}
	return applied, nil
}
