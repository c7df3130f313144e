package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

// TrackingTopic carries model.TrackingHit payloads from the open and click endpoints.
const TrackingTopic = "tracking_events"

// TrackingHandler stamps the hit's milestone on the recipient row. It accepts
// a model.TrackingHit from the in-memory queue or its JSON from AMQP. A
// missing recipient is not retried.
func TrackingHandler(recipients repository.CampaignRecipientRepositoryInterface, log zerolog.Logger) Handler {
	return func(payload any) error {
		var hit model.TrackingHit
		switch p := payload.(type) {
		case model.TrackingHit:
			hit = p
		case []byte:
			if err := json.Unmarshal(p, &hit); err != nil {
				log.Warn().Err(err).Msg("dropping malformed tracking hit")
				return nil
			}
		default:
			log.Warn().Str("type", fmt.Sprintf("%T", payload)).Msg("invalid tracking payload type")
			return nil
		}

		found, err := recipients.SetMilestone(context.Background(), hit.RecipientID, hit.Milestone, hit.At)
		if err != nil {
			return err
		}
		if !found {
			log.Debug().Int("recipient_id", hit.RecipientID).Str("milestone", string(hit.Milestone)).
				Msg("tracking hit for unknown recipient")
		}
		return nil
	}
}

func StartTrackingSubscriber(q Queue, recipients repository.CampaignRecipientRepositoryInterface, log zerolog.Logger) error {
	if err := q.Subscribe(TrackingTopic, TrackingHandler(recipients, log)); err != nil {
		return fmt.Errorf("failed to start subscriber for %s: %w", TrackingTopic, err)
	}
	return nil
}
