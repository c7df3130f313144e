package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/unclebandit/mailleopard-backend/internal/config"
)

// New builds the configured transport, wrapped in a rate limiter when
// MaxPerSecond is positive.
func New(ctx context.Context, cfg config.TransportConfig, log zerolog.Logger) (Transport, error) {
	var (
		t   Transport
		err error
	)

	switch cfg.Provider {
	case "", "log":
		t = NewLog(log)
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			return nil, errors.New("TRANSPORT_SENDGRID_API_KEY is required for the sendgrid transport")
		}
		t = NewSendGrid(cfg.SendGridAPIKey, cfg.SendGridEndpoint, nil)
	case "ses":
		t, err = NewSES(ctx, cfg.SESRegion, cfg.SESAccessKey, cfg.SESSecretKey)
		if err != nil {
			return nil, err
		}
	case "smtp":
		if cfg.SMTPAddr == "" {
			return nil, errors.New("TRANSPORT_SMTP_ADDR is required for the smtp transport")
		}
		t = NewSMTP(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword)
	default:
		return nil, fmt.Errorf("unknown transport provider %q", cfg.Provider)
	}

	if cfg.MaxPerSecond > 0 {
		t = NewRateLimited(t, cfg.MaxPerSecond)
	}

	log.Info().Str("transport", t.Name()).Float64("max_per_second", cfg.MaxPerSecond).Msg("email transport ready")
	return t, nil
}
