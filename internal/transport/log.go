package transport

import (
	"context"

	"github.com/rs/zerolog"
)

// Log is the development transport: it accepts every message and logs it.
type Log struct {
	log zerolog.Logger
}

func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log.With().Str("component", "transport.log").Logger()}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Send(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	ev := l.log.Info().
		Str("to", msg.To).
		Str("from", msg.From.String()).
		Str("subject", msg.Subject).
		Int("html_bytes", len(msg.HTML))
	for k, v := range msg.CustomArgs {
		ev = ev.Str(k, v)
	}
	ev.Msg("email accepted")
	return nil
}
