// cmd/worker/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/db"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/queue"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/service"
	"github.com/unclebandit/mailleopard-backend/internal/transport"
)

// The worker runs the scheduled-send loop and, when AMQP is configured,
// consumes the tracking hits published by the server.
func main() {
	envErr := godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.NewWithOptions(logger.Options{
		Level:    cfg.App.LogLevel,
		Output:   cfg.App.LogOutput,
		FilePath: cfg.App.LogFile,
	}).With().Str("component", "worker").Logger()
	if envErr != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}

	if err := run(logger.WithLogger(ctx, log), cfg, log); err != nil {
		log.Fatal().Err(err).Msg("worker stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	conn, err := db.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	recipientRepo := &repository.CampaignRecipientRepository{DB: conn}

	if cfg.Queue.AMQPURL != "" {
		q, err := queue.NewAMQPQueue(cfg.Queue.AMQPURL, log)
		if err != nil {
			return err
		}
		defer q.Close()
		if err := queue.StartTrackingSubscriber(q, recipientRepo, log); err != nil {
			return err
		}
		log.Info().Str("topic", queue.TrackingTopic).Msg("consuming tracking hits")
	}

	tr, err := transport.New(ctx, cfg.Transport, log)
	if err != nil {
		return err
	}
	templates, err := service.NewTemplateService(cfg.App.BrandName, cfg.App.PhysicalAddress)
	if err != nil {
		return err
	}

	scheduler := &service.Scheduler{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
		Pipeline: &service.SendPipeline{
			RecipientRepo: recipientRepo,
			Transport:     tr,
			Templates:     templates,
			Tokens:        service.NewUnsubscribeTokens(cfg.App.UnsubscribeSecret),
			AppURL:        cfg.App.URL,
			BatchSize:     cfg.Send.BatchSize,
			BatchPause:    cfg.Send.BatchPause,
		},
		Interval: cfg.Send.SchedulerInterval,
	}

	scheduler.Run(ctx)
	return nil
}
