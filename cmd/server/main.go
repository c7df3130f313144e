// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/unclebandit/mailleopard-backend/internal/cache"
	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/controller"
	"github.com/unclebandit/mailleopard-backend/internal/db"
	"github.com/unclebandit/mailleopard-backend/internal/handler"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/queue"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/service"
	"github.com/unclebandit/mailleopard-backend/internal/transport"
)

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
	})
	if envErr != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}

	if err := run(logger.WithLogger(ctx, log), cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	conn, err := db.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}
	recipientRepo := &repository.CampaignRecipientRepository{DB: conn}
	tagRepo := &repository.TagRepository{DB: conn}

	tr, err := transport.New(ctx, cfg.Transport, log)
	if err != nil {
		return err
	}

	var deduper cache.Deduper = cache.NewMemoryDeduper(cfg.Redis.DedupeTTL)
	if cfg.Redis.URL != "" {
		rd, err := cache.NewRedisDeduperFromURL(ctx, cfg.Redis.URL, cfg.Redis.DedupeTTL)
		if err != nil {
			return err
		}
		defer rd.Close()
		deduper = rd
	}

	// With AMQP the worker consumes tracking hits; otherwise they are applied in-process.
	var q queue.Queue
	var local *queue.InMemoryQueue
	if cfg.Queue.AMQPURL != "" {
		aq, err := queue.NewAMQPQueue(cfg.Queue.AMQPURL, log)
		if err != nil {
			return err
		}
		defer aq.Close()
		q = aq
	} else {
		local = queue.NewInMemoryQueue(log)
		if err := queue.StartTrackingSubscriber(local, recipientRepo, log); err != nil {
			return err
		}
		q = local
	}

	templates, err := service.NewTemplateService(cfg.App.BrandName, cfg.App.PhysicalAddress)
	if err != nil {
		return err
	}
	tokens := service.NewUnsubscribeTokens(cfg.App.UnsubscribeSecret)

	pipeline := &service.SendPipeline{
		RecipientRepo: recipientRepo,
		Transport:     tr,
		Templates:     templates,
		Tokens:        tokens,
		AppURL:        cfg.App.URL,
		BatchSize:     cfg.Send.BatchSize,
		BatchPause:    cfg.Send.BatchPause,
	}

	campaignService := &service.CampaignService{
		CampaignRepo:  campaignRepo,
		ContactRepo:   contactRepo,
		RecipientRepo: recipientRepo,
		Resolver:      &service.Resolver{ContactRepo: contactRepo},
		Pipeline:      pipeline,
		Templates:     templates,
		Tokens:        tokens,
		Transport:     tr,
		AppURL:        cfg.App.URL,
		DefaultFrom:   transport.Address{Email: cfg.App.DefaultFromEmail, Name: cfg.App.DefaultFromName},
	}

	r := newRouter(routes{
		log:         log,
		corsOrigins: cfg.App.CORSOrigins,
		db:          conn,
		campaigns:   &controller.CampaignController{CampaignService: campaignService},
		contacts: &controller.ContactController{ContactService: &service.ContactService{
			ContactRepo: contactRepo,
			TagRepo:     tagRepo,
		}},
		tracking: &handler.TrackingHandler{Queue: q},
		unsubscribe: &handler.UnsubscribeHandler{Service: &service.UnsubscribeService{
			ContactRepo: contactRepo,
			Tokens:      tokens,
		}},
		webhooks: &handler.WebhookHandler{Ingestor: &service.EventIngestor{
			ContactRepo:   contactRepo,
			RecipientRepo: recipientRepo,
			Deduper:       deduper,
		}},
		cron: &handler.CronHandler{
			Scheduler: &service.Scheduler{
				CampaignRepo:  campaignRepo,
				RecipientRepo: recipientRepo,
				Pipeline:      pipeline,
			},
			Secret: cfg.App.CronSecret,
		},
	})

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("transport", tr.Name()).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if local != nil {
		local.Wait()
	}
	return nil
}
