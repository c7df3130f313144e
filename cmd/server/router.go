package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/unclebandit/mailleopard-backend/internal/controller"
	"github.com/unclebandit/mailleopard-backend/internal/handler"
)

type routes struct {
	log         zerolog.Logger
	corsOrigins []string
	db          handler.Pinger

	campaigns   *controller.CampaignController
	contacts    *controller.ContactController
	tracking    *handler.TrackingHandler
	unsubscribe *handler.UnsubscribeHandler
	webhooks    *handler.WebhookHandler
	cron        *handler.CronHandler
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(rt.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.Healthz)
	r.Get("/readyz", handler.Readyz(rt.db))
	r.Handle("/metrics", promhttp.Handler())

	// Public endpoints, reached from emails and the ESP
	r.Get("/track/open/{recipientID}", rt.tracking.Open)
	r.Get("/track/click/{recipientID}", rt.tracking.Click)
	r.Get("/unsubscribe/{token}", rt.unsubscribe.Status)
	r.Post("/unsubscribe/{token}", rt.unsubscribe.Confirm)
	r.Get("/webhooks/sendgrid", rt.webhooks.Verify)
	r.Post("/webhooks/sendgrid", rt.webhooks.SendGrid)
	r.Get("/cron/send-scheduled", rt.cron.SendScheduled)

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", handler.RequestIDHeader},
			ExposedHeaders:   []string{handler.RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))

		// Campaign routes
		r.Post("/campaigns", rt.campaigns.CreateCampaign)
		r.Get("/campaigns", rt.campaigns.ListCampaigns)
		r.Get("/campaigns/{id}", rt.campaigns.GetCampaignDetails)
		r.Post("/campaigns/{id}/send", rt.campaigns.SendCampaign)
		r.Post("/campaigns/{id}/cancel", rt.campaigns.CancelCampaign)
		r.Post("/campaigns/{id}/duplicate", rt.campaigns.DuplicateCampaign)
		r.Post("/campaigns/{id}/test", rt.campaigns.SendTestEmail)
		r.Post("/campaigns/{id}/preview", rt.campaigns.PersonalizedPreview)

		// Contact routes
		r.Get("/contacts", rt.contacts.ListContacts)
		r.Post("/contacts", rt.contacts.UpsertContact)
		r.Get("/contacts/search", rt.contacts.SearchContacts)
		r.Post("/contacts/{id}/tags", rt.contacts.AddTag)
		r.Get("/tags", rt.contacts.ListTags)
	})

	return r
}
