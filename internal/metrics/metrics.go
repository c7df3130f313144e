package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Send pipeline metrics
var (
	CampaignEmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_emails_total",
			Help: "Total number of campaign emails handed to the transport",
		},
		[]string{"result"}, // sent, failed
	)

	CampaignSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaign_send_duration_seconds",
			Help:    "Duration of a full campaign pipeline run",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"trigger"}, // immediate, scheduled
	)

	CampaignTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_transitions_total",
			Help: "Campaign status transitions by target status",
		},
		[]string{"to"},
	)
)

// Event and tracking metrics
var (
	DeliveryEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_events_total",
			Help: "ESP delivery events processed",
		},
		[]string{"event", "outcome"}, // outcome: applied, skipped, failed, duplicate
	)

	TrackingHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_hits_total",
			Help: "Open pixel and click redirect hits",
		},
		[]string{"kind"},
	)
)

// API metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

func RecordEmail(success bool) {
	if success {
		CampaignEmailsTotal.WithLabelValues("sent").Inc()
		return
	}
	CampaignEmailsTotal.WithLabelValues("failed").Inc()
}

func RecordTransition(to string) {
	CampaignTransitionsTotal.WithLabelValues(to).Inc()
}

func RecordDeliveryEvent(event, outcome string) {
	DeliveryEventsTotal.WithLabelValues(event, outcome).Inc()
}
