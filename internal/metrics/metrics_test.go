package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordEmail(t *testing.T) {
	sent := testutil.ToFloat64(CampaignEmailsTotal.WithLabelValues("sent"))
	failed := testutil.ToFloat64(CampaignEmailsTotal.WithLabelValues("failed"))

	RecordEmail(true)
	RecordEmail(true)
	RecordEmail(false)

	assert.Equal(t, sent+2, testutil.ToFloat64(CampaignEmailsTotal.WithLabelValues("sent")))
	assert.Equal(t, failed+1, testutil.ToFloat64(CampaignEmailsTotal.WithLabelValues("failed")))
}

func TestRecordTransitionAndEvent(t *testing.T) {
	before := testutil.ToFloat64(CampaignTransitionsTotal.WithLabelValues("SENT"))
	RecordTransition("SENT")
	assert.Equal(t, before+1, testutil.ToFloat64(CampaignTransitionsTotal.WithLabelValues("SENT")))

	RecordDeliveryEvent("bounce", "applied")
	assert.Equal(t, float64(1), testutil.ToFloat64(DeliveryEventsTotal.WithLabelValues("bounce", "applied")))
}
