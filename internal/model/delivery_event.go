package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Delivery event kinds reported by the ESP event webhook.
const (
	EventDelivered        = "delivered"
	EventOpen             = "open"
	EventClick            = "click"
	EventBounce           = "bounce"
	EventDropped          = "dropped"
	EventSpamReport       = "spamreport"
	EventUnsubscribe      = "unsubscribe"
	EventGroupUnsubscribe = "group_unsubscribe"
	EventGroupResubscribe = "group_resubscribe"
)

// EventRef is a custom arg echoed back by the ESP. It is sent as a string but
// some senders and replay tools deliver it as a JSON number.
type EventRef string

func (r *EventRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = EventRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("event ref: want string or number, got %s", b)
	}
	*r = EventRef(n.String())
	return nil
}

// DeliveryEvent is one element of the ESP event webhook payload. Custom args
// set at send time (campaign_id, recipient_id) are echoed back.
type DeliveryEvent struct {
	Email       string   `json:"email"`
	Timestamp   int64    `json:"timestamp"`
	Event       string   `json:"event"`
	SGEventID   string   `json:"sg_event_id,omitempty"`
	SGMessageID string   `json:"sg_message_id,omitempty"`
	CampaignID  EventRef `json:"campaign_id,omitempty"`
	RecipientID EventRef `json:"recipient_id,omitempty"`
	Type        string   `json:"type,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	URL         string   `json:"url,omitempty"`
}

func (e DeliveryEvent) Time() time.Time {
	return time.Unix(e.Timestamp, 0).UTC()
}

// RecipientRef returns the correlated recipient row id, if the event carries a usable one.
func (e DeliveryEvent) RecipientRef() (int, bool) {
	if e.RecipientID == "" {
		return 0, false
	}
	id, err := strconv.Atoi(string(e.RecipientID))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// IsHardBounce distinguishes a permanent bounce from drops, blocks and deferrals.
func (e DeliveryEvent) IsHardBounce() bool {
	return e.Type == "bounce"
}
