package service_test

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailleopard-backend/internal/cache"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

func newIngestor(db *fakeDB) *service.EventIngestor {
	return &service.EventIngestor{
		ContactRepo:   &fakeContactRepo{db: db},
		RecipientRepo: &fakeRecipientRepo{db: db},
		Deduper:       cache.NewMemoryDeduper(time.Hour),
	}
}

func sentRecipient(t *testing.T, db *fakeDB, email string) (*model.Contact, model.CampaignRecipient) {
	t.Helper()
	contact := db.addContact(email, true, false)
	c := db.addCampaign(model.StatusSent, nil)
	rec, err := (&fakeRecipientRepo{db: db}).GetOrCreate(context.Background(), c.ID, contact.ID)
	require.NoError(t, err)
	return contact, *rec
}

const eventTS = int64(1774000000)

func TestIngest_Milestones(t *testing.T) {
	db := newFakeDB()
	_, rec := sentRecipient(t, db, "a@x.com")
	ref := strconv.Itoa(rec.ID)

	summary := newIngestor(db).Ingest(context.Background(), []model.DeliveryEvent{
		{Email: "A@X.com", Event: model.EventDelivered, Timestamp: eventTS, RecipientID: model.EventRef(ref), SGEventID: "e1"},
		{Email: "a@x.com", Event: model.EventOpen, Timestamp: eventTS + 10, RecipientID: model.EventRef(ref), SGEventID: "e2"},
		{Email: "a@x.com", Event: model.EventClick, Timestamp: eventTS + 20, RecipientID: model.EventRef(ref), SGEventID: "e3"},
		{Email: "a@x.com", Event: model.EventOpen, Timestamp: eventTS + 30, SGEventID: "e4"},
	})

	assert.Equal(t, service.IngestSummary{Received: 4, Applied: 3, Skipped: 1}, summary)
	got := db.recipients[rec.ID]
	require.NotNil(t, got.DeliveredAt)
	require.NotNil(t, got.OpenedAt)
	require.NotNil(t, got.ClickedAt)
	assert.Equal(t, time.Unix(eventTS+10, 0).UTC(), *got.OpenedAt)
}

func TestIngest_HardBounceRevokesConsent(t *testing.T) {
	db := newFakeDB()
	contact, rec := sentRecipient(t, db, "bounce@x.com")

	summary := newIngestor(db).Ingest(context.Background(), []model.DeliveryEvent{{
		Email: "bounce@x.com", Event: model.EventBounce, Type: "bounce", Reason: "550 mailbox unavailable",
		Timestamp: eventTS, RecipientID: model.EventRef(strconv.Itoa(rec.ID)),
	}})
	assert.Equal(t, 1, summary.Applied)

	after := db.contact(contact.ID)
	assert.False(t, after.Solicitation)
	assert.Nil(t, after.UnsubscribedAt)
	assert.Equal(t, "550 mailbox unavailable", after.Metadata["bounceReason"])
	assert.Equal(t, time.Unix(eventTS, 0).UTC().Format(time.RFC3339), after.Metadata["bouncedAt"])
	assert.Equal(t, "bounce", *db.recipients[rec.ID].BounceType)
}

func TestIngest_SoftBounceKeepsConsent(t *testing.T) {
	db := newFakeDB()
	contact, rec := sentRecipient(t, db, "soft@x.com")

	summary := newIngestor(db).Ingest(context.Background(), []model.DeliveryEvent{
		{Email: "soft@x.com", Event: model.EventBounce, Type: "blocked", Timestamp: eventTS, RecipientID: model.EventRef(strconv.Itoa(rec.ID))},
		{Email: "soft@x.com", Event: model.EventDropped, Timestamp: eventTS, RecipientID: model.EventRef(strconv.Itoa(rec.ID))},
	})
	assert.Equal(t, 2, summary.Applied)
	assert.True(t, db.contact(contact.ID).Solicitation)
	assert.Equal(t, "dropped", *db.recipients[rec.ID].BounceType)
}

func TestIngest_ConsentEvents(t *testing.T) {
	db := newFakeDB()
	spam := db.addContact("spam@x.com", true, false)
	unsub := db.addContact("unsub@x.com", true, false)
	back := db.addContact("back@x.com", false, true)

	summary := newIngestor(db).Ingest(context.Background(), []model.DeliveryEvent{
		{Email: "spam@x.com", Event: model.EventSpamReport, Timestamp: eventTS},
		{Email: "unsub@x.com", Event: model.EventGroupUnsubscribe, Timestamp: eventTS},
		{Email: "back@x.com", Event: model.EventGroupResubscribe, Timestamp: eventTS},
	})
	assert.Equal(t, 3, summary.Applied)

	s := db.contact(spam.ID)
	assert.False(t, s.Solicitation)
	require.NotNil(t, s.UnsubscribedAt)
	assert.Equal(t, "spam_report", s.Metadata["unsubscribeReason"])

	u := db.contact(unsub.ID)
	assert.False(t, u.Solicitation)
	assert.Equal(t, time.Unix(eventTS, 0).UTC(), *u.UnsubscribedAt)

	b := db.contact(back.ID)
	assert.True(t, b.CanReceiveMarketing())
}

func TestIngest_DuplicatesAndJunk(t *testing.T) {
	db := newFakeDB()
	_, rec := sentRecipient(t, db, "a@x.com")
	ref := strconv.Itoa(rec.ID)
	ingestor := newIngestor(db)

	first := ingestor.Ingest(context.Background(), []model.DeliveryEvent{
		{Email: "a@x.com", Event: model.EventOpen, Timestamp: eventTS, RecipientID: model.EventRef(ref), SGEventID: "dup"},
		{Email: "a@x.com", Event: model.EventOpen, Timestamp: eventTS + 5, RecipientID: model.EventRef(ref), SGEventID: "dup"},
		{Email: "", Event: model.EventOpen, RecipientID: model.EventRef(ref)},
		{Email: "a@x.com", Event: "processed", Timestamp: eventTS},
		{Email: "a@x.com", Event: model.EventClick, RecipientID: "not-a-number"},
		{Email: "nobody@x.com", Event: model.EventUnsubscribe, Timestamp: eventTS},
	})
	assert.Equal(t, service.IngestSummary{Received: 6, Applied: 1, Duplicate: 1, Skipped: 4}, first)
	assert.Equal(t, time.Unix(eventTS, 0).UTC(), *db.recipients[rec.ID].OpenedAt)

	again := ingestor.Ingest(context.Background(), []model.DeliveryEvent{
		{Email: "a@x.com", Event: model.EventOpen, RecipientID: model.EventRef(ref), SGEventID: "dup"},
	})
	assert.Equal(t, 1, again.Duplicate)
}

func TestIngest_FailedApplyIsNotRememberedAsDuplicate(t *testing.T) {
	db := newFakeDB()
	contact := db.addContact("spam@x.com", true, false)
	db.revokeFlakes = 1
	ingestor := newIngestor(db)
	ev := model.DeliveryEvent{Email: "spam@x.com", Event: model.EventSpamReport, Timestamp: eventTS, SGEventID: "sr-1"}

	first := ingestor.Ingest(context.Background(), []model.DeliveryEvent{ev})
	assert.Equal(t, service.IngestSummary{Received: 1, Failed: 1}, first)
	assert.True(t, db.contacts[contact.ID].Solicitation)

	redelivered := ingestor.Ingest(context.Background(), []model.DeliveryEvent{ev})
	assert.Equal(t, service.IngestSummary{Received: 1, Applied: 1}, redelivered)
	assert.False(t, db.contacts[contact.ID].Solicitation)

	again := ingestor.Ingest(context.Background(), []model.DeliveryEvent{ev})
	assert.Equal(t, 1, again.Duplicate)
}

func TestIngestRaw_MalformedElementsAreCounted(t *testing.T) {
	db := newFakeDB()
	_, rec := sentRecipient(t, db, "a@x.com")

	raw := []json.RawMessage{
		json.RawMessage(`{"email":"a@x.com","event":"open","timestamp":1774000000,"recipient_id":` + strconv.Itoa(rec.ID) + `}`),
		json.RawMessage(`{"email":"a@x.com","event":"click","timestamp":"soon"}`),
		json.RawMessage(`17`),
	}
	summary := newIngestor(db).IngestRaw(context.Background(), raw)

	assert.Equal(t, service.IngestSummary{Received: 3, Applied: 1, Failed: 2}, summary)
	require.NotNil(t, db.recipients[rec.ID].OpenedAt)
	assert.Nil(t, db.recipients[rec.ID].ClickedAt)
}

func TestIngest_WithoutDeduper(t *testing.T) {
	db := newFakeDB()
	_, rec := sentRecipient(t, db, "a@x.com")
	ingestor := newIngestor(db)
	ingestor.Deduper = nil

	summary := ingestor.Ingest(context.Background(), []model.DeliveryEvent{
		{Email: "a@x.com", Event: model.EventOpen, Timestamp: eventTS, RecipientID: model.EventRef(strconv.Itoa(rec.ID)), SGEventID: "x"},
		{Email: "a@x.com", Event: model.EventOpen, Timestamp: eventTS, RecipientID: model.EventRef(strconv.Itoa(rec.ID)), SGEventID: "x"},
	})
	assert.Equal(t, 2, summary.Applied)
}
