package service_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/transport"
)

// fakeDB is an in-memory stand-in for the Postgres tables, shared by the
// fake repositories below.
type fakeDB struct {
	mu         sync.Mutex
	campaigns  map[int]*model.Campaign
	contacts   map[int]*model.Contact
	tags       map[int]*model.Tag
	contactTag map[int]map[int]bool
	recipients map[int]*model.CampaignRecipient
	nextID     int

	// failures injected by tests
	markSentErr     error
	markSentFlakes  int
	revokeFlakes    int
	listPendingErr  error
	transitionRaces map[int]bool
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		campaigns:       map[int]*model.Campaign{},
		contacts:        map[int]*model.Contact{},
		tags:            map[int]*model.Tag{},
		contactTag:      map[int]map[int]bool{},
		recipients:      map[int]*model.CampaignRecipient{},
		nextID:          100,
		transitionRaces: map[int]bool{},
	}
}

func (db *fakeDB) id() int {
	db.nextID++
	return db.nextID
}

func (db *fakeDB) addContact(email string, solicitation bool, unsubscribed bool, tagIDs ...int) *model.Contact {
	db.mu.Lock()
	defer db.mu.Unlock()
	c := &model.Contact{ID: db.id(), Email: email, Solicitation: solicitation, Metadata: model.JSONMap{}}
	if unsubscribed {
		t := time.Now().Add(-time.Hour)
		c.UnsubscribedAt = &t
	}
	db.contacts[c.ID] = c
	db.contactTag[c.ID] = map[int]bool{}
	for _, t := range tagIDs {
		db.contactTag[c.ID][t] = true
	}
	return c
}

func (db *fakeDB) addCampaign(status model.CampaignStatus, scheduledAt *time.Time) *model.Campaign {
	db.mu.Lock()
	defer db.mu.Unlock()
	c := &model.Campaign{
		ID:          db.id(),
		Name:        "Spring season",
		Subject:     "Our spring season",
		FromName:    "The Company Theatre",
		FromEmail:   "hello@theatre.org",
		Content:     `<p>Hi {{firstName}}, <a href="https://theatre.org/season">see the season</a></p>`,
		Status:      status,
		ScheduledAt: scheduledAt,
		CreatedAt:   time.Now(),
	}
	db.campaigns[c.ID] = c
	return c
}

func (db *fakeDB) campaign(id int) model.Campaign {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.campaigns[id]
}

func (db *fakeDB) contact(id int) model.Contact {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.contacts[id]
}

func (db *fakeDB) recipientsOf(campaignID int) []model.CampaignRecipient {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []model.CampaignRecipient
	for _, r := range db.recipients {
		if r.CampaignID == campaignID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (db *fakeDB) contactByEmail(email string) *model.Contact {
	for _, c := range db.contacts {
		if c.Email == email {
			return c
		}
	}
	return nil
}

// ====================== campaigns ======================

type fakeCampaignRepo struct{ db *fakeDB }

func (r *fakeCampaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c.ID = r.db.id()
	c.CreatedAt = time.Now()
	cp := *c
	r.db.campaigns[c.ID] = &cp
	return nil
}

func (r *fakeCampaignRepo) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCampaignRepo) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var all []*model.Campaign
	for _, c := range r.db.campaigns {
		if status == "" || string(c.Status) == status {
			cp := *c
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *fakeCampaignRepo) cas(id int, action string, from, to model.CampaignStatus) (*model.Campaign, error) {
	c, ok := r.db.campaigns[id]
	if !ok || c.Status != from || r.db.transitionRaces[id] {
		return nil, appErrors.NewInvalidTransition(id, action, string(from), "")
	}
	c.Status = to
	return c, nil
}

func (r *fakeCampaignRepo) TransitionStatus(ctx context.Context, id int, from, to model.CampaignStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	_, err := r.cas(id, "move to "+string(to), from, to)
	return err
}

func (r *fakeCampaignRepo) MarkSent(ctx context.Context, id int, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.markSentErr != nil {
		return r.db.markSentErr
	}
	if r.db.markSentFlakes > 0 {
		r.db.markSentFlakes--
		return errors.New("connection reset by peer")
	}
	c, err := r.cas(id, "complete", model.StatusSending, model.StatusSent)
	if err != nil {
		return err
	}
	c.SentAt = &at
	return nil
}

func (r *fakeCampaignRepo) Schedule(ctx context.Context, id int, at time.Time, contactIDs []int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, err := r.cas(id, "schedule", model.StatusDraft, model.StatusScheduled)
	if err != nil {
		return err
	}
	c.ScheduledAt = &at
	for _, cid := range contactIDs {
		if r.db.findRecipient(id, cid) == nil {
			rid := r.db.id()
			r.db.recipients[rid] = &model.CampaignRecipient{ID: rid, CampaignID: id, ContactID: cid, CreatedAt: time.Now()}
		}
	}
	return nil
}

func (r *fakeCampaignRepo) Cancel(ctx context.Context, id int) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, err := r.cas(id, "cancel", model.StatusScheduled, model.StatusDraft)
	if err != nil {
		return 0, err
	}
	c.ScheduledAt = nil
	var removed int64
	for rid, rec := range r.db.recipients {
		if rec.CampaignID == id {
			delete(r.db.recipients, rid)
			removed++
		}
	}
	return removed, nil
}

func (r *fakeCampaignRepo) ListDue(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var due []*model.Campaign
	for _, c := range r.db.campaigns {
		if c.Status == model.StatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			cp := *c
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

// ====================== recipients ======================

type fakeRecipientRepo struct{ db *fakeDB }

func (db *fakeDB) findRecipient(campaignID, contactID int) *model.CampaignRecipient {
	for _, rec := range db.recipients {
		if rec.CampaignID == campaignID && rec.ContactID == contactID {
			return rec
		}
	}
	return nil
}

func (r *fakeRecipientRepo) GetOrCreate(ctx context.Context, campaignID, contactID int) (*model.CampaignRecipient, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rec := r.db.findRecipient(campaignID, contactID)
	if rec == nil {
		rid := r.db.id()
		rec = &model.CampaignRecipient{ID: rid, CampaignID: campaignID, ContactID: contactID, CreatedAt: time.Now()}
		r.db.recipients[rid] = rec
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeRecipientRepo) MarkSent(ctx context.Context, id int, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if rec, ok := r.db.recipients[id]; ok {
		rec.SentAt = &at
	}
	return nil
}

func (r *fakeRecipientRepo) ListPendingContacts(ctx context.Context, campaignID int) ([]model.Contact, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.listPendingErr != nil {
		return nil, r.db.listPendingErr
	}
	var out []model.Contact
	var recs []*model.CampaignRecipient
	for _, rec := range r.db.recipients {
		if rec.CampaignID == campaignID && rec.SentAt == nil {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	for _, rec := range recs {
		c := r.db.contacts[rec.ContactID]
		if c.CanReceiveMarketing() {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeRecipientRepo) SetMilestone(ctx context.Context, id int, m model.RecipientMilestone, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rec, ok := r.db.recipients[id]
	if !ok {
		return false, nil
	}
	switch m {
	case model.MilestoneDelivered:
		rec.DeliveredAt = &at
	case model.MilestoneOpened:
		rec.OpenedAt = &at
	case model.MilestoneClicked:
		rec.ClickedAt = &at
	default:
		return false, errors.New("unknown milestone")
	}
	return true, nil
}

func (r *fakeRecipientRepo) RecordBounce(ctx context.Context, id int, at time.Time, bounceType string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rec, ok := r.db.recipients[id]
	if !ok {
		return false, nil
	}
	rec.BouncedAt = &at
	rec.BounceType = &bounceType
	return true, nil
}

func (r *fakeRecipientRepo) Stats(ctx context.Context, campaignID int) (*model.CampaignStats, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var s model.CampaignStats
	for _, rec := range r.db.recipients {
		if rec.CampaignID != campaignID {
			continue
		}
		s.Total++
		if rec.SentAt != nil {
			s.Sent++
		}
		if rec.DeliveredAt != nil {
			s.Delivered++
		}
		if rec.OpenedAt != nil {
			s.Opened++
		}
		if rec.ClickedAt != nil {
			s.Clicked++
		}
		if rec.BouncedAt != nil {
			s.Bounced++
		}
	}
	return &s, nil
}

// ====================== contacts & tags ======================

type fakeContactRepo struct{ db *fakeDB }

func (r *fakeContactRepo) ListEligible(ctx context.Context, tagIDs []int) ([]model.Contact, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Contact
	for _, c := range r.db.contacts {
		if !c.Solicitation || c.UnsubscribedAt != nil {
			continue
		}
		if len(tagIDs) > 0 {
			match := false
			for _, t := range tagIDs {
				if r.db.contactTag[c.ID][t] {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeContactRepo) GetByID(ctx context.Context, id int) (*model.Contact, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.contacts[id]
	if !ok {
		return nil, appErrors.NewContactNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeContactRepo) List(ctx context.Context, offset, limit int) ([]model.Contact, int, error) {
	all, _ := r.ListEligible(ctx, nil)
	return all, len(all), nil
}

func (r *fakeContactRepo) Search(ctx context.Context, email, name string, limit int) ([]model.Contact, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Contact
	for _, c := range r.db.contacts {
		if (email != "" && c.Email == model.NormalizeEmail(email)) ||
			(email == "" && strings.Contains(strings.ToLower(c.Full()), strings.ToLower(name))) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeContactRepo) Upsert(ctx context.Context, in *model.ContactInput) (*model.Contact, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c := r.db.contactByEmail(model.NormalizeEmail(in.Email))
	if c == nil {
		c = &model.Contact{ID: r.db.id(), Email: model.NormalizeEmail(in.Email), Solicitation: true, Metadata: model.JSONMap{}}
		r.db.contacts[c.ID] = c
		r.db.contactTag[c.ID] = map[int]bool{}
	}
	set := func(dst **string, src *string) {
		if src != nil {
			*dst = src
		}
	}
	set(&c.FirstName, in.FirstName)
	set(&c.LastName, in.LastName)
	set(&c.FullName, in.FullName)
	set(&c.Title, in.Title)
	set(&c.Phone, in.Phone)
	set(&c.Location, in.Location)
	if in.Solicitation != nil {
		c.Solicitation = *in.Solicitation
	}
	if in.DonationTotal != nil {
		c.DonationTotal = *in.DonationTotal
	}
	for k, v := range in.Metadata {
		c.Metadata[k] = v
	}
	cp := *c
	return &cp, nil
}

func (r *fakeContactRepo) AddTag(ctx context.Context, contactID, tagID int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.contactTag[contactID][tagID] = true
	return nil
}

func (r *fakeContactRepo) ListTags(ctx context.Context, contactID int) ([]model.Tag, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Tag
	for tid := range r.db.contactTag[contactID] {
		out = append(out, *r.db.tags[tid])
	}
	return out, nil
}

func (r *fakeContactRepo) RevokeConsent(ctx context.Context, email string, unsubscribedAt *time.Time, metadata model.JSONMap) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.revokeFlakes > 0 {
		r.db.revokeFlakes--
		return false, errors.New("connection reset by peer")
	}
	c := r.db.contactByEmail(model.NormalizeEmail(email))
	if c == nil {
		return false, nil
	}
	c.Solicitation = false
	if unsubscribedAt != nil {
		c.UnsubscribedAt = unsubscribedAt
	}
	for k, v := range metadata {
		c.Metadata[k] = v
	}
	return true, nil
}

func (r *fakeContactRepo) RestoreConsent(ctx context.Context, email string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c := r.db.contactByEmail(model.NormalizeEmail(email))
	if c == nil {
		return false, nil
	}
	c.Solicitation = true
	c.UnsubscribedAt = nil
	return true, nil
}

func (r *fakeContactRepo) Unsubscribe(ctx context.Context, id int, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.contacts[id]
	if !ok {
		return appErrors.NewContactNotFound(id)
	}
	c.UnsubscribedAt = &at
	return nil
}

type fakeTagRepo struct{ db *fakeDB }

func (r *fakeTagRepo) FindOrCreate(ctx context.Context, name string) (*model.Tag, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.tags {
		if t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	t := &model.Tag{ID: r.db.id(), Name: name, CreatedAt: time.Now()}
	r.db.tags[t.ID] = t
	cp := *t
	return &cp, nil
}

func (r *fakeTagRepo) List(ctx context.Context) ([]model.Tag, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Tag
	for _, t := range r.db.tags {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ====================== transport ======================

type fakeTransport struct {
	mu     sync.Mutex
	sent   []*transport.Message
	failTo map[string]bool
}

func (t *fakeTransport) Name() string { return "fake" }

func (t *fakeTransport) Send(ctx context.Context, msg *transport.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failTo[msg.To] {
		return errors.New("esp rejected recipient")
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}
