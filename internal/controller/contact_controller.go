package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/mailleopard-backend/internal/handler"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

type ContactController struct {
	ContactService *service.ContactService
}

func (c *ContactController) ListContacts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	contacts, pagination, err := c.ContactService.ListContacts(r.Context(), page, limit)
	if err != nil {
		respondErr(w, r, err, "Failed to fetch contacts")
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]any{"data": contacts, "pagination": pagination})
}

func (c *ContactController) SearchContacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	contacts, err := c.ContactService.SearchContacts(r.Context(), q.Get("email"), q.Get("name"))
	if err != nil {
		respondErr(w, r, err, "Failed to search contacts")
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]any{"data": contacts})
}

// UpsertContact creates the contact or updates the one with the same email.
func (c *ContactController) UpsertContact(w http.ResponseWriter, r *http.Request) {
	var body model.ContactInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	contact, err := c.ContactService.UpsertContact(r.Context(), &body)
	if err != nil {
		respondErr(w, r, err, "Failed to save contact")
		return
	}
	handler.RespondJSON(w, http.StatusOK, contact)
}

func (c *ContactController) AddTag(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		handler.RespondError(w, http.StatusBadRequest, "invalid contact id")
		return
	}
	var body struct {
		Tag string `json:"tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid body")
		return
	}

	contact, err := c.ContactService.AddTag(r.Context(), id, body.Tag)
	if err != nil {
		respondErr(w, r, err, "Failed to tag contact")
		return
	}
	handler.RespondJSON(w, http.StatusOK, contact)
}

func (c *ContactController) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := c.ContactService.ListTags(r.Context())
	if err != nil {
		respondErr(w, r, err, "Failed to fetch tags")
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]any{"data": tags})
}
