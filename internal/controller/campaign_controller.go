// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/mailleopard-backend/internal/handler"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

func campaignID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		handler.RespondError(w, http.StatusBadRequest, "invalid campaign id")
		return 0, false
	}
	return id, true
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CreateCampaignInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid body")
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), body)
	if err != nil {
		respondErr(w, r, err, "Failed to create campaign")
		return
	}
	handler.RespondJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize, status)
	if err != nil {
		respondErr(w, r, err, "Failed to fetch campaigns")
		return
	}

	handler.RespondJSON(w, http.StatusOK, map[string]any{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	details, err := c.CampaignService.GetCampaignDetailsWithStats(r.Context(), id)
	if err != nil {
		respondErr(w, r, err, "Failed to fetch campaign")
		return
	}
	handler.RespondJSON(w, http.StatusOK, details)
}

type sendBody struct {
	Mode        service.AudienceMode `json:"mode"`
	TagIDs      []int                `json:"tagIds"`
	ScheduledAt *time.Time           `json:"scheduledAt"`
}

func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var body sendBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req := service.SendRequest{
		Audience:    service.Audience{Mode: body.Mode, TagIDs: body.TagIDs},
		ScheduledAt: body.ScheduledAt,
	}

	// a started run finishes even if the client goes away
	ctx := r.Context()
	if req.ScheduledAt == nil {
		ctx = context.WithoutCancel(ctx)
	}

	outcome, err := c.CampaignService.SendCampaign(ctx, id, req)
	if err != nil {
		if outcome != nil {
			log := logger.FromContext(ctx)
			log.Error().Err(err).Int("campaign_id", id).Msg("campaign run failed")
			handler.RespondJSON(w, http.StatusInternalServerError, map[string]any{
				"error":  "Failed to send campaign",
				"sent":   outcome.Sent,
				"failed": outcome.Failed,
				"total":  outcome.Total,
			})
			return
		}
		respondErr(w, r, err, "Failed to send campaign")
		return
	}

	if outcome.Scheduled {
		handler.RespondJSON(w, http.StatusOK, map[string]any{
			"scheduled":      true,
			"scheduledAt":    outcome.ScheduledAt,
			"recipientCount": outcome.RecipientCount,
		})
		return
	}
	handler.RespondJSON(w, http.StatusOK, outcome.SendResult)
}

func (c *CampaignController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	if err := c.CampaignService.CancelCampaign(r.Context(), id); err != nil {
		respondErr(w, r, err, "Failed to cancel campaign")
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (c *CampaignController) DuplicateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	campaign, err := c.CampaignService.DuplicateCampaign(r.Context(), id)
	if err != nil {
		respondErr(w, r, err, "Failed to duplicate campaign")
		return
	}
	handler.RespondJSON(w, http.StatusCreated, map[string]any{"success": true, "id": campaign.ID})
}

// SendTestEmail answers 502 when the transport refuses the message.
func (c *CampaignController) SendTestEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := c.CampaignService.SendTestEmail(r.Context(), id, body.Email); err != nil {
		if statusFor(err) != http.StatusInternalServerError {
			respondErr(w, r, err, "Failed to send test email")
			return
		}
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).Int("campaign_id", id).Msg("test email failed")
		handler.RespondError(w, http.StatusBadGateway, "Failed to send test email")
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var body struct {
		ContactID       int     `json:"contact_id"`
		OverrideContent *string `json:"override_content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid body")
		return
	}

	rendered, err := c.CampaignService.RenderPreview(r.Context(), id, body.ContactID, body.OverrideContent)
	if err != nil {
		respondErr(w, r, err, "Failed to render preview")
		return
	}

	handler.RespondJSON(w, http.StatusOK, map[string]any{
		"html":         rendered,
		"used_content": body.OverrideContent,
		"contact_id":   body.ContactID,
	})
}
