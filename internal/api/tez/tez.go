// Package tez implements REST API handlers for sharing, replying to,
// fetching, and streaming Tez. Mounted under /api/v1/tez.
package tez

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tezrelay/relay/internal/acl"
	"github.com/tezrelay/relay/internal/api/apiutil"
	"github.com/tezrelay/relay/internal/auth"
	"github.com/tezrelay/relay/internal/messaging"
	"github.com/tezrelay/relay/internal/models"
)

// Handler implements Tez-related REST API endpoints.
type Handler struct {
	Service *messaging.Service
}

type contextInput struct {
	Layer       string  `json:"layer"`
	Content     string  `json:"content"`
	MimeType    *string `json:"mimeType"`
	Confidence  *int    `json:"confidence"`
	Source      *string `json:"source"`
	DerivedFrom *string `json:"derivedFrom"`
}

func toServiceContext(actorUserID string, in []contextInput) []messaging.ContextInput {
	out := make([]messaging.ContextInput, len(in))
	for i, c := range in {
		out[i] = messaging.ContextInput{
			Layer:       c.Layer,
			Content:     c.Content,
			MimeType:    c.MimeType,
			Confidence:  c.Confidence,
			Source:      c.Source,
			DerivedFrom: c.DerivedFrom,
			CreatedBy:   actorUserID,
		}
	}
	return out
}

type shareRequest struct {
	TeamID          *string        `json:"teamId"`
	ConversationID  *string        `json:"conversationId"`
	SurfaceText     string         `json:"surfaceText"`
	Type            string         `json:"type"`
	Urgency         string         `json:"urgency"`
	ActionRequested *string        `json:"actionRequested"`
	Visibility      string         `json:"visibility"`
	Recipients      []string       `json:"recipients"`
	Context         []contextInput `json:"context"`
}

func parseOptionalID(raw *string) (*models.ID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := models.ParseID(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// HandleShare handles POST /api/v1/tez/share.
func (h *Handler) HandleShare(w http.ResponseWriter, r *http.Request) {
	actorUserID := auth.UserIDFromContext(r.Context())

	var req shareRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}

	teamID, err := parseOptionalID(req.TeamID)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "teamId is not a valid id")
		return
	}
	convID, err := parseOptionalID(req.ConversationID)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "conversationId is not a valid id")
		return
	}

	tez, err := h.Service.Share(r.Context(), actorUserID, messaging.ShareInput{
		TeamID:          teamID,
		ConversationID:  convID,
		SurfaceText:     req.SurfaceText,
		Type:            req.Type,
		Urgency:         req.Urgency,
		ActionRequested: req.ActionRequested,
		Visibility:      req.Visibility,
		Recipients:      req.Recipients,
		Context:         toServiceContext(actorUserID, req.Context),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, tez)
}

// HandleStream handles GET /api/v1/tez/stream?teamId=&limit=&before=.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	actorUserID := auth.UserIDFromContext(r.Context())

	rawTeamID := r.URL.Query().Get("teamId")
	if rawTeamID == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "MISSING_TEAM", "teamId is required")
		return
	}
	teamID, err := models.ParseID(rawTeamID)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "MISSING_TEAM", "teamId is not a valid id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	before, err := parseBefore(r.URL.Query().Get("before"))
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "before must be an RFC3339 timestamp")
		return
	}

	result, err := h.Service.Stream(r.Context(), actorUserID, teamID, limit, before)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, result)
}

type replyRequest struct {
	SurfaceText     string         `json:"surfaceText"`
	Type            string         `json:"type"`
	Urgency         string         `json:"urgency"`
	ActionRequested *string        `json:"actionRequested"`
	Recipients      []string       `json:"recipients"`
	Context         []contextInput `json:"context"`
}

// HandleReply handles POST /api/v1/tez/{tezID}/reply.
func (h *Handler) HandleReply(w http.ResponseWriter, r *http.Request) {
	actorUserID := auth.UserIDFromContext(r.Context())
	parentID, err := models.ParseID(chi.URLParam(r, "tezID"))
	if err != nil {
		apiutil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "tez not found")
		return
	}

	var req replyRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}

	tez, err := h.Service.Reply(r.Context(), actorUserID, messaging.ReplyInput{
		ParentID:        parentID,
		SurfaceText:     req.SurfaceText,
		Type:            req.Type,
		Urgency:         req.Urgency,
		ActionRequested: req.ActionRequested,
		Recipients:      req.Recipients,
		Context:         toServiceContext(actorUserID, req.Context),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, tez)
}

// HandleGet handles GET /api/v1/tez/{tezID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actorUserID := auth.UserIDFromContext(r.Context())
	id, err := models.ParseID(chi.URLParam(r, "tezID"))
	if err != nil {
		apiutil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "tez not found")
		return
	}

	result, err := h.Service.Get(r.Context(), actorUserID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, result)
}

// HandleThread handles GET /api/v1/tez/{tezID}/thread.
func (h *Handler) HandleThread(w http.ResponseWriter, r *http.Request) {
	actorUserID := auth.UserIDFromContext(r.Context())
	id, err := models.ParseID(chi.URLParam(r, "tezID"))
	if err != nil {
		apiutil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "tez not found")
		return
	}

	messages, err := h.Service.Thread(r.Context(), actorUserID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var threadID models.ID
	if len(messages) > 0 {
		threadID = messages[0].ThreadID
	}
	apiutil.WriteJSON(w, http.StatusOK, threadResponse{
		ThreadID:     threadID,
		RootTezID:    threadID,
		MessageCount: len(messages),
		Messages:     messages,
	})
}

// HandleSearch handles GET /api/v1/tez/search?q=&teamId=&limit=.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	actorUserID := auth.UserIDFromContext(r.Context())

	query := r.URL.Query().Get("q")
	if !apiutil.RequireNonEmpty(w, "q", query) {
		return
	}

	var teamID *models.ID
	if raw := r.URL.Query().Get("teamId"); raw != "" {
		parsed, err := models.ParseID(raw)
		if err != nil {
			apiutil.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "teamId is not a valid id")
			return
		}
		teamID = &parsed
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := h.Service.Search(r.Context(), actorUserID, query, teamID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, results)
}

// threadResponse is the wire shape of GET /tez/{tezID}/thread. rootTezId
// equals threadId because a root Tez's own id becomes its thread's id at
// creation time.
type threadResponse struct {
	ThreadID     models.ID    `json:"threadId"`
	RootTezID    models.ID    `json:"rootTezId"`
	MessageCount int          `json:"messageCount"`
	Messages     []models.Tez `json:"messages"`
}

func parseBefore(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, messaging.ErrNotFound):
		apiutil.WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, messaging.ErrSurfaceTextEmpty),
		errors.Is(err, messaging.ErrSurfaceTextTooLong),
		errors.Is(err, messaging.ErrTooManyContextItems),
		errors.Is(err, messaging.ErrTooManyRecipients),
		errors.Is(err, messaging.ErrInvalidEnum):
		apiutil.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, acl.ErrForbidden):
		apiutil.WriteError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	default:
		apiutil.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
	}
}
