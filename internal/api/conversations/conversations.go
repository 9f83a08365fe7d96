// Package conversations implements REST API handlers for DM/group
// conversation creation, listing, and message posting. Mounted under
// /api/v1/conversations.
package conversations

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tezrelay/relay/internal/acl"
	"github.com/tezrelay/relay/internal/api/apiutil"
	"github.com/tezrelay/relay/internal/auth"
	"github.com/tezrelay/relay/internal/conversations"
	"github.com/tezrelay/relay/internal/messaging"
	"github.com/tezrelay/relay/internal/models"
)

// Handler implements conversation-related REST API endpoints. Posting a
// message into a conversation delegates persistence to Messaging, since
// Service itself only tracks membership and read cursors.
type Handler struct {
	Service   *conversations.Service
	Messaging *messaging.Service
	Logger    *slog.Logger
}

type createConversationRequest struct {
	Type      string   `json:"type"`
	MemberIDs []string `json:"memberIds"`
	Name      *string  `json:"name"`
}

// HandleCreate handles POST /api/v1/conversations.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actorUserID := auth.UserIDFromContext(r.Context())

	var req createConversationRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}

	conv, err := h.Service.Create(r.Context(), actorUserID, req.Type, req.MemberIDs, req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, conv)
}

// HandleList handles GET /api/v1/conversations.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actorUserID := auth.UserIDFromContext(r.Context())

	summaries, err := h.Service.List(r.Context(), actorUserID)
	if err != nil {
		apiutil.InternalError(w, h.Logger, "failed to list conversations", err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, summaries)
}

// unreadResponse is the wire shape of GET /unread. Teams carry no per-user
// read cursor in this schema — only conversations do — so teams is always
// empty until a team-level cursor exists.
type unreadResponse struct {
	Teams         []unreadTeam `json:"teams"`
	Conversations []unreadConv `json:"conversations"`
	Total         int          `json:"total"`
}

type unreadTeam struct {
	TeamID      models.ID `json:"teamId"`
	UnreadCount int       `json:"unreadCount"`
}

type unreadConv struct {
	ConversationID models.ID `json:"conversationId"`
	UnreadCount    int       `json:"unreadCount"`
}

// HandleUnread handles GET /api/v1/unread.
func (h *Handler) HandleUnread(w http.ResponseWriter, r *http.Request) {
	actorUserID := auth.UserIDFromContext(r.Context())

	summaries, err := h.Service.List(r.Context(), actorUserID)
	if err != nil {
		apiutil.InternalError(w, h.Logger, "failed to compute unread counts", err)
		return
	}

	resp := unreadResponse{Teams: []unreadTeam{}, Conversations: make([]unreadConv, 0, len(summaries))}
	for _, s := range summaries {
		if s.UnreadCount == 0 {
			continue
		}
		resp.Conversations = append(resp.Conversations, unreadConv{
			ConversationID: s.Conversation.ID,
			UnreadCount:    s.UnreadCount,
		})
		resp.Total += s.UnreadCount
	}

	apiutil.WriteJSON(w, http.StatusOK, resp)
}

type contextInput struct {
	Layer       string  `json:"layer"`
	Content     string  `json:"content"`
	MimeType    *string `json:"mimeType"`
	Confidence  *int    `json:"confidence"`
	Source      *string `json:"source"`
	DerivedFrom *string `json:"derivedFrom"`
}

type postMessageRequest struct {
	SurfaceText     string         `json:"surfaceText"`
	Type            string         `json:"type"`
	Urgency         string         `json:"urgency"`
	ActionRequested *string        `json:"actionRequested"`
	Context         []contextInput `json:"context"`
}

// HandlePostMessage handles POST /api/v1/conversations/{conversationID}/messages.
// The implicit recipient list is the conversation's membership, minus the
// sender.
func (h *Handler) HandlePostMessage(w http.ResponseWriter, r *http.Request) {
	actorUserID := auth.UserIDFromContext(r.Context())
	convID, err := models.ParseID(chi.URLParam(r, "conversationID"))
	if err != nil {
		apiutil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "conversation not found")
		return
	}

	var req postMessageRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}

	members, err := h.Service.Members(r.Context(), convID)
	if err != nil {
		apiutil.InternalError(w, h.Logger, "failed to resolve conversation members", err)
		return
	}
	recipients := make([]string, 0, len(members))
	for _, m := range members {
		if m != actorUserID {
			recipients = append(recipients, m)
		}
	}

	context := make([]messaging.ContextInput, len(req.Context))
	for i, c := range req.Context {
		context[i] = messaging.ContextInput{
			Layer:       c.Layer,
			Content:     c.Content,
			MimeType:    c.MimeType,
			Confidence:  c.Confidence,
			Source:      c.Source,
			DerivedFrom: c.DerivedFrom,
			CreatedBy:   actorUserID,
		}
	}

	tez, err := h.Messaging.Share(r.Context(), actorUserID, messaging.ShareInput{
		ConversationID:  &convID,
		SurfaceText:     req.SurfaceText,
		Type:            req.Type,
		Urgency:         req.Urgency,
		ActionRequested: req.ActionRequested,
		Visibility:      models.VisibilityDM,
		Recipients:      recipients,
		Context:         context,
	})
	if err != nil {
		writeMessagingError(w, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, tez)
}

// HandleMessages handles GET /api/v1/conversations/{conversationID}/messages?limit=&before=.
func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	actorUserID := auth.UserIDFromContext(r.Context())
	convID, err := models.ParseID(chi.URLParam(r, "conversationID"))
	if err != nil {
		apiutil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "conversation not found")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	before, err := parseBefore(r.URL.Query().Get("before"))
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "before must be an RFC3339 timestamp")
		return
	}

	messages, err := h.Service.Messages(r.Context(), actorUserID, convID, limit, before)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, messages)
}

// HandleMarkRead handles POST /api/v1/conversations/{conversationID}/read.
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	actorUserID := auth.UserIDFromContext(r.Context())
	convID, err := models.ParseID(chi.URLParam(r, "conversationID"))
	if err != nil {
		apiutil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "conversation not found")
		return
	}

	if err := h.Service.MarkRead(r.Context(), actorUserID, convID); err != nil {
		writeServiceError(w, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]bool{"read": true})
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
	case errors.Is(err, conversations.ErrNotFound):
		apiutil.WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, conversations.ErrDMRequiresOne),
		errors.Is(err, conversations.ErrGroupNeedsName),
		errors.Is(err, conversations.ErrGroupNeedsMembers):
		apiutil.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, acl.ErrForbidden):
		apiutil.WriteError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	default:
		apiutil.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
	}
}

func writeMessagingError(w http.ResponseWriter, err error) {
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
