// Package teams implements REST API handlers for team creation and
// membership management. Mounted under /api/v1/teams.
package teams

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tezrelay/relay/internal/acl"
	"github.com/tezrelay/relay/internal/api/apiutil"
	"github.com/tezrelay/relay/internal/auth"
	"github.com/tezrelay/relay/internal/models"
	"github.com/tezrelay/relay/internal/teams"
)

// Handler implements team-related REST API endpoints.
type Handler struct {
	Service *teams.Service
	Logger  *slog.Logger
}

type createTeamRequest struct {
	Name string `json:"name"`
}

// HandleCreate handles POST /api/v1/teams.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req createTeamRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}

	team, err := h.Service.Create(r.Context(), userID, req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, team)
}

// HandleListMembers handles GET /api/v1/teams/{teamID}/members.
func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	teamID, err := models.ParseID(chi.URLParam(r, "teamID"))
	if err != nil {
		apiutil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "team not found")
		return
	}

	members, err := h.Service.Members(r.Context(), teamID)
	if err != nil {
		apiutil.InternalError(w, h.Logger, "failed to list team members", err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, members)
}

type addMemberRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// HandleAddMember handles POST /api/v1/teams/{teamID}/members.
func (h *Handler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	actorUserID := auth.UserIDFromContext(r.Context())
	teamID, err := models.ParseID(chi.URLParam(r, "teamID"))
	if err != nil {
		apiutil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "team not found")
		return
	}

	var req addMemberRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}

	member, err := h.Service.AddMember(r.Context(), actorUserID, teamID, req.UserID, req.Role)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, member)
}

// HandleRemoveMember handles DELETE /api/v1/teams/{teamID}/members/{userID}.
func (h *Handler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	actorUserID := auth.UserIDFromContext(r.Context())
	teamID, err := models.ParseID(chi.URLParam(r, "teamID"))
	if err != nil {
		apiutil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "team not found")
		return
	}
	targetUserID := chi.URLParam(r, "userID")

	if err := h.Service.RemoveMember(r.Context(), actorUserID, teamID, targetUserID); err != nil {
		writeServiceError(w, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch err {
	case teams.ErrNotFound, teams.ErrNotMember:
		apiutil.WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case teams.ErrNameRequired, teams.ErrAlreadyMember:
		apiutil.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case teams.ErrLastAdmin, acl.ErrForbidden:
		apiutil.WriteError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	default:
		apiutil.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
	}
}
