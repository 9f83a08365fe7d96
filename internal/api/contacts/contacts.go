// Package contacts implements REST API handlers for Contact registration,
// lookup, and search. Mounted under /api/v1/contacts.
package contacts

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tezrelay/relay/internal/api/apiutil"
	"github.com/tezrelay/relay/internal/auth"
	"github.com/tezrelay/relay/internal/contacts"
)

// Handler implements contact-related REST API endpoints.
type Handler struct {
	Service *contacts.Service
}

type registerRequest struct {
	DisplayName string  `json:"displayName"`
	Email       *string `json:"email"`
	AvatarURL   *string `json:"avatarUrl"`
}

// HandleRegister handles POST /api/v1/contacts/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req registerRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}

	c, err := h.Service.Register(r.Context(), userID, req.DisplayName, req.Email, req.AvatarURL)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, c)
}

// HandleMe handles GET /api/v1/contacts/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	c, err := h.Service.Get(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, c)
}

// HandleSearch handles GET /api/v1/contacts/search?q=&limit=.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := h.Service.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, results)
}

// HandleGetPublic handles GET /api/v1/contacts/{userID}.
func (h *Handler) HandleGetPublic(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	profile, err := h.Service.GetPublic(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, profile)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch err {
	case contacts.ErrNotFound:
		apiutil.WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case contacts.ErrDisplayNameRequired, contacts.ErrAlreadyRegistered, contacts.ErrQueryTooShort:
		apiutil.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		apiutil.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
	}
}
