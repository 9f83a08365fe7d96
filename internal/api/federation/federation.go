// Package federation implements the server-to-server REST surface: inbound
// bundle admission, server-info discovery, peer verification, and the
// admin peer/outbox endpoints. Mounted separately from the user API — its
// routes authenticate via HTTP signature (internal/signature), not bearer
// token, except for the admin sub-routes which additionally require the
// caller to be a configured admin user.
package federation

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tezrelay/relay/internal/api/apiutil"
	"github.com/tezrelay/relay/internal/bundle"
	"github.com/tezrelay/relay/internal/federation"
	"github.com/tezrelay/relay/internal/identity"
	"github.com/tezrelay/relay/internal/presence"
	"github.com/tezrelay/relay/internal/signature"
	"github.com/tezrelay/relay/internal/trust"
)

// Handler implements the federation REST API.
type Handler struct {
	Identity          *identity.Service
	Trust             *trust.Store
	Inbox             *federation.Inbox
	Queue             *federation.Queue
	Presence          *presence.Cache
	Logger            *slog.Logger
	DateSkewTolerance time.Duration
	FederationEnabled bool
}

// HandleInbox handles POST /federation/inbox: verifies the HTTP signature,
// requires the sender be a trusted peer, validates the bundle, and admits
// it. Responds 200 if every recipient resolved, 207 if some did not.
func (h *Handler) HandleInbox(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "could not read request body")
		return
	}

	keyID, err := signature.Verify(r, body, h.Identity.Current().Host, h.DateSkewTolerance, h.Trust.Lookup(r.Context()))
	if err != nil {
		writeSignatureError(w, err)
		return
	}

	if h.Presence != nil {
		replayed, err := h.Presence.SeenSignature(r.Context(), keyID, signature.Digest(body), 2*h.DateSkewTolerance)
		if err != nil {
			h.Logger.Warn("signature replay check failed", slog.String("error", err.Error()))
		} else if replayed {
			apiutil.WriteError(w, http.StatusUnauthorized, "REPLAYED_SIGNATURE", "signature already seen")
			return
		}
	}

	peer, err := h.Trust.ByServerID(r.Context(), keyID)
	if err != nil {
		apiutil.WriteError(w, http.StatusForbidden, "UNKNOWN_PEER", "unknown peer")
		return
	}

	if err := h.Trust.AdmitInbound(r.Context(), peer.Host); err != nil {
		writeTrustError(w, err)
		return
	}

	var b bundle.Bundle
	if err := json.Unmarshal(body, &b); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body")
		return
	}

	result, err := h.Inbox.Admit(r.Context(), b)
	if err != nil {
		writeBundleError(w, err)
		return
	}

	status := http.StatusOK
	if len(result.NotFound) > 0 {
		status = http.StatusMultiStatus
	}
	apiutil.WriteJSON(w, status, map[string]interface{}{
		"accepted":    true,
		"localTezIds": result.LocalTezIDs,
		"notFound":    result.NotFound,
	})
}

func writeSignatureError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, signature.ErrMissingSignature):
		apiutil.WriteError(w, http.StatusUnauthorized, "MISSING_SIGNATURE", err.Error())
	case errors.Is(err, signature.ErrBodyModified):
		apiutil.WriteError(w, http.StatusUnauthorized, "BODY_MODIFIED", err.Error())
	case errors.Is(err, signature.ErrUnknownPeer):
		apiutil.WriteError(w, http.StatusForbidden, "UNKNOWN_PEER", err.Error())
	default:
		apiutil.WriteError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed")
	}
}

func writeTrustError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, trust.ErrServerBlocked):
		apiutil.WriteError(w, http.StatusForbidden, "SERVER_BLOCKED", err.Error())
	default:
		apiutil.WriteError(w, http.StatusForbidden, "SERVER_NOT_TRUSTED", "peer is not trusted")
	}
}

func writeBundleError(w http.ResponseWriter, err error) {
	apiutil.WriteError(w, http.StatusUnprocessableEntity, "INVALID_BUNDLE", err.Error())
}

// HandleServerInfo handles GET /federation/server-info.
func (h *Handler) HandleServerInfo(w http.ResponseWriter, r *http.Request) {
	id := h.Identity.Current()
	apiutil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"host":             id.Host,
		"server_id":        id.ServerID,
		"public_key":       hex.EncodeToString(id.PublicKey),
		"protocol_version": bundle.ProtocolVersion,
		"federation": map[string]interface{}{
			"enabled": h.FederationEnabled,
			"inbox":   "/federation/inbox",
		},
	})
}

type verifyRequest struct {
	Host      string `json:"host"`
	ServerID  string `json:"serverId"`
	PublicKey string `json:"publicKey"`
}

// HandleVerify handles POST /federation/verify: a peer's self-description
// is registered (or left unchanged if already known), landing in pending
// under allowlist mode or trusted under open mode.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}

	pubKey, err := hex.DecodeString(req.PublicKey)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "publicKey must be hex-encoded")
		return
	}

	peer, err := h.Trust.Admit(r.Context(), req.Host, req.ServerID, pubKey)
	if err != nil {
		apiutil.InternalError(w, h.Logger, "failed to admit peer", err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]string{"status": peer.TrustLevel})
}

// HandleListPeers handles GET /admin/federation/servers.
func (h *Handler) HandleListPeers(w http.ResponseWriter, r *http.Request) {
	peers, err := h.Trust.List(r.Context())
	if err != nil {
		apiutil.InternalError(w, h.Logger, "failed to list peers", err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, peers)
}

type patchPeerRequest struct {
	TrustLevel string `json:"trustLevel"`
}

// HandlePatchPeer handles PATCH /admin/federation/servers/{host}.
func (h *Handler) HandlePatchPeer(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")

	var req patchPeerRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}

	if err := h.Trust.Transition(r.Context(), host, req.TrustLevel); err != nil {
		if errors.Is(err, trust.ErrUnknownPeer) {
			apiutil.WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		apiutil.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	peer, err := h.Trust.Get(r.Context(), host)
	if err != nil {
		apiutil.InternalError(w, h.Logger, "failed to reload peer after transition", err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, peer)
}

// HandleDeletePeer handles DELETE /admin/federation/servers/{host}.
func (h *Handler) HandleDeletePeer(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")

	if err := h.Trust.Remove(r.Context(), host); err != nil {
		if errors.Is(err, trust.ErrUnknownPeer) {
			apiutil.WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		apiutil.InternalError(w, h.Logger, "failed to remove peer", err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

// HandleOutbox handles GET /admin/federation/outbox?limit=.
func (h *Handler) HandleOutbox(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	deliveries, err := h.Queue.ListOutbox(r.Context(), limit)
	if err != nil {
		apiutil.InternalError(w, h.Logger, "failed to list outbox", err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, deliveries)
}
