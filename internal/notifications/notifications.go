// Package notifications delivers Web Push notifications for Tez admission.
// A user registers a browser/device subscription once; after that, every
// locally-admitted Tez (local share/reply recipient, or federated inbound
// admission) triggers a best-effort push through that subscription.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tezrelay/relay/internal/api/apiutil"
	"github.com/tezrelay/relay/internal/auth"
	"github.com/tezrelay/relay/internal/models"
)

// PushSubscription is a registered browser/device Web Push endpoint.
type PushSubscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Endpoint  string    `json:"endpoint"`
	KeyP256dh string    `json:"keyP256dh"`
	KeyAuth   string    `json:"keyAuth"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	LastUsed  time.Time `json:"lastUsed"`
}

// TezPayload is the JSON body delivered to a push endpoint when a Tez is
// admitted for its recipient.
type TezPayload struct {
	TezID        string `json:"tezId"`
	ThreadID     string `json:"threadId"`
	SenderUserID string `json:"senderUserId"`
	Urgency      string `json:"urgency"`
	SurfaceText  string `json:"surfaceText"`
}

// Service manages push subscriptions and delivers Tez admission pushes.
type Service struct {
	pool       *pgxpool.Pool
	logger     *slog.Logger
	vapidPub   string
	vapidPriv  string
	vapidEmail string
}

// New constructs a Service. Enabled() is false, and SendTezAdmitted is a
// no-op, until both VAPID keys are configured.
func New(pool *pgxpool.Pool, vapidPublicKey, vapidPrivateKey, vapidContactEmail string, logger *slog.Logger) *Service {
	return &Service{
		pool:       pool,
		logger:     logger,
		vapidPub:   vapidPublicKey,
		vapidPriv:  vapidPrivateKey,
		vapidEmail: vapidContactEmail,
	}
}

// Enabled reports whether VAPID keys are configured.
func (s *Service) Enabled() bool {
	return s.vapidPub != "" && s.vapidPriv != ""
}

type subscribeRequest struct {
	Endpoint  string `json:"endpoint"`
	KeyP256dh string `json:"keyP256dh"`
	KeyAuth   string `json:"keyAuth"`
}

// HandleSubscribe handles POST /api/v1/notifications/subscriptions.
func (s *Service) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req subscribeRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	if !apiutil.RequireNonEmpty(w, "endpoint", req.Endpoint) ||
		!apiutil.RequireNonEmpty(w, "keyP256dh", req.KeyP256dh) ||
		!apiutil.RequireNonEmpty(w, "keyAuth", req.KeyAuth) {
		return
	}

	id := models.NewID()
	_, err := s.pool.Exec(r.Context(),
		`INSERT INTO push_subscriptions (id, user_id, endpoint, key_p256dh, key_auth, user_agent, created_at, last_used)
		 VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		 ON CONFLICT (user_id, endpoint) DO UPDATE SET
		   key_p256dh = EXCLUDED.key_p256dh,
		   key_auth = EXCLUDED.key_auth,
		   last_used = now()`,
		id, userID, req.Endpoint, req.KeyP256dh, req.KeyAuth, r.UserAgent(),
	)
	if err != nil {
		s.logger.Error("storing push subscription failed", slog.String("error", err.Error()))
		apiutil.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, PushSubscription{
		ID:        id.String(),
		UserID:    userID,
		Endpoint:  req.Endpoint,
		KeyP256dh: req.KeyP256dh,
		KeyAuth:   req.KeyAuth,
		UserAgent: r.UserAgent(),
		CreatedAt: time.Now().UTC(),
		LastUsed:  time.Now().UTC(),
	})
}

// HandleListSubscriptions handles GET /api/v1/notifications/subscriptions.
func (s *Service) HandleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	rows, err := s.pool.Query(r.Context(),
		`SELECT id, user_id, endpoint, key_p256dh, key_auth, user_agent, created_at, last_used
		 FROM push_subscriptions WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		apiutil.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
		return
	}
	defer rows.Close()

	subs := []PushSubscription{}
	for rows.Next() {
		var sub PushSubscription
		var ua *string
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.KeyP256dh, &sub.KeyAuth, &ua, &sub.CreatedAt, &sub.LastUsed); err != nil {
			continue
		}
		if ua != nil {
			sub.UserAgent = *ua
		}
		subs = append(subs, sub)
	}

	apiutil.WriteJSON(w, http.StatusOK, subs)
}

// HandleUnsubscribe handles DELETE /api/v1/notifications/subscriptions/{subscriptionID}.
func (s *Service) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	subID := chi.URLParam(r, "subscriptionID")

	result, err := s.pool.Exec(r.Context(),
		`DELETE FROM push_subscriptions WHERE id = $1 AND user_id = $2`,
		subID, userID,
	)
	if err != nil {
		apiutil.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
		return
	}
	if result.RowsAffected() == 0 {
		apiutil.WriteError(w, http.StatusNotFound, "NOT_FOUND", "subscription not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleGetVAPIDKey handles GET /api/v1/notifications/vapid-key.
func (s *Service) HandleGetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	apiutil.WriteJSON(w, http.StatusOK, map[string]string{"vapidPublicKey": s.vapidPub})
}

// SendTezAdmitted pushes a Tez-admission notification to every subscription
// registered for userID. Stale subscriptions (410 Gone / 404 Not Found from
// the push endpoint) are deleted as they're discovered. Best-effort: every
// error is logged and swallowed, since a push failure must never roll back
// the admission it follows.
func (s *Service) SendTezAdmitted(ctx context.Context, userID string, tez models.Tez) {
	if !s.Enabled() {
		return
	}

	payloadJSON, err := json.Marshal(TezPayload{
		TezID:        tez.ID.String(),
		ThreadID:     tez.ThreadID.String(),
		SenderUserID: tez.SenderUserID,
		Urgency:      tez.Urgency,
		SurfaceText:  tez.SurfaceText,
	})
	if err != nil {
		s.logger.Warn("marshaling push payload failed", slog.String("error", err.Error()))
		return
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, endpoint, key_p256dh, key_auth FROM push_subscriptions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		s.logger.Warn("querying push subscriptions failed", slog.String("error", err.Error()))
		return
	}
	defer rows.Close()

	var staleIDs []string
	for rows.Next() {
		var id, endpoint, p256dh, authKey string
		if err := rows.Scan(&id, &endpoint, &p256dh, &authKey); err != nil {
			continue
		}

		sub := &webpush.Subscription{
			Endpoint: endpoint,
			Keys:     webpush.Keys{P256dh: p256dh, Auth: authKey},
		}
		resp, err := webpush.SendNotification(payloadJSON, sub, &webpush.Options{
			VAPIDPublicKey:  s.vapidPub,
			VAPIDPrivateKey: s.vapidPriv,
			Subscriber:      s.vapidEmail,
			TTL:             86400,
		})
		if err != nil {
			s.logger.Debug("push send failed", slog.String("userId", userID), slog.String("error", err.Error()))
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
			staleIDs = append(staleIDs, id)
			continue
		}
		s.pool.Exec(ctx, `UPDATE push_subscriptions SET last_used = now() WHERE id = $1`, id)
	}

	for _, id := range staleIDs {
		s.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE id = $1`, id)
		s.logger.Debug("removed stale push subscription", slog.String("id", id))
	}
}

// CleanupStaleSubscriptions removes push subscriptions unused for longer
// than maxAge. Intended to run periodically alongside the federation
// delivery retry loop.
func (s *Service) CleanupStaleSubscriptions(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)
	tag, err := s.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE last_used < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("notifications: cleaning stale subscriptions: %w", err)
	}
	if tag.RowsAffected() > 0 {
		s.logger.Info("cleaned stale push subscriptions", slog.Int64("deleted", tag.RowsAffected()))
	}
	return nil
}
