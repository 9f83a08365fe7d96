// Package api implements the Tez relay's REST API server using the chi
// router. It registers the user-facing /api/v1 route tree and the separate
// server-to-server federation surface, provides middleware for logging,
// recovery, CORS, and request IDs, and exposes JSON response helpers for
// consistent API envelope formatting.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tezrelay/relay/internal/acl"
	"github.com/tezrelay/relay/internal/api/contacts"
	"github.com/tezrelay/relay/internal/api/conversations"
	federationapi "github.com/tezrelay/relay/internal/api/federation"
	"github.com/tezrelay/relay/internal/api/teams"
	"github.com/tezrelay/relay/internal/api/tez"
	"github.com/tezrelay/relay/internal/audit"
	"github.com/tezrelay/relay/internal/auth"
	conversationssvc "github.com/tezrelay/relay/internal/conversations"
	contactssvc "github.com/tezrelay/relay/internal/contacts"
	"github.com/tezrelay/relay/internal/config"
	"github.com/tezrelay/relay/internal/database"
	"github.com/tezrelay/relay/internal/events"
	"github.com/tezrelay/relay/internal/federation"
	"github.com/tezrelay/relay/internal/identity"
	"github.com/tezrelay/relay/internal/messaging"
	securityheaders "github.com/tezrelay/relay/internal/middleware"
	"github.com/tezrelay/relay/internal/notifications"
	"github.com/tezrelay/relay/internal/presence"
	teamssvc "github.com/tezrelay/relay/internal/teams"
	"github.com/tezrelay/relay/internal/trust"
)

// Server is the HTTP API server for the Tez relay. It holds the chi router,
// database reference, domain services, configuration, and logger.
type Server struct {
	Router      *chi.Mux
	DB          *database.DB
	Config      *config.Config
	AuthService *auth.Service
	EventBus    *events.Bus
	Cache       *presence.Cache

	Identity      *identity.Service
	Trust         *trust.Store
	ACL           *acl.Checker
	Audit         audit.Sink
	Teams         *teamssvc.Service
	Contacts      *contactssvc.Service
	Conversations *conversationssvc.Service
	Messaging     *messaging.Service
	Notifications *notifications.Service
	FedInbox      *federation.Inbox
	FedQueue      *federation.Queue

	InstanceID string
	Version    string
	Logger     *slog.Logger
	server     *http.Server
}

// NewServer creates a new API server with all routes and middleware registered.
func NewServer(
	db *database.DB,
	cfg *config.Config,
	authSvc *auth.Service,
	bus *events.Bus,
	cache *presence.Cache,
	id *identity.Service,
	trustStore *trust.Store,
	checker *acl.Checker,
	auditSink audit.Sink,
	teamsSvc *teamssvc.Service,
	contactsSvc *contactssvc.Service,
	conversationsSvc *conversationssvc.Service,
	messagingSvc *messaging.Service,
	notificationsSvc *notifications.Service,
	fedInbox *federation.Inbox,
	fedQueue *federation.Queue,
	instanceID string,
	logger *slog.Logger,
) *Server {
	s := &Server{
		Router:        chi.NewRouter(),
		DB:            db,
		Config:        cfg,
		AuthService:   authSvc,
		EventBus:      bus,
		Cache:         cache,
		Identity:      id,
		Trust:         trustStore,
		ACL:           checker,
		Audit:         auditSink,
		Teams:         teamsSvc,
		Contacts:      contactsSvc,
		Conversations: conversationsSvc,
		Messaging:     messagingSvc,
		Notifications: notificationsSvc,
		FedInbox:      fedInbox,
		FedQueue:      fedQueue,
		InstanceID:    instanceID,
		Logger:        logger,
	}

	s.registerMiddleware()
	s.registerRoutes()

	return s
}

// registerMiddleware adds global middleware to the router.
func (s *Server) registerMiddleware() {
	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.RealIP)
	s.Router.Use(slogMiddleware(s.Logger))
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(securityheaders.SecurityHeaders)
	s.Router.Use(corsMiddleware(s.Config.HTTP.CORSOrigins))
	s.Router.Use(middleware.Compress(5))
	s.Router.Use(middleware.Timeout(30 * time.Second))
	s.Router.Use(maxBodySize(1 << 20)) // 1MB default body limit
}

// registerRoutes mounts the user API, the federation surface, and the
// operational endpoints on the router.
func (s *Server) registerRoutes() {
	teamsH := &teams.Handler{Service: s.Teams, Logger: s.Logger}
	contactsH := &contacts.Handler{Service: s.Contacts}
	conversationsH := &conversations.Handler{Service: s.Conversations, Messaging: s.Messaging, Logger: s.Logger}
	tezH := &tez.Handler{Service: s.Messaging}

	dateSkew := 5 * time.Minute
	if s.Config != nil {
		if d, err := s.Config.Federation.DateSkewToleranceParsed(); err == nil {
			dateSkew = d
		}
	}
	fedH := &federationapi.Handler{
		Identity:          s.Identity,
		Trust:             s.Trust,
		Inbox:             s.FedInbox,
		Queue:             s.FedQueue,
		Presence:          s.Cache,
		Logger:            s.Logger,
		DateSkewTolerance: dateSkew,
		FederationEnabled: s.Config != nil && s.Config.Federation.Enabled,
	}

	// Health and metrics — outside the versioned API prefix.
	s.Router.Get("/health", s.handleHealthCheck)
	s.Router.Get("/health/deep", s.handleDeepHealthCheck)
	s.Router.Get("/metrics", s.handleMetrics)

	// Server-to-server federation surface. Authenticated via HTTP signature
	// inside the handlers themselves, never via Bearer token.
	s.Router.Route("/federation", func(r chi.Router) {
		r.Post("/inbox", fedH.HandleInbox)
		r.Get("/server-info", fedH.HandleServerInfo)
		r.Post("/verify", fedH.HandleVerify)
	})

	// Admin federation management — Bearer-token authenticated, restricted
	// to configured admin users.
	s.Router.Route("/admin/federation", func(r chi.Router) {
		r.Use(auth.RequireAuth(s.AuthService))
		r.Use(s.requireAdmin)
		r.Get("/servers", fedH.HandleListPeers)
		r.Patch("/servers/{host}", fedH.HandlePatchPeer)
		r.Delete("/servers/{host}", fedH.HandleDeletePeer)
		r.Get("/outbox", fedH.HandleOutbox)
	})

	// User-facing API.
	s.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.RequireAuth(s.AuthService))
		r.Use(s.RateLimitGlobal())

		r.Route("/teams", func(r chi.Router) {
			r.Post("/", teamsH.HandleCreate)
			r.Get("/{teamID}/members", teamsH.HandleListMembers)
			r.Post("/{teamID}/members", teamsH.HandleAddMember)
			r.Delete("/{teamID}/members/{userID}", teamsH.HandleRemoveMember)
		})

		r.Route("/contacts", func(r chi.Router) {
			r.Post("/register", contactsH.HandleRegister)
			r.Get("/me", contactsH.HandleMe)
			r.Get("/search", contactsH.HandleSearch)
			r.Get("/{userID}", contactsH.HandleGetPublic)
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationsH.HandleCreate)
			r.Get("/", conversationsH.HandleList)
			r.With(s.RateLimitShare).Post("/{conversationID}/messages", conversationsH.HandlePostMessage)
			r.Get("/{conversationID}/messages", conversationsH.HandleMessages)
			r.Post("/{conversationID}/read", conversationsH.HandleMarkRead)
		})

		r.Get("/unread", conversationsH.HandleUnread)

		if s.Notifications != nil {
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/vapid-key", s.Notifications.HandleGetVAPIDKey)
				r.Post("/subscriptions", s.Notifications.HandleSubscribe)
				r.Get("/subscriptions", s.Notifications.HandleListSubscriptions)
				r.Delete("/subscriptions/{subscriptionID}", s.Notifications.HandleUnsubscribe)
			})
		}

		r.Route("/tez", func(r chi.Router) {
			r.With(s.RateLimitShare).Post("/share", tezH.HandleShare)
			r.Get("/stream", tezH.HandleStream)
			r.Get("/search", tezH.HandleSearch)
			r.With(s.RateLimitShare).Post("/{tezID}/reply", tezH.HandleReply)
			r.Get("/{tezID}", tezH.HandleGet)
			r.Get("/{tezID}/thread", tezH.HandleThread)
		})
	})
}

// requireAdmin rejects requests from authenticated users who are not listed
// as instance admins. Must run after auth.RequireAuth.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserIDFromContext(r.Context())
		if userID == "" || !s.Config.IsAdmin(userID) {
			WriteError(w, http.StatusForbidden, "FORBIDDEN", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins listening for HTTP requests on the configured address.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.Config.HTTP.Listen,
		Handler:      s.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.Logger.Info("HTTP server starting", slog.String("listen", s.Config.HTTP.Listen))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

// handleHealthCheck responds with a shallow health status of the server and
// its primary dependency. GET /health/deep covers the full dependency set.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "version": s.Version}

	if err := s.DB.HealthCheck(r.Context()); err != nil {
		status["status"] = "degraded"
		status["database"] = "unhealthy"
	} else {
		status["database"] = "healthy"
	}

	httpStatus := http.StatusOK
	if status["status"] != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	WriteJSON(w, httpStatus, status)
}

// ErrorResponse is the standard error envelope returned by the API.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains the error code and human-readable message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SuccessResponse is the standard success envelope returned by the API.
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// WriteJSON writes a JSON response with the given status code and data wrapped
// in the standard success envelope {"data": ...}.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(SuccessResponse{Data: data})
}

// WriteError writes a JSON error response with the given status code, error code,
// and message using the standard error envelope {"error": {"code": ..., "message": ...}}.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
		},
	})
}

// WriteNoContent writes a 204 No Content response with no body.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// slogMiddleware returns a chi middleware that logs HTTP requests using slog.
func slogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", r.RemoteAddr),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			}
			if uid := auth.UserIDFromContext(r.Context()); uid != "" {
				attrs = append(attrs, slog.String("user_id", uid))
			}
			logger.LogAttrs(r.Context(), slog.LevelInfo, "http request", attrs...)
		})
	}
}

// maxBodySize limits the request body to the given number of bytes.
// Skips multipart/form-data requests (file uploads set their own limit).
func maxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ct := r.Header.Get("Content-Type")
			if r.Body != nil && !strings.HasPrefix(ct, "multipart/form-data") {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware returns a chi middleware that sets CORS headers for the given
// allowed origins.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed := false
			for _, o := range origins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
				isWildcard := len(origins) == 1 && origins[0] == "*"
				if !isWildcard {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
