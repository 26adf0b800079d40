// Package router wires the HTTP and websocket surface: middleware
// chain, health endpoints, and every route group backed by the
// handler package.
package router

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/TambongStercy/SBC-MS-sub006/collaborators"
	"github.com/TambongStercy/SBC-MS-sub006/config"
	"github.com/TambongStercy/SBC-MS-sub006/handler"
	"github.com/TambongStercy/SBC-MS-sub006/middleware"
)

// Dependencies collects everything the route tree needs beyond cfg
// and the logger: one handler per domain surface, plus the
// collaborator health poller used by /ready.
type Dependencies struct {
	Conversations *handler.ConversationHandler
	Messages      *handler.MessageHandler
	Statuses      *handler.StatusHandler
	Tombolas      *handler.TombolaHandler
	Challenges    *handler.ChallengeHandler
	Realtime      *handler.RealtimeHandler
	HealthPoller  *collaborators.HealthPoller
	Mongo         interface{ Ping(ctx context.Context) error }
	Redis         interface{ Ping(ctx context.Context) error }
}

// NewRouter returns a configured chi Router with the full middleware
// chain and every route group mounted.
func NewRouter(cfg *config.Config, appLogger zerolog.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.SecurityHeadersMiddleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(mwRequestLogger(appLogger))
	r.Use(mwMaxBodySize(cfg.MaxBodyBytes))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, http.StatusOK, "ok")
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := deps.Mongo.Ping(ctx); err != nil {
			writeHealth(w, http.StatusServiceUnavailable, "mongo unavailable")
			return
		}
		if err := deps.Redis.Ping(ctx); err != nil {
			writeHealth(w, http.StatusServiceUnavailable, "redis unavailable")
			return
		}
		writeHealth(w, http.StatusOK, "ready")
	})

	rateLimiter := middleware.NewRateLimiter(appLogger, cfg.RateLimitEnabled, cfg.RateLimitRPM, cfg.RateLimitBurst)
	timeoutMW := middleware.NewTimeoutMiddleware(appLogger, cfg.RequestTimeout)
	requireAuth := middleware.RequireAuth(cfg)
	requireService := middleware.RequireServiceAuth(cfg)
	requireAdmin := middleware.RequireRole("admin")

	r.Get("/ws", deps.Realtime.Upgrade)

	r.Route("/", func(r chi.Router) {
		r.Use(rateLimiter.Handler)
		r.Use(timeoutMW.Handler)

		r.Route("/conversations", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", deps.Conversations.List)
			r.Get("/archived", deps.Conversations.ListArchived)
			r.Post("/", deps.Conversations.Create)
			r.Post("/bulk-delete", deps.Conversations.BulkDelete)
			r.Get("/{id}", deps.Conversations.Get)
			r.Get("/{id}/messages", deps.Conversations.Messages)
			r.Delete("/{id}", deps.Conversations.Delete)
			r.Post("/{id}/archive", deps.Conversations.Archive)
			r.Post("/{id}/unarchive", deps.Conversations.Unarchive)
			r.Post("/{id}/accept", deps.Conversations.Accept)
			r.Post("/{id}/report", deps.Conversations.Report)
			r.Patch("/{id}/read", deps.Conversations.MarkRead)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", deps.Messages.Send)
			r.Post("/document", deps.Messages.SendDocument)
			r.Post("/bulk-delete", deps.Messages.BulkDelete)
			r.Post("/forward", deps.Messages.Forward)
			r.Get("/{id}", deps.Messages.Get)
			r.Delete("/{id}", deps.Messages.Delete)
			r.Get("/{id}/document-url", deps.Messages.DocumentURL)
		})

		r.Route("/statuses", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", deps.Statuses.Feed)
			r.Post("/", deps.Statuses.Create)
			r.Get("/categories", deps.Statuses.Categories)
			r.Get("/my-statuses", deps.Statuses.MyStatuses)
			r.Get("/user/{userId}", deps.Statuses.ByUser)
			r.Get("/{id}", deps.Statuses.Get)
			r.Delete("/{id}", deps.Statuses.Delete)
			r.Post("/{id}/like", deps.Statuses.Like)
			r.Delete("/{id}/like", deps.Statuses.Unlike)
			r.Post("/{id}/repost", deps.Statuses.Repost)
			r.Post("/{id}/reply", deps.Statuses.Reply)
			r.Post("/{id}/view", deps.Statuses.View)
			r.Get("/{id}/interactions", deps.Statuses.Interactions)
		})

		r.Route("/tombolas", func(r chi.Router) {
			r.Get("/", deps.Tombolas.List)
			r.Get("/current", deps.Tombolas.Current)
			r.Get("/{monthId}/winners", deps.Tombolas.Winners)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/current/buy-ticket", deps.Tombolas.BuyTicket)
				r.Get("/tickets/me", deps.Tombolas.MyTickets)
			})

			r.Route("/webhooks", func(r chi.Router) {
				r.Use(requireService)
				r.Post("/payment-confirmation", deps.Tombolas.WebhookPaymentConfirmation)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAuth, requireAdmin)
				r.Post("/", deps.Tombolas.AdminCreate)
				r.Get("/{id}", deps.Tombolas.AdminGet)
				r.Patch("/{id}/status", deps.Tombolas.AdminSetStatus)
				r.Post("/{id}/draw", deps.Tombolas.AdminDraw)
				r.Get("/{id}/tickets", deps.Tombolas.AdminTickets)
				r.Get("/{id}/ticket-numbers", deps.Tombolas.AdminTicketNumbers)
			})
		})

		r.Route("/challenges", func(r chi.Router) {
			r.Get("/current", deps.Challenges.Current)
			r.Get("/{id}", deps.Challenges.Get)
			r.Get("/{id}/entrepreneurs", deps.Challenges.Entrepreneurs)
			r.Get("/{id}/leaderboard", deps.Challenges.Leaderboard)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/{id}/vote", deps.Challenges.Vote)
				r.Post("/{id}/support", deps.Challenges.Support)
				r.Get("/{id}/ticket-allowance", deps.Challenges.TicketAllowance)
			})

			r.Route("/webhooks", func(r chi.Router) {
				r.Use(requireService)
				r.Post("/payment-confirmation", deps.Challenges.WebhookPaymentConfirmation)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAuth, requireAdmin)
				r.Get("/", deps.Challenges.AdminList)
				r.Post("/", deps.Challenges.AdminCreate)
				r.Get("/{id}", deps.Challenges.AdminGet)
				r.Patch("/{id}", deps.Challenges.AdminPatchStatus)
				r.Delete("/{id}", deps.Challenges.AdminDelete)
				r.Post("/{id}/entrepreneurs", deps.Challenges.AdminAddEntrepreneur)
				r.Get("/{id}/entrepreneurs/{entrepreneurId}", deps.Challenges.AdminGetEntrepreneur)
				r.Post("/{id}/entrepreneurs/{entrepreneurId}/approve", deps.Challenges.AdminApproveEntrepreneur)
				r.Delete("/{id}/entrepreneurs/{entrepreneurId}", deps.Challenges.AdminDeleteEntrepreneur)
				r.Post("/{id}/close-voting", deps.Challenges.AdminCloseVoting)
				r.Post("/{id}/distribute-funds", deps.Challenges.AdminDistributeFunds)
				r.Get("/{id}/fund-summary", deps.Challenges.AdminFundSummary)
				r.Get("/{id}/analytics", deps.Challenges.AdminAnalytics)
				r.Get("/{id}/votes", deps.Challenges.AdminVotes)
			})
		})
	})

	return r
}

func writeHealth(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"status":"` + message + `"}`))
}

// mwMaxBodySize returns middleware that limits the request body size.
func mwMaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			max := maxBytes
			if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
				if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
					max = parsed
				}
			}

			if r.ContentLength > 0 && r.ContentLength > max {
				http.Error(w, `{"success":false,"message":"request body too large"}`, http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}

func mwRequestLogger(appLogger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			dur := time.Since(start)
			reqID := chimw.GetReqID(r.Context())
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", reqID).
				Int("status", rw.Status()).
				Dur("duration", dur).
				Msg("request completed")
		})
	}
}
