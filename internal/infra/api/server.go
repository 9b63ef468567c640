package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	red "vendor-billing/internal/infra/redis"
	"vendor-billing/internal/infra/worker"
	"vendor-billing/internal/usecase"
)

// SweepRunner runs one named lifecycle sweep now.
type SweepRunner interface {
	Run(ctx context.Context, name string) (usecase.SweepReport, error)
}

type TaskSubmitter interface {
	Submit(name string, task worker.Task) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Deps struct {
	Subscriptions usecase.SubscriptionUseCase
	Payments      usecase.PaymentUseCase
	Packages      usecase.PackageUseCase
	Stats         usecase.StatsUseCase
	Sweeps        SweepRunner
	Pool          TaskSubmitter
	Limiter       RateLimiter
	Auth          *AuthManager
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Ready backs /health.
	Ready func(ctx context.Context) error
}

type Options struct {
	RequestTimeout     time.Duration
	AllowedOrigins     []string
	RateLimitPerMinute int
	// CallbackToken must match the token query parameter of M-Pesa callbacks.
	CallbackToken string
	Dev           bool
}

type Server struct {
	deps Deps
	opts Options
	log  *zerolog.Logger
}

func NewServer(deps Deps, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"https://*", "http://*"}
	}
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{deps: deps, opts: opts, log: &l}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(TraceID())
	r.Use(RequestLog(s.log))
	r.Use(Recover(s.log))
	r.Use(Timeout(s.opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics)
	}

	// Daraja authenticates with the shared callback token, not a JWT.
	r.Post("/subscriptions/mpesa/callback", s.handleMpesaCallback)

	r.Group(func(r chi.Router) {
		r.Use(s.deps.Auth.Authenticate)

		r.Route("/subscriptions", func(r chi.Router) {
			r.With(s.rateLimit("subscribe")).Post("/subscribe", s.handleSubscribe)
			r.With(s.rateLimit("renew")).Post("/renew/{subscriptionId}", s.handleRenew)
			r.Get("/current", s.handleCurrent)
			r.Get("/history", s.handleHistory)
			r.Post("/{subscriptionId}/cancel", s.handleCancel)
			r.Patch("/{subscriptionId}/auto-renew", s.handleAutoRenew)
			r.Get("/{subscriptionId}/payment-status", s.handlePaymentStatus)

			r.With(RequireAdmin).Post("/check-expiring", s.handleCheckExpiring)
		})

		r.Route("/packages", func(r chi.Router) {
			r.Get("/", s.handleListPackages)
			r.Get("/{packageId}", s.handleGetPackage)
			r.With(RequireAdmin).Post("/", s.handleCreatePackage)
			r.With(RequireAdmin).Delete("/{packageId}", s.handleDeactivatePackage)
		})

		r.With(RequireAdmin).Get("/admin/stats", s.handleStats)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// rateLimit caps an action per vendor per minute. Limiter failures let the
// request through.
func (s *Server) rateLimit(action string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, _ := ActorFrom(r.Context())
			if s.deps.Limiter == nil || s.opts.RateLimitPerMinute <= 0 || actor.IsAdmin() {
				next.ServeHTTP(w, r)
				return
			}
			ok, err := s.deps.Limiter.Allow(r.Context(), red.VendorActionKey(actor.UserID, action), s.opts.RateLimitPerMinute, time.Minute)
			if err != nil {
				s.log.Warn().Err(err).Str("action", action).Msg("rate limiter unavailable")
			} else if !ok {
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
