package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"outletpos/backend/internal/closing"
	"outletpos/backend/internal/domain"
	"outletpos/backend/internal/service"
	"outletpos/backend/internal/store"
)

type Options struct {
	AllowedOrigin      string
	LoginRatePerMinute int
	Logger             *slog.Logger
}

type API struct {
	service *service.Service
	auth    *AuthManager
	opts    Options
	log     *slog.Logger
	router  http.Handler
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.LoginRatePerMinute < 1 {
		opts.LoginRatePerMinute = 10
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	a := &API{
		service: svc,
		auth:    auth,
		opts:    opts,
		log:     opts.Logger,
	}
	a.router = a.routes()
	return a
}

// Handler returns the router built once in New, so rate-limit state is
// shared across calls.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(a.log, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS,
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.opts.AllowedOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(securityHeaders)

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(httprate.LimitByIP(a.opts.LoginRatePerMinute, time.Minute)).Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Get("/products", a.handleListProducts)

			r.Post("/attendance/clock-in", a.handleClockIn)
			r.Post("/attendance/clock-out", a.handleClockOut)

			r.Get("/closings/current", a.handleCurrentClosing)
			r.Post("/closings", a.handleSubmitClosing)
			r.Get("/closings/{id}/report", a.handleClosingReport)

			r.Post("/transactions", a.handleCheckout)
			r.Post("/expenses", a.handleExpense)
			r.Post("/production", a.handleProduction)
			r.Post("/purchases", a.handlePurchase)
			r.Post("/transfers", a.handleCreateTransfer)
			r.Post("/transfers/{id}/respond", a.handleRespondTransfer)
			r.Get("/inventory", a.handleInventory)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(domain.RoleOwner, domain.RoleManager))
				r.Post("/transactions/{id}/void", a.handleVoidTransaction)
				r.Get("/audit-logs", a.handleAuditLogs)
			})
		})
	})

	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func requireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok || !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isRoleAllowed(role domain.Role, allowed []domain.Role) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		next.ServeHTTP(w, r)
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	// A denied approver wraps the credential error, so it is matched first.
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, closing.ErrApprovalDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUnauthenticated),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInactiveAccount):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, closing.ErrAlreadyClosed),
		errors.Is(err, store.ErrDuplicateClosing),
		errors.Is(err, closing.ErrCommitInFlight),
		errors.Is(err, closing.ErrInvalidState),
		errors.Is(err, service.ErrAlreadyClockedIn),
		errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, closing.ErrNoAttendance),
		errors.Is(err, closing.ErrNegativeCash),
		errors.Is(err, closing.ErrReasonRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, closing.ErrCommitFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func errorMessage(status int, err error) string {
	// 5xx bodies stay generic; the cause goes to the log only.
	if status >= 500 {
		slog.Error("internal error", "status", status, "error", err)
		if status == http.StatusServiceUnavailable {
			return "temporarily unavailable, please retry"
		}
		return "internal server error"
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"error": errorMessage(status, err),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
