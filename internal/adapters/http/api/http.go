// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/gubs/internal/adapters/http/swagger"
	service "github.com/okian/gubs/internal/app"
	"github.com/okian/gubs/internal/domain/fault"
	"github.com/okian/gubs/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EconomyDependencies
	AdminDependencies
	LeaderboardDependencies
	RankDependencies
}

// Read shapes returned by the economy.
type (
	Entry = service.Entry
	State = service.State
)

// DefaultUIDHeader carries the caller identity set by the trusted gateway.
const DefaultUIDHeader = "X-Gubs-UID"

const maxBodyBytes = 64 << 10

// Server wires HTTP routes for the economy API.
type Server struct {
	router  *chi.Mux
	limiter *UserRateLimiter

	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	economyHandler     *EconomyHandler
	adminHandler       *AdminHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler

	uidHeader string
	maxLimit  int
	rps       float64
	burst     int
	logger    logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		uidHeader: DefaultUIDHeader,
		maxLimit:  service.DefaultMaxLeaderboardLimit,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rps > 0 {
		s.limiter = NewUserRateLimiter(s.rps, s.burst)
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.economyHandler = NewEconomyHandler(deps)
	s.adminHandler = NewAdminHandler(deps)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.maxLimit)
	s.rankHandler = NewRankHandler(deps)

	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the rate limiter.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	r.Get("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	r.Get("/rank/{uid}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	swagger.Register(r)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/catalog", MetricsMiddleware(s.economyHandler.HandleCatalog, "catalog"))

		r.Group(func(r chi.Router) {
			r.Use(s.identityMiddleware)
			r.Use(s.rateLimitMiddleware)

			r.Post("/sync", MetricsMiddleware(s.economyHandler.HandleSync, "sync"))
			r.Post("/purchase/item", MetricsMiddleware(s.economyHandler.HandlePurchaseItem, "purchase_item"))
			r.Post("/purchase/upgrade", MetricsMiddleware(s.economyHandler.HandlePurchaseUpgrade, "purchase_upgrade"))
			r.Put("/profile/username", MetricsMiddleware(s.economyHandler.HandleSetUsername, "username"))
			r.Get("/state", MetricsMiddleware(s.economyHandler.HandleState, "state"))

			r.Post("/admin/score", MetricsMiddleware(s.adminHandler.HandleUpdateScore, "admin_score"))
			r.Post("/admin/delete", MetricsMiddleware(s.adminHandler.HandleDeleteUser, "admin_delete"))
		})
	})
}

type contextKey string

const uidContextKey contextKey = "uid"

// UIDFromContext returns the caller identity stored by the identity
// middleware.
func UIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(uidContextKey).(string)
	return uid
}

// WithUID returns a copy of ctx carrying uid.
func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, uidContextKey, uid)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFault renders err using its fault kind.
func writeFault(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), fault.Code(err), fault.Message(err))
}

// statusFor maps fault kinds onto HTTP status codes.
func statusFor(err error) int {
	switch fault.KindOf(err) {
	case fault.ErrInvalidArgument:
		return http.StatusBadRequest
	case fault.ErrUnauthenticated:
		return http.StatusUnauthorized
	case fault.ErrPermissionDenied:
		return http.StatusForbidden
	case fault.ErrNotFound:
		return http.StatusNotFound
	case fault.ErrFailedPrecondition:
		return http.StatusPreconditionFailed
	case fault.ErrAborted:
		return http.StatusConflict
	case fault.ErrResourceExhausted:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a single JSON object from the request body into v.
func decode(w http.ResponseWriter, r *http.Request, op string, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fault.Wrap(op, fault.ErrInvalidArgument, "Invalid request body", fmt.Errorf("%w: %w", ErrBadRequest, err))
	}
	if dec.More() {
		return fault.Wrap(op, fault.ErrInvalidArgument, "Invalid request body", ErrBadRequest)
	}
	return nil
}
