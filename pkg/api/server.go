package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hearthshare/larder/pkg/access"
	"github.com/hearthshare/larder/pkg/catalog"
	"github.com/hearthshare/larder/pkg/cleanup"
	"github.com/hearthshare/larder/pkg/copyonwrite"
	"github.com/hearthshare/larder/pkg/observability"
	"github.com/hearthshare/larder/pkg/storage"
	"github.com/hearthshare/larder/pkg/subscriptions"
)

// Server wires the catalog services to HTTP routes.
type Server struct {
	router        *mux.Router
	conns         *storage.ConnectionManager
	resolver      *access.Resolver
	checker       *access.Checker
	subscriptions *subscriptions.Manager
	engine        *copyonwrite.Engine
	cleaner       *cleanup.Cleaner
	logger        *observability.Logger
	metrics       *observability.Metrics
	tracing       bool
}

// Options configures a Server.
type Options struct {
	Connections   *storage.ConnectionManager
	Resolver      *access.Resolver
	Checker       *access.Checker
	Subscriptions *subscriptions.Manager
	Engine        *copyonwrite.Engine
	Cleaner       *cleanup.Cleaner
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	Tracing       bool
}

// NewServer builds the router with all routes and middleware attached.
func NewServer(opts Options) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		conns:         opts.Connections,
		resolver:      opts.Resolver,
		checker:       opts.Checker,
		subscriptions: opts.Subscriptions,
		engine:        opts.Engine,
		cleaner:       opts.Cleaner,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		tracing:       opts.Tracing,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(requestIDMiddleware)
	api.Use(householdMiddleware)
	api.Use(s.loggingMiddleware)

	api.HandleFunc("/access/{type}/{id:[0-9]+}", s.handleGetAccessInfo).Methods(http.MethodGet)
	api.HandleFunc("/access/validate", s.handleValidateAccessBulk).Methods(http.MethodPost)
	api.HandleFunc("/access/{type}/{id:[0-9]+}/actions/{action}", s.handleValidateAction).Methods(http.MethodGet)

	api.HandleFunc("/collections/{id:[0-9]+}/subscription", s.handleSubscribe).Methods(http.MethodPut)
	api.HandleFunc("/collections/{id:[0-9]+}/subscription", s.handleUnsubscribe).Methods(http.MethodDelete)
	api.HandleFunc("/subscriptions", s.handleListSubscriptions).Methods(http.MethodGet)
	api.HandleFunc("/subscriptions/stats", s.handleSubscriptionStats).Methods(http.MethodGet)

	api.HandleFunc("/collections/{id:[0-9]+}/fork", s.handleForkCollection).Methods(http.MethodPost)
	api.HandleFunc("/recipes/{id:[0-9]+}/fork", s.handleForkRecipe).Methods(http.MethodPost)
	api.HandleFunc("/ingredients/{id:[0-9]+}/fork", s.handleForkIngredient).Methods(http.MethodPost)
	api.HandleFunc("/collections/{collectionID:[0-9]+}/recipes/{recipeID:[0-9]+}/fork",
		s.handleCascadeFork).Methods(http.MethodPost)
	api.HandleFunc("/collections/{collectionID:[0-9]+}/recipes/{recipeID:[0-9]+}/edit",
		s.handleTriggerCascadeFork).Methods(http.MethodPost)
	api.HandleFunc("/collections/{collectionID:[0-9]+}/recipes/{recipeID:[0-9]+}/ingredients/{ingredientID:[0-9]+}/fork",
		s.handleCascadeForkIngredient).Methods(http.MethodPost)

	api.HandleFunc("/recipes/{id:[0-9]+}", s.handleDeleteRecipe).Methods(http.MethodDelete)
}

// Handler returns the HTTP handler, wrapped for tracing when enabled.
func (s *Server) Handler() http.Handler {
	if s.tracing {
		return otelhttp.NewHandler(s.router, "larder")
	}
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.conns.HealthCheck(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unhealthy")
		return
	}
	if s.metrics != nil {
		s.metrics.UpdateDBStats(s.conns.Stats())
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the domain error taxonomy onto status codes.
func (s *Server) writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	var notFound *catalog.NotFoundError
	var constraint *catalog.ConstraintViolationError
	var exhausted *catalog.PoolExhaustionError

	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.Is(err, subscriptions.ErrOwnCollection),
		errors.Is(err, subscriptions.ErrPrivateCollection):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &constraint):
		writeError(w, http.StatusConflict, "constraint violation")
	case errors.As(err, &exhausted):
		writeError(w, http.StatusServiceUnavailable, "database busy, retry later")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		observability.FromContext(ctx).WithError(err).Error("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
