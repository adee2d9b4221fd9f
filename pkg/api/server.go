package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/arborhq/arbor/pkg/auth"
	"github.com/arborhq/arbor/pkg/graph"
	"github.com/arborhq/arbor/pkg/observability"
	"github.com/arborhq/arbor/pkg/permission"
	"github.com/arborhq/arbor/pkg/version"
)

// Server represents our API server
type Server struct {
	router    *mux.Router
	store     *graph.Store
	resolver  *permission.Resolver
	updater   *permission.Updater
	projector *permission.Projector
	versions  *version.Service
	events    permission.EventSink
	audit     *auth.AuditLogger
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// Deps bundles the services the API server dispatches to.
type Deps struct {
	Store     *graph.Store
	Resolver  *permission.Resolver
	Updater   *permission.Updater
	Projector *permission.Projector
	Versions  *version.Service
	// Events receives a sync event whenever a node is created, so its
	// search document materializes without waiting for the sweep. Nil
	// disables this.
	Events  permission.EventSink
	Audit   *auth.AuditLogger
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		store:     deps.Store,
		resolver:  deps.Resolver,
		updater:   deps.Updater,
		projector: deps.Projector,
		versions:  deps.Versions,
		events:    deps.Events,
		audit:     deps.Audit,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Node routes
	s.router.HandleFunc("/api/v1/nodes", s.createNode).Methods("POST")
	s.router.HandleFunc("/api/v1/nodes/{id}", s.getNode).Methods("GET")

	// Permission routes
	s.router.HandleFunc("/api/v1/nodes/{id}/permissions", s.getNodePermissions).Methods("GET")
	s.router.HandleFunc("/api/v1/nodes/{id}/permissions", s.updateNodePermissions).Methods("PUT")
	s.router.HandleFunc("/api/v1/nodes/{id}/current-user-permissions", s.getCurrentUserPermissions).Methods("GET")

	// Version eligibility and transition routes
	s.router.HandleFunc("/api/v1/nodes/{id}/can-publish", s.canPublish).Methods("GET")
	s.router.HandleFunc("/api/v1/nodes/{id}/can-create-draft", s.canCreateDraft).Methods("GET")
	s.router.HandleFunc("/api/v1/nodes/{id}/publish", s.publish).Methods("POST")
	s.router.HandleFunc("/api/v1/nodes/{id}/create-draft", s.createDraft).Methods("POST")

	// Caller-scoped routes
	s.router.HandleFunc("/api/v1/users/me/accessible-nodes", s.listAccessibleNodes).Methods("GET")
}

// Router exposes the mux router so callers can attach middleware.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
