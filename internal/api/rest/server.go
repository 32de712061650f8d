package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fortuna/nightbox/internal/logging"
)

// Server represents the REST API server.
type Server struct {
	server  *http.Server
	handler *Handler
}

// NewServer creates a new REST API server.
func NewServer(addr string, handler *Handler, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}

	router := mux.NewRouter()
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggingMiddleware(logger))

	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/push", handler.ReceivePush).Methods("POST")
	api.HandleFunc("/report/latest", handler.LatestBatch).Methods("GET")
	api.HandleFunc("/run", handler.TriggerRun).Methods("POST")

	return &Server{
		handler: handler,
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start starts the REST API server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
