package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/vincentbai/browsetrace-sessions/internal/database"
	"github.com/vincentbai/browsetrace-sessions/internal/logger"
	"github.com/vincentbai/browsetrace-sessions/internal/models"
	"github.com/vincentbai/browsetrace-sessions/internal/sessionize"
	"github.com/vincentbai/browsetrace-sessions/internal/sink"
)

const shutdownTimeout = 30 * time.Second

type Server struct {
	db      *database.Database
	address string
	options sessionize.Options
	log     logger.Logger
	server  *http.Server
}

func NewServer(db *database.Database, address string, options sessionize.Options, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{
		db:      db,
		address: address,
		options: options,
		log:     log,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

func (s *Server) handleEvents(w http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var batch models.Batch
	if err := json.NewDecoder(request.Body).Decode(&batch); err != nil {
		if errors.Is(err, models.ErrMalformedInput) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if len(batch.Events) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	for _, event := range batch.Events {
		if err := s.db.ValidateEvent(event); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
	}
	if err := s.db.InsertEvents(request.Context(), batch.Events); err != nil {
		s.log.Error("Database error", logger.Error(err))
		http.Error(w, "Failed to store events", http.StatusInternalServerError)
		return
	}
	s.log.Debug("Events stored", logger.Int("events", len(batch.Events)))
	w.WriteHeader(http.StatusNoContent) // success, no body
}

// handleSessions windows every stored event and returns the sink document.
func (s *Server) handleSessions(w http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	events, err := s.db.Events(request.Context())
	if err != nil {
		s.log.Error("Failed to load events", logger.Error(err))
		http.Error(w, "Failed to load events", http.StatusInternalServerError)
		return
	}
	payload, digest, err := sink.Encode(sessionize.Run(events, s.options))
	if err != nil {
		s.log.Error("Failed to encode sessions", logger.Error(err))
		http.Error(w, "Failed to encode sessions", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", `"`+digest+`"`)
	w.Write(payload)
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/sessions", s.handleSessions)
	return mux
}

// Start serves until ctx is canceled and then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.server = &http.Server{
		Handler:      s.setupRoutes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.log.Info("BrowserTrace agent listening", logger.String("address", listener.Addr().String()))
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	s.log.Info("Shutting down server...")

	shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownContext); err != nil {
		return err
	}

	s.log.Info("Server exited")
	return nil
}
