// Package api exposes the wizard engine over HTTP.
//
// Each client session owns a wizard.Session and its persistence
// coordinator; the server is a thin JSON layer over those. Sessions are
// kept in memory and addressed by id.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/propelhealth/onboardflow/internal/coordinator"
	"github.com/propelhealth/onboardflow/internal/models"
	"github.com/propelhealth/onboardflow/internal/notify"
	"github.com/propelhealth/onboardflow/internal/refdata"
	"github.com/propelhealth/onboardflow/internal/store"
	"github.com/propelhealth/onboardflow/internal/util"
	"github.com/propelhealth/onboardflow/internal/wizard"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr       string
	SaveWindow time.Duration
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSaveWindow sets the autosave debounce window for new sessions.
func WithSaveWindow(d time.Duration) Option {
	return func(o *Opts) { o.SaveWindow = d }
}

// Server hosts the wizard API.
type Server struct {
	schema   *models.FormSchema
	ref      *refdata.ReferenceData
	local    store.SnapshotStore
	remote   store.DraftStore
	notifier notify.Notifier
	opts     Opts

	mu       sync.Mutex
	sessions map[string]*coordinator.Coordinator

	httpServer *http.Server
}

// NewServer creates an API server over the given stores and reference data.
func NewServer(schema *models.FormSchema, ref *refdata.ReferenceData, local store.SnapshotStore, remote store.DraftStore, notifier notify.Notifier, opts ...Option) *Server {
	cfg := Opts{
		Addr:       ":8080",
		SaveWindow: coordinator.DefaultSaveWindow,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Server{
		schema:   schema,
		ref:      ref,
		local:    local,
		remote:   remote,
		notifier: notifier,
		opts:     cfg,
		sessions: make(map[string]*coordinator.Coordinator),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /schema", s.schemaHandler)
	mux.HandleFunc("GET /reference-data", s.referenceDataHandler)

	mux.HandleFunc("POST /sessions", s.createSessionHandler)
	mux.HandleFunc("GET /sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.closeSessionHandler)

	mux.HandleFunc("POST /sessions/{id}/answers", s.answersHandler)
	mux.HandleFunc("POST /sessions/{id}/next", s.nextHandler)
	mux.HandleFunc("POST /sessions/{id}/previous", s.previousHandler)
	mux.HandleFunc("POST /sessions/{id}/jump", s.jumpHandler)
	mux.HandleFunc("POST /sessions/{id}/review-edit", s.reviewEditHandler)
	mux.HandleFunc("POST /sessions/{id}/foreground", s.foregroundHandler)
	mux.HandleFunc("POST /sessions/{id}/retry-sync", s.retrySyncHandler)

	mux.HandleFunc("POST /sessions/{id}/restore-local", s.restoreLocalHandler)
	mux.HandleFunc("POST /sessions/{id}/discard-local", s.discardLocalHandler)
	mux.HandleFunc("GET /sessions/{id}/drafts", s.listDraftsHandler)
	mux.HandleFunc("POST /sessions/{id}/resume", s.resumeHandler)
	mux.HandleFunc("GET /sessions/{id}/export", s.exportHandler)
	mux.HandleFunc("POST /sessions/{id}/import", s.importHandler)
	mux.HandleFunc("POST /sessions/{id}/start-over", s.startOverHandler)
	mux.HandleFunc("POST /sessions/{id}/submit", s.submitHandler)

	return mux
}

// Run starts the HTTP server and blocks until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("OnboardFlow API listening", "addr", s.opts.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slog.Info("OnboardFlow API shutting down")
		s.closeAllSessions()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) closeAllSessions() {
	s.mu.Lock()
	coords := make([]*coordinator.Coordinator, 0, len(s.sessions))
	for _, c := range s.sessions {
		coords = append(coords, c)
	}
	s.sessions = make(map[string]*coordinator.Coordinator)
	s.mu.Unlock()
	for _, c := range coords {
		c.Close()
	}
}

// coordinatorFor looks up the session's coordinator by id.
func (s *Server) coordinatorFor(id string) *coordinator.Coordinator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

// newSession registers a wizard session with its own coordinator. The slot
// key is derived from the client key so a returning device finds its own
// local snapshot.
func (s *Server) newSession(clientKey string, identity *models.Identity) (string, *coordinator.Coordinator) {
	session := wizard.NewSession(s.schema, identity)
	slotKey := coordinator.DefaultSlotKey
	if clientKey != "" {
		slotKey = coordinator.DefaultSlotKey + ":" + clientKey
	}
	coord := coordinator.New(session, s.local, s.remote,
		coordinator.WithSlotKey(slotKey),
		coordinator.WithSaveWindow(s.opts.SaveWindow),
		coordinator.WithNotifier(s.notifier),
		coordinator.WithReferenceData(s.ref),
	)

	id := util.GenerateSessionID()
	s.mu.Lock()
	s.sessions[id] = coord
	s.mu.Unlock()

	slog.Info("Server created session", "sessionID", id, "slotKey", slotKey)
	return id, coord
}
