// Package api provides HTTP handlers for OnboardFlow endpoints.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/propelhealth/onboardflow/internal/coordinator"
	"github.com/propelhealth/onboardflow/internal/models"
)

// maxImportSize bounds an imported draft file.
const maxImportSize = 4 << 20

// stepSummary is the step listing shape in a session view.
type stepSummary struct {
	StepID       string `json:"step_id"`
	Title        string `json:"title"`
	IsReviewStep bool   `json:"is_review_step,omitempty"`
}

// sessionView is the full session state returned after every mutation.
type sessionView struct {
	SessionID        string            `json:"session_id"`
	CurrentStepIndex int               `json:"current_step_index"`
	FurthestReached  int               `json:"furthest_reached_step_index"`
	ReturnToReview   bool              `json:"return_to_review"`
	CurrentStep      models.StepDef    `json:"current_step"`
	VisibleSteps     []stepSummary     `json:"visible_steps"`
	Errors           map[string]string `json:"errors,omitempty"`
	Answers          models.AnswerSet  `json:"answers"`
	SaveState        models.SaveState  `json:"save_state"`
	LocalHealthy     bool              `json:"local_healthy"`
	DraftID          string            `json:"draft_id,omitempty"`
	LastSavedAt      *time.Time        `json:"last_saved_at,omitempty"`
}

func (s *Server) sessionViewFor(id string, coord *coordinator.Coordinator) sessionView {
	session := coord.Session()
	nav := session.State()

	visible := session.VisibleSteps()
	steps := make([]stepSummary, 0, len(visible))
	for _, step := range visible {
		steps = append(steps, stepSummary{StepID: step.StepID, Title: step.Title, IsReviewStep: step.IsReviewStep})
	}

	view := sessionView{
		SessionID:        id,
		CurrentStepIndex: nav.CurrentStepIndex,
		FurthestReached:  nav.FurthestReachedStepIndex,
		ReturnToReview:   nav.ReturnToReview,
		CurrentStep:      session.CurrentStep(),
		VisibleSteps:     steps,
		Errors:           session.Errors(),
		Answers:          session.Answers(),
		SaveState:        coord.RemoteState(),
		LocalHealthy:     coord.LocalHealthy(),
		DraftID:          coord.DraftID(),
	}
	if saved := coord.LastSavedAt(); !saved.IsZero() {
		view.LastSavedAt = &saved
	}
	return view
}

// requireSession resolves the {id} path segment to a coordinator, writing a
// 404 when the session does not exist.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (string, *coordinator.Coordinator, bool) {
	id := r.PathValue("id")
	coord := s.coordinatorFor(id)
	if coord == nil {
		slog.Warn("Server: unknown session", "sessionID", id, "path", r.URL.Path)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return "", nil, false
	}
	return id, coord, true
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}

func (s *Server) schemaHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.schema))
}

func (s *Server) referenceDataHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.ref))
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.createSessionHandler invoked")

	var req struct {
		ClientKey string           `json:"client_key"`
		Identity  *models.Identity `json:"identity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("Server.createSessionHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	id, coord := s.newSession(req.ClientKey, req.Identity)

	// Surface a pending local snapshot so the client can offer resume.
	hasLocal := false
	if snap, err := coord.LoadLocalSnapshot(); err != nil {
		slog.Error("Server.createSessionHandler local snapshot check failed", "error", err, "sessionID", id)
	} else {
		hasLocal = snap != nil
	}

	result := map[string]interface{}{
		"session":         s.sessionViewFor(id, coord),
		"has_local_draft": hasLocal,
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(result))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessionViewFor(id, coord)))
}

func (s *Server) closeSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	coord := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if coord == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	coord.Close()
	slog.Info("Server closed session", "sessionID", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session closed", nil))
}

func (s *Server) answersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id, coord, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req struct {
		Values map[string]interface{} `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.answersHandler invalid JSON", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if len(req.Values) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("No answer values provided"))
		return
	}

	coord.Session().SetAnswers(req.Values)
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessionViewFor(id, coord)))
}

func (s *Server) nextHandler(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	validation := coord.Session().Next()
	result := map[string]interface{}{
		"validation": validation,
		"session":    s.sessionViewFor(id, coord),
	}
	if !validation.IsValid {
		slog.Debug("Server.nextHandler advance blocked", "sessionID", id, "errors", len(validation.Errors))
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) previousHandler(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	coord.Session().Previous()
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessionViewFor(id, coord)))
}

func (s *Server) jumpHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id, coord, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if !coord.Session().JumpTo(req.Index) {
		slog.Debug("Server.jumpHandler jump rejected", "sessionID", id, "index", req.Index)
		writeJSONResponse(w, http.StatusForbidden, models.Error("Step is not yet reachable"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessionViewFor(id, coord)))
}

func (s *Server) reviewEditHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id, coord, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req struct {
		StepID string `json:"step_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if !coord.Session().EditFromReview(req.StepID) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown or hidden step"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessionViewFor(id, coord)))
}

func (s *Server) foregroundHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id, coord, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req struct {
		Foreground bool `json:"foreground"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	coord.SetForeground(req.Foreground)
	slog.Debug("Server.foregroundHandler updated visibility", "sessionID", id, "foreground", req.Foreground)
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessionViewFor(id, coord)))
}

func (s *Server) retrySyncHandler(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	coord.RetryRemote()
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessionViewFor(id, coord)))
}

func (s *Server) restoreLocalHandler(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	restored, err := coord.RestoreLocal()
	if err != nil {
		slog.Error("Server.restoreLocalHandler failed", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to restore local draft"))
		return
	}
	if !restored {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No local draft found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessionViewFor(id, coord)))
}

func (s *Server) discardLocalHandler(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if err := coord.DiscardLocal(); err != nil {
		slog.Error("Server.discardLocalHandler failed", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to discard local draft"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Local draft discarded", nil))
}

func (s *Server) listDraftsHandler(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	email := r.URL.Query().Get("email")
	summaries, err := coord.ListRemoteDrafts(email)
	if err != nil {
		if errors.Is(err, models.ErrNoSubmitterEmail) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("An email address is required"))
			return
		}
		slog.Error("Server.listDraftsHandler failed", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list drafts"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(summaries))
}

func (s *Server) resumeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id, coord, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req struct {
		DraftID      string `json:"draft_id"`
		ContactEmail string `json:"contact_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := coord.ResumeRemoteDraft(req.DraftID, req.ContactEmail); err != nil {
		if errors.Is(err, models.ErrResumeVerification) {
			writeJSONResponse(w, http.StatusForbidden, models.Error(err.Error()))
			return
		}
		slog.Error("Server.resumeHandler failed", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to resume draft"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessionViewFor(id, coord)))
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	data, err := coord.Export()
	if err != nil {
		slog.Error("Server.exportHandler failed", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to export draft"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="onboarding-draft.json"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("Server.exportHandler write failed", "error", err, "sessionID", id)
	}
}

func (s *Server) importHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id, coord, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read draft file"))
		return
	}

	if err := coord.Import(data); err != nil {
		if errors.Is(err, models.ErrMalformedImport) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.importHandler failed", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to import draft"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessionViewFor(id, coord)))
}

func (s *Server) startOverHandler(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if err := coord.StartOver(); err != nil {
		slog.Error("Server.startOverHandler failed", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start over"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessionViewFor(id, coord)))
}

func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request) {
	id, coord, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	doc, err := coord.Submit(r.Context())
	if err != nil {
		if errors.Is(err, models.ErrNoSubmitterEmail) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("A submitter email is required before submitting"))
			return
		}
		slog.Error("Server.submitHandler failed", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store submission"))
		return
	}

	slog.Info("Server.submitHandler submission accepted", "sessionID", id, "draftID", coord.DraftID())
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Submission received", doc))
}
