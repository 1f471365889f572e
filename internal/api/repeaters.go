package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nmoncrief/meshgate/internal/store"
)

// repeaterView is the JSON shape of one repeater. The stored admin
// password never leaves the server.
type repeaterView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
	Enabled   bool   `json:"enabled"`
	CreatedAt string `json:"created_at"`
}

func viewRepeater(r *store.Repeater) repeaterView {
	return repeaterView{
		ID:        r.ID,
		Name:      r.Name,
		PublicKey: r.PublicKey,
		Enabled:   r.Enabled,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// handleListRepeaters returns every monitored repeater.
func (s *Server) handleListRepeaters(w http.ResponseWriter, r *http.Request) {
	reps, err := s.repeaters.List(r.Context())
	if err != nil {
		s.logger.Error("listing repeaters", "error", err)
		writeInternalError(w, "listing repeaters failed")
		return
	}
	views := make([]repeaterView, 0, len(reps))
	for i := range reps {
		views = append(views, viewRepeater(&reps[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"repeaters": views})
}

// createRepeaterRequest is the POST /repeaters payload.
type createRepeaterRequest struct {
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
	Password  string `json:"password"`
}

// handleCreateRepeater registers a repeater for monitoring.
func (s *Server) handleCreateRepeater(w http.ResponseWriter, r *http.Request) {
	var req createRepeaterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeBadRequest(w, "name is required")
		return
	}
	if strings.TrimSpace(req.PublicKey) == "" {
		writeBadRequest(w, "public_key is required")
		return
	}

	created, err := s.repeaters.Create(r.Context(), strings.TrimSpace(req.Name), req.PublicKey, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewRepeater(created))
}

// handleGetRepeater returns one repeater.
func (s *Server) handleGetRepeater(w http.ResponseWriter, r *http.Request) {
	rep, err := s.repeaters.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewRepeater(rep))
}

// updateRepeaterRequest is the PATCH /repeaters/{id} payload. Absent fields
// keep their current value.
type updateRepeaterRequest struct {
	Name      *string `json:"name"`
	PublicKey *string `json:"public_key"`
	Password  *string `json:"password"`
}

// handleUpdateRepeater writes a new version of the repeater.
func (s *Server) handleUpdateRepeater(w http.ResponseWriter, r *http.Request) {
	var req updateRepeaterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == nil && req.PublicKey == nil && req.Password == nil {
		writeBadRequest(w, "nothing to update")
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeBadRequest(w, "name must not be empty")
		return
	}
	if req.PublicKey != nil && strings.TrimSpace(*req.PublicKey) == "" {
		writeBadRequest(w, "public_key must not be empty")
		return
	}

	updated, err := s.repeaters.Update(r.Context(), chi.URLParam(r, "id"), req.Name, req.PublicKey, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewRepeater(updated))
}

// handleDeleteRepeater removes a repeater and its version history.
func (s *Server) handleDeleteRepeater(w http.ResponseWriter, r *http.Request) {
	if err := s.repeaters.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleEnableRepeater resumes polling a repeater.
func (s *Server) handleEnableRepeater(w http.ResponseWriter, r *http.Request) {
	s.setRepeaterEnabled(w, r, true)
}

// handleDisableRepeater pauses polling a repeater without forgetting it.
func (s *Server) handleDisableRepeater(w http.ResponseWriter, r *http.Request) {
	s.setRepeaterEnabled(w, r, false)
}

func (s *Server) setRepeaterEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	updated, err := s.repeaters.SetEnabled(r.Context(), chi.URLParam(r, "id"), enabled)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewRepeater(updated))
}

// handlePollRepeaters triggers an immediate telemetry cycle in the
// background and returns right away; results land in the telemetry store
// the same way a scheduled cycle's do.
func (s *Server) handlePollRepeaters(w http.ResponseWriter, _ *http.Request) {
	if s.poller == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "telemetry polling is not running")
		return
	}

	go func() {
		// Detached from the request: the poll outlives the HTTP response.
		count, err := s.poller.PollOnce(context.Background())
		if err != nil {
			s.logger.Warn("manual telemetry poll failed", "error", err)
			return
		}
		s.logger.Info("manual telemetry poll finished", "points", count)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "poll_started"})
}
