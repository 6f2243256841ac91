package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/gesturejump/internal/gesture"
	"github.com/ayusman/gesturejump/internal/store"
)

// SessionHandler serves recorded sessions and their gesture events.
type SessionHandler struct {
	store *store.Store
}

// NewSessionHandler creates a new SessionHandler with the given store.
func NewSessionHandler(s *store.Store) *SessionHandler {
	return &SessionHandler{store: s}
}

// Routes registers the session routes on r.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Get("/sessions", h.list)
	r.Get("/sessions/{id}", h.get)
	r.Get("/sessions/{id}/events", h.events)
}

type sessionResponse struct {
	ID              string  `json:"id"`
	StartedAt       string  `json:"started_at"`
	EndedAt         *string `json:"ended_at,omitempty"`
	CameraAvailable bool    `json:"camera_available"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type eventResponse struct {
	ID         int64   `json:"id"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Percent    string  `json:"percent"`
	ObservedAt string  `json:"observed_at"`
}

type listEventsResponse struct {
	SessionID string          `json:"session_id"`
	Events    []eventResponse `json:"events"`
}

func toSessionResponse(s *store.Session) sessionResponse {
	resp := sessionResponse{
		ID:              s.ID,
		StartedAt:       formatTime(s.StartedAt),
		CameraAvailable: s.CameraAvailable,
	}
	if s.EndedAt != nil {
		ended := formatTime(*s.EndedAt)
		resp.EndedAt = &ended
	}
	return resp
}

// list handles GET /api/sessions. An optional limit query parameter caps
// the number of sessions returned.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	sessions, err := h.store.Sessions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	response := listSessionsResponse{Sessions: make([]sessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		response.Sessions = append(response.Sessions, toSessionResponse(s))
	}
	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/sessions/{id}.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(s))
}

// events handles GET /api/sessions/{id}/events.
func (h *SessionHandler) events(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	events, err := h.store.Events().ListBySession(s.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	response := listEventsResponse{SessionID: s.ID, Events: make([]eventResponse, 0, len(events))}
	for _, e := range events {
		response.Events = append(response.Events, eventResponse{
			ID:         e.ID,
			Label:      string(e.Label),
			Confidence: e.Confidence,
			Percent:    gesture.FormatPercent(e.Confidence),
			ObservedAt: formatTime(e.ObservedAt),
		})
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *SessionHandler) lookup(w http.ResponseWriter, id string) (*store.Session, bool) {
	s, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return nil, false
	}
	return s, true
}
