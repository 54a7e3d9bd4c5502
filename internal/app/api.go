package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/noisewatch/internal/monitor"
	"github.com/MrWong99/noisewatch/internal/observe"
	"github.com/MrWong99/noisewatch/internal/profile"
	"github.com/MrWong99/noisewatch/internal/store"
)

// maxBodyBytes bounds request bodies of the JSON endpoints.
const maxBodyBytes = 1 << 16

type liveResponse struct {
	monitor.Snapshot
	Session *monitor.SessionInfo `json:"session,omitempty"`
}

type settingsResponse struct {
	NotificationsEnabled bool             `json:"notificationsEnabled"`
	SelectedProfile      *profile.Profile `json:"selectedProfile,omitempty"`
}

// settingsRequest is a partial update; nil fields are left unchanged. An
// empty profile name clears the selection.
type settingsRequest struct {
	NotificationsEnabled *bool   `json:"notificationsEnabled"`
	Profile              *string `json:"profile"`
}

type sessionRequest struct {
	StartedBy string `json:"startedBy"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// routes builds the API mux wrapped in the observability middleware.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/live", a.handleLive)
	mux.HandleFunc("GET /api/notifications", a.handleNotifications)
	mux.HandleFunc("POST /api/notifications/{id}/viewed", a.handleMarkViewed)
	mux.HandleFunc("GET /api/events", a.handleEvents)
	mux.HandleFunc("GET /api/settings", a.handleGetSettings)
	mux.HandleFunc("PATCH /api/settings", a.handlePatchSettings)
	mux.HandleFunc("GET /api/profiles", a.handleProfiles)
	mux.HandleFunc("GET /api/session", a.handleSession)
	mux.HandleFunc("POST /api/session/start", a.handleSessionStart)
	mux.HandleFunc("POST /api/session/stop", a.handleSessionStop)
	if a.hub != nil {
		mux.Handle("GET /ws", a.hub)
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	a.health.Register(mux)

	return observe.Middleware(a.metrics)(mux)
}

func (a *App) handleLive(w http.ResponseWriter, _ *http.Request) {
	resp := liveResponse{Snapshot: a.live.Snapshot()}
	if a.sessions.IsActive() {
		info := a.sessions.Info()
		resp.Session = &info
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	items, err := a.notifications.RecentNotifications(r.Context(), store.LimitOrDefault(limit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *App) handleMarkViewed(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := a.notifications.MarkViewed(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("since must be an RFC 3339 timestamp"))
			return
		}
		since = t
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	events, err := a.events.EventsSince(r.Context(), since, store.LimitOrDefault(limit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (a *App) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	resp, err := a.currentSettings(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Profile != nil {
		if _, err := a.prefs.Select(r.Context(), *req.Profile); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, profile.ErrUnknownProfile) {
				status = http.StatusNotFound
			}
			writeError(w, status, err)
			return
		}
	}
	if req.NotificationsEnabled != nil {
		if err := a.prefs.SetNotificationsEnabled(r.Context(), *req.NotificationsEnabled); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	a.handleGetSettings(w, r)
}

func (a *App) currentSettings(r *http.Request) (settingsResponse, error) {
	st, err := a.settings.Settings(r.Context())
	if err != nil {
		return settingsResponse{}, err
	}
	resp := settingsResponse{NotificationsEnabled: st.NotificationsEnabled}
	if p, ok := a.catalog.Get(st.SelectedProfileID); ok {
		resp.SelectedProfile = &p
	}
	return resp, nil
}

func (a *App) handleProfiles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.catalog.List())
}

func (a *App) handleSession(w http.ResponseWriter, _ *http.Request) {
	if !a.sessions.IsActive() {
		writeError(w, http.StatusNotFound, monitor.ErrNoSession)
		return
	}
	writeJSON(w, http.StatusOK, a.sessions.Info())
}

func (a *App) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.StartedBy == "" {
		req.StartedBy = "api"
	}
	info, err := a.sessions.Start(r.Context(), req.StartedBy)
	switch {
	case errors.Is(err, monitor.ErrSessionActive):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, monitor.ErrMonitoringUnavailable):
		writeError(w, http.StatusServiceUnavailable, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusCreated, info)
	}
}

func (a *App) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	err := a.sessions.Stop(r.Context())
	switch {
	case errors.Is(err, monitor.ErrNoSession):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// queryInt parses an optional integer query parameter. Missing means zero.
func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
