// Package server exposes HTTP handlers, including WebSocket upgrades, the
// read-only REST query surface and the diagnostic test page.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/timp-relay/internal/store"
)

// WebSocketHandler upgrades GET requests and hands the connection to the
// hub with the given role hint.
func (h *Hub) WebSocketHandler(hint Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn().Err(err).Str("path", r.URL.Path).Msg("WebSocket upgrade failed")
			return
		}

		h.Serve(conn, hint, r.RemoteAddr)
	}
}

// HealthHandler provides a plain text liveness message.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "TIMP relay is running!")
}

// API serves the read-only query endpoints and the manual extraction
// trigger. Every query is a projection over the store.
type API struct {
	hub     *Hub
	store   store.Store
	log     zerolog.Logger
	started time.Time
	now     func() time.Time
}

// NewAPI returns the REST handlers for hub and st.
func NewAPI(hub *Hub, st store.Store, log zerolog.Logger) *API {
	return &API{
		hub:     hub,
		store:   st,
		log:     log.With().Str("component", "api").Logger(),
		started: time.Now(),
		now:     time.Now,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		a.log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func writeList[T any](w http.ResponseWriter, items []T, extra map[string]any) {
	body := map[string]any{"success": true, "count": len(items), "data": items}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// Health reports liveness and uptime.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": a.now().UTC().Format(isoMillis),
		"uptime":    time.Since(a.started).Seconds(),
	})
}

// Stats reports live connection counts and store aggregates.
func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	agg, err := a.store.AggregateStats(r.Context())
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats": map[string]any{
			"conexiones": a.hub.Registry().Counts(),
			"horarios":   agg,
			"timestamp":  a.now().UTC().Format(isoMillis),
		},
	})
}

// RecentSchedules lists the latest extractions, newest first.
func (a *API) RecentSchedules(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	exts, err := a.store.RecentExtractions(r.Context(), limit)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeList(w, exts, nil)
}

// TodaySchedule returns the extraction for the server's current date.
func (a *API) TodaySchedule(w http.ResponseWriter, r *http.Request) {
	a.writeExtraction(w, r, a.now().Format(store.DateLayout))
}

// ScheduleByDate returns the extraction stored for {fecha}.
func (a *API) ScheduleByDate(w http.ResponseWriter, r *http.Request) {
	fecha := chi.URLParam(r, "fecha")
	if err := store.ValidDate(fecha); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	a.writeExtraction(w, r, fecha)
}

func (a *API) writeExtraction(w http.ResponseWriter, r *http.Request, fecha string) {
	ext, err := a.store.ExtractionByDate(r.Context(), fecha)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"success": false, "fecha": fecha, "error": "no schedule stored for " + fecha,
		})
		return
	}
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "fecha": fecha, "data": ext})
}

// ClassesByDate lists the classes stored for {fecha}.
func (a *API) ClassesByDate(w http.ResponseWriter, r *http.Request) {
	fecha := chi.URLParam(r, "fecha")
	if err := store.ValidDate(fecha); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	classes, err := a.store.ClassesByDate(r.Context(), fecha)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeList(w, classes, map[string]any{"fecha": fecha})
}

// ClassesByInstructor lists every stored class taught by {instructor}.
func (a *API) ClassesByInstructor(w http.ResponseWriter, r *http.Request) {
	instructor := chi.URLParam(r, "instructor")
	classes, err := a.store.ClassesByInstructor(r.Context(), instructor)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeList(w, classes, map[string]any{"instructor": instructor})
}

// ClassesByDateRange lists classes between the from and to query dates,
// inclusive.
func (a *API) ClassesByDateRange(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	for _, d := range []string{from, to} {
		if err := store.ValidDate(d); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if from > to {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("from %s is after to %s", from, to))
		return
	}
	classes, err := a.store.ClassesByDateRange(r.Context(), from, to)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeList(w, classes, map[string]any{"from": from, "to": to})
}

// RequestExtraction relays a manual extract_request to every extension.
func (a *API) RequestExtraction(w http.ResponseWriter, _ *http.Request) {
	requestID, n := a.hub.Router().RequestExtraction("")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "Solicitud de extracción enviada",
		"requestId":   requestID,
		"extensiones": n,
	})
}
