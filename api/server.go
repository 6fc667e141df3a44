// Package api serves the operator-facing HTTP surface: state queries,
// manual response triggers, a live event stream and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yairfalse/vigil/guardian"
	"github.com/yairfalse/vigil/response"
	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
)

// Server exposes guardian state over HTTP
type Server struct {
	guardian *guardian.Guardian
	hub      *Hub
	http     *http.Server
	logger   *telemetry.Logger
}

// NewServer creates the API server and subscribes its stream hub to the
// guardian's event feed
func NewServer(g *guardian.Guardian, addr string) *Server {
	s := &Server{
		guardian: g,
		hub:      NewHub(),
		logger:   telemetry.NewLogger("api-server"),
	}
	g.Subscribe(s.hub.Broadcast)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	metricsHandler := promhttp.Handler()
	if telemetry.PrometheusRegistry != nil {
		metricsHandler = promhttp.HandlerFor(telemetry.PrometheusRegistry, promhttp.HandlerOpts{})
	}
	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws/events", s.handleEventStream)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	v1.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	v1.HandleFunc("/events/{id}", s.handleEvent).Methods(http.MethodGet)
	v1.HandleFunc("/events/{id}/respond", s.handleRespond).Methods(http.MethodPost)
	v1.HandleFunc("/threats", s.handleThreats).Methods(http.MethodGet)
	v1.HandleFunc("/resources", s.handleResources).Methods(http.MethodGet)
	v1.HandleFunc("/incidents", s.handleIncidents).Methods(http.MethodGet)
	v1.HandleFunc("/models", s.handleModels).Methods(http.MethodGet)
	v1.HandleFunc("/analytics/event-types", s.handleEventTypes).Methods(http.MethodGet)
	return r
}

// Start serves until the context is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info().Str("addr", s.http.Addr).Msg("API server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.hub.Close()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"ready":  s.guardian.Ready(),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.guardian.Snapshot()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter := types.EventFilter{
		EventType: r.URL.Query().Get("type"),
		Limit:     queryInt(r, "limit", 100),
	}
	if raw := r.URL.Query().Get("severity"); raw != "" {
		filter.Severity = types.ParseSeverity(raw)
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC3339"})
			return
		}
		filter.Since = since
	}

	events, err := s.guardian.Events(filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.guardian.Event(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.guardian.Resubmit(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "event_id": id})
}

func (s *Server) handleThreats(w http.ResponseWriter, _ *http.Request) {
	threats, err := s.guardian.Threats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threats": threats, "count": len(threats)})
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	filter := types.ResourceFilter{
		Type:     r.URL.Query().Get("type"),
		Region:   r.URL.Query().Get("region"),
		Provider: r.URL.Query().Get("provider"),
	}
	if raw := r.URL.Query().Get("min_risk"); raw != "" {
		minRisk, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "min_risk must be a number"})
			return
		}
		filter.MinRisk = minRisk
	}

	resources, err := s.guardian.Resources(filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources, "count": len(resources)})
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	filter := types.IncidentFilter{
		EventID: r.URL.Query().Get("event_id"),
		Limit:   queryInt(r, "limit", 100),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		filter.Status = types.ResponseStatus(raw)
	}

	incidents, err := s.guardian.Incidents(filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": incidents, "count": len(incidents)})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	models, err := s.guardian.Models()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models, "count": len(models)})
}

func (s *Server) handleEventTypes(w http.ResponseWriter, r *http.Request) {
	start := time.Now().Add(-24 * time.Hour)
	end := time.Now()
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC3339"})
			return
		}
		start = parsed
	}
	if raw := r.URL.Query().Get("until"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "until must be RFC3339"})
			return
		}
		end = parsed
	}

	counts, err := s.guardian.EventTypeCounts(start, end)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"since": start, "until": end, "counts": counts})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, guardian.ErrNotReady):
		status = http.StatusServiceUnavailable
	case errors.Is(err, guardian.ErrEventNotFound):
		status = http.StatusNotFound
	case errors.Is(err, response.ErrQueueFull):
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
