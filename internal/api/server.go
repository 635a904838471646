// Package api serves the HTTP control surface: status, lights, the draft
// config and bridge pairing.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/discod/internal/disco"
	"github.com/dokzlo13/discod/internal/ledger"
	"github.com/dokzlo13/discod/internal/metrics"
	"github.com/dokzlo13/discod/internal/session"
)

// Engine is the session surface the API drives.
type Engine interface {
	Status() session.Status
	Ready() bool
	Lights() []disco.LightHandle
	SetActive(id string, on bool) error
	Draft() disco.Config
	EditDraft(fn func(cfg *disco.Config) error) error
	SetSyncMode(mode disco.SyncMode)
	Discover()
	Register() error
	RefreshLights() error
}

// EventLog reads the recorded event history, newest first.
type EventLog interface {
	Recent(limit int) ([]*ledger.Entry, error)
	GetByType(eventType ledger.EventType, limit int) ([]*ledger.Entry, error)
}

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// Server is the control API HTTP server.
type Server struct {
	addr       string
	engine     Engine
	events     EventLog
	httpServer *http.Server
}

// NewServer creates a new control API server.
func NewServer(addr string, engine Engine, events EventLog) *Server {
	return &Server{
		addr:   addr,
		engine: engine,
		events: events,
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/status", s.handleStatus)

	r.Route("/lights", func(r chi.Router) {
		r.Get("/", s.handleListLights)
		r.Post("/refresh", s.handleRefreshLights)
		r.Put("/{id}", s.handleSetLight)
	})

	r.Get("/config", s.handleGetConfig)
	r.Patch("/config", s.handlePatchConfig)
	r.Put("/sync", s.handleSetSync)

	r.Post("/discover", s.handleDiscover)
	r.Post("/register", s.handleRegister)

	r.Get("/events", s.handleEvents)

	return r
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting control API server")

	// Handle graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Control API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	// In-flight handlers may still read the ledger
	<-shutdownDone
	return nil
}

type jsonErr struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, jsonErr{Error: msg, Code: status})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("API request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.engine.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "waiting for lights"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleListLights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Lights())
}

type setLightRequest struct {
	On *bool `json:"on"`
}

func (s *Server) handleSetLight(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req setLightRequest
	if err := decodeJSON(r, &req); err != nil || req.On == nil {
		writeError(w, http.StatusBadRequest, `body must be {"on": true|false}`)
		return
	}

	if err := s.engine.SetActive(id, *req.On); err != nil {
		if errors.Is(err, disco.ErrUnknownLight) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "on": *req.On})
}

func (s *Server) handleRefreshLights(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RefreshLights(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Draft())
}

// configPatch holds optional bound edits applied through the clamping setters.
type configPatch struct {
	RedMin   *int  `json:"red_min"`
	RedMax   *int  `json:"red_max"`
	GreenMin *int  `json:"green_min"`
	GreenMax *int  `json:"green_max"`
	BlueMin  *int  `json:"blue_min"`
	BlueMax  *int  `json:"blue_max"`
	TimeMin  *int  `json:"time_min"`
	TimeMax  *int  `json:"time_max"`
	Fade     *bool `json:"fade"`
}

func (p configPatch) apply(cfg *disco.Config) error {
	for _, edit := range []struct {
		ch       disco.Channel
		min, max *int
	}{
		{disco.ChannelRed, p.RedMin, p.RedMax},
		{disco.ChannelGreen, p.GreenMin, p.GreenMax},
		{disco.ChannelBlue, p.BlueMin, p.BlueMax},
		{disco.ChannelTime, p.TimeMin, p.TimeMax},
	} {
		if edit.min != nil {
			if err := cfg.SetMin(edit.ch, *edit.min); err != nil {
				return err
			}
		}
		if edit.max != nil {
			if err := cfg.SetMax(edit.ch, *edit.max); err != nil {
				return err
			}
		}
	}
	if p.Fade != nil {
		cfg.Fade = *p.Fade
	}
	return nil
}

func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var patch configPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid config patch: %v", err))
		return
	}

	if err := s.engine.EditDraft(patch.apply); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Draft())
}

type syncRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, `body must be {"mode": "none|time|color"}`)
		return
	}

	mode, err := disco.ParseSyncMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.engine.SetSyncMode(mode)
	writeJSON(w, http.StatusAccepted, map[string]string{"mode": mode.String()})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	s.engine.Discover()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "discovering"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Register(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "registering"})
}

type eventView struct {
	EventID   string         `json:"event_id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	var (
		entries []*ledger.Entry
		err     error
	)
	if raw := r.URL.Query().Get("type"); raw != "" {
		eventType := ledger.EventType(raw)
		if !eventType.Known() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown event type %q", raw))
			return
		}
		entries, err = s.events.GetByType(eventType, limit)
	} else {
		entries, err = s.events.Recent(limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to read event ledger")
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	views := make([]eventView, 0, len(entries))
	for _, e := range entries {
		views = append(views, eventView{
			EventID:   e.EventID,
			Type:      string(e.EventType),
			Timestamp: e.Timestamp,
			Payload:   e.Payload,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNoAddress), errors.Is(err, session.ErrNotLinked):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
