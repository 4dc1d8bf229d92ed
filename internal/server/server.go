// Package server exposes the HTTP and WebSocket API.
//
// REST endpoints cover the session lifecycle (create, join by code, end with
// report), event append and query, audio frame ingest, and manual analysis
// triggers. The WebSocket stream pushes the session's bounded event view to
// subscribers whenever it changes, and accepts transcript chunks and audio
// frames inbound on the same connection.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/shinelabs/shine/internal/detect"
	"github.com/shinelabs/shine/internal/health"
	"github.com/shinelabs/shine/internal/notify"
	"github.com/shinelabs/shine/internal/observe"
	"github.com/shinelabs/shine/internal/session"
	"github.com/shinelabs/shine/pkg/event"
	"github.com/shinelabs/shine/pkg/eventstore"
)

// Server handles HTTP and WebSocket connections.
type Server struct {
	mgr      *session.Manager
	notifier *notify.Notifier
	metrics  *observe.Metrics
	health   *health.Handler
	log      *slog.Logger
}

// New creates a Server around the session manager and notifier.
func New(mgr *session.Manager, notifier *notify.Notifier, metrics *observe.Metrics, h *health.Handler, log *slog.Logger) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if h == nil {
		h = health.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		mgr:      mgr,
		notifier: notifier,
		metrics:  metrics,
		health:   h,
		log:      log.With("component", "server"),
	}
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("POST /api/sessions/join", s.handleJoinSession)
	mux.HandleFunc("POST /api/sessions/{id}/events", s.handleAppendEvent)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.handleListEvents)
	mux.HandleFunc("POST /api/sessions/{id}/frames", s.handleFrame)
	mux.HandleFunc("POST /api/sessions/{id}/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/sessions/{id}/end", s.handleEnd)
	mux.HandleFunc("GET /api/sessions/{id}/stream", s.handleStream)

	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)

	return corsMiddleware(observe.Middleware(s.metrics)(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// --- Request and response bodies ---

type createSessionRequest struct {
	HostName string `json:"host_name"`
}

type joinSessionRequest struct {
	Code string `json:"code"`
}

type appendEventRequest struct {
	Text         string    `json:"text"`
	SpeakerID    string    `json:"speaker_id,omitempty"`
	SpeakerLabel string    `json:"speaker_label,omitempty"`
	Source       string    `json:"source,omitempty"`
	TS           time.Time `json:"ts,omitzero"`
}

type frameRequest struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
	At         time.Time `json:"at,omitzero"`
}

type viewMessage struct {
	Type   string        `json:"type"`
	Events []event.Event `json:"events"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Handlers ---

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess, err := s.mgr.Open(r.Context(), req.HostName)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.metrics.ActiveSessions.Add(r.Context(), 1)
	writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *Server) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	var req joinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "join code required")
		return
	}

	sess, err := s.mgr.Join(r.Context(), req.Code)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req appendEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	e, err := sess.AppendTranscript(r.Context(), event.TranscriptChunkPayload{
		Text:         req.Text,
		TS:           req.TS,
		Source:       event.Source(req.Source),
		SpeakerID:    req.SpeakerID,
		SpeakerLabel: req.SpeakerLabel,
	})
	if err != nil {
		if errors.Is(err, eventstore.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "event store unavailable")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.metrics.RecordEventAppended(r.Context(), string(e.Type))
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	// A failed refresh still serves the last known view.
	view, _ := sess.Log().Refresh(r.Context())
	writeJSON(w, http.StatusOK, viewMessage{Type: "view", Events: view})
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req frameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess.ProcessFrame(detect.Frame{
		Samples:    req.Samples,
		SampleRate: req.SampleRate,
		At:         req.At,
	})
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "accepted"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	if !sess.TriggerAnalysis(r.Context()) {
		s.metrics.RecordAnalyzerRun(r.Context(), "manual", "dropped")
		writeJSON(w, http.StatusConflict, statusResponse{Status: "in_flight"})
		return
	}
	s.metrics.RecordAnalyzerRun(r.Context(), "manual", "completed")
	writeJSON(w, http.StatusOK, statusResponse{Status: "completed"})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rep, err := s.mgr.End(r.Context(), id)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.metrics.ActiveSessions.Add(r.Context(), -1)
	writeJSON(w, http.StatusOK, map[string]any{"report": rep})
}

// handleStream upgrades to WebSocket and pushes the session's event view on
// every change. Inbound messages carry transcript chunks, audio frames, and
// analysis triggers from the client.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx := r.Context()
	log := s.log.With("session_id", sess.Info().ID, "remote", r.RemoteAddr)
	log.Info("subscriber connected")

	s.metrics.ActiveSubscribers.Add(ctx, 1)
	defer s.metrics.ActiveSubscribers.Add(ctx, -1)

	// The notifier delivers views sequentially from its own goroutine, so the
	// connection has exactly one writer.
	unsubscribe := s.notifier.Subscribe(ctx, sess.Log(), func(view []event.Event) {
		if err := wsjson.Write(ctx, conn, viewMessage{Type: "view", Events: view}); err != nil {
			log.Debug("view push failed", "error", err)
			return
		}
		s.metrics.NotifierDeliveries.Add(ctx, 1,
			metric.WithAttributes(observe.Attr("strategy", "websocket")))
	})
	defer unsubscribe()

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		var base struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &base); err != nil {
			continue
		}

		switch base.Type {
		case "transcript":
			var req appendEventRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				continue
			}
			e, err := sess.AppendTranscript(ctx, event.TranscriptChunkPayload{
				Text:         req.Text,
				TS:           req.TS,
				Source:       event.Source(req.Source),
				SpeakerID:    req.SpeakerID,
				SpeakerLabel: req.SpeakerLabel,
			})
			if err != nil {
				log.Debug("transcript append failed", "error", err)
				continue
			}
			s.metrics.RecordEventAppended(ctx, string(e.Type))
		case "frame":
			var req frameRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				continue
			}
			sess.ProcessFrame(detect.Frame{
				Samples:    req.Samples,
				SampleRate: req.SampleRate,
				At:         req.At,
			})
		case "analyze":
			go sess.TriggerAnalysis(ctx)
		}
	}
}

// session resolves the {id} path value to a live session, writing a 404 when
// it is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := s.mgr.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

// writeSessionError maps session manager errors to HTTP statuses.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionEnded):
		writeError(w, http.StatusGone, "session has ended")
	case errors.Is(err, eventstore.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, eventstore.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "event store unavailable")
	default:
		s.log.Error("session operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
