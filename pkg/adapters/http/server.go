package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/flow"
	"github.com/aretw0/callflow/pkg/observability"
	"github.com/aretw0/callflow/pkg/orchestrator"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/runner"
	"github.com/aretw0/callflow/pkg/session"
	"github.com/aretw0/callflow/pkg/watchdog"
)

// Engine is the part of callflow.Engine served over HTTP.
type Engine interface {
	Classify(text string, topic domain.Waypoint) domain.Signals
	InstructionFor(w domain.Waypoint) flow.Instruction
	Start(ctx context.Context, sessionID string, metadata map[string]any) (*domain.CallState, error)
	Load(ctx context.Context, sessionID string) (*domain.CallState, error)
	Turn(ctx context.Context, sessionID, utterance string) (*domain.CallState, flow.Transition, error)
	NewLive(cfg session.LiveConfig) (*session.Live, error)
}

// Server exposes persisted calls, live calls and the stateless flow questions.
type Server struct {
	engine    Engine
	streams   *StreamManager
	directory *session.Directory
	metrics   *observability.Metrics
	reporter  ports.Reporter
	watchdog  watchdog.Config
	logger    *slog.Logger
	baseCtx   context.Context

	mu    sync.Mutex
	calls map[string]*liveCall
	wg    sync.WaitGroup
}

type liveCall struct {
	cancel  context.CancelFunc
	speaker *streamSpeaker
}

// Option configures a Server.
type Option func(*Server)

// WithDirectory shares the directory of live calls, e.g. with the MCP server.
func WithDirectory(d *session.Directory) Option {
	return func(s *Server) {
		s.directory = d
	}
}

// WithMetrics serves m on GET /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithReporter receives the session-end report of every live call.
func WithReporter(r ports.Reporter) Option {
	return func(s *Server) {
		s.reporter = r
	}
}

// WithWatchdog sets the idle watchdog timings of live calls.
func WithWatchdog(cfg watchdog.Config) Option {
	return func(s *Server) {
		s.watchdog = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBaseContext sets the parent context of live calls. Live calls outlive
// the request that started them.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) {
		s.baseCtx = ctx
	}
}

// NewServer creates a Server for engine.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		logger:  logging.NewNop(),
		baseCtx: context.Background(),
		calls:   make(map[string]*liveCall),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.directory == nil {
		s.directory = session.NewDirectory()
	}
	s.streams = NewStreamManager(s.logger)
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Post("/classify", s.classify)
	r.Get("/instructions/{waypoint}", s.instruction)

	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Post("/", s.startSession)
		r.Get("/", s.getSession)
		r.Post("/turns", s.sessionTurn)
		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			s.streams.serve(w, r, sessionTopic(chi.URLParam(r, "id")))
		})
	})

	r.Route("/live/{id}", func(r chi.Router) {
		r.Post("/", s.startLive)
		r.Get("/", s.getLive)
		r.Delete("/", s.hangUp)
		r.Post("/turns", s.liveTurn)
		r.Post("/speech", s.speech)
		r.Post("/stages/{stage}/complete", s.completeStage)
		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			s.streams.serve(w, r, liveTopic(chi.URLParam(r, "id")))
		})
	})
	return r
}

// Streams exposes the event fan-out.
func (s *Server) Streams() *StreamManager {
	return s.streams
}

// Close hangs up every live call and waits for their reports.
func (s *Server) Close() {
	s.mu.Lock()
	for _, c := range s.calls {
		c.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionTopic(id string) string { return "session:" + id }
func liveTopic(id string) string    { return "live:" + id }

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type classifyRequest struct {
	Text  string `json:"text"`
	Topic string `json:"topic"`
}

type classifyResponse struct {
	Signals   domain.Signals `json:"signals"`
	Effective domain.Signal  `json:"effective"`
}

func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	var body classifyRequest
	if !s.decode(w, r, &body) {
		return
	}
	text, ok := s.sanitize(w, body.Text)
	if !ok {
		return
	}
	var topic domain.Waypoint
	if body.Topic != "" {
		var err error
		if topic, err = domain.ParseWaypoint(body.Topic); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	sig := s.engine.Classify(text, topic)
	writeJSON(w, http.StatusOK, classifyResponse{Signals: sig, Effective: sig.Effective()})
}

// instruction fails closed: unknown waypoints get the terminal instruction.
func (s *Server) instruction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "waypoint")
	wp, err := domain.ParseWaypoint(name)
	if err != nil {
		s.logger.Warn("instruction requested for unknown waypoint", "waypoint", name)
		wp = domain.WaypointDone
	}
	ins := s.engine.InstructionFor(wp)
	writeJSON(w, http.StatusOK, struct {
		flow.Instruction
		Text string `json:"text"`
	}{ins, ins.String()})
}

type startRequest struct {
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if !s.decodeOptional(w, r, &body) {
		return
	}
	st, err := s.engine.Start(r.Context(), chi.URLParam(r, "id"), body.Metadata)
	if err != nil {
		s.fail(w, "start session", err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "load session", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type turnRequest struct {
	Text string `json:"text"`
}

type sessionTurnResponse struct {
	Transition  flow.Transition   `json:"transition"`
	State       *domain.CallState `json:"state"`
	Instruction string            `json:"instruction"`
}

func (s *Server) sessionTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body turnRequest
	if !s.decode(w, r, &body) {
		return
	}
	text, ok := s.sanitize(w, body.Text)
	if !ok {
		return
	}
	st, tr, err := s.engine.Turn(r.Context(), id, text)
	if err != nil {
		s.fail(w, "turn", err)
		return
	}
	s.streams.Broadcast(sessionTopic(id), Event{Type: "transition", Data: tr})
	writeJSON(w, http.StatusOK, sessionTurnResponse{
		Transition:  tr,
		State:       st,
		Instruction: s.engine.InstructionFor(tr.To).String(),
	})
}

type liveStatus struct {
	ID     string         `json:"id"`
	Active bool           `json:"active"`
	Group  string         `json:"group,omitempty"`
	Stage  domain.StageID `json:"stage,omitempty"`
	Report *domain.Report `json:"report"`
}

func status(l *session.Live) liveStatus {
	group, spec, ok := l.Active()
	return liveStatus{ID: l.ID, Active: ok, Group: group, Stage: spec.ID, Report: l.Report()}
}

func (s *Server) startLive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body startRequest
	if !s.decodeOptional(w, r, &body) {
		return
	}

	speaker := &streamSpeaker{topic: liveTopic(id), streams: s.streams}
	live, err := s.engine.NewLive(session.LiveConfig{
		ID:       id,
		Metadata: body.Metadata,
		Speaker:  speaker,
		Reporter: s.reporter,
		Watchdog: s.watchdog,
	})
	if err != nil {
		s.fail(w, "start live call", err)
		return
	}
	if err := s.directory.Add(live); err != nil {
		s.fail(w, "start live call", err)
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.mu.Lock()
	s.calls[id] = &liveCall{cancel: cancel, speaker: speaker}
	s.mu.Unlock()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer s.forget(id)
		res, err := live.Run(ctx)
		ended := map[string]any{"finalized": err == nil}
		if res != nil {
			ended["results"] = res
		}
		s.streams.Broadcast(liveTopic(id), Event{Type: "ended", Data: ended})
	}()
	// The call outlives its flow; clients hang up with DELETE.
	go func() {
		defer s.wg.Done()
		select {
		case <-live.Finished():
			s.streams.Broadcast(liveTopic(id), Event{Type: "finished", Data: live.Orchestrator().Partial()})
		case <-ctx.Done():
		}
	}()

	select {
	case <-live.Started():
	case <-r.Context().Done():
		return
	}
	writeJSON(w, http.StatusCreated, status(live))
}

func (s *Server) forget(id string) {
	s.directory.Remove(id)
	s.mu.Lock()
	if c, ok := s.calls[id]; ok {
		c.cancel()
		delete(s.calls, id)
	}
	s.mu.Unlock()
}

func (s *Server) live(w http.ResponseWriter, r *http.Request) (*session.Live, bool) {
	id := chi.URLParam(r, "id")
	l, ok := s.directory.Get(id)
	if !ok {
		http.Error(w, fmt.Sprintf("no live call %q", id), http.StatusNotFound)
	}
	return l, ok
}

func (s *Server) getLive(w http.ResponseWriter, r *http.Request) {
	if l, ok := s.live(w, r); ok {
		writeJSON(w, http.StatusOK, status(l))
	}
}

func (s *Server) hangUp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	c, ok := s.calls[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, fmt.Sprintf("no live call %q", id), http.StatusNotFound)
		return
	}
	c.cancel()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) liveTurn(w http.ResponseWriter, r *http.Request) {
	l, ok := s.live(w, r)
	if !ok {
		return
	}
	var body turnRequest
	if !s.decode(w, r, &body) {
		return
	}
	text, ok := s.sanitize(w, body.Text)
	if !ok {
		return
	}
	d, err := l.HandleTurn(r.Context(), text)
	if err != nil {
		s.fail(w, "live turn", err)
		return
	}
	s.streams.Broadcast(liveTopic(l.ID), Event{Type: "decision", Data: d})
	writeJSON(w, http.StatusOK, d)
}

type speechRequest struct {
	Role     string `json:"role"`
	Text     string `json:"text"`
	Speaking *bool  `json:"speaking"`
}

// speech records speech activity reported by the voice client.
func (s *Server) speech(w http.ResponseWriter, r *http.Request) {
	l, ok := s.live(w, r)
	if !ok {
		return
	}
	var body speechRequest
	if !s.decode(w, r, &body) {
		return
	}
	switch body.Role {
	case "", domain.RoleAgent, domain.RoleUser:
	default:
		http.Error(w, fmt.Sprintf("unknown role %q", body.Role), http.StatusBadRequest)
		return
	}
	if body.Speaking != nil {
		s.mu.Lock()
		c, found := s.calls[l.ID]
		s.mu.Unlock()
		if found {
			c.speaker.speaking.Store(*body.Speaking)
		}
	}
	role := body.Role
	if role == "" {
		role = domain.RoleAgent
	}
	l.NoteSpeech(role, body.Text)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) completeStage(w http.ResponseWriter, r *http.Request) {
	l, ok := s.live(w, r)
	if !ok {
		return
	}
	args := map[string]any{}
	if !s.decodeOptional(w, r, &args) {
		return
	}
	stage := domain.StageID(chi.URLParam(r, "stage"))
	if err := l.Complete(r.Context(), stage, args); err != nil {
		s.fail(w, "complete stage", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "stage": string(stage)})
}

// -- Helpers --

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		return false
	}
	return true
}

func (s *Server) sanitize(w http.ResponseWriter, text string) (string, bool) {
	clean, err := runner.SanitizeInput(strings.TrimSpace(text))
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid input: %v", err), http.StatusBadRequest)
		s.logger.Warn("input rejected", "err", err, "size", len(text))
		return "", false
	}
	return clean, true
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Debug(op+" rejected", "err", err)
	}
	http.Error(w, err.Error(), code)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStageAlreadyCompleted), errors.Is(err, domain.ErrStageNotActive),
		errors.Is(err, session.ErrDuplicateCall):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidResult):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrEmptyID), errors.Is(err, orchestrator.ErrInvalidScript):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
