// Package telemetry groups timed measurements of multi-step operations
// into sessions. A session is opened by the caller, collects log entries
// for individual timed operations, and is closed with exactly one terminal
// transition (complete or cancel). Each timed operation also emits an
// OpenTelemetry span.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/ddegner/notebook-saver-sub001/internal/device"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SessionID identifies one open telemetry session.
type SessionID string

// ModelInfo describes the extraction backend used for a timed operation.
type ModelInfo struct {
	ServiceName string `json:"service_name"`
	ModelName   string `json:"model_name,omitempty"`
	Image       any    `json:"image,omitempty"`
}

// LogEntry is an immutable record of one timed operation.
type LogEntry struct {
	Operation string          `json:"operation"`
	Start     time.Time       `json:"start"`
	Duration  time.Duration   `json:"duration"`
	Error     string          `json:"error,omitempty"`
	Model     *ModelInfo      `json:"model,omitempty"`
	Device    device.Snapshot `json:"device"`
}

// SessionView is a read-only copy of a session's state, used by tests and
// the diagnostics endpoint.
type SessionView struct {
	ID         SessionID
	Start      time.Time
	End        time.Time
	Succeeded  *bool
	Cancelled  bool
	Terminated bool
	Entries    []LogEntry
}

// TimingToken links an in-flight timed operation back to its session.
// Obtained from StartTiming and consumed by EndTiming.
type TimingToken struct {
	session   SessionID
	operation string
	start     time.Time
	span      trace.Span
}

type sessionState struct {
	start      time.Time
	end        time.Time
	succeeded  *bool
	cancelled  bool
	terminated bool
	entries    []LogEntry
}

// Recorder manages telemetry sessions. All methods are safe for concurrent
// use; terminal transitions are idempotent no-ops once a session is closed.
type Recorder struct {
	mu         sync.Mutex
	sessions   map[SessionID]*sessionState
	appVersion string
	tracer     trace.Tracer
}

// NewRecorder creates a session recorder. appVersion is stamped into the
// device snapshot of every log entry.
func NewRecorder(appVersion string) *Recorder {
	return &Recorder{
		sessions:   make(map[SessionID]*sessionState),
		appVersion: appVersion,
		tracer:     otel.Tracer("notebook-saver"),
	}
}

// StartSession opens a new session and returns its identifier.
func (r *Recorder) StartSession() SessionID {
	id := SessionID(uuid.NewString())

	r.mu.Lock()
	r.sessions[id] = &sessionState{start: time.Now().UTC()}
	r.mu.Unlock()

	return id
}

// StartTiming records the start of a timed operation within a session and
// opens a span for it. The returned token must be passed to EndTiming.
func (r *Recorder) StartTiming(ctx context.Context, id SessionID, operation string) TimingToken {
	_, span := r.tracer.Start(ctx, operation,
		trace.WithAttributes(attribute.String("session.id", string(id))),
	)
	return TimingToken{
		session:   id,
		operation: operation,
		start:     time.Now().UTC(),
		span:      span,
	}
}

// EndTiming closes the timed operation, appending a log entry with the
// elapsed duration and a device snapshot. A nil err marks success.
func (r *Recorder) EndTiming(tok TimingToken, err error) {
	r.EndTimingModel(tok, err, nil)
}

// EndTimingModel is EndTiming with extraction backend details attached.
func (r *Recorder) EndTimingModel(tok TimingToken, err error, info *ModelInfo) {
	duration := time.Since(tok.start)

	if tok.span != nil {
		if err != nil {
			tok.span.RecordError(err)
			tok.span.SetStatus(codes.Error, err.Error())
		}
		tok.span.End()
	}

	entry := LogEntry{
		Operation: tok.operation,
		Start:     tok.start,
		Duration:  duration,
		Model:     info,
		Device:    device.Capture(r.appVersion),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	r.mu.Lock()
	s, ok := r.sessions[tok.session]
	// Entries may only be appended before the session terminates.
	if ok && !s.terminated {
		s.entries = append(s.entries, entry)
	}
	r.mu.Unlock()

	evt := log.Debug()
	if err != nil {
		evt = log.Warn().Err(err)
	}
	evt.
		Str("session", string(tok.session)).
		Str("operation", tok.operation).
		Dur("duration", duration).
		Msg("Timed operation finished")
}

// EndSession marks the session complete. Calling it on an unknown or
// already-terminated session is a no-op.
func (r *Recorder) EndSession(id SessionID, success bool) {
	r.terminate(id, &success, false)
}

// CancelSession marks the session cancelled. Idempotent like EndSession.
func (r *Recorder) CancelSession(id SessionID) {
	r.terminate(id, nil, true)
}

func (r *Recorder) terminate(id SessionID, success *bool, cancelled bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok || s.terminated {
		r.mu.Unlock()
		return
	}
	s.terminated = true
	s.cancelled = cancelled
	s.succeeded = success
	s.end = time.Now().UTC()
	duration := s.end.Sub(s.start)
	entries := len(s.entries)
	r.mu.Unlock()

	evt := log.Info().Str("session", string(id)).Dur("duration", duration).Int("entries", entries)
	switch {
	case cancelled:
		evt.Msg("Telemetry session cancelled")
	case success != nil && *success:
		evt.Msg("Telemetry session completed")
	default:
		evt.Msg("Telemetry session failed")
	}
}

// Snapshot returns a read-only copy of a session, or false if unknown.
func (r *Recorder) Snapshot(id SessionID) (SessionView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return SessionView{}, false
	}
	view := SessionView{
		ID:         id,
		Start:      s.start,
		End:        s.end,
		Cancelled:  s.cancelled,
		Terminated: s.terminated,
		Entries:    append([]LogEntry(nil), s.entries...),
	}
	if s.succeeded != nil {
		v := *s.succeeded
		view.Succeeded = &v
	}
	return view, true
}

// Sessions returns read-only copies of every session ever opened, in no
// particular order.
func (r *Recorder) Sessions() []SessionView {
	r.mu.Lock()
	ids := make([]SessionID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	views := make([]SessionView, 0, len(ids))
	for _, id := range ids {
		if v, ok := r.Snapshot(id); ok {
			views = append(views, v)
		}
	}
	return views
}

// SessionCount returns the number of sessions ever opened.
func (r *Recorder) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
