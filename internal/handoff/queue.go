// Package handoff delivers extracted text to an external note-taking
// application through a URL-style invocation, backed by a durable FIFO of
// pending hand-offs.
//
// While the host is active a submission is handed off immediately. While
// it is not, the submission is persisted and delivered later, one entry
// per foreground transition, which naturally rate-limits attempts against
// the target application. An entry is removed from the queue only after
// its hand-off attempt succeeded.
package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ddegner/notebook-saver-sub001/internal/store"
	"github.com/ddegner/notebook-saver-sub001/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// queueKey is the storage key owned exclusively by the queue. An empty
// queue is represented by the absence of the key, never by an empty list.
const queueKey = "handoff.queue"

// Entry is one pending hand-off. Immutable once created.
type Entry struct {
	Text       string    `json:"text"`
	Tag        string    `json:"tag,omitempty"`
	EnqueuedAt time.Time `json:"timestamp"`
}

// Queue is the durable hand-off queue. All queue mutation is serialized
// through a single mutex; at most one drain is in flight at any time.
type Queue struct {
	store    store.Store
	opener   Opener
	recorder *telemetry.Recorder
	scheme   string

	active   atomic.Bool
	draining atomic.Bool

	mu      sync.Mutex
	entries []Entry

	sessMu       sync.Mutex
	drainSession telemetry.SessionID
}

// NewQueue creates the queue and loads any persisted entries.
func NewQueue(ctx context.Context, st store.Store, opener Opener, rec *telemetry.Recorder, scheme string) (*Queue, error) {
	q := &Queue{
		store:    st,
		opener:   opener,
		recorder: rec,
		scheme:   scheme,
	}

	raw, ok, err := st.Get(ctx, queueKey)
	if err != nil {
		return nil, fmt.Errorf("load handoff queue: %w", err)
	}
	if ok {
		if err := json.Unmarshal(raw, &q.entries); err != nil {
			return nil, fmt.Errorf("decode handoff queue: %w", err)
		}
		log.Info().Int("pending", len(q.entries)).Msg("Handoff queue restored")
	}
	return q, nil
}

// SetActive records host foreground state. Deactivating while a drain
// session is open cancels that session rather than leaving it ambiguous.
func (q *Queue) SetActive(active bool) {
	q.active.Store(active)
	if active {
		return
	}
	q.sessMu.Lock()
	if q.drainSession != "" {
		q.recorder.CancelSession(q.drainSession)
	}
	q.sessMu.Unlock()
}

// Active reports whether the host is currently foregrounded.
func (q *Queue) Active() bool { return q.active.Load() }

// Submit hands the text off immediately when the host is active, or
// persists a pending entry when it is not.
//
// In the active path a missing target fails with ErrNotInstalled; the
// queue is deliberately not used as a fallback there, since installation
// is a prerequisite rather than a deferred condition.
func (q *Queue) Submit(ctx context.Context, text, tag string) error {
	if q.active.Load() {
		target, err := TargetURL(q.scheme, text, tag)
		if err != nil {
			return err
		}
		if !q.opener.Installed(ctx, q.scheme) {
			return ErrNotInstalled
		}
		if err := q.opener.Open(ctx, target); err != nil {
			return &HandoffError{Err: err}
		}
		log.Info().Str("scheme", q.scheme).Int("chars", len(text)).Msg("Handoff delivered immediately")
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, Entry{
		Text:       text,
		Tag:        tag,
		EnqueuedAt: time.Now().UTC(),
	})
	if err := q.persistLocked(ctx); err != nil {
		q.entries = q.entries[:len(q.entries)-1]
		return err
	}
	log.Info().Int("pending", len(q.entries)).Msg("Handoff queued")
	return nil
}

// DrainOnForeground attempts hand-off for the head entry only. It is a
// no-op when the queue is empty or another drain is in flight, and it
// leaves the queue untouched when the target is not installed or the
// attempt fails. Exactly one entry is processed per invocation.
func (q *Queue) DrainOnForeground(ctx context.Context) error {
	if !q.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer q.draining.Store(false)

	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return nil
	}
	head := q.entries[0]
	q.mu.Unlock()

	if !q.opener.Installed(ctx, q.scheme) {
		// Recoverable: the queue holds until the target shows up.
		log.Debug().Str("scheme", q.scheme).Msg("Handoff target not installed, holding queue")
		return nil
	}

	sid := q.recorder.StartSession()
	q.setDrainSession(sid)
	defer q.setDrainSession("")

	target, err := TargetURL(q.scheme, head.Text, head.Tag)
	if err != nil {
		q.recorder.EndSession(sid, false)
		return err
	}

	tok := q.recorder.StartTiming(ctx, sid, "handoff.drain")
	openErr := q.opener.Open(ctx, target)
	q.recorder.EndTiming(tok, openErr)

	if openErr != nil {
		q.recorder.EndSession(sid, false)
		log.Warn().Err(openErr).Msg("Handoff attempt failed, entry retained")
		return &HandoffError{Err: openErr}
	}

	q.mu.Lock()
	q.entries = q.entries[1:]
	persistErr := q.persistLocked(ctx)
	remaining := len(q.entries)
	q.mu.Unlock()

	if persistErr != nil {
		q.recorder.EndSession(sid, false)
		return persistErr
	}

	q.recorder.EndSession(sid, true)
	log.Info().Int("remaining", remaining).Msg("Handoff drained one entry")
	return nil
}

// Pending returns a copy of the queued entries in hand-off order.
func (q *Queue) Pending() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.entries...)
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) setDrainSession(id telemetry.SessionID) {
	q.sessMu.Lock()
	q.drainSession = id
	q.sessMu.Unlock()
}

// persistLocked rewrites the entire queue. Callers hold q.mu.
func (q *Queue) persistLocked(ctx context.Context) error {
	if len(q.entries) == 0 {
		if err := q.store.Delete(ctx, queueKey); err != nil {
			return fmt.Errorf("clear handoff queue: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(q.entries)
	if err != nil {
		return fmt.Errorf("encode handoff queue: %w", err)
	}
	if err := q.store.Set(ctx, queueKey, raw); err != nil {
		return fmt.Errorf("persist handoff queue: %w", err)
	}
	return nil
}
