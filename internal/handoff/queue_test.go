package handoff_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ddegner/notebook-saver-sub001/internal/handoff"
	"github.com/ddegner/notebook-saver-sub001/internal/store"
	"github.com/ddegner/notebook-saver-sub001/internal/telemetry"
)

type fakeOpener struct {
	mu        sync.Mutex
	installed bool
	err       error
	opened    []string
}

func (f *fakeOpener) Installed(context.Context, string) bool { return f.installed }

func (f *fakeOpener) Open(_ context.Context, rawURL string) error {
	f.mu.Lock()
	f.opened = append(f.opened, rawURL)
	f.mu.Unlock()
	return f.err
}

func (f *fakeOpener) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opened)
}

func newTestQueue(t *testing.T, opener handoff.Opener) (*handoff.Queue, store.Store, *telemetry.Recorder) {
	t.Helper()
	st := store.NewMemoryStore()
	rec := telemetry.NewRecorder("test")
	q, err := handoff.NewQueue(context.Background(), st, opener, rec, "notes")
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	return q, st, rec
}

// persistedEntries reads the queue's storage key the way an extension would.
func persistedEntries(t *testing.T, st store.Store) []handoff.Entry {
	t.Helper()
	raw, ok, err := st.Get(context.Background(), "handoff.queue")
	if err != nil {
		t.Fatalf("Get(handoff.queue) error = %v", err)
	}
	if !ok {
		return nil
	}
	var entries []handoff.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		t.Fatalf("decode persisted queue: %v", err)
	}
	return entries
}

// ─── Submit ──────────────────────────────────────────────────

func TestSubmitInactivePersistsInOrder(t *testing.T) {
	q, st, _ := newTestQueue(t, &fakeOpener{installed: true})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := q.Submit(ctx, fmt.Sprintf("note %d", i), ""); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	got := persistedEntries(t, st)
	if len(got) != 5 {
		t.Fatalf("persisted %d entries, want 5", len(got))
	}
	for i, e := range got {
		if want := fmt.Sprintf("note %d", i); e.Text != want {
			t.Errorf("entry %d text = %q, want %q", i, e.Text, want)
		}
	}
}

func TestSubmitActiveHandsOffImmediately(t *testing.T) {
	opener := &fakeOpener{installed: true}
	q, st, _ := newTestQueue(t, opener)
	q.SetActive(true)

	if err := q.Submit(context.Background(), "hello world", "inbox"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if opener.openCount() != 1 {
		t.Fatalf("opener invoked %d times, want 1", opener.openCount())
	}
	want := "notes://create?tag=inbox&text=hello+world"
	if opener.opened[0] != want {
		t.Errorf("opened URL = %q, want %q", opener.opened[0], want)
	}
	if entries := persistedEntries(t, st); len(entries) != 0 {
		t.Errorf("active submit persisted %d entries, want 0", len(entries))
	}
}

func TestSubmitActiveNotInstalled(t *testing.T) {
	q, st, _ := newTestQueue(t, &fakeOpener{installed: false})
	q.SetActive(true)

	err := q.Submit(context.Background(), "text", "")
	if !errors.Is(err, handoff.ErrNotInstalled) {
		t.Fatalf("Submit() error = %v, want ErrNotInstalled", err)
	}
	// Installation is a prerequisite, not a deferred condition.
	if entries := persistedEntries(t, st); len(entries) != 0 {
		t.Errorf("queue consulted as fallback: %d entries", len(entries))
	}
}

func TestSubmitActiveRejected(t *testing.T) {
	opener := &fakeOpener{installed: true, err: errors.New("target refused")}
	q, _, _ := newTestQueue(t, opener)
	q.SetActive(true)

	err := q.Submit(context.Background(), "text", "")
	var hErr *handoff.HandoffError
	if !errors.As(err, &hErr) {
		t.Errorf("Submit() error = %v, want HandoffError", err)
	}
}

func TestSubmitConcurrent(t *testing.T) {
	q, st, _ := newTestQueue(t, &fakeOpener{installed: true})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			q.Submit(ctx, fmt.Sprintf("note %d", n), "")
		}(i)
	}
	wg.Wait()

	got := persistedEntries(t, st)
	if len(got) != 20 {
		t.Fatalf("persisted %d entries, want 20", len(got))
	}
	seen := make(map[string]bool)
	for _, e := range got {
		if seen[e.Text] {
			t.Errorf("duplicate entry %q", e.Text)
		}
		seen[e.Text] = true
	}
}

// ─── Drain ───────────────────────────────────────────────────

func TestDrainEmptyQueueIsNoOp(t *testing.T) {
	q, _, rec := newTestQueue(t, &fakeOpener{installed: true})

	if err := q.DrainOnForeground(context.Background()); err != nil {
		t.Fatalf("DrainOnForeground() error = %v", err)
	}
	if rec.SessionCount() != 0 {
		t.Errorf("empty drain opened %d telemetry sessions, want 0", rec.SessionCount())
	}
}

func TestDrainProcessesExactlyOneEntry(t *testing.T) {
	opener := &fakeOpener{installed: true}
	q, st, rec := newTestQueue(t, opener)
	ctx := context.Background()

	for _, text := range []string{"first", "second", "third"} {
		q.Submit(ctx, text, "")
	}

	if err := q.DrainOnForeground(ctx); err != nil {
		t.Fatalf("DrainOnForeground() error = %v", err)
	}

	got := persistedEntries(t, st)
	if len(got) != 2 {
		t.Fatalf("after drain, %d entries remain, want 2", len(got))
	}
	if got[0].Text != "second" || got[1].Text != "third" {
		t.Errorf("remaining = [%q, %q], want [second, third]", got[0].Text, got[1].Text)
	}
	if opener.openCount() != 1 {
		t.Errorf("opener invoked %d times, want 1", opener.openCount())
	}
	if rec.SessionCount() != 1 {
		t.Errorf("drain opened %d sessions, want 1", rec.SessionCount())
	}
}

func TestDrainFailureLeavesQueueUnchanged(t *testing.T) {
	opener := &fakeOpener{installed: true, err: errors.New("refused")}
	q, st, _ := newTestQueue(t, opener)
	ctx := context.Background()

	q.Submit(ctx, "only", "keep")
	before := persistedEntries(t, st)

	err := q.DrainOnForeground(ctx)
	var hErr *handoff.HandoffError
	if !errors.As(err, &hErr) {
		t.Fatalf("DrainOnForeground() error = %v, want HandoffError", err)
	}

	after := persistedEntries(t, st)
	if len(after) != len(before) || after[0].Text != "only" || after[0].Tag != "keep" {
		t.Errorf("queue changed by failed drain: before=%v after=%v", before, after)
	}
}

func TestDrainNotInstalledHoldsQueue(t *testing.T) {
	q, st, rec := newTestQueue(t, &fakeOpener{installed: false})
	ctx := context.Background()

	q.Submit(ctx, "held", "")

	// Recoverable condition: no error, no session, queue untouched.
	if err := q.DrainOnForeground(ctx); err != nil {
		t.Fatalf("DrainOnForeground() error = %v, want nil", err)
	}
	if len(persistedEntries(t, st)) != 1 {
		t.Error("queue modified while target not installed")
	}
	if rec.SessionCount() != 0 {
		t.Errorf("opened %d sessions, want 0", rec.SessionCount())
	}
}

func TestDrainRemovesKeyWhenEmpty(t *testing.T) {
	q, st, _ := newTestQueue(t, &fakeOpener{installed: true})
	ctx := context.Background()

	q.Submit(ctx, "last one", "")
	if err := q.DrainOnForeground(ctx); err != nil {
		t.Fatalf("DrainOnForeground() error = %v", err)
	}

	// An empty queue is represented by removing the key entirely.
	_, ok, err := st.Get(ctx, "handoff.queue")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("storage key still present for empty queue")
	}
}

func TestDrainFIFOAcrossInvocations(t *testing.T) {
	opener := &fakeOpener{installed: true}
	q, _, _ := newTestQueue(t, opener)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		q.Submit(ctx, text, "")
	}
	for i := 0; i < 3; i++ {
		if err := q.DrainOnForeground(ctx); err != nil {
			t.Fatalf("drain %d error = %v", i, err)
		}
	}

	if q.Len() != 0 {
		t.Fatalf("queue length = %d after 3 drains, want 0", q.Len())
	}
	want := []string{
		"notes://create?text=a",
		"notes://create?text=b",
		"notes://create?text=c",
	}
	for i, u := range want {
		if opener.opened[i] != u {
			t.Errorf("drain %d opened %q, want %q", i, opener.opened[i], u)
		}
	}
}

// blockingOpener signals when Open is entered and waits to be released,
// letting tests hold a drain mid-attempt deterministically.
type blockingOpener struct {
	fakeOpener
	entered chan struct{}
	release chan struct{}
}

func (b *blockingOpener) Open(ctx context.Context, rawURL string) error {
	b.entered <- struct{}{}
	<-b.release
	return b.fakeOpener.Open(ctx, rawURL)
}

func TestDrainMutualExclusion(t *testing.T) {
	opener := &blockingOpener{
		fakeOpener: fakeOpener{installed: true},
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	q, _, _ := newTestQueue(t, opener)
	ctx := context.Background()

	q.Submit(ctx, "one", "")
	q.Submit(ctx, "two", "")

	done := make(chan error, 1)
	go func() { done <- q.DrainOnForeground(ctx) }()
	<-opener.entered

	// The first drain is held inside the opener; an overlapping drain
	// must be rejected without touching the queue.
	if err := q.DrainOnForeground(ctx); err != nil {
		t.Errorf("overlapping DrainOnForeground() error = %v", err)
	}
	if opener.openCount() != 0 {
		t.Error("overlapping drain reached the opener")
	}

	close(opener.release)
	if err := <-done; err != nil {
		t.Fatalf("first drain error = %v", err)
	}
	if q.Len() != 1 {
		t.Errorf("queue length = %d, want 1 (exactly one entry drained)", q.Len())
	}
	if opener.openCount() != 1 {
		t.Errorf("opener invoked %d times, want 1", opener.openCount())
	}
}

// ─── Persistence across restarts ─────────────────────────────

func TestQueueRestoredFromStore(t *testing.T) {
	st := store.NewMemoryStore()
	rec := telemetry.NewRecorder("test")
	ctx := context.Background()

	q1, err := handoff.NewQueue(ctx, st, &fakeOpener{}, rec, "notes")
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	q1.Submit(ctx, "survives restart", "tag")

	q2, err := handoff.NewQueue(ctx, st, &fakeOpener{}, rec, "notes")
	if err != nil {
		t.Fatalf("NewQueue() reopen error = %v", err)
	}
	pending := q2.Pending()
	if len(pending) != 1 || pending[0].Text != "survives restart" {
		t.Errorf("restored queue = %v, want the submitted entry", pending)
	}
}

// ─── Lifecycle ───────────────────────────────────────────────

func TestDeactivationCancelsDrainSession(t *testing.T) {
	opener := &blockingOpener{
		fakeOpener: fakeOpener{installed: true},
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	q, _, rec := newTestQueue(t, opener)
	ctx := context.Background()

	q.Submit(ctx, "in flight", "")

	done := make(chan error, 1)
	go func() { done <- q.DrainOnForeground(ctx) }()
	<-opener.entered

	// Deactivate while the drain is held inside the opener: the open
	// session is cancelled rather than left ambiguous.
	q.SetActive(false)

	close(opener.release)
	if err := <-done; err != nil {
		t.Fatalf("drain error = %v", err)
	}

	sessions := rec.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if !sessions[0].Terminated {
		t.Error("drain session left open after deactivation")
	}
	if !sessions[0].Cancelled {
		t.Error("drain session not marked cancelled")
	}
}
