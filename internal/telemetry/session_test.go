package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ddegner/notebook-saver-sub001/internal/telemetry"
)

func TestSessionLifecycle(t *testing.T) {
	r := telemetry.NewRecorder("test")
	ctx := context.Background()

	id := r.StartSession()
	tok := r.StartTiming(ctx, id, "extract")
	r.EndTiming(tok, nil)

	tok2 := r.StartTiming(ctx, id, "handoff")
	r.EndTiming(tok2, errors.New("boom"))

	r.EndSession(id, true)

	view, ok := r.Snapshot(id)
	if !ok {
		t.Fatal("Snapshot() did not find session")
	}
	if !view.Terminated {
		t.Error("session not terminated after EndSession()")
	}
	if view.Succeeded == nil || !*view.Succeeded {
		t.Error("session not marked successful")
	}
	if len(view.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(view.Entries))
	}
	if view.Entries[0].Operation != "extract" || view.Entries[0].Error != "" {
		t.Errorf("entry 0 = %+v, want successful extract", view.Entries[0])
	}
	if view.Entries[1].Error != "boom" {
		t.Errorf("entry 1 error = %q, want %q", view.Entries[1].Error, "boom")
	}
	if view.Entries[1].Device.GoVersion == "" {
		t.Error("log entry missing device snapshot")
	}
}

func TestTerminalTransitionIdempotent(t *testing.T) {
	r := telemetry.NewRecorder("test")

	id := r.StartSession()
	r.EndSession(id, false)

	// Late terminations are no-ops, not errors.
	r.EndSession(id, true)
	r.CancelSession(id)

	view, _ := r.Snapshot(id)
	if view.Succeeded == nil || *view.Succeeded {
		t.Error("late EndSession() overwrote the terminal state")
	}
	if view.Cancelled {
		t.Error("late CancelSession() overwrote the terminal state")
	}
}

func TestEntriesDroppedAfterTermination(t *testing.T) {
	r := telemetry.NewRecorder("test")
	ctx := context.Background()

	id := r.StartSession()
	tok := r.StartTiming(ctx, id, "extract")
	r.CancelSession(id)
	r.EndTiming(tok, nil)

	view, _ := r.Snapshot(id)
	if len(view.Entries) != 0 {
		t.Errorf("got %d entries appended after termination, want 0", len(view.Entries))
	}
	if !view.Cancelled {
		t.Error("session not marked cancelled")
	}
}

func TestUnknownSession(t *testing.T) {
	r := telemetry.NewRecorder("test")

	// Operations against unknown sessions must not panic.
	r.EndSession("nope", true)
	r.CancelSession("nope")
	tok := r.StartTiming(context.Background(), "nope", "extract")
	r.EndTiming(tok, nil)

	if _, ok := r.Snapshot("nope"); ok {
		t.Error("Snapshot() found a session that was never started")
	}
}
