package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ddegner/notebook-saver-sub001/internal/api"
	"github.com/ddegner/notebook-saver-sub001/internal/api/handlers"
	"github.com/ddegner/notebook-saver-sub001/internal/catalog"
	"github.com/ddegner/notebook-saver-sub001/internal/config"
	"github.com/ddegner/notebook-saver-sub001/internal/extract"
	"github.com/ddegner/notebook-saver-sub001/internal/handoff"
	"github.com/ddegner/notebook-saver-sub001/internal/notify"
	"github.com/ddegner/notebook-saver-sub001/internal/store"
	"github.com/ddegner/notebook-saver-sub001/internal/telemetry"
)

// stubExtractor is a test Extractor.
type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) Name() string { return "stub" }
func (s *stubExtractor) Extract(ctx context.Context, data []byte) (extract.Result, error) {
	if s.err != nil {
		return extract.Result{}, s.err
	}
	return extract.Result{Text: s.text, Model: "stub-model"}, nil
}

// stubOpener accepts every URL.
type stubOpener struct {
	opened []string
}

func (o *stubOpener) Installed(ctx context.Context, scheme string) bool { return true }
func (o *stubOpener) Open(ctx context.Context, rawURL string) error {
	o.opened = append(o.opened, rawURL)
	return nil
}

func newTestServer(t *testing.T, e extract.Extractor) (http.Handler, *stubOpener) {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	rec := telemetry.NewRecorder("test")
	cat := catalog.NewService(st, "http://localhost:0", "")

	opener := &stubOpener{}
	queue, err := handoff.NewQueue(ctx, st, opener, rec, "notes")
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}

	notifier := notify.NewService(queue)
	svcCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	notifier.Start(svcCtx)

	cfg := &config.Config{Version: "test"}
	h := handlers.New(e, cat, queue, rec, notifier, notify.NewPublisher("", ""))
	return api.NewRouter(cfg, h), opener
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("response not JSON: %v\nbody: %s", err, w.Body.String())
		}
	}
	return w, out
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestServer(t, &stubExtractor{text: "ok"})

	w, out := doJSON(t, router, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}
	if out["status"] != "healthy" {
		t.Errorf("status = %v, want %q", out["status"], "healthy")
	}
}

func TestVersionEndpoint(t *testing.T) {
	router, _ := newTestServer(t, &stubExtractor{text: "ok"})

	w, out := doJSON(t, router, http.MethodGet, "/version", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /version status = %d, want %d", w.Code, http.StatusOK)
	}
	if out["version"] != "test" {
		t.Errorf("version = %v, want %q", out["version"], "test")
	}
}

func TestExtractEndpoint(t *testing.T) {
	router, _ := newTestServer(t, &stubExtractor{text: "scanned text"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", bytes.NewReader([]byte("fake image bytes")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/v1/extract status = %d, want %d\nbody: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if out["text"] != "scanned text" {
		t.Errorf("text = %v, want %q", out["text"], "scanned text")
	}
	if out["model"] != "stub-model" {
		t.Errorf("model = %v, want %q", out["model"], "stub-model")
	}
}

func TestExtractEndpoint_EmptyBody(t *testing.T) {
	router, _ := newTestServer(t, &stubExtractor{text: "unused"})

	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/extract", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty body status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestExtractEndpoint_InvalidImage(t *testing.T) {
	router, _ := newTestServer(t, &stubExtractor{err: extract.ErrInvalidImageData})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", bytes.NewReader([]byte("not an image")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid image status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestListModels_Defaults(t *testing.T) {
	router, _ := newTestServer(t, &stubExtractor{text: "ok"})

	w, out := doJSON(t, router, http.MethodGet, "/api/v1/models/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/models/ status = %d", w.Code)
	}
	models, ok := out["models"].([]any)
	if !ok || len(models) == 0 {
		t.Fatalf("models = %v, want non-empty default list", out["models"])
	}
	if out["should_fetch"] != true {
		t.Errorf("should_fetch = %v, want true before first fetch", out["should_fetch"])
	}
}

func TestSubmitHandoff_QueuedWhileInactive(t *testing.T) {
	router, opener := newTestServer(t, &stubExtractor{text: "ok"})

	w, out := doJSON(t, router, http.MethodPost, "/api/v1/handoff/", `{"text":"note one","tag":"inbox"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /api/v1/handoff/ status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if out["status"] != "queued" {
		t.Errorf("status = %v, want %q", out["status"], "queued")
	}
	if len(opener.opened) != 0 {
		t.Errorf("inactive submit opened %d URLs, want 0", len(opener.opened))
	}

	_, out = doJSON(t, router, http.MethodGet, "/api/v1/handoff/pending", "")
	if out["count"] != float64(1) {
		t.Errorf("pending count = %v, want 1", out["count"])
	}
}

func TestSubmitHandoff_DeliveredWhileActive(t *testing.T) {
	router, opener := newTestServer(t, &stubExtractor{text: "ok"})

	if w, _ := doJSON(t, router, http.MethodPost, "/api/v1/lifecycle/active", ""); w.Code != http.StatusOK {
		t.Fatalf("activate status = %d", w.Code)
	}

	w, out := doJSON(t, router, http.MethodPost, "/api/v1/handoff/", `{"text":"hello"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /api/v1/handoff/ status = %d", w.Code)
	}
	if out["status"] != "delivered" {
		t.Errorf("status = %v, want %q", out["status"], "delivered")
	}
	if len(opener.opened) != 1 {
		t.Fatalf("active submit opened %d URLs, want 1", len(opener.opened))
	}
	if want := "notes://create?text=hello"; opener.opened[0] != want {
		t.Errorf("opened URL = %q, want %q", opener.opened[0], want)
	}
}

func TestSubmitHandoff_BadBody(t *testing.T) {
	router, _ := newTestServer(t, &stubExtractor{text: "ok"})

	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/handoff/", `{"tag":"no text"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing text status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDrainHandoff_Accepted(t *testing.T) {
	router, _ := newTestServer(t, &stubExtractor{text: "ok"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/handoff/drain", nil)
	req.Header.Set("X-Correlation-Id", "corr-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /api/v1/handoff/drain status = %d, want %d", w.Code, http.StatusAccepted)
	}
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if out["correlation_id"] != "corr-123" {
		t.Errorf("correlation_id = %v, want %q", out["correlation_id"], "corr-123")
	}
}

func TestLifecycleToggle(t *testing.T) {
	router, _ := newTestServer(t, &stubExtractor{text: "ok"})

	_, out := doJSON(t, router, http.MethodPost, "/api/v1/lifecycle/active", "")
	if out["active"] != true {
		t.Errorf("activate: active = %v, want true", out["active"])
	}
	_, out = doJSON(t, router, http.MethodPost, "/api/v1/lifecycle/inactive", "")
	if out["active"] != false {
		t.Errorf("deactivate: active = %v, want false", out["active"])
	}
}
