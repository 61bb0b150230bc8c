// Package handlers implements the HTTP handlers for the notebook-saver API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ddegner/notebook-saver-sub001/internal/catalog"
	"github.com/ddegner/notebook-saver-sub001/internal/extract"
	"github.com/ddegner/notebook-saver-sub001/internal/handoff"
	"github.com/ddegner/notebook-saver-sub001/internal/notify"
	"github.com/ddegner/notebook-saver-sub001/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// maxImageBytes caps uploaded image payloads.
const maxImageBytes = 20 << 20

// Handlers bundles the service dependencies behind the HTTP surface.
type Handlers struct {
	extractor extract.Extractor
	catalog   *catalog.Service
	queue     *handoff.Queue
	recorder  *telemetry.Recorder
	notifier  *notify.Service
	publisher *notify.Publisher
}

// New creates the handler set.
func New(e extract.Extractor, c *catalog.Service, q *handoff.Queue, rec *telemetry.Recorder, n *notify.Service, p *notify.Publisher) *Handlers {
	return &Handlers{
		extractor: e,
		catalog:   c,
		queue:     q,
		recorder:  rec,
		notifier:  n,
		publisher: p,
	}
}

// ── Extraction ───────────────────────────────────────────────

type extractResponse struct {
	Text    string                 `json:"text"`
	Model   string                 `json:"model,omitempty"`
	Image   *extract.ImageMetadata `json:"image,omitempty"`
	Handoff string                 `json:"handoff,omitempty"`
}

// ExtractText runs the configured extractor on the uploaded image. With
// ?handoff=true the result is additionally submitted to the hand-off queue.
func (h *Handlers) ExtractText(w http.ResponseWriter, r *http.Request) {
	data, err := readImage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	sid := h.recorder.StartSession()

	tok := h.recorder.StartTiming(ctx, sid, "extract")
	res, err := h.extractor.Extract(ctx, data)
	info := &telemetry.ModelInfo{ServiceName: h.extractor.Name(), ModelName: res.Model}
	if res.Image != nil {
		info.Image = res.Image
	}
	h.recorder.EndTimingModel(tok, err, info)

	if err != nil {
		h.recorder.EndSession(sid, false)
		writeError(w, extractStatus(err), err)
		return
	}

	out := extractResponse{Text: res.Text, Model: res.Model, Image: res.Image}

	if r.URL.Query().Get("handoff") == "true" {
		htok := h.recorder.StartTiming(ctx, sid, "handoff.submit")
		herr := h.queue.Submit(ctx, res.Text, r.URL.Query().Get("tag"))
		h.recorder.EndTiming(htok, herr)
		if herr != nil {
			h.recorder.EndSession(sid, false)
			writeError(w, handoffStatus(herr), herr)
			return
		}
		if h.queue.Active() {
			out.Handoff = "delivered"
		} else {
			out.Handoff = "queued"
		}
	}

	h.recorder.EndSession(sid, true)

	if h.publisher.Enabled() {
		correlation := uuid.NewString()
		// Detached so publication survives the request returning.
		pubCtx := context.WithoutCancel(ctx)
		go func() {
			if err := h.publisher.ResultReady(pubCtx, correlation, len(res.Text)); err != nil {
				log.Warn().Err(err).Msg("Result-ready publication failed")
			}
		}()
	}

	writeJSON(w, http.StatusOK, out)
}

// readImage pulls image bytes from a multipart "image" field or the raw body.
func readImage(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxImageBytes)

	if err := r.ParseMultipartForm(maxImageBytes); err == nil {
		file, _, ferr := r.FormFile("image")
		if ferr == nil {
			defer file.Close()
			return io.ReadAll(file)
		}
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.New("unreadable request body")
	}
	if len(data) == 0 {
		return nil, errors.New("empty image payload")
	}
	return data, nil
}

// ── Model catalog ────────────────────────────────────────────

func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(w, http.StatusOK, map[string]any{
		"models":       h.catalog.LoadCachedModelIDs(ctx),
		"should_fetch": h.catalog.ShouldFetch(ctx),
	})
}

// RefreshModels fetches the model list. The first-launch gate is honored
// unless ?force=true.
func (h *Handlers) RefreshModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.catalog.ShouldFetch(ctx) && r.URL.Query().Get("force") != "true" {
		writeJSON(w, http.StatusOK, map[string]any{
			"skipped": true,
			"models":  h.catalog.LoadCachedModelIDs(ctx),
		})
		return
	}

	models, err := h.catalog.FetchAvailableModels(ctx)
	if err != nil {
		writeError(w, extractStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// ── Hand-off ─────────────────────────────────────────────────

type submitRequest struct {
	Text string `json:"text"`
	Tag  string `json:"tag,omitempty"`
}

func (h *Handlers) SubmitHandoff(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, errors.New("body must be JSON with a non-empty text field"))
		return
	}

	if err := h.queue.Submit(r.Context(), req.Text, req.Tag); err != nil {
		writeError(w, handoffStatus(err), err)
		return
	}

	status := "queued"
	if h.queue.Active() {
		status = "delivered"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  status,
		"pending": h.queue.Len(),
	})
}

// DrainHandoff is the notification-triggered flush: an inbound event with
// an opaque correlation identifier that requests one queue drain.
func (h *Handlers) DrainHandoff(w http.ResponseWriter, r *http.Request) {
	correlation := r.Header.Get("X-Correlation-Id")
	if correlation == "" {
		correlation = uuid.NewString()
	}
	h.notifier.Notify(notify.FlushEvent{
		CorrelationID: correlation,
		ReceivedAt:    time.Now().UTC(),
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"correlation_id": correlation})
}

func (h *Handlers) PendingHandoffs(w http.ResponseWriter, r *http.Request) {
	pending := h.queue.Pending()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(pending),
		"entries": pending,
	})
}

// ── Lifecycle ────────────────────────────────────────────────

// Activate marks the host foregrounded and triggers one drain.
func (h *Handlers) Activate(w http.ResponseWriter, r *http.Request) {
	h.queue.SetActive(true)
	h.notifier.Notify(notify.FlushEvent{
		CorrelationID: "lifecycle-" + uuid.NewString(),
		ReceivedAt:    time.Now().UTC(),
	})
	writeJSON(w, http.StatusOK, map[string]any{"active": true})
}

// Deactivate marks the host backgrounded.
func (h *Handlers) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.queue.SetActive(false)
	writeJSON(w, http.StatusOK, map[string]any{"active": false})
}

// ── Helpers ──────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// extractStatus maps extraction and catalog failures to HTTP statuses.
func extractStatus(err error) int {
	var epErr *extract.InvalidEndpointError
	var srvErr *extract.ServerError
	var netErr *extract.NetworkError
	switch {
	case errors.Is(err, extract.ErrInvalidImageData):
		return http.StatusBadRequest
	case errors.Is(err, extract.ErrMissingAPIKey), errors.As(err, &epErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, extract.ErrAuthentication), errors.As(err, &srvErr):
		return http.StatusBadGateway
	case errors.As(err, &netErr):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handoffStatus maps queue failures to HTTP statuses.
func handoffStatus(err error) int {
	var hErr *handoff.HandoffError
	switch {
	case errors.Is(err, handoff.ErrNotInstalled):
		return http.StatusConflict
	case errors.Is(err, handoff.ErrInvalidURL):
		return http.StatusUnprocessableEntity
	case errors.As(err, &hErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
