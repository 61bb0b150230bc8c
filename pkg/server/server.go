// Package server provides the public entry point for initializing the
// notebook-saver service: it wires the store, catalog, extractor, hand-off
// queue and HTTP router into a ready-to-listen server.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ddegner/notebook-saver-sub001/internal/api"
	"github.com/ddegner/notebook-saver-sub001/internal/api/handlers"
	"github.com/ddegner/notebook-saver-sub001/internal/catalog"
	"github.com/ddegner/notebook-saver-sub001/internal/config"
	"github.com/ddegner/notebook-saver-sub001/internal/extract"
	"github.com/ddegner/notebook-saver-sub001/internal/extract/tesseract"
	"github.com/ddegner/notebook-saver-sub001/internal/handoff"
	"github.com/ddegner/notebook-saver-sub001/internal/notify"
	"github.com/ddegner/notebook-saver-sub001/internal/store"
	"github.com/ddegner/notebook-saver-sub001/internal/telemetry"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized notebook-saver service.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the persistent key-value store.
	Store store.Store

	// Queue is the hand-off queue, exposed for lifecycle wiring.
	Queue *handoff.Queue

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all components from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the service with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	st, err := newStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info().Str("backend", cfg.Store.Backend).Msg("Store initialized")

	cat := catalog.NewService(st, cfg.Extractor.BaseURL, cfg.Extractor.APIKey)

	// First-launch-only model fetch; the service answers from defaults
	// until it succeeds.
	if cat.ShouldFetch(ctx) && cfg.Extractor.APIKey != "" {
		go func() {
			if _, err := cat.FetchAvailableModels(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Msg("Initial model fetch failed, using defaults")
			}
		}()
	}

	extractor, err := newExtractor(ctx, cfg.Extractor, cat)
	if err != nil {
		st.Close()
		return nil, err
	}
	log.Info().Str("extractor", extractor.Name()).Msg("Extractor initialized")

	recorder := telemetry.NewRecorder(cfg.Version)

	opener := &handoff.ExecOpener{Command: cfg.Handoff.OpenCommand}
	queue, err := handoff.NewQueue(ctx, st, opener, recorder, cfg.Handoff.Scheme)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init handoff queue: %w", err)
	}

	notifier := notify.NewService(queue)
	notifier.Start(ctx)
	publisher := notify.NewPublisher(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret)

	h := handlers.New(extractor, cat, queue, recorder, notifier, publisher)
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:      router,
		Store:        st,
		Queue:        queue,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

func newStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return store.OpenSQLite(cfg.DataDir)
	case "file":
		return store.NewFileStore(cfg.DataDir)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func newExtractor(ctx context.Context, cfg config.ExtractorConfig, cat *catalog.Service) (extract.Extractor, error) {
	switch cfg.Kind {
	case "cloud":
		return extract.NewCloudExtractor(extract.CloudConfig{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			Model:        cat.SelectedModel(ctx, cfg.Model),
			Prompt:       cfg.Prompt,
			TokenBudget:  cfg.TokenBudget,
			MaxDimension: cfg.MaxDimension,
			JPEGQuality:  cfg.JPEGQuality,
		}), nil
	case "local":
		return extract.NewLocalExtractor(tesseract.New(cfg.OCRLanguages...)), nil
	default:
		return nil, fmt.Errorf("unknown extractor kind %q", cfg.Kind)
	}
}
