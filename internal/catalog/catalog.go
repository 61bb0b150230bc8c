// Package catalog fetches, filters and caches the set of usable cloud
// model identifiers.
//
// The fetch is gated to run once per install: after the first successful
// fetch a flag is persisted and ShouldFetch reports false from then on.
// Until a fetch succeeds the service answers from a built-in default list,
// so the app works immediately on first launch with no network call.
package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ddegner/notebook-saver-sub001/internal/extract"
	"github.com/ddegner/notebook-saver-sub001/internal/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	// Storage keys owned exclusively by this service.
	keyModelIDs = "model_catalog.ids"
	keyFetched  = "model_catalog.fetched"

	fetchTimeout = 30 * time.Second
)

// DefaultModelIDs is the hard-coded fallback set, ordered newest-first.
var DefaultModelIDs = []string{
	"gemini-2.5-flash",
	"gemini-2.5-pro",
	"gemini-2.0-flash",
	"gemini-1.5-flash",
	"gemini-1.5-pro",
}

// excludedNameFragments disqualify a model regardless of its declared
// generation methods.
var excludedNameFragments = []string{"embedding", "imagen", "veo", "tts"}

// Service is the model catalog. The persisted cache and fetched-once flag
// are owned exclusively by this service; no other component reads the
// underlying keys.
type Service struct {
	store   store.Store
	client  *http.Client
	baseURL string
	apiKey  string
	group   singleflight.Group
}

// NewService creates a catalog service backed by the given store.
func NewService(st store.Store, baseURL, apiKey string) *Service {
	return &Service{
		store:   st,
		client:  &http.Client{Timeout: fetchTimeout},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// ShouldFetch reports whether no fetch has ever succeeded. This is a
// first-launch-only gate, not a refresh policy.
func (s *Service) ShouldFetch(ctx context.Context) bool {
	_, ok, err := s.store.Get(ctx, keyFetched)
	if err != nil {
		log.Warn().Err(err).Msg("Catalog: reading fetched flag failed")
		return false
	}
	return !ok
}

// modelDescriptor mirrors one entry of the model-list endpoint response.
type modelDescriptor struct {
	Name                       string   `json:"name"`
	SupportedGenerationMethods []string `json:"supported_generation_methods"`
}

type modelListResponse struct {
	Models []modelDescriptor `json:"models"`
}

// FetchAvailableModels retrieves the model list, filters it down to usable
// content-generation models, caches the result and sets the fetched-once
// flag. Concurrent calls are coalesced into a single request.
func (s *Service) FetchAvailableModels(ctx context.Context) ([]string, error) {
	v, err, _ := s.group.Do("fetch", func() (any, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (s *Service) fetch(ctx context.Context) ([]string, error) {
	endpoint, err := extract.AuthURL(s.baseURL, "models", s.apiKey)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &extract.InvalidEndpointError{Reason: err.Error()}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &extract.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, extract.ErrAuthentication
	case resp.StatusCode != http.StatusOK:
		return nil, &extract.ServerError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &extract.NetworkError{Err: err}
	}

	var list modelListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &extract.ServerError{Status: resp.StatusCode}
	}

	var ids []string
	for _, m := range list.Models {
		if !usable(m) {
			continue
		}
		ids = append(ids, strings.TrimPrefix(m.Name, "models/"))
	}

	if err := s.saveCache(ctx, ids); err != nil {
		return nil, err
	}
	// The flag is set even when the filtered list is empty: the fetch
	// itself succeeded and must not be repeated on next launch.
	if err := s.store.Set(ctx, keyFetched, []byte("1")); err != nil {
		return nil, err
	}

	log.Info().Int("models", len(ids)).Msg("Catalog: model list fetched")
	return ids, nil
}

// usable reports whether a model descriptor survives the filter: its
// generation methods are empty or include "generatecontent", and its name
// contains none of the excluded fragments.
func usable(m modelDescriptor) bool {
	name := strings.ToLower(m.Name)
	for _, frag := range excludedNameFragments {
		if strings.Contains(name, frag) {
			return false
		}
	}
	if len(m.SupportedGenerationMethods) == 0 {
		return true
	}
	for _, method := range m.SupportedGenerationMethods {
		if strings.EqualFold(method, "generatecontent") {
			return true
		}
	}
	return false
}

// LoadCachedModelIDs returns the persisted cache if present and decodable,
// else the built-in default list.
func (s *Service) LoadCachedModelIDs(ctx context.Context) []string {
	raw, ok, err := s.store.Get(ctx, keyModelIDs)
	if err != nil || !ok {
		return append([]string(nil), DefaultModelIDs...)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		log.Warn().Err(err).Msg("Catalog: cached model list unreadable, using defaults")
		return append([]string(nil), DefaultModelIDs...)
	}
	return ids
}

// SelectedModel resolves the model to use for extraction: the configured
// identifier when set, otherwise the first cached (or default) identifier.
func (s *Service) SelectedModel(ctx context.Context, configured string) string {
	if configured != "" {
		return configured
	}
	ids := s.LoadCachedModelIDs(ctx)
	if len(ids) == 0 {
		return DefaultModelIDs[0]
	}
	return ids[0]
}

// saveCache replaces the persisted model list wholesale.
func (s *Service) saveCache(ctx context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, keyModelIDs, raw)
}
