package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	cloudTimeout = 30 * time.Second

	defaultMaxDimension = 1568
	defaultJPEGQuality  = 80
)

// AuthURL builds an authenticated request URL by appending the credential
// as a query parameter to the configured base endpoint. It fails with
// ErrMissingAPIKey when no credential is configured and with
// InvalidEndpointError when the base URL is malformed.
func AuthURL(base, path, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrMissingAPIKey
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", &InvalidEndpointError{Reason: err.Error()}
	}
	if u.Scheme == "" || u.Host == "" {
		return "", &InvalidEndpointError{Reason: "endpoint must be an absolute URL"}
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CloudConfig parameterizes the cloud extraction backend.
type CloudConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Prompt      string
	TokenBudget int

	// Preprocessing knobs; zero values select the defaults.
	MaxDimension int
	JPEGQuality  int
}

// CloudExtractor sends preprocessed images to a generative-model content
// endpoint. It performs no retries; failures propagate to the caller.
type CloudExtractor struct {
	cfg    CloudConfig
	client *http.Client
}

// NewCloudExtractor creates a cloud extractor with a 30-second HTTP timeout.
func NewCloudExtractor(cfg CloudConfig) *CloudExtractor {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = defaultMaxDimension
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = defaultJPEGQuality
	}
	return &CloudExtractor{
		cfg:    cfg,
		client: &http.Client{Timeout: cloudTimeout},
	}
}

func (e *CloudExtractor) Name() string { return "cloud" }

// ── Wire format ─────────────────────────────────────────────

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Extract preprocesses the image and posts it with the configured prompt to
// the model's generateContent endpoint.
func (e *CloudExtractor) Extract(ctx context.Context, data []byte) (Result, error) {
	processed, meta, err := Preprocess(data, e.cfg.MaxDimension, e.cfg.JPEGQuality)
	if err != nil {
		return Result{}, err
	}

	endpoint, err := AuthURL(e.cfg.BaseURL, "models/"+e.cfg.Model+":generateContent", e.cfg.APIKey)
	if err != nil {
		return Result{}, err
	}

	reqBody := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: e.cfg.Prompt},
				{InlineData: &inlineData{
					MimeType: "image/jpeg",
					Data:     base64.StdEncoding.EncodeToString(processed),
				}},
			},
		}},
	}
	if e.cfg.TokenBudget > 0 {
		reqBody.GenerationConfig = &generationConfig{MaxOutputTokens: e.cfg.TokenBudget}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, &InvalidEndpointError{Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{}, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Result{}, ErrAuthentication
	case resp.StatusCode != http.StatusOK:
		return Result{}, &ServerError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &NetworkError{Err: err}
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Result{}, &ServerError{Status: resp.StatusCode}
	}
	if len(out.Candidates) == 0 {
		return Result{}, &ServerError{Status: resp.StatusCode}
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())

	log.Debug().
		Str("model", e.cfg.Model).
		Int("image_bytes", meta.ProcessedBytes).
		Int("chars", len(text)).
		Msg("Cloud extraction completed")

	return Result{Text: text, Model: e.cfg.Model, Image: &meta}, nil
}
