// Package extract converts captured images into text through one of two
// interchangeable backends: a cloud generative model or an on-device OCR
// engine. Call sites depend only on the Extractor contract and stay
// variant-agnostic.
package extract

import (
	"bytes"
	"context"
	"image"
	"image/png"
)

// Result is the outcome of one extraction call.
type Result struct {
	Text  string         `json:"text"`
	Model string         `json:"model,omitempty"`
	Image *ImageMetadata `json:"image,omitempty"`
}

// Extractor is the polymorphic text-extraction capability. Both variants
// honor the same contract: undecodable input fails with ErrInvalidImageData
// and failures propagate to the caller uninterpreted.
type Extractor interface {
	// Name identifies the backend for telemetry ("cloud" or "local").
	Name() string

	// Extract converts encoded image bytes into text.
	Extract(ctx context.Context, data []byte) (Result, error)
}

// ExtractText is the convenience path for callers that only need the text.
func ExtractText(ctx context.Context, e Extractor, data []byte) (string, error) {
	res, err := e.Extract(ctx, data)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// ExtractDecoded accepts an already-decoded image, re-encodes it and
// converges on the same Extract path as encoded bytes.
func ExtractDecoded(ctx context.Context, e Extractor, img image.Image) (Result, error) {
	if img == nil {
		return Result{}, ErrInvalidImageData
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Result{}, ErrInvalidImageData
	}
	return e.Extract(ctx, buf.Bytes())
}
