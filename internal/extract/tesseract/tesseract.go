// Package tesseract implements the on-device recognizer using the
// gosseract Tesseract bindings.
package tesseract

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Engine is a Tesseract-backed recognizer. A fresh client is created per
// call; Tesseract clients are not safe for concurrent use.
type Engine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// New constructs a Tesseract engine with the given language hints
// (e.g. "eng", "deu").
func New(languages ...string) *Engine {
	return &Engine{
		languages:     languages,
		clientFactory: gosseract.NewClient,
	}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize runs OCR on the encoded image bytes and returns the trimmed text.
func (e *Engine) Recognize(ctx context.Context, image []byte) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(image); err != nil {
		return "", err
	}
	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return "", err
		}
	}

	text, err := c.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
