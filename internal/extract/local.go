package extract

import "context"

// Recognizer is the on-device recognition capability the local extractor
// delegates to. The Tesseract-backed implementation lives in the tesseract
// subpackage; tests supply fakes.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, image []byte) (string, error)
}

// LocalExtractor converts images to text without any network dependency.
// Its only contract-level failure mode is ErrInvalidImageData.
type LocalExtractor struct {
	rec Recognizer
}

// NewLocalExtractor wraps a recognizer in the Extractor contract.
func NewLocalExtractor(rec Recognizer) *LocalExtractor {
	return &LocalExtractor{rec: rec}
}

func (e *LocalExtractor) Name() string { return "local" }

// Extract validates the image bytes and delegates recognition.
func (e *LocalExtractor) Extract(ctx context.Context, data []byte) (Result, error) {
	img, format, err := Decode(data)
	if err != nil {
		return Result{}, err
	}

	text, err := e.rec.Recognize(ctx, data)
	if err != nil {
		return Result{}, err
	}

	bounds := img.Bounds()
	meta := ImageMetadata{
		OriginalWidth:   bounds.Dx(),
		OriginalHeight:  bounds.Dy(),
		ProcessedWidth:  bounds.Dx(),
		ProcessedHeight: bounds.Dy(),
		OriginalBytes:   len(data),
		ProcessedBytes:  len(data),
		Format:          format,
	}
	return Result{Text: text, Model: e.rec.Name(), Image: &meta}, nil
}
