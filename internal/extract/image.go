package extract

import (
	"bytes"
	"image"
	"image/jpeg"

	// Stdlib and x/image decoders for the decode-then-delegate path.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	xdraw "golang.org/x/image/draw"
)

// ImageMetadata records dimensions and byte sizes before and after
// preprocessing. Derived quantities are exposed as computed accessors and
// never stored redundantly.
type ImageMetadata struct {
	OriginalWidth   int    `json:"original_width"`
	OriginalHeight  int    `json:"original_height"`
	ProcessedWidth  int    `json:"processed_width"`
	ProcessedHeight int    `json:"processed_height"`
	OriginalBytes   int    `json:"original_bytes"`
	ProcessedBytes  int    `json:"processed_bytes"`
	Quality         int    `json:"quality"`
	Format          string `json:"format"`
}

// OriginalPixels returns the pixel count of the source image.
func (m ImageMetadata) OriginalPixels() int {
	return m.OriginalWidth * m.OriginalHeight
}

// ProcessedPixels returns the pixel count after preprocessing.
func (m ImageMetadata) ProcessedPixels() int {
	return m.ProcessedWidth * m.ProcessedHeight
}

// CompressionRatio is processed bytes over original bytes.
func (m ImageMetadata) CompressionRatio() float64 {
	if m.OriginalBytes == 0 {
		return 0
	}
	return float64(m.ProcessedBytes) / float64(m.OriginalBytes)
}

// ResolutionReduction is processed pixels over original pixels.
func (m ImageMetadata) ResolutionReduction() float64 {
	orig := m.OriginalPixels()
	if orig == 0 {
		return 0
	}
	return float64(m.ProcessedPixels()) / float64(orig)
}

// Decode parses encoded image bytes, failing with ErrInvalidImageData when
// the input is not a supported image format.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", ErrInvalidImageData
	}
	return img, format, nil
}

// Preprocess decodes the image, downscales it so that neither dimension
// exceeds maxDim, and re-encodes it as JPEG at the given quality. It
// returns the processed bytes together with metadata about the transform.
func Preprocess(data []byte, maxDim, quality int) ([]byte, ImageMetadata, error) {
	img, format, err := Decode(data)
	if err != nil {
		return nil, ImageMetadata{}, err
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	meta := ImageMetadata{
		OriginalWidth:  w,
		OriginalHeight: h,
		OriginalBytes:  len(data),
		Quality:        quality,
		Format:         format,
	}

	scaled := img
	if longest := max(w, h); maxDim > 0 && longest > maxDim {
		ratio := float64(maxDim) / float64(longest)
		nw := max(1, int(float64(w)*ratio))
		nh := max(1, int(float64(h)*ratio))
		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
		scaled = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: quality}); err != nil {
		return nil, ImageMetadata{}, ErrInvalidImageData
	}

	sb := scaled.Bounds()
	meta.ProcessedWidth = sb.Dx()
	meta.ProcessedHeight = sb.Dy()
	meta.ProcessedBytes = buf.Len()
	return buf.Bytes(), meta, nil
}
