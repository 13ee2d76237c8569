package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"

	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
)

type Options struct {
	Quality        int   `yaml:"quality"`
	MaxWidth       int   `yaml:"max_width"`
	MaxHeight      int   `yaml:"max_height"`
	ThresholdBytes int64 `yaml:"threshold_bytes"`

	// Fallback settings for the single retry after a failed encode.
	FallbackQuality   int `yaml:"fallback_quality"`
	FallbackMaxWidth  int `yaml:"fallback_max_width"`
	FallbackMaxHeight int `yaml:"fallback_max_height"`

	// JPEG quality for analysis-only video frames.
	FrameQuality int `yaml:"frame_quality"`
}

func DefaultOptions() Options {
	return Options{
		Quality:           80,
		MaxWidth:          1920,
		MaxHeight:         1080,
		ThresholdBytes:    500 * 1024,
		FallbackQuality:   60,
		FallbackMaxWidth:  800,
		FallbackMaxHeight: 600,
		FrameQuality:      70,
	}
}

// Compressor produces bounded-size inline representations of uploaded media.
type Compressor struct {
	opts Options
}

func NewCompressor(opts Options) *Compressor {
	return &Compressor{opts: opts}
}

// CompressImage returns a data URL for the image. Files at or under the size
// threshold pass through unchanged; larger ones are scaled to fit the
// bounding box and re-encoded as JPEG. A failed encode is retried once at
// the fallback quality and bounds before the error is propagated.
func (c *Compressor) CompressImage(data []byte) (string, error) {
	if int64(len(data)) <= c.opts.ThresholdBytes {
		return EncodeDataURL(http.DetectContentType(data), data), nil
	}

	out, err := c.encode(data, c.opts.Quality, c.opts.MaxWidth, c.opts.MaxHeight)
	if err == nil {
		return out, nil
	}

	out, retryErr := c.encode(data, c.opts.FallbackQuality, c.opts.FallbackMaxWidth, c.opts.FallbackMaxHeight)
	if retryErr != nil {
		return "", fmt.Errorf("compress image: %w", err)
	}
	return out, nil
}

func (c *Compressor) encode(data []byte, quality, maxWidth, maxHeight int) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	return encodeBounded(img, quality, maxWidth, maxHeight)
}

// encodeBounded scales img down to fit within maxWidth x maxHeight
// (preserving aspect ratio, never upscaling) and encodes it as a JPEG
// data URL at the given quality.
func encodeBounded(img image.Image, quality, maxWidth, maxHeight int) (string, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width > maxWidth || height > maxHeight {
		ratio := min(float64(maxWidth)/float64(width), float64(maxHeight)/float64(height))
		targetWidth := int(float64(width) * ratio)
		targetHeight := int(float64(height) * ratio)
		img = imaging.Resize(img, targetWidth, targetHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return EncodeDataURL("image/jpeg", buf.Bytes()), nil
}

// Thumbnail produces a small square crop for list views.
func (c *Compressor) Thumbnail(data []byte, size int) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	thumb := imaging.Thumbnail(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: c.opts.FrameQuality}); err != nil {
		return "", err
	}
	return EncodeDataURL("image/jpeg", buf.Bytes()), nil
}
