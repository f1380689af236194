package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"

	"golang.org/x/image/draw"
)

// Config bounds the normalized output. Values follow what the backend expects
// for attachment uploads: neither dimension over MaxWidth/MaxHeight, JPEG at
// Quality, encoded size ideally under MaxSizeKB.
type Config struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
	MaxSizeKB int
}

// DefaultConfig returns the normalization bounds used in production.
func DefaultConfig() Config {
	return Config{
		MaxWidth:  1024,
		MaxHeight: 1024,
		Quality:   85,
		MaxSizeKB: 900,
	}
}

// Normalizer turns captured images into bounded, transport-ready JPEGs.
// It is a pure transformation: no side effects beyond the returned image.
type Normalizer struct {
	cfg Config
}

// NewNormalizer creates a Normalizer with the given bounds. Zero or negative
// bounds fall back to the defaults.
func NewNormalizer(cfg Config) *Normalizer {
	def := DefaultConfig()
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = def.MaxWidth
	}
	if cfg.MaxHeight <= 0 {
		cfg.MaxHeight = def.MaxHeight
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = def.Quality
	}
	if cfg.MaxSizeKB <= 0 {
		cfg.MaxSizeKB = def.MaxSizeKB
	}
	return &Normalizer{cfg: cfg}
}

// Normalize decodes, downsamples and re-encodes a captured image. An encoded
// result larger than MaxSizeKB is logged as a warning but still returned:
// downstream services apply their own limits, so size alone never fails the
// normalization.
func (n *Normalizer) Normalize(captured CapturedImage) (*NormalizedImage, error) {
	src, err := decodeImage(captured.Data, captured.ContentType)
	if err != nil {
		return nil, fmt.Errorf("decoding captured image: %w", err)
	}

	src = n.downsample(src)
	bounds := src.Bounds()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: n.cfg.Quality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	if kb := buf.Len() / 1024; kb > n.cfg.MaxSizeKB {
		slog.Warn("Normalized image exceeds size bound",
			"filename", captured.Filename,
			"size_kb", kb,
			"max_size_kb", n.cfg.MaxSizeKB,
		)
	}

	return &NormalizedImage{
		Data:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// downsample scales the image so neither dimension exceeds the configured
// bound, preserving aspect ratio. Images already within bounds pass through.
func (n *Normalizer) downsample(src image.Image) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= n.cfg.MaxWidth && h <= n.cfg.MaxHeight {
		return src
	}

	ratio := float64(n.cfg.MaxWidth) / float64(w)
	if hr := float64(n.cfg.MaxHeight) / float64(h); hr < ratio {
		ratio = hr
	}

	dw := int(float64(w) * ratio)
	dh := int(float64(h) * ratio)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}
