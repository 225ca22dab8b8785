// Package frame prepares camera images for streaming: JPEG encoding within
// a byte budget, and a paced capture loop that feeds a session client.
package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	_ "image/gif" // register GIF decoder
	_ "image/png" // register PNG decoder

	_ "golang.org/x/image/webp" // register WebP decoder
)

// Default encoder constants. The analysis service rejects oversized frames,
// so the encoder trades quality for size until the budget holds.
const (
	DefaultMaxWidth  = 320
	DefaultMaxHeight = 240
	DefaultQuality   = 85
	DefaultMaxBytes  = 10 * 1024

	minQuality   = 10
	qualityDecay = 0.9
)

// EncoderConfig configures frame encoding.
type EncoderConfig struct {
	// MaxWidth bounds the output width in pixels (0 = DefaultMaxWidth).
	MaxWidth int

	// MaxHeight bounds the output height in pixels (0 = DefaultMaxHeight).
	MaxHeight int

	// Quality is the initial JPEG quality (1-100). Defaults to DefaultQuality.
	Quality int

	// MaxBytes bounds the encoded size. When exceeded, quality is reduced
	// iteratively. Defaults to DefaultMaxBytes.
	MaxBytes int64
}

func (c *EncoderConfig) defaults() {
	if c.MaxWidth == 0 {
		c.MaxWidth = DefaultMaxWidth
	}
	if c.MaxHeight == 0 {
		c.MaxHeight = DefaultMaxHeight
	}
	if c.Quality <= 0 {
		c.Quality = DefaultQuality
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = DefaultMaxBytes
	}
}

// Encoder converts captured images into JPEG frames that fit the service's
// size limits. Pose estimation is tolerant of aggressive downscaling, so the
// defaults favor small frames over fidelity.
type Encoder struct {
	cfg EncoderConfig
}

// NewEncoder creates an Encoder with defaults applied.
func NewEncoder(cfg EncoderConfig) *Encoder {
	cfg.defaults()
	return &Encoder{cfg: cfg}
}

// Encode downscales img to fit the configured bounds and encodes it as JPEG
// within the byte budget.
func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}

	bounds := img.Bounds()
	width, height := fitDimensions(bounds.Dx(), bounds.Dy(), e.cfg.MaxWidth, e.cfg.MaxHeight)
	if width < bounds.Dx() || height < bounds.Dy() {
		img = scale(img, width, height)
	}

	return e.encodeToBudget(img)
}

// EncodeBytes decodes raw image data (JPEG, PNG, GIF, WebP) and re-encodes
// it as a budget-fitting JPEG frame. Data already within the budget is
// re-encoded anyway so the service always receives JPEG.
func (e *Encoder) EncodeBytes(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return e.Encode(img)
}

// encodeToBudget encodes img as JPEG, decaying quality until the result fits
// MaxBytes. At minQuality the result is returned even if still over budget;
// the service reports FrameTooLarge and the session surfaces it.
func (e *Encoder) encodeToBudget(img image.Image) ([]byte, error) {
	quality := e.cfg.Quality
	for {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("failed to encode frame: %w", err)
		}
		if int64(buf.Len()) <= e.cfg.MaxBytes || quality <= minQuality {
			return buf.Bytes(), nil
		}
		quality = int(float64(quality) * qualityDecay)
		if quality < minQuality {
			quality = minQuality
		}
	}
}

// fitDimensions shrinks (w, h) to fit within (maxW, maxH), preserving the
// aspect ratio. Images already within bounds are untouched.
func fitDimensions(w, h, maxW, maxH int) (int, int) {
	if maxW > 0 && w > maxW {
		h = h * maxW / w
		w = maxW
	}
	if maxH > 0 && h > maxH {
		w = w * maxH / h
		h = maxH
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// scale resamples src to the given size. CatmullRom gives Lanczos-like
// quality, which keeps joint positions stable after downscaling.
func scale(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
