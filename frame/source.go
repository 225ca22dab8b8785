package frame

import (
	"context"
	"fmt"
	"image"
	"time"

	"golang.org/x/time/rate"

	"github.com/vay-org/motionsdk-go/logger"
)

// DefaultFPS is the default capture rate. Pose analysis rarely benefits
// from more than a handful of frames per second; the session's flow control
// drops excess frames anyway.
const DefaultFPS = 5.0

// Grabber captures one image per call. Implementations wrap a camera, a
// screen capture, or a pre-recorded sequence.
type Grabber interface {
	// Grab returns the next image. It may block until one is available and
	// must honor ctx cancellation.
	Grab(ctx context.Context) (image.Image, error)
}

// Enqueuer accepts encoded frames. session.Client satisfies this.
type Enqueuer interface {
	Enqueue(frame []byte)
}

// GrabberFunc adapts a function to the Grabber interface.
type GrabberFunc func(ctx context.Context) (image.Image, error)

// Grab implements Grabber.
func (f GrabberFunc) Grab(ctx context.Context) (image.Image, error) {
	return f(ctx)
}

// SourceConfig configures a capture loop.
type SourceConfig struct {
	// FPS is the target capture rate. Defaults to DefaultFPS.
	FPS float64

	// Encoder prepares captured images for the wire. Defaults to an
	// Encoder with default settings.
	Encoder *Encoder
}

func (c *SourceConfig) defaults() {
	if c.FPS <= 0 {
		c.FPS = DefaultFPS
	}
	if c.Encoder == nil {
		c.Encoder = NewEncoder(EncoderConfig{})
	}
}

// Source paces a Grabber at the target FPS and feeds encoded frames to an
// Enqueuer. Pacing uses a token-bucket limiter so a slow grab does not
// cause a burst of catch-up frames afterwards.
type Source struct {
	cfg     SourceConfig
	limiter *rate.Limiter
}

// NewSource creates a Source with defaults applied.
func NewSource(cfg SourceConfig) *Source {
	cfg.defaults()
	return &Source{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.FPS), 1),
	}
}

// Run captures, encodes and enqueues frames until ctx is canceled or the
// grabber fails. Encoding failures on individual frames are logged and
// skipped; a grab failure ends the loop.
func (s *Source) Run(ctx context.Context, grabber Grabber, sink Enqueuer) error {
	logger.Debug("capture loop starting", "fps", s.cfg.FPS)
	start := time.Now()
	captured := 0

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			logger.Debug("capture loop stopped",
				"frames", captured, "elapsed", time.Since(start).Round(time.Millisecond))
			return err
		}

		img, err := grabber.Grab(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("frame grab failed: %w", err)
		}

		data, err := s.cfg.Encoder.Encode(img)
		if err != nil {
			logger.Warn("skipping unencodable frame", "error", err)
			continue
		}

		sink.Enqueue(data)
		captured++
	}
}
