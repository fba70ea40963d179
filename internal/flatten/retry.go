package flatten

import (
	"context"
	"image"
	"math"
	"time"

	"github.com/spherical/pdf-flattener/internal/domain"
	"github.com/spherical/pdf-flattener/internal/observability"
)

const maxBackoff = 10 * time.Second

// RetryConfig bounds page render retries
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// calculateBackoff calculates exponential backoff duration
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	// Exponential backoff: initialBackoff * 2^attempt
	backoff := float64(config.InitialBackoff) * math.Pow(2, float64(attempt))

	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}

	return time.Duration(backoff)
}

// rasterizeWithRetry renders one page, retrying page render failures only.
// A missing toolchain or a cancelled context is returned immediately.
func rasterizeWithRetry(ctx context.Context, r domain.Rasterizer, src *domain.SourceDocument, ordinal, dpi int,
	config RetryConfig, logger *observability.Logger) (image.Image, error) {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		img, err := r.Rasterize(ctx, src, ordinal, dpi)
		if err == nil {
			return img, nil
		}
		lastErr = err

		if ctx.Err() != nil || domain.IsType(err, domain.ErrorTypeToolchainMissing) {
			return nil, err
		}

		// Don't wait after last attempt
		if attempt == config.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, config)
		logger.Warn().
			Int("page", ordinal).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("Page render failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, lastErr
}
