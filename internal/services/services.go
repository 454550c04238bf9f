// package services defines the lyrics provider abstraction and catalog types
package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/desertthunder/lyrix/internal/shared"
)

// LyricsProvider retrieves the lyrics of a track from an external source.
type LyricsProvider interface {
	// Lyrics returns the raw lyrics text, or an error wrapping one of
	// [shared.ErrNoLyricsFound], [shared.ErrProviderUnavailable] or [shared.ErrProviderTimeout].
	Lyrics(ctx context.Context, artist, track string) (string, error)

	// Name returns the name of the provider (e.g., "lyrics.ovh")
	Name() string
}

// Track represents a music track from a catalog
type Track struct {
	ID       string
	Title    string
	Artist   string
	Album    string
	Duration int    // Duration in seconds
	ISRC     string // International Standard Recording Code
}

// NewRateLimiter returns a token bucket allowing perSecond requests with the given burst.
// A non-positive rate disables limiting.
func NewRateLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// ChainProvider tries providers in order.
//
// Not-found moves on to the next provider; any other failure stops the chain so the caller can retry.
type ChainProvider struct {
	providers []LyricsProvider
}

// NewChainProvider creates a [ChainProvider] over providers, skipping nils.
func NewChainProvider(providers ...LyricsProvider) *ChainProvider {
	c := &ChainProvider{}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

func (c *ChainProvider) Name() string {
	return "chain"
}

// Lyrics returns the first lyrics found.
func (c *ChainProvider) Lyrics(ctx context.Context, artist, track string) (string, error) {
	for _, p := range c.providers {
		text, err := p.Lyrics(ctx, artist, track)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, shared.ErrNoLyricsFound) {
			return "", fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return "", fmt.Errorf("%w: %s - %s", shared.ErrNoLyricsFound, artist, track)
}

// classifyTransportError maps a failed request to the provider error taxonomy.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", shared.ErrProviderTimeout, err)
	}
	return fmt.Errorf("%w: %v", shared.ErrProviderUnavailable, err)
}
