// lyrics.ovh API implementation of [LyricsProvider]
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/desertthunder/lyrix/internal/shared"
)

const lyricsOVHBaseURL = "https://api.lyrics.ovh/v1"

// LyricsOVHResponse is the body of GET /v1/{artist}/{title}.
type LyricsOVHResponse struct {
	Lyrics string `json:"lyrics"`
	Error  string `json:"error"`
}

// LyricsOVHService implements [LyricsProvider] against api.lyrics.ovh.
type LyricsOVHService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewLyricsOVHService creates a lyrics.ovh client. Empty baseURL, nil client and nil limiter get defaults.
func NewLyricsOVHService(baseURL string, client *http.Client, limiter *rate.Limiter) *LyricsOVHService {
	if baseURL == "" {
		baseURL = lyricsOVHBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	if limiter == nil {
		limiter = NewRateLimiter(0, 0)
	}

	return &LyricsOVHService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		limiter:    limiter,
	}
}

func (s *LyricsOVHService) Name() string {
	return "lyrics.ovh"
}

// Lyrics fetches the lyrics of track by artist.
//
// 404, an error message or blank lyrics mean not found; 429, 5xx and any other status mean unavailable.
func (s *LyricsOVHService) Lyrics(ctx context.Context, artist, track string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", classifyTransportError(ctx, err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s", s.baseURL, url.PathEscape(artist), url.PathEscape(track))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s - %s", shared.ErrNoLyricsFound, artist, track)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: lyrics.ovh returned status %d", shared.ErrProviderUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}

	var payload LyricsOVHResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", shared.ErrProviderUnavailable, err)
	}

	if payload.Error != "" || strings.TrimSpace(payload.Lyrics) == "" {
		return "", fmt.Errorf("%w: %s - %s", shared.ErrNoLyricsFound, artist, track)
	}

	return payload.Lyrics, nil
}
