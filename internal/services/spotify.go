// Spotify catalog lookups with client credentials
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/desertthunder/lyrix/internal/shared"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	Explicit    bool            `json:"explicit"`
	ExternalIDs externalIDs     `json:"external_ids"`
	URI         string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date"`
	URI         string `json:"uri"`
}

// ToTrack converts a Spotify track to a catalog [Track]. Artists are joined with ", ".
func (t SpotifyTrack) ToTrack() Track {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return Track{
		ID:       t.ID,
		Title:    t.Name,
		Artist:   strings.Join(names, ", "),
		Album:    t.Album.Name,
		Duration: t.DurationMS / 1000,
		ISRC:     t.ExternalIDs.ISRC,
	}
}

// SpotifyCatalog looks up tracks with an app access token obtained through the client credentials flow.
// The token is fetched lazily and refreshed by the oauth2 transport.
type SpotifyCatalog struct {
	baseURL    string
	httpClient *http.Client
}

// NewSpotifyCatalog creates a [SpotifyCatalog] from app credentials.
func NewSpotifyCatalog(ctx context.Context, creds shared.SpotifyConfig) (*SpotifyCatalog, error) {
	return newSpotifyCatalog(ctx, creds, spotifyTokenURL, spotifyBaseURL)
}

func newSpotifyCatalog(ctx context.Context, creds shared.SpotifyConfig, tokenURL, baseURL string) (*SpotifyCatalog, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: missing spotify client_id", shared.ErrMissingCredentials)
	}
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing spotify client_secret", shared.ErrMissingCredentials)
	}

	config := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
	}

	return &SpotifyCatalog{baseURL: baseURL, httpClient: config.Client(ctx)}, nil
}

func (s *SpotifyCatalog) Name() string {
	return "Spotify"
}

// Track retrieves a single track by ID.
func (s *SpotifyCatalog) Track(ctx context.Context, trackID string) (*Track, error) {
	var st SpotifyTrack
	if err := s.doRequest(ctx, "/tracks/"+url.PathEscape(trackID), &st); err != nil {
		return nil, err
	}
	track := st.ToTrack()
	return &track, nil
}

func (s *SpotifyCatalog) doRequest(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		var re *url.Error
		if errors.As(err, &re) {
			return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, re.Err)
		}
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, endpoint)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: spotify API status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
