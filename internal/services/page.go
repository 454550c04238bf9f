// HTML page implementation of [LyricsProvider]
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/desertthunder/lyrix/internal/shared"
)

// PageService implements [LyricsProvider] by scraping the text of one element from an HTML page.
//
// The URL template carries {artist} and {track} placeholders, replaced with path-escaped values.
type PageService struct {
	urlTemplate string
	selector    string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewPageService creates a [PageService]. Both urlTemplate and selector are required.
func NewPageService(urlTemplate, selector string, client *http.Client, limiter *rate.Limiter) (*PageService, error) {
	if urlTemplate == "" || selector == "" {
		return nil, fmt.Errorf("%w: page provider needs a url template and a selector", shared.ErrInvalidConfig)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if limiter == nil {
		limiter = NewRateLimiter(0, 0)
	}

	return &PageService{urlTemplate: urlTemplate, selector: selector, httpClient: client, limiter: limiter}, nil
}

func (s *PageService) Name() string {
	return "page"
}

// PageURL builds the page address for a track.
func (s *PageService) PageURL(artist, track string) string {
	r := strings.NewReplacer("{artist}", url.PathEscape(artist), "{track}", url.PathEscape(track))
	return r.Replace(s.urlTemplate)
}

// Lyrics fetches the page for track and returns the selected element's text with <br> as newlines.
func (s *PageService) Lyrics(ctx context.Context, artist, track string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", classifyTransportError(ctx, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.PageURL(artist, track), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s - %s", shared.ErrNoLyricsFound, artist, track)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: page returned status %d", shared.ErrProviderUnavailable, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse HTML: %v", shared.ErrProviderUnavailable, err)
	}

	selection := doc.Find(s.selector).First()
	if selection.Length() == 0 {
		return "", fmt.Errorf("%w: %s not found on page", shared.ErrNoLyricsFound, s.selector)
	}

	selection.Find("br").ReplaceWithHtml("\n")
	text := strings.TrimSpace(selection.Text())
	if text == "" {
		return "", fmt.Errorf("%w: %s is empty", shared.ErrNoLyricsFound, s.selector)
	}

	return text, nil
}
