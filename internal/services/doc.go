// Package services talks to the external HTTP APIs lyrix depends on.
//
// # Lyrics Providers
//
// All lyrics sources implement [LyricsProvider]. Failures are classified with sentinel errors
// from the shared package so the fetch pipeline can decide whether to retry:
//   - [shared.ErrNoLyricsFound] : the source answered and has nothing (terminal)
//   - [shared.ErrProviderUnavailable] : rate limited, server error, transport failure (retried)
//   - [shared.ErrProviderTimeout] : the per-attempt deadline passed (retried)
//
// [LyricsOVHService] calls the lyrics.ovh JSON API. [PageService] scrapes a configured HTML page
// with goquery. [ChainProvider] tries several providers in order, moving on only on not-found.
// Outbound calls are spaced by a token bucket limiter from golang.org/x/time/rate.
//
// # Spotify Catalog
//
// [SpotifyCatalog] looks up track metadata with app-level client credentials
// (golang.org/x/oauth2/clientcredentials). No user account is involved.
package services
