// package models defines the data model for the lyrics store
package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/desertthunder/lyrix/internal/shared"
)

const (
	// MaxAnnotationLength is the maximum annotation text length in runes.
	MaxAnnotationLength = 500
	// MaxEmojiLength is the maximum emoji marker length in runes, ignoring variation selectors.
	MaxEmojiLength = 2
)

// Validator is implemented by every entity that can check its own data.
type Validator interface {
	Validate() error
}

// Caller identifies the user on whose behalf an operation runs.
type Caller struct {
	UserID string
}

// FetchState tracks automatic lyrics retrieval for a saved song.
type FetchState string

const (
	FetchIdle     FetchState = "idle"
	FetchFetching FetchState = "fetching"
	FetchDone     FetchState = "done"
	FetchFailed   FetchState = "failed"
)

// Valid reports whether s is a known fetch state.
func (s FetchState) Valid() bool {
	switch s {
	case FetchIdle, FetchFetching, FetchDone, FetchFailed:
		return true
	}
	return false
}

// Visibility controls who may see a saved song.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityFriends Visibility = "friends"
	VisibilityPublic  Visibility = "public"
)

// ParseVisibility accepts any casing of the three visibility values.
func ParseVisibility(s string) (Visibility, error) {
	v := Visibility(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case VisibilityPrivate, VisibilityFriends, VisibilityPublic:
		return v, nil
	}
	return "", fmt.Errorf("%w: visibility must be private, friends or public, got %q", shared.ErrInvalidInput, s)
}

// User owns saved songs.
type User struct {
	ID        string     `json:"id"`
	Sequence  int        `json:"-"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

func (u *User) Validate() error {
	if strings.TrimSpace(u.Email) == "" || !strings.Contains(u.Email, "@") {
		return fmt.Errorf("%w: a valid email is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("%w: name is required", shared.ErrInvalidInput)
	}
	return nil
}

// SavedSong is a song in a user's library.
//
// Lyrics mirrors the latest structured raw text for older readers.
type SavedSong struct {
	ID         string     `json:"id"`
	Sequence   int        `json:"-"`
	UserID     string     `json:"user_id"`
	Track      string     `json:"track"`
	Artist     string     `json:"artist"`
	Album      string     `json:"album,omitempty"`
	SpotifyID  string     `json:"spotify_id,omitempty"`
	Lyrics     *string    `json:"lyrics,omitempty"`
	FetchState FetchState `json:"fetch_state"`
	Visibility Visibility `json:"visibility"`
	Note       *string    `json:"note,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (s *SavedSong) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("%w: song owner is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(s.Track) == "" {
		return fmt.Errorf("%w: track is required", shared.ErrInvalidInput)
	}
	if !s.FetchState.Valid() {
		return fmt.Errorf("%w: unknown fetch state %q", shared.ErrInvalidInput, s.FetchState)
	}
	if _, err := ParseVisibility(string(s.Visibility)); err != nil {
		return err
	}
	return nil
}

// SongInput is the data needed to add a song to a library.
type SongInput struct {
	Track     string `json:"track"`
	Artist    string `json:"artist"`
	Album     string `json:"album"`
	SpotifyID string `json:"spotify_id"`
	Lyrics    string `json:"lyrics"`
}

// HasLyrics reports whether the input carries non-blank lyrics text.
func (in SongInput) HasLyrics() bool {
	return strings.TrimSpace(in.Lyrics) != ""
}

// LyricsDocument is the structured lyrics of one saved song.
//
// Lines are ordered by line number; Snapshots newest first.
type LyricsDocument struct {
	ID        string           `json:"id"`
	SongID    string           `json:"song_id"`
	RawText   string           `json:"raw_text"`
	Version   int              `json:"version"`
	Lines     []LyricsLine     `json:"lines"`
	Snapshots []LyricsSnapshot `json:"snapshots"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// LyricsLine is a single addressable line. Text may be empty for stanza breaks.
type LyricsLine struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	LineNumber  int    `json:"line_number"`
	Text        string `json:"text"`
	TimestampMS *int64 `json:"timestamp_ms,omitempty"`
}

// LyricsSnapshot is the raw text a document held at Version.
type LyricsSnapshot struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Version    int       `json:"version"`
	RawText    string    `json:"raw_text"`
	CreatedAt  time.Time `json:"created_at"`
}

// LineAnnotation is one user's note on one line.
type LineAnnotation struct {
	ID         string    `json:"id"`
	LineID     string    `json:"line_id"`
	UserID     string    `json:"user_id"`
	LineNumber int       `json:"line_number,omitempty"`
	Text       string    `json:"text"`
	Emoji      *string   `json:"emoji,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (a *LineAnnotation) Validate() error {
	return ValidateAnnotation(a.Text, a.Emoji)
}

// ValidateAnnotation checks annotation text and the optional emoji marker.
func ValidateAnnotation(text string, emoji *string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: annotation text is required", shared.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(text); n > MaxAnnotationLength {
		return fmt.Errorf("%w: annotation text is %d characters, max %d", shared.ErrInvalidInput, n, MaxAnnotationLength)
	}
	if emoji != nil {
		marker := strings.ReplaceAll(*emoji, "\ufe0f", "")
		if n := utf8.RuneCountInString(marker); n > MaxEmojiLength {
			return fmt.Errorf("%w: emoji is %d characters, max %d", shared.ErrInvalidInput, n, MaxEmojiLength)
		}
	}
	return nil
}
