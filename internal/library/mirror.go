package library

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/lyrix/internal/shared"
)

// LegacyWriter writes the flat lyrics column of a saved song.
type LegacyWriter interface {
	SetLegacyLyrics(ctx context.Context, songID, raw string) error
}

// SongMirror copies the latest structured raw text into saved_songs.lyrics for older readers.
//
// Sync never fails the caller: errors are logged at warn and dropped, with no retry.
type SongMirror struct {
	writer LegacyWriter
	logger *log.Logger
}

// NewSongMirror creates a [SongMirror] writing through w.
func NewSongMirror(w LegacyWriter, logger *log.Logger) *SongMirror {
	return &SongMirror{writer: w, logger: shared.WithLogger(orDiscard(logger), "component", "mirror")}
}

// Sync writes raw to the song's legacy column.
func (m *SongMirror) Sync(ctx context.Context, songID, raw string) {
	if m == nil || m.writer == nil {
		return
	}
	if err := m.writer.SetLegacyLyrics(ctx, songID, raw); err != nil {
		m.logger.Warn("legacy lyrics mirror update failed", "song_id", songID, "error", err)
	}
}
