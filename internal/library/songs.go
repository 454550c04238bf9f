package library

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/repositories"
	"github.com/desertthunder/lyrix/internal/services"
	"github.com/desertthunder/lyrix/internal/shared"
)

// TrackCatalog resolves catalog track ids to metadata.
type TrackCatalog interface {
	Track(ctx context.Context, id string) (*services.Track, error)
}

// SongService manages a user's saved songs.
//
// Songs created without lyrics are handed to the [Enqueuer] for automatic retrieval when one is configured.
type SongService struct {
	songs    *repositories.SongRepository
	docs     *DocumentStore
	catalog  TrackCatalog
	enqueuer Enqueuer
	logger   *log.Logger
}

// NewSongService creates a [SongService]. catalog and enqueuer may be nil.
func NewSongService(songs *repositories.SongRepository, docs *DocumentStore, catalog TrackCatalog, enqueuer Enqueuer, logger *log.Logger) *SongService {
	return &SongService{
		songs:    songs,
		docs:     docs,
		catalog:  catalog,
		enqueuer: enqueuer,
		logger:   shared.WithLogger(orDiscard(logger), "component", "songs"),
	}
}

// SetEnqueuer attaches the fetch scheduler after construction, since the scheduler itself depends on the document store.
func (s *SongService) SetEnqueuer(e Enqueuer) {
	s.enqueuer = e
}

// Create adds a song to the caller's library.
//
// With a Spotify id and no track title, metadata is filled from the catalog. Non-blank lyrics
// become version 1 immediately, and the song is not kept if they cannot be saved; otherwise the song is queued for fetching (state fetching), or
// left idle when no queue is configured or the enqueue fails.
func (s *SongService) Create(ctx context.Context, caller models.Caller, in models.SongInput) (*models.SavedSong, error) {
	if caller.UserID == "" {
		return nil, fmt.Errorf("%w: caller is required", shared.ErrInvalidInput)
	}

	in.Track, in.Artist, in.Album = strings.TrimSpace(in.Track), strings.TrimSpace(in.Artist), strings.TrimSpace(in.Album)
	in.SpotifyID = strings.TrimSpace(in.SpotifyID)

	if in.SpotifyID != "" && in.Track == "" {
		if s.catalog == nil {
			return nil, fmt.Errorf("%w: spotify catalog is not configured", shared.ErrInvalidInput)
		}
		track, err := s.catalog.Track(ctx, in.SpotifyID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up spotify track %s: %w", in.SpotifyID, err)
		}
		in.Track, in.Album = track.Title, track.Album
		if in.Artist == "" {
			in.Artist = track.Artist
		}
	}

	song := &models.SavedSong{
		UserID:     caller.UserID,
		Track:      in.Track,
		Artist:     in.Artist,
		Album:      in.Album,
		SpotifyID:  in.SpotifyID,
		FetchState: models.FetchIdle,
		Visibility: models.VisibilityPrivate,
	}

	queue := !in.HasLyrics() && s.enqueuer != nil
	if queue {
		song.FetchState = models.FetchFetching
	}

	if err := s.songs.Create(ctx, song); err != nil {
		return nil, err
	}

	switch {
	case in.HasLyrics():
		if _, err := s.docs.Save(ctx, caller, song.ID, in.Lyrics, 0); err != nil {
			if derr := s.songs.Delete(ctx, caller.UserID, song.ID); derr != nil {
				s.logger.Error("failed to remove song after lyrics save failed", "song_id", song.ID, "error", derr)
			}
			return nil, fmt.Errorf("failed to save lyrics for new song: %w", err)
		}
	case queue:
		if err := s.enqueuer.EnqueueFetch(ctx, song); err != nil {
			s.logger.Error("failed to enqueue lyrics fetch", "song_id", song.ID, "error", err)
			if err := s.songs.SetFetchState(ctx, song.ID, models.FetchIdle); err != nil {
				s.logger.Error("failed to reset fetch state", "song_id", song.ID, "error", err)
			}
		}
	}

	return s.songs.Get(ctx, song.ID)
}

// Get returns one of the caller's songs.
func (s *SongService) Get(ctx context.Context, caller models.Caller, songID string) (*models.SavedSong, error) {
	return s.songs.GetForUser(ctx, caller.UserID, songID)
}

// List returns the caller's songs, newest first.
func (s *SongService) List(ctx context.Context, caller models.Caller) ([]*models.SavedSong, error) {
	return s.songs.List(ctx, caller.UserID)
}

// Delete removes one of the caller's songs with its lyrics, history and annotations.
func (s *SongService) Delete(ctx context.Context, caller models.Caller, songID string) error {
	return s.songs.Delete(ctx, caller.UserID, songID)
}

// SetNote sets the personal note on a song; blank clears it.
func (s *SongService) SetNote(ctx context.Context, caller models.Caller, songID, note string) (*models.SavedSong, error) {
	var value *string
	if strings.TrimSpace(note) != "" {
		value = &note
	}
	if err := s.songs.SetNote(ctx, caller.UserID, songID, value); err != nil {
		return nil, err
	}
	return s.songs.GetForUser(ctx, caller.UserID, songID)
}

// SetVisibility changes who may see a song.
func (s *SongService) SetVisibility(ctx context.Context, caller models.Caller, songID, visibility string) (*models.SavedSong, error) {
	v, err := models.ParseVisibility(visibility)
	if err != nil {
		return nil, err
	}
	if err := s.songs.SetVisibility(ctx, caller.UserID, songID, v); err != nil {
		return nil, err
	}
	return s.songs.GetForUser(ctx, caller.UserID, songID)
}
