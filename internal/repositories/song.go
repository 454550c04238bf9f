package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/shared"
)

const songColumns = `id, sequence, user_id, track, artist, album, spotify_id, lyrics, fetch_state, visibility, note, created_at, updated_at`

// SongRepository persists [models.SavedSong] records.
//
// Reads scoped by user return [shared.ErrNotFound] for songs owned by someone else.
type SongRepository struct {
	db shared.DBTX
}

// NewSongRepository creates a new [SongRepository] with the given database connection
func NewSongRepository(db shared.DBTX) *SongRepository {
	return &SongRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *SongRepository) WithTx(tx *sql.Tx) *SongRepository {
	return &SongRepository{db: tx}
}

// Create inserts a new song with generated ID and sequence.
func (r *SongRepository) Create(ctx context.Context, song *models.SavedSong) error {
	if song.FetchState == "" {
		song.FetchState = models.FetchIdle
	}
	if song.Visibility == "" {
		song.Visibility = models.VisibilityPrivate
	}
	if err := song.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "saved_songs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	ts := now()
	song.ID = shared.GenerateID()
	song.Sequence = sequence
	song.CreatedAt, song.UpdatedAt = ts, ts

	var spotifyID sql.NullString
	if song.SpotifyID != "" {
		spotifyID = sql.NullString{String: song.SpotifyID, Valid: true}
	}

	query := `
		INSERT INTO saved_songs (` + songColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		song.ID,
		sequence,
		song.UserID,
		song.Track,
		song.Artist,
		song.Album,
		spotifyID,
		nullString(song.Lyrics),
		song.FetchState,
		song.Visibility,
		nullString(song.Note),
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert song: %w", err)
	}

	return nil
}

// Get retrieves a song by ID regardless of owner. Used by system actors such as the fetch worker.
func (r *SongRepository) Get(ctx context.Context, id string) (*models.SavedSong, error) {
	query := `SELECT ` + songColumns + ` FROM saved_songs WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id), id)
}

// GetForUser retrieves a song owned by userID.
func (r *SongRepository) GetForUser(ctx context.Context, userID, id string) (*models.SavedSong, error) {
	query := `SELECT ` + songColumns + ` FROM saved_songs WHERE id = ? AND user_id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id, userID), id)
}

// Owns reports whether userID owns songID.
func (r *SongRepository) Owns(ctx context.Context, userID, songID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM saved_songs WHERE id = ? AND user_id = ?)", songID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check song ownership: %w", err)
	}
	return exists, nil
}

// List returns a user's songs, newest first.
func (r *SongRepository) List(ctx context.Context, userID string) ([]*models.SavedSong, error) {
	query := `SELECT ` + songColumns + ` FROM saved_songs WHERE user_id = ? ORDER BY sequence DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs: %w", err)
	}
	defer rows.Close()

	var songs []*models.SavedSong
	for rows.Next() {
		song, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song: %w", err)
		}
		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return songs, nil
}

// Delete removes a user's song. Its document, lines, snapshots and annotations go with it.
func (r *SongRepository) Delete(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM saved_songs WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete song: %w", err)
	}
	return affectedOne(result, "song "+id)
}

// SetNote sets or clears (nil) the personal note on a user's song.
func (r *SongRepository) SetNote(ctx context.Context, userID, id string, note *string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE saved_songs SET note = ?, updated_at = ? WHERE id = ? AND user_id = ?",
		nullString(note), now(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	return affectedOne(result, "song "+id)
}

// SetVisibility updates the visibility of a user's song.
func (r *SongRepository) SetVisibility(ctx context.Context, userID, id string, v models.Visibility) error {
	if _, err := models.ParseVisibility(string(v)); err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx,
		"UPDATE saved_songs SET visibility = ?, updated_at = ? WHERE id = ? AND user_id = ?",
		v, now(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update visibility: %w", err)
	}
	return affectedOne(result, "song "+id)
}

// SetFetchState records automatic retrieval progress for a song.
func (r *SongRepository) SetFetchState(ctx context.Context, id string, state models.FetchState) error {
	if !state.Valid() {
		return fmt.Errorf("%w: unknown fetch state %q", shared.ErrInvalidInput, state)
	}
	result, err := r.db.ExecContext(ctx,
		"UPDATE saved_songs SET fetch_state = ?, updated_at = ? WHERE id = ?", state, now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update fetch state: %w", err)
	}
	return affectedOne(result, "song "+id)
}

// SetLegacyLyrics writes the flat lyrics mirror column.
func (r *SongRepository) SetLegacyLyrics(ctx context.Context, id, raw string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE saved_songs SET lyrics = ?, updated_at = ? WHERE id = ?", raw, now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update lyrics mirror: %w", err)
	}
	return affectedOne(result, "song "+id)
}

func (r *SongRepository) scanOne(row *sql.Row, id string) (*models.SavedSong, error) {
	song, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: song %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query song: %w", err)
	}
	return song, nil
}

func (r *SongRepository) scan(s interface{ Scan(...any) error }) (*models.SavedSong, error) {
	var (
		song                 models.SavedSong
		spotifyID            sql.NullString
		lyrics, note         sql.NullString
		createdAt, updatedAt dbTime
	)

	err := s.Scan(
		&song.ID,
		&song.Sequence,
		&song.UserID,
		&song.Track,
		&song.Artist,
		&song.Album,
		&spotifyID,
		&lyrics,
		&song.FetchState,
		&song.Visibility,
		&note,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	song.SpotifyID = spotifyID.String
	song.Lyrics = stringPtr(lyrics)
	song.Note = stringPtr(note)
	song.CreatedAt, song.UpdatedAt = createdAt.Time, updatedAt.Time
	return &song, nil
}
