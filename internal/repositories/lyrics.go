package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/shared"
)

// LyricsRepository persists lyrics documents, their lines, and their version snapshots.
//
// The multi-step writes are expected to run through [LyricsRepository.WithTx].
type LyricsRepository struct {
	db shared.DBTX
}

// NewLyricsRepository creates a new [LyricsRepository] with the given database connection
func NewLyricsRepository(db shared.DBTX) *LyricsRepository {
	return &LyricsRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *LyricsRepository) WithTx(tx *sql.Tx) *LyricsRepository {
	return &LyricsRepository{db: tx}
}

// DocumentBySong returns the document header (no lines or snapshots) for a song.
func (r *LyricsRepository) DocumentBySong(ctx context.Context, songID string) (*models.LyricsDocument, error) {
	query := `
		SELECT id, song_id, raw_text, version, created_at, updated_at
		FROM lyrics_documents
		WHERE song_id = ?
	`

	var (
		doc                  models.LyricsDocument
		createdAt, updatedAt dbTime
	)
	err := r.db.QueryRowContext(ctx, query, songID).Scan(&doc.ID, &doc.SongID, &doc.RawText, &doc.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no lyrics for song %s", shared.ErrNotFound, songID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lyrics document: %w", err)
	}

	doc.CreatedAt, doc.UpdatedAt = createdAt.Time, updatedAt.Time
	return &doc, nil
}

// CreateDocument inserts a document at version 1.
//
// A second document for the same song is a [shared.ErrConflict].
func (r *LyricsRepository) CreateDocument(ctx context.Context, songID, raw string) (*models.LyricsDocument, error) {
	ts := now()
	doc := &models.LyricsDocument{
		ID:        shared.GenerateID(),
		SongID:    songID,
		RawText:   raw,
		Version:   1,
		CreatedAt: ts,
		UpdatedAt: ts,
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lyrics_documents (id, song_id, raw_text, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
	`, doc.ID, songID, raw, ts, ts)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: song %s already has lyrics", shared.ErrConflict, songID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert lyrics document: %w", err)
	}

	return doc, nil
}

// UpdateDocument replaces raw text and advances the version by one, provided the stored version is still expected.
//
// Returns the new version, or [shared.ErrConflict] when another write got there first.
func (r *LyricsRepository) UpdateDocument(ctx context.Context, documentID, raw string, expected int) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE lyrics_documents
		SET raw_text = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, raw, now(), documentID, expected)
	if err != nil {
		return 0, fmt.Errorf("failed to update lyrics document: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return 0, fmt.Errorf("%w: document %s is no longer at version %d", shared.ErrConflict, documentID, expected)
	}

	return expected + 1, nil
}

// Lines returns a document's lines in line-number order.
func (r *LyricsRepository) Lines(ctx context.Context, documentID string) ([]models.LyricsLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, document_id, line_number, text, timestamp_ms
		FROM lyrics_lines
		WHERE document_id = ?
		ORDER BY line_number ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lyrics lines: %w", err)
	}
	defer rows.Close()

	lines := []models.LyricsLine{}
	for rows.Next() {
		var (
			line models.LyricsLine
			ts   sql.NullInt64
		)
		if err := rows.Scan(&line.ID, &line.DocumentID, &line.LineNumber, &line.Text, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan lyrics line: %w", err)
		}
		if ts.Valid {
			v := ts.Int64
			line.TimestampMS = &v
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return lines, nil
}

// ReplaceLines deletes every line of a document and inserts lines in their place.
//
// Annotations on the old lines are removed by the line_annotations cascade. IDs are assigned here.
func (r *LyricsRepository) ReplaceLines(ctx context.Context, documentID string, lines []models.LyricsLine) ([]models.LyricsLine, error) {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM lyrics_lines WHERE document_id = ?", documentID); err != nil {
		return nil, fmt.Errorf("failed to delete lyrics lines: %w", err)
	}

	stored := make([]models.LyricsLine, len(lines))
	for i, line := range lines {
		line.ID = shared.GenerateID()
		line.DocumentID = documentID

		var ts sql.NullInt64
		if line.TimestampMS != nil {
			ts = sql.NullInt64{Int64: *line.TimestampMS, Valid: true}
		}

		_, err := r.db.ExecContext(ctx, `
			INSERT INTO lyrics_lines (id, document_id, line_number, text, timestamp_ms)
			VALUES (?, ?, ?, ?, ?)
		`, line.ID, documentID, line.LineNumber, line.Text, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to insert lyrics line %d: %w", line.LineNumber, err)
		}
		stored[i] = line
	}

	return stored, nil
}

// SetLineTimestamp sets (or clears, with nil) the playback offset of one line.
func (r *LyricsRepository) SetLineTimestamp(ctx context.Context, documentID string, lineNumber int, ms *int64) error {
	var ts sql.NullInt64
	if ms != nil {
		ts = sql.NullInt64{Int64: *ms, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE lyrics_lines SET timestamp_ms = ? WHERE document_id = ? AND line_number = ?",
		ts, documentID, lineNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to update line timestamp: %w", err)
	}
	return affectedOne(result, fmt.Sprintf("line %d", lineNumber))
}

// InsertSnapshot records the raw text a document held at version.
func (r *LyricsRepository) InsertSnapshot(ctx context.Context, documentID string, version int, raw string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lyrics_versions (id, document_id, version, raw_text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, shared.GenerateID(), documentID, version, raw, now())
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: snapshot of version %d already exists", shared.ErrConflict, version)
	}
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// PruneSnapshots deletes all but the keep highest-versioned snapshots of a document.
func (r *LyricsRepository) PruneSnapshots(ctx context.Context, documentID string, keep int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM lyrics_versions
		WHERE document_id = ?
		AND version NOT IN (
			SELECT version FROM lyrics_versions
			WHERE document_id = ?
			ORDER BY version DESC
			LIMIT ?
		)
	`, documentID, documentID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// Snapshots returns up to limit snapshots of a document, highest version first.
func (r *LyricsRepository) Snapshots(ctx context.Context, documentID string, limit int) ([]models.LyricsSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, document_id, version, raw_text, created_at
		FROM lyrics_versions
		WHERE document_id = ?
		ORDER BY version DESC
		LIMIT ?
	`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []models.LyricsSnapshot{}
	for rows.Next() {
		var (
			s         models.LyricsSnapshot
			createdAt dbTime
		)
		if err := rows.Scan(&s.ID, &s.DocumentID, &s.Version, &s.RawText, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		s.CreatedAt = createdAt.Time
		snapshots = append(snapshots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return snapshots, nil
}

// Snapshot returns the snapshot of a document at version.
func (r *LyricsRepository) Snapshot(ctx context.Context, documentID string, version int) (*models.LyricsSnapshot, error) {
	var (
		s         models.LyricsSnapshot
		createdAt dbTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, document_id, version, raw_text, created_at
		FROM lyrics_versions
		WHERE document_id = ? AND version = ?
	`, documentID, version).Scan(&s.ID, &s.DocumentID, &s.Version, &s.RawText, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: version %d", shared.ErrNotFound, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	s.CreatedAt = createdAt.Time
	return &s, nil
}
