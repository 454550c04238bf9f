package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/shared"
)

// AnnotationRepository persists [models.LineAnnotation] records.
//
// All user-scoped queries filter on user_id; another user's annotation reads as [shared.ErrNotFound].
type AnnotationRepository struct {
	db shared.DBTX
}

// NewAnnotationRepository creates a new [AnnotationRepository] with the given database connection
func NewAnnotationRepository(db shared.DBTX) *AnnotationRepository {
	return &AnnotationRepository{db: db}
}

// LineOwner returns the id of the user owning the song a line belongs to.
func (r *AnnotationRepository) LineOwner(ctx context.Context, lineID string) (string, error) {
	var owner string
	err := r.db.QueryRowContext(ctx, `
		SELECT s.user_id
		FROM lyrics_lines l
		JOIN lyrics_documents d ON d.id = l.document_id
		JOIN saved_songs s ON s.id = d.song_id
		WHERE l.id = ?
	`, lineID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: line %s", shared.ErrNotFound, lineID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query line owner: %w", err)
	}
	return owner, nil
}

// Create inserts an annotation. A second annotation by the same user on the same line is a [shared.ErrConflict].
func (r *AnnotationRepository) Create(ctx context.Context, a *models.LineAnnotation) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	ts := now()
	a.ID = shared.GenerateID()
	a.CreatedAt, a.UpdatedAt = ts, ts

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO line_annotations (id, line_id, user_id, text, emoji, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.LineID, a.UserID, a.Text, nullString(a.Emoji), ts, ts)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: line %s already annotated", shared.ErrConflict, a.LineID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert annotation: %w", err)
	}
	return nil
}

// Get returns one of userID's annotations.
func (r *AnnotationRepository) Get(ctx context.Context, userID, id string) (*models.LineAnnotation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT a.id, a.line_id, a.user_id, l.line_number, a.text, a.emoji, a.created_at, a.updated_at
		FROM line_annotations a
		JOIN lyrics_lines l ON l.id = a.line_id
		WHERE a.id = ? AND a.user_id = ?
	`, id, userID)

	a, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: annotation %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query annotation: %w", err)
	}
	return a, nil
}

// Update replaces the text and emoji of one of userID's annotations.
func (r *AnnotationRepository) Update(ctx context.Context, userID, id, text string, emoji *string) error {
	if err := models.ValidateAnnotation(text, emoji); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE line_annotations
		SET text = ?, emoji = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, text, nullString(emoji), now(), id, userID)
	if err != nil {
		return fmt.Errorf("failed to update annotation: %w", err)
	}
	return affectedOne(result, "annotation "+id)
}

// Delete removes one of userID's annotations.
func (r *AnnotationRepository) Delete(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM line_annotations WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete annotation: %w", err)
	}
	return affectedOne(result, "annotation "+id)
}

// ListForLine returns userID's annotations on a line, oldest first.
func (r *AnnotationRepository) ListForLine(ctx context.Context, userID, lineID string) ([]models.LineAnnotation, error) {
	return r.list(ctx, `
		SELECT a.id, a.line_id, a.user_id, l.line_number, a.text, a.emoji, a.created_at, a.updated_at
		FROM line_annotations a
		JOIN lyrics_lines l ON l.id = a.line_id
		WHERE a.line_id = ? AND a.user_id = ?
		ORDER BY a.created_at ASC, a.id ASC
	`, lineID, userID)
}

// ListForDocument returns userID's annotations across a document's current lines, by line number then age.
func (r *AnnotationRepository) ListForDocument(ctx context.Context, userID, documentID string) ([]models.LineAnnotation, error) {
	return r.list(ctx, `
		SELECT a.id, a.line_id, a.user_id, l.line_number, a.text, a.emoji, a.created_at, a.updated_at
		FROM line_annotations a
		JOIN lyrics_lines l ON l.id = a.line_id
		WHERE l.document_id = ? AND a.user_id = ?
		ORDER BY l.line_number ASC, a.created_at ASC
	`, documentID, userID)
}

// CountForDocument counts annotations by any user on a document's current lines.
func (r *AnnotationRepository) CountForDocument(ctx context.Context, documentID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM line_annotations a
		JOIN lyrics_lines l ON l.id = a.line_id
		WHERE l.document_id = ?
	`, documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count annotations: %w", err)
	}
	return n, nil
}

func (r *AnnotationRepository) list(ctx context.Context, query string, args ...any) ([]models.LineAnnotation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotations: %w", err)
	}
	defer rows.Close()

	annotations := []models.LineAnnotation{}
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		annotations = append(annotations, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return annotations, nil
}

func (r *AnnotationRepository) scan(s interface{ Scan(...any) error }) (*models.LineAnnotation, error) {
	var (
		a                    models.LineAnnotation
		emoji                sql.NullString
		createdAt, updatedAt dbTime
	)
	if err := s.Scan(&a.ID, &a.LineID, &a.UserID, &a.LineNumber, &a.Text, &emoji, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Emoji = stringPtr(emoji)
	a.CreatedAt, a.UpdatedAt = createdAt.Time, updatedAt.Time
	return &a, nil
}
