package library

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/repositories"
	"github.com/desertthunder/lyrix/internal/shared"
)

// AnnotationStore manages per-user notes on individual lyrics lines.
//
// A caller may only annotate lines of songs they own. Annotations live and die with their line:
// saving new lyrics replaces every line and removes the annotations on it.
type AnnotationStore struct {
	owners      OwnershipChecker
	annotations *repositories.AnnotationRepository
	lyrics      *repositories.LyricsRepository
	logger      *log.Logger
}

// NewAnnotationStore creates an [AnnotationStore].
func NewAnnotationStore(db shared.DBTX, owners OwnershipChecker, logger *log.Logger) *AnnotationStore {
	return &AnnotationStore{
		owners:      owners,
		annotations: repositories.NewAnnotationRepository(db),
		lyrics:      repositories.NewLyricsRepository(db),
		logger:      shared.WithLogger(orDiscard(logger), "component", "annotations"),
	}
}

// ListForLine returns the caller's annotations on a line, oldest first.
func (s *AnnotationStore) ListForLine(ctx context.Context, caller models.Caller, lineID string) ([]models.LineAnnotation, error) {
	if err := s.authorizeLine(ctx, caller, lineID); err != nil {
		return nil, err
	}
	return s.annotations.ListForLine(ctx, caller.UserID, lineID)
}

// ListForSong returns the caller's annotations across the song's current lines.
func (s *AnnotationStore) ListForSong(ctx context.Context, caller models.Caller, songID string) ([]models.LineAnnotation, error) {
	if err := authorize(ctx, s.owners, caller, songID); err != nil {
		return nil, err
	}

	doc, err := s.lyrics.DocumentBySong(ctx, songID)
	if errors.Is(err, shared.ErrNotFound) {
		return []models.LineAnnotation{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.annotations.ListForDocument(ctx, caller.UserID, doc.ID)
}

// CountForSong counts all annotations on the song's current lines; these are dropped by the next save.
func (s *AnnotationStore) CountForSong(ctx context.Context, caller models.Caller, songID string) (int, error) {
	if err := authorize(ctx, s.owners, caller, songID); err != nil {
		return 0, err
	}

	doc, err := s.lyrics.DocumentBySong(ctx, songID)
	if errors.Is(err, shared.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return s.annotations.CountForDocument(ctx, doc.ID)
}

// Create annotates a line. A caller has at most one annotation per line: a second is [shared.ErrConflict].
func (s *AnnotationStore) Create(ctx context.Context, caller models.Caller, lineID, text string, emoji *string) (*models.LineAnnotation, error) {
	if err := s.authorizeLine(ctx, caller, lineID); err != nil {
		return nil, err
	}

	a := &models.LineAnnotation{LineID: lineID, UserID: caller.UserID, Text: text, Emoji: emptyToNil(emoji)}
	if err := s.annotations.Create(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Debug("annotation created", "annotation_id", a.ID, "line_id", lineID)
	return s.annotations.Get(ctx, caller.UserID, a.ID)
}

// Update replaces the text and emoji of one of the caller's annotations.
func (s *AnnotationStore) Update(ctx context.Context, caller models.Caller, annotationID, text string, emoji *string) (*models.LineAnnotation, error) {
	if caller.UserID == "" {
		return nil, fmt.Errorf("%w: annotation %s", shared.ErrNotFound, annotationID)
	}
	if err := s.annotations.Update(ctx, caller.UserID, annotationID, text, emptyToNil(emoji)); err != nil {
		return nil, err
	}
	return s.annotations.Get(ctx, caller.UserID, annotationID)
}

// Delete removes one of the caller's annotations.
func (s *AnnotationStore) Delete(ctx context.Context, caller models.Caller, annotationID string) error {
	if caller.UserID == "" {
		return fmt.Errorf("%w: annotation %s", shared.ErrNotFound, annotationID)
	}
	return s.annotations.Delete(ctx, caller.UserID, annotationID)
}

func (s *AnnotationStore) authorizeLine(ctx context.Context, caller models.Caller, lineID string) error {
	owner, err := s.annotations.LineOwner(ctx, lineID)
	if err != nil {
		return err
	}
	if caller.UserID == "" || owner != caller.UserID {
		return fmt.Errorf("%w: line %s", shared.ErrNotFound, lineID)
	}
	return nil
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
