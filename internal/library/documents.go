package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/lyrix/internal/lyrics"
	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/repositories"
	"github.com/desertthunder/lyrix/internal/shared"
)

// DocumentStore owns the structured lyrics of saved songs.
//
// Every write snapshots the previous raw text, evicts snapshots beyond the retention bound,
// replaces all lines and bumps the version, in one transaction. Writes are compare-and-swap on
// the version: callers pass the version they read (0 when no document exists yet).
type DocumentStore struct {
	db     *sql.DB
	owners OwnershipChecker
	lyrics *repositories.LyricsRepository
	songs  *repositories.SongRepository
	mirror *SongMirror
	keep   int
	logger *log.Logger
}

// NewDocumentStore creates a [DocumentStore]. keep <= 0 uses [DefaultVersionsToKeep].
func NewDocumentStore(db *sql.DB, owners OwnershipChecker, mirror *SongMirror, keep int, logger *log.Logger) *DocumentStore {
	if keep <= 0 {
		keep = DefaultVersionsToKeep
	}
	return &DocumentStore{
		db:     db,
		owners: owners,
		lyrics: repositories.NewLyricsRepository(db),
		songs:  repositories.NewSongRepository(db),
		mirror: mirror,
		keep:   keep,
		logger: shared.WithLogger(orDiscard(logger), "component", "documents"),
	}
}

// Get returns the song's document with lines ascending and retained snapshots newest first.
func (s *DocumentStore) Get(ctx context.Context, caller models.Caller, songID string) (*models.LyricsDocument, error) {
	if err := authorize(ctx, s.owners, caller, songID); err != nil {
		return nil, err
	}
	return s.load(ctx, songID)
}

// Save replaces the song's lyrics with raw, creating the document at version 1 if needed.
//
// expectedVersion must be 0 when no document exists and the stored version otherwise;
// anything else is [shared.ErrConflict] and nothing is written. Saving identical text still
// produces a new version.
func (s *DocumentStore) Save(ctx context.Context, caller models.Caller, songID, raw string, expectedVersion int) (*models.LyricsDocument, error) {
	if err := authorize(ctx, s.owners, caller, songID); err != nil {
		return nil, err
	}

	if err := s.write(ctx, songID, raw, expectedVersion, nil); err != nil {
		return nil, err
	}

	s.mirror.Sync(ctx, songID, raw)
	return s.load(ctx, songID)
}

// RestoreVersion saves the raw text of a retained snapshot as a new version.
func (s *DocumentStore) RestoreVersion(ctx context.Context, caller models.Caller, songID string, version int) (*models.LyricsDocument, error) {
	if err := authorize(ctx, s.owners, caller, songID); err != nil {
		return nil, err
	}

	doc, err := s.lyrics.DocumentBySong(ctx, songID)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.lyrics.Snapshot(ctx, doc.ID, version)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("restoring snapshot", "song_id", songID, "from_version", version, "current_version", doc.Version)
	return s.Save(ctx, caller, songID, snapshot.RawText, doc.Version)
}

// History returns the retained snapshots of the song's document, newest first.
func (s *DocumentStore) History(ctx context.Context, caller models.Caller, songID string) ([]models.LyricsSnapshot, error) {
	if err := authorize(ctx, s.owners, caller, songID); err != nil {
		return nil, err
	}

	doc, err := s.lyrics.DocumentBySong(ctx, songID)
	if err != nil {
		return nil, err
	}
	return s.lyrics.Snapshots(ctx, doc.ID, s.keep)
}

// SetLineTimestamps sets playback offsets (milliseconds) on current lines by line number.
//
// Timestamps are presentation data: the version does not change. All offsets apply or none do.
func (s *DocumentStore) SetLineTimestamps(ctx context.Context, caller models.Caller, songID string, offsets map[int]int64) (*models.LyricsDocument, error) {
	if err := authorize(ctx, s.owners, caller, songID); err != nil {
		return nil, err
	}
	for line, ms := range offsets {
		if ms < 0 {
			return nil, fmt.Errorf("%w: negative timestamp for line %d", shared.ErrInvalidInput, line)
		}
	}

	err := shared.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.lyrics.WithTx(tx)
		doc, err := repo.DocumentBySong(ctx, songID)
		if err != nil {
			return err
		}
		for line, ms := range offsets {
			if err := repo.SetLineTimestamp(ctx, doc.ID, line, &ms); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.load(ctx, songID)
}

// Populate stores fetched lyrics as version 1 and marks the song done, atomically.
//
// It runs as the system rather than a user, so ownership is not checked. An existing document
// is [shared.ErrConflict]: the user saved lyrics first.
func (s *DocumentStore) Populate(ctx context.Context, songID, raw string) (*models.LyricsDocument, error) {
	err := s.write(ctx, songID, raw, 0, func(tx *sql.Tx) error {
		return s.songs.WithTx(tx).SetFetchState(ctx, songID, models.FetchDone)
	})
	if err != nil {
		return nil, err
	}

	s.mirror.Sync(ctx, songID, raw)
	return s.load(ctx, songID)
}

// HasDocument reports whether the song has structured lyrics.
func (s *DocumentStore) HasDocument(ctx context.Context, songID string) (bool, error) {
	_, err := s.lyrics.DocumentBySong(ctx, songID)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *DocumentStore) write(ctx context.Context, songID, raw string, expected int, also func(tx *sql.Tx) error) error {
	return shared.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.lyrics.WithTx(tx)

		doc, err := repo.DocumentBySong(ctx, songID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			if expected != 0 {
				return fmt.Errorf("%w: song %s has no lyrics, expected version %d", shared.ErrConflict, songID, expected)
			}
			if doc, err = repo.CreateDocument(ctx, songID, raw); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if expected != doc.Version {
				return fmt.Errorf("%w: lyrics are at version %d, expected %d", shared.ErrConflict, doc.Version, expected)
			}
			if err := repo.InsertSnapshot(ctx, doc.ID, doc.Version, doc.RawText); err != nil {
				return err
			}
			if _, err := repo.PruneSnapshots(ctx, doc.ID, s.keep); err != nil {
				return err
			}
			if _, err := repo.UpdateDocument(ctx, doc.ID, raw, expected); err != nil {
				return err
			}
		}

		if _, err := repo.ReplaceLines(ctx, doc.ID, lyrics.Numbered(raw)); err != nil {
			return err
		}

		if also != nil {
			return also(tx)
		}
		return nil
	})
}

// load reads the document, lines and snapshots in one transaction.
func (s *DocumentStore) load(ctx context.Context, songID string) (*models.LyricsDocument, error) {
	var doc *models.LyricsDocument
	err := shared.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.lyrics.WithTx(tx)

		d, err := repo.DocumentBySong(ctx, songID)
		if err != nil {
			return err
		}
		if d.Lines, err = repo.Lines(ctx, d.ID); err != nil {
			return err
		}
		if d.Snapshots, err = repo.Snapshots(ctx, d.ID, s.keep); err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}
