// Package library is the lyrics core: documents with bounded version history, line annotations,
// saved songs, and the legacy lyrics mirror.
//
// Every user-facing operation takes a [models.Caller]. Songs the caller does not own read as
// [shared.ErrNotFound], the same as songs that do not exist.
package library

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/shared"
)

// DefaultVersionsToKeep bounds the snapshot history of each document.
const DefaultVersionsToKeep = 20

// OwnershipChecker answers whether a user owns a saved song.
type OwnershipChecker interface {
	Owns(ctx context.Context, userID, songID string) (bool, error)
}

// Enqueuer schedules automatic lyrics retrieval for a song.
type Enqueuer interface {
	EnqueueFetch(ctx context.Context, song *models.SavedSong) error
}

func authorize(ctx context.Context, owners OwnershipChecker, caller models.Caller, songID string) error {
	if caller.UserID == "" {
		return fmt.Errorf("%w: song %s", shared.ErrNotFound, songID)
	}
	ok, err := owners.Owns(ctx, caller.UserID, songID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: song %s", shared.ErrNotFound, songID)
	}
	return nil
}

func orDiscard(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.New(io.Discard)
	}
	return logger
}
