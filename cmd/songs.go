package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/shared"
)

// SongAdd saves a song to the caller's library.
func (r *Runner) SongAdd(ctx context.Context, cmd *cli.Command) error {
	who, err := caller(cmd)
	if err != nil {
		return err
	}
	a, err := r.library(ctx)
	if err != nil {
		return err
	}

	in := models.SongInput{
		Track:     cmd.String("track"),
		Artist:    cmd.String("artist"),
		Album:     cmd.String("album"),
		SpotifyID: cmd.String("spotify-id"),
	}
	if path := cmd.String("lyrics-file"); path != "" {
		if in.Lyrics, err = r.readText(path); err != nil {
			return err
		}
	}

	song, err := a.songs.Create(ctx, who, in)
	if err != nil {
		return fmt.Errorf("failed to add song: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(song, cmd.Bool("pretty"))
	}
	r.writePlain("✓ Saved %s (%s)\n", songLabel(song), song.ID)
	switch song.FetchState {
	case models.FetchFetching:
		r.writePlain("Lyrics fetch queued; run 'lyrix worker' to process it.\n")
	case models.FetchIdle:
		if !in.HasLyrics() {
			r.writePlain("No lyrics yet; add them with 'lyrix lyrics save %s'.\n", song.ID)
		}
	}
	return nil
}

// SongList prints the caller's songs, newest first.
func (r *Runner) SongList(ctx context.Context, cmd *cli.Command) error {
	who, err := caller(cmd)
	if err != nil {
		return err
	}
	a, err := r.library(ctx)
	if err != nil {
		return err
	}

	songs, err := a.songs.List(ctx, who)
	if err != nil {
		return fmt.Errorf("failed to list songs: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(songs, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Saved songs (%d)", len(songs)))
	for _, s := range songs {
		r.writePlain("%s  %-9s %s\n", s.ID, s.FetchState, songLabel(s))
	}
	return nil
}

// SongShow prints one song with its fetch state.
func (r *Runner) SongShow(ctx context.Context, cmd *cli.Command) error {
	who, err := caller(cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	a, err := r.library(ctx)
	if err != nil {
		return err
	}

	song, err := a.songs.Get(ctx, who, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(song, cmd.Bool("pretty"))
	}

	r.writePlainHeader(songLabel(song))
	r.writePlain("ID:          %s\n", song.ID)
	if song.Album != "" {
		r.writePlain("Album:       %s\n", song.Album)
	}
	if song.SpotifyID != "" {
		r.writePlain("Spotify ID:  %s\n", song.SpotifyID)
	}
	r.writePlain("Lyrics:      %s\n", song.FetchState)
	r.writePlain("Visibility:  %s\n", song.Visibility)
	if song.Note != nil {
		r.writePlain("Note:        %s\n", *song.Note)
	}
	r.writePlain("Saved:       %s\n", song.CreatedAt.Format("2006-01-02 15:04"))
	return nil
}

// SongRemove deletes a song with its lyrics and annotations.
func (r *Runner) SongRemove(ctx context.Context, cmd *cli.Command) error {
	who, err := caller(cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	a, err := r.library(ctx)
	if err != nil {
		return err
	}

	if err := a.songs.Delete(ctx, who, id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted song %s\n", id)
}

// SongNote sets or clears the personal note.
func (r *Runner) SongNote(ctx context.Context, cmd *cli.Command) error {
	who, err := caller(cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	a, err := r.library(ctx)
	if err != nil {
		return err
	}

	song, err := a.songs.SetNote(ctx, who, id, cmd.String("text"))
	if err != nil {
		return err
	}
	if song.Note == nil {
		return r.writePlain("✓ Cleared note on %s\n", songLabel(song))
	}
	return r.writePlain("✓ Updated note on %s\n", songLabel(song))
}

// SongVisibility changes who may see a song.
func (r *Runner) SongVisibility(ctx context.Context, cmd *cli.Command) error {
	who, err := caller(cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	visibility, err := requireArg(cmd, "visibility")
	if err != nil {
		return err
	}
	a, err := r.library(ctx)
	if err != nil {
		return err
	}

	song, err := a.songs.SetVisibility(ctx, who, id, visibility)
	if err != nil {
		return err
	}
	return r.writePlain("✓ %s is now %s\n", songLabel(song), song.Visibility)
}

// readText reads path, or the runner's input when path is "-".
func (r *Runner) readText(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(r.input)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read lyrics: %w", err)
	}
	return string(data), nil
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := cmd.StringArg(name)
	if v == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	return v, nil
}

func songLabel(s *models.SavedSong) string {
	if s.Artist == "" {
		return s.Track
	}
	return fmt.Sprintf("%s - %s", s.Artist, s.Track)
}
