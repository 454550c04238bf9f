package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/lyrix/internal/formatter"
	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/shared"
)

// LyricsShow prints the numbered lines of a song's current lyrics.
func (r *Runner) LyricsShow(ctx context.Context, cmd *cli.Command) error {
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
	doc, err := a.docs.Get(ctx, who, id)
	if errors.Is(err, shared.ErrNotFound) {
		return r.writePlain("No lyrics yet for %s (fetch state: %s)\n", songLabel(song), song.FetchState)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(doc, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("%s (version %d)", songLabel(song), doc.Version))
	r.writeLines(doc.Lines)
	return nil
}

// LyricsSave replaces a song's lyrics with text read from --file.
//
// Without --expected the stored version is used. Annotations on the replaced lines are dropped,
// and a warning says how many.
func (r *Runner) LyricsSave(ctx context.Context, cmd *cli.Command) error {
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

	raw, err := r.readText(cmd.String("file"))
	if err != nil {
		return err
	}

	expected := cmd.Int("expected")
	if expected < 0 {
		current, err := a.docs.Get(ctx, who, id)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			expected = 0
		case err != nil:
			return err
		default:
			expected = current.Version
		}
	}

	dropped, err := a.annotations.CountForSong(ctx, who, id)
	if err != nil {
		return err
	}

	doc, err := a.docs.Save(ctx, who, id, raw, expected)
	if errors.Is(err, shared.ErrConflict) {
		return fmt.Errorf("%w: lyrics changed since version %d; reload and try again", shared.ErrConflict, expected)
	}
	if err != nil {
		return err
	}

	if dropped > 0 {
		r.logger.Warn("annotations dropped with replaced lines", "song_id", id, "count", dropped)
		r.writePlain("⚠ %d annotation(s) on the previous lines were removed\n", dropped)
	}

	if cmd.Bool("json") {
		return r.writeJSON(doc, cmd.Bool("pretty"))
	}
	return r.writePlain("✓ Saved version %d (%d lines)\n", doc.Version, len(doc.Lines))
}

// LyricsRestore saves a retained snapshot as a new version.
func (r *Runner) LyricsRestore(ctx context.Context, cmd *cli.Command) error {
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

	version := cmd.Int("to")
	doc, err := a.docs.RestoreVersion(ctx, who, id, version)
	if err != nil {
		return fmt.Errorf("failed to restore version %d: %w", version, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(doc, cmd.Bool("pretty"))
	}
	return r.writePlain("✓ Restored version %d as version %d\n", version, doc.Version)
}

// LyricsHistory lists retained snapshots, newest first.
func (r *Runner) LyricsHistory(ctx context.Context, cmd *cli.Command) error {
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

	snapshots, err := a.docs.History(ctx, who, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(snapshots, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("History (%d snapshots)", len(snapshots)))
	for _, s := range snapshots {
		first, _, _ := strings.Cut(strings.TrimSpace(s.RawText), "\n")
		r.writePlain("v%-4d %s  %s\n", s.Version, s.CreatedAt.Format("2006-01-02 15:04"), first)
	}
	return nil
}

// LyricsExport renders a song's lyrics with the caller's annotations.
func (r *Runner) LyricsExport(ctx context.Context, cmd *cli.Command) error {
	who, err := caller(cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
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
	doc, err := a.docs.Get(ctx, who, id)
	if err != nil {
		return err
	}
	annotations, err := a.annotations.ListForSong(ctx, who, id)
	if err != nil {
		return err
	}
	export := &formatter.LyricsExport{Song: song, Document: doc, Annotations: annotations}

	if output := cmd.String("output"); output != "-" {
		path, err := formatter.WriteExport(export, format, output)
		if err != nil {
			return err
		}
		r.logger.Info("lyrics exported", "song_id", id, "format", format, "path", path)
		return r.writePlain("✓ Exported to %s\n", path)
	}

	data, err := formatter.Export(export, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// LyricsTimestamps sets playback offsets from --set line=offset pairs.
func (r *Runner) LyricsTimestamps(ctx context.Context, cmd *cli.Command) error {
	who, err := caller(cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	offsets, err := parseOffsets(cmd.StringSlice("set"))
	if err != nil {
		return err
	}
	a, err := r.library(ctx)
	if err != nil {
		return err
	}

	doc, err := a.docs.SetLineTimestamps(ctx, who, id, offsets)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(doc, cmd.Bool("pretty"))
	}
	return r.writePlain("✓ Set %d timestamp(s) on version %d\n", len(offsets), doc.Version)
}

func (r *Runner) writeLines(lines []models.LyricsLine) {
	for _, l := range lines {
		if l.Text == "" {
			r.writePlain("\n")
			continue
		}
		if l.TimestampMS != nil {
			r.writePlain("%4d  [%s] %s\n", l.LineNumber, formatter.FormatTimestamp(*l.TimestampMS), l.Text)
			continue
		}
		r.writePlain("%4d  %s\n", l.LineNumber, l.Text)
	}
}

// parseOffsets reads "line=offset" pairs; offsets are milliseconds or mm:ss.xx.
func parseOffsets(pairs []string) (map[int]int64, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: at least one --set line=offset is required", shared.ErrMissingArgument)
	}

	offsets := make(map[int]int64, len(pairs))
	for _, pair := range pairs {
		line, offset, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: expected line=offset, got %q", shared.ErrInvalidArgument, pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			return nil, fmt.Errorf("%w: line number %q", shared.ErrInvalidArgument, line)
		}
		ms, err := formatter.ParseTimestamp(offset)
		if err != nil {
			return nil, err
		}
		offsets[n] = ms
	}
	return offsets, nil
}
