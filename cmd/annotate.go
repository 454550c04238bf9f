package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/shared"
)

// AnnotateList prints the caller's annotations on a song.
func (r *Runner) AnnotateList(ctx context.Context, cmd *cli.Command) error {
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

	annotations, err := a.annotations.ListForSong(ctx, who, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(annotations, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Annotations (%d)", len(annotations)))
	for _, an := range annotations {
		r.writePlain("%s  line %-3d %s\n", an.ID, an.LineNumber, annotationText(an))
	}
	return nil
}

// AnnotateAdd annotates a line of a song by line number.
func (r *Runner) AnnotateAdd(ctx context.Context, cmd *cli.Command) error {
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

	doc, err := a.docs.Get(ctx, who, id)
	if err != nil {
		return err
	}
	number := cmd.Int("line")
	var lineID string
	for _, l := range doc.Lines {
		if l.LineNumber == number {
			lineID = l.ID
			break
		}
	}
	if lineID == "" {
		return fmt.Errorf("%w: line %d of song %s", shared.ErrNotFound, number, id)
	}

	an, err := a.annotations.Create(ctx, who, lineID, cmd.String("text"), optionalString(cmd, "emoji"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(an, cmd.Bool("pretty"))
	}
	return r.writePlain("✓ Annotated line %d (%s)\n", number, an.ID)
}

// AnnotateEdit replaces the text and emoji of an annotation.
func (r *Runner) AnnotateEdit(ctx context.Context, cmd *cli.Command) error {
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

	an, err := a.annotations.Update(ctx, who, id, cmd.String("text"), optionalString(cmd, "emoji"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(an, cmd.Bool("pretty"))
	}
	return r.writePlain("✓ Updated annotation %s\n", an.ID)
}

// AnnotateRemove deletes an annotation.
func (r *Runner) AnnotateRemove(ctx context.Context, cmd *cli.Command) error {
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

	if err := a.annotations.Delete(ctx, who, id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted annotation %s\n", id)
}

func optionalString(cmd *cli.Command, name string) *string {
	if !cmd.IsSet(name) {
		return nil
	}
	v := cmd.String(name)
	return &v
}

func annotationText(an models.LineAnnotation) string {
	if an.Emoji == nil {
		return an.Text
	}
	return *an.Emoji + " " + an.Text
}
