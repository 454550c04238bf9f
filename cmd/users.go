package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/lyrix/internal/models"
)

// UserCreate registers a user.
func (r *Runner) UserCreate(ctx context.Context, cmd *cli.Command) error {
	a, err := r.library(ctx)
	if err != nil {
		return err
	}

	user := &models.User{Email: cmd.String("email"), Name: cmd.String("name")}
	if err := a.users.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, cmd.Bool("pretty"))
	}
	return r.writePlain("✓ Created user %s (%s)\n", user.ID, user.Email)
}

// UserList prints all users.
func (r *Runner) UserList(ctx context.Context, cmd *cli.Command) error {
	a, err := r.library(ctx)
	if err != nil {
		return err
	}

	users, err := a.users.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(users, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Users (%d)", len(users)))
	for _, u := range users {
		r.writePlain("%s  %-24s %s\n", u.ID, u.Name, u.Email)
	}
	return nil
}
