package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/lyrix/internal/shared"
)

// SetupDatabase initializes the database and runs migrations.
//
// A missing config file is created from the embedded template first.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config := r.setupConfig(cmd.String("config"))

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.OpenDatabase(config.Database)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return nil
}

// SetupStatus lists every migration and whether it has been applied.
func (r *Runner) SetupStatus(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfigOrDefault(cmd.String("config"))

	db, err := shared.OpenDatabase(config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	statuses, err := shared.Migrations(db)
	if err != nil {
		return err
	}

	r.writePlainHeader("Migrations")
	for _, m := range statuses {
		state := "pending"
		if m.Applied {
			state = "applied"
		}
		r.writePlain("%04d  %-30s %s\n", m.Version, m.Name, state)
	}
	return nil
}

// SetupRollback rolls back the most recent migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfigOrDefault(cmd.String("config"))

	db, err := shared.OpenDatabase(config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return err
	}
	r.logger.Info("rolled back latest migration", "path", config.Database.Path)
	return nil
}

func (r *Runner) setupConfig(configPath string) *shared.Config {
	if _, err := os.Stat(configPath); err == nil {
		return r.loadConfigOrDefault(configPath)
	}

	r.logger.Info("config file not found, creating from template", "path", configPath)
	if err := shared.CreateConfigFile(configPath); err != nil {
		r.logger.Warn("failed to create config file, using defaults", "error", err)
		return r.config
	}
	r.logger.Info("config file created", "path", configPath)
	return r.loadConfigOrDefault(configPath)
}

// loadConfigOrDefault reads configPath, falling back to the runner's config when it is missing or invalid.
func (r *Runner) loadConfigOrDefault(configPath string) *shared.Config {
	if _, err := os.Stat(configPath); err != nil {
		return r.config
	}
	config, err := shared.LoadConfig(configPath)
	if err != nil {
		r.logger.Warn("failed to load config, using defaults", "error", err)
		return r.config
	}
	if err := config.ApplyEnv(); err != nil {
		r.logger.Warn("failed to apply environment, using file values", "error", err)
	}
	return config
}
