package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/lyrix/internal/library"
	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/queue"
	"github.com/desertthunder/lyrix/internal/repositories"
	"github.com/desertthunder/lyrix/internal/services"
	"github.com/desertthunder/lyrix/internal/shared"
	"github.com/desertthunder/lyrix/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database, queue, and stores are built on first use so commands that never touch them
// (setup, help) do not open a connection.
type Runner struct {
	config     *shared.Config
	configPath string
	db         *sql.DB
	provider   services.LyricsProvider
	catalog    library.TrackCatalog
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	app        *app
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	DB         *sql.DB
	Provider   services.LyricsProvider
	Catalog    library.TrackCatalog
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
}

// app is the wired lyrics core shared by every command.
type app struct {
	db          *sql.DB
	users       *repositories.UserRepository
	songs       *library.SongService
	docs        *library.DocumentStore
	annotations *library.AnnotationStore
	queue       *queue.Queue
	pipeline    *tasks.FetchPipeline
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		db:         opts.DB,
		provider:   opts.Provider,
		catalog:    opts.Catalog,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, userCommand, songCommand, lyricsCommand, annotateCommand,
		queueCommand, workerCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger used by the runner and anything it builds afterwards.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// library returns the wired lyrics core, opening the database and running migrations on first use.
func (r *Runner) library(ctx context.Context) (*app, error) {
	if r.app != nil {
		return r.app, nil
	}

	db := r.db
	if db == nil {
		var err error
		if db, err = shared.OpenDatabase(r.config.Database); err != nil {
			return nil, err
		}
		r.db = db
	}
	if err := shared.RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	songRepo := repositories.NewSongRepository(db)
	mirror := library.NewSongMirror(songRepo, r.logger)
	docs := library.NewDocumentStore(db, songRepo, mirror, r.config.Lyrics.VersionsToKeep, r.logger)

	catalog := r.catalog
	if catalog == nil {
		catalog = r.newCatalog(ctx)
	}

	a := &app{
		db:          db,
		users:       repositories.NewUserRepository(db),
		docs:        docs,
		annotations: library.NewAnnotationStore(db, songRepo, r.logger),
		songs:       library.NewSongService(songRepo, docs, catalog, nil, r.logger),
	}

	broker, err := r.newBroker(ctx, db)
	if err != nil {
		return nil, err
	}
	if broker != nil {
		provider := r.provider
		if provider == nil {
			if provider, err = r.newProvider(); err != nil {
				return nil, err
			}
		}
		a.queue = queue.New(broker, r.logger,
			queue.WithPollInterval(r.config.Queue.PollInterval()),
			queue.WithLockTimeout(r.config.Queue.LockTimeout()),
		)
		a.pipeline = tasks.NewFetchPipeline(a.queue, songRepo, docs, provider, tasks.PolicyFromConfig(r.config.Fetch), r.logger)
		a.songs.SetEnqueuer(a.pipeline)
	}

	r.app = a
	return a, nil
}

// Close releases the queue broker and database opened by the runner.
func (r *Runner) Close() error {
	if r.app != nil && r.app.queue != nil {
		if err := r.app.queue.Close(); err != nil {
			r.logger.Warn("failed to close queue", "error", err)
		}
	}
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// newBroker selects the job broker named by queue.backend. "none" returns a nil broker.
func (r *Runner) newBroker(ctx context.Context, db *sql.DB) (queue.Broker, error) {
	switch r.config.Queue.Backend {
	case "sqlite":
		return queue.NewSQLiteBroker(db), nil
	case "redis":
		b, err := queue.NewRedisBroker(ctx, r.config.Queue.RedisURL, r.config.Queue.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return b, nil
	case "memory":
		return queue.NewMemoryBroker(), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown queue backend %q", shared.ErrInvalidConfig, r.config.Queue.Backend)
	}
}

// newProvider builds the lyrics.ovh client, followed by the HTML page source when one is configured.
func (r *Runner) newProvider() (services.LyricsProvider, error) {
	cfg := r.config.Provider
	limiter := services.NewRateLimiter(cfg.RatePerSecond, cfg.Burst)

	providers := []services.LyricsProvider{services.NewLyricsOVHService(cfg.BaseURL, r.httpClient, limiter)}
	if cfg.PageURL != "" {
		page, err := services.NewPageService(cfg.PageURL, cfg.PageSelector, r.httpClient, limiter)
		if err != nil {
			return nil, err
		}
		providers = append(providers, page)
	}
	return services.NewChainProvider(providers...), nil
}

// newCatalog returns the Spotify catalog, or nil when credentials are not configured.
func (r *Runner) newCatalog(ctx context.Context) library.TrackCatalog {
	creds := r.config.Credentials.Spotify
	if !creds.Enabled() {
		return nil
	}
	catalog, err := services.NewSpotifyCatalog(ctx, creds)
	if err != nil {
		r.logger.Warn("spotify catalog disabled", "error", err)
		return nil
	}
	return catalog
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// caller reads the acting user from --user.
func caller(cmd *cli.Command) (models.Caller, error) {
	id := cmd.String("user")
	if id == "" {
		return models.Caller{}, fmt.Errorf("%w: --user is required", shared.ErrMissingArgument)
	}
	return models.Caller{UserID: id}, nil
}
