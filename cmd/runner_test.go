package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/shared"
	tu "github.com/desertthunder/lyrix/internal/testing"
)

type cliEnv struct {
	runner   *Runner
	app      *app
	output   *bytes.Buffer
	provider *tu.FakeProvider
	user     string
	dir      string
}

func setupCLI(t *testing.T, backend string, configure ...func(*shared.Config)) *cliEnv {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	config := shared.DefaultConfig()
	config.Queue.Backend = backend
	for _, fn := range configure {
		fn(config)
	}

	output := &bytes.Buffer{}
	provider := &tu.FakeProvider{Text: "Paroles de la chanson Alors on danse par Stromae\n\nAlors on danse\nAlors on danse"}
	runner := NewRunner(RunnerOpts{
		Config:   config,
		DB:       db,
		Provider: provider,
		Logger:   shared.NewLogger(&bytes.Buffer{}),
		Output:   output,
	})
	t.Cleanup(func() { runner.Close() })

	ctx := context.Background()
	a, err := runner.library(ctx)
	if err != nil {
		t.Fatalf("failed to build library: %v", err)
	}

	user := &models.User{Email: "cli@example.com", Name: "CLI"}
	if err := a.users.Create(ctx, user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return &cliEnv{runner: runner, app: a, output: output, provider: provider, user: user.ID, dir: t.TempDir()}
}

// run executes a command line against a fresh root command and returns what it printed.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	e.output.Reset()
	root := &cli.Command{Name: "lyrix", Commands: e.runner.register()}
	err := root.Run(context.Background(), append([]string{"lyrix"}, args...))
	return e.output.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out
}

func (e *cliEnv) file(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func (e *cliEnv) onlySong(t *testing.T) *models.SavedSong {
	t.Helper()
	songs, err := e.app.songs.List(context.Background(), models.Caller{UserID: e.user})
	if err != nil {
		t.Fatalf("failed to list songs: %v", err)
	}
	if len(songs) != 1 {
		t.Fatalf("expected 1 song, got %d", len(songs))
	}
	return songs[0]
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			provider := &tu.FakeProvider{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Provider:   provider,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.provider != provider {
				t.Error("expected provider to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.input != os.Stdin {
				t.Error("expected input to default to os.Stdin")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]int{"version": 3}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !strings.Contains(output.String(), `"version": 3`) {
				t.Errorf("expected formatted JSON, got %s", output.String())
			}
			if !strings.HasSuffix(output.String(), "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("version %d", 2); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "version 2" {
			t.Errorf("expected 'version 2', got %q", output.String())
		}

		failing := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
		if err := failing.writePlain("test"); err == nil {
			t.Error("expected error from failing writer")
		}
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		names := map[string]bool{}
		for _, cmd := range runner.register() {
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "user", "song", "lyrics", "annotate", "queue", "worker", "serve", "tui"} {
			if !names[want] {
				t.Errorf("expected %q command to be registered", want)
			}
		}
	})

	t.Run("library", func(t *testing.T) {
		t.Run("none backend disables fetching", func(t *testing.T) {
			env := setupCLI(t, "none")
			if env.app.queue != nil || env.app.pipeline != nil {
				t.Error("expected no queue with backend none")
			}
		})

		t.Run("unknown backend is rejected", func(t *testing.T) {
			db, err := shared.NewDatabase(":memory:")
			if err != nil {
				t.Fatalf("failed to create test database: %v", err)
			}
			config := shared.DefaultConfig()
			config.Queue.Backend = "kafka"
			runner := NewRunner(RunnerOpts{Config: config, DB: db, Logger: shared.NewLogger(&bytes.Buffer{})})
			t.Cleanup(func() { runner.Close() })

			if _, err := runner.library(context.Background()); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("is built once", func(t *testing.T) {
			env := setupCLI(t, "memory")
			again, err := env.runner.library(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if again != env.app {
				t.Error("expected the same wiring on every call")
			}
		})
	})
}

func TestLyricsCommands(t *testing.T) {
	env := setupCLI(t, "memory")
	u := "--user=" + env.user

	out := env.mustRun(t, "song", "add", u, "--track", "Heroes", "--artist", "David Bowie",
		"--lyrics-file", env.file(t, "v1.txt", "I, I will be king\nAnd you, you will be queen"))
	if !strings.Contains(out, "✓ Saved David Bowie - Heroes") {
		t.Errorf("unexpected add output: %q", out)
	}
	id := env.onlySong(t).ID

	t.Run("show prints numbered lines", func(t *testing.T) {
		out := env.mustRun(t, "lyrics", "show", u, id)
		if !strings.Contains(out, "(version 1)") {
			t.Errorf("expected version header, got %q", out)
		}
		if !strings.Contains(out, "   1  I, I will be king") || !strings.Contains(out, "   2  And you, you will be queen") {
			t.Errorf("expected numbered lines, got %q", out)
		}
	})

	t.Run("save warns about dropped annotations", func(t *testing.T) {
		env.mustRun(t, "annotate", "add", u, "--line", "1", "--text", "the best line", "--emoji", "👑", id)
		out := env.mustRun(t, "annotate", "list", u, id)
		if !strings.Contains(out, "👑 the best line") {
			t.Fatalf("expected annotation listed, got %q", out)
		}

		out = env.mustRun(t, "lyrics", "save", u, "--file", env.file(t, "v2.txt", "Though nothing will drive them away"), id)
		if !strings.Contains(out, "1 annotation(s)") {
			t.Errorf("expected dropped annotation warning, got %q", out)
		}
		if !strings.Contains(out, "Saved version 2 (1 lines)") {
			t.Errorf("unexpected save output: %q", out)
		}

		out = env.mustRun(t, "annotate", "list", u, id)
		if !strings.Contains(out, "Annotations (0)") {
			t.Errorf("expected annotations removed, got %q", out)
		}
	})

	t.Run("stale expected version conflicts", func(t *testing.T) {
		_, err := env.run(t, "lyrics", "save", u, "--expected", "1", "--file", env.file(t, "stale.txt", "stale"), id)
		if !errors.Is(err, shared.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("history and restore", func(t *testing.T) {
		out := env.mustRun(t, "lyrics", "history", u, id)
		if !strings.Contains(out, "v1") || !strings.Contains(out, "I, I will be king") {
			t.Errorf("expected snapshot of version 1, got %q", out)
		}

		out = env.mustRun(t, "lyrics", "restore", u, "--to", "1", id)
		if !strings.Contains(out, "Restored version 1 as version 3") {
			t.Errorf("unexpected restore output: %q", out)
		}

		_, err := env.run(t, "lyrics", "restore", u, "--to", "99", id)
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown version, got %v", err)
		}
	})

	t.Run("timestamps and export", func(t *testing.T) {
		out := env.mustRun(t, "lyrics", "timestamps", u, "--set", "1=00:12.50", id)
		if !strings.Contains(out, "Set 1 timestamp(s) on version 3") {
			t.Errorf("unexpected timestamps output: %q", out)
		}

		out = env.mustRun(t, "lyrics", "export", u, "--format", "lrc", id)
		if !strings.Contains(out, "[00:12.50]I, I will be king") {
			t.Errorf("expected LRC line, got %q", out)
		}

		path := filepath.Join(env.dir, "heroes.md")
		env.mustRun(t, "lyrics", "export", u, "--format", "md", "--output", path, id)
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("expected export file: %v", err)
		}
		if !strings.Contains(string(data), "# Heroes") {
			t.Errorf("expected markdown title, got %q", data)
		}
	})

	t.Run("song note and visibility", func(t *testing.T) {
		env.mustRun(t, "song", "note", u, "--text", "for the road", id)
		env.mustRun(t, "song", "visibility", u, id, "Public")

		out := env.mustRun(t, "song", "show", u, id)
		if !strings.Contains(out, "for the road") || !strings.Contains(out, "public") {
			t.Errorf("expected note and visibility, got %q", out)
		}

		_, err := env.run(t, "song", "visibility", u, id, "secret")
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("other users see nothing", func(t *testing.T) {
		_, err := env.run(t, "lyrics", "show", "--user=someone-else", id)
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("user is required", func(t *testing.T) {
		t.Setenv("LYRIX_USER", "")
		_, err := env.run(t, "song", "list")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("rm deletes the song", func(t *testing.T) {
		env.mustRun(t, "song", "rm", u, id)
		out := env.mustRun(t, "song", "list", u)
		if !strings.Contains(out, "Saved songs (0)") {
			t.Errorf("expected empty library, got %q", out)
		}
	})
}

func TestFetchCommands(t *testing.T) {
	t.Run("song without lyrics is fetched by a worker", func(t *testing.T) {
		env := setupCLI(t, "memory")
		u := "--user=" + env.user

		out := env.mustRun(t, "song", "add", u, "--track", "Alors on danse", "--artist", "Stromae")
		if !strings.Contains(out, "Lyrics fetch queued") {
			t.Errorf("expected queued message, got %q", out)
		}
		song := env.onlySong(t)
		if song.FetchState != models.FetchFetching {
			t.Fatalf("expected fetching, got %s", song.FetchState)
		}

		processed, err := env.app.queue.ProcessNext(context.Background())
		if err != nil || !processed {
			t.Fatalf("expected job processed, got %v, %v", processed, err)
		}

		out = env.mustRun(t, "lyrics", "show", u, song.ID)
		if !strings.Contains(out, "(version 1)") || !strings.Contains(out, "   1  Alors on danse") {
			t.Errorf("expected fetched lyrics, got %q", out)
		}
		if strings.Contains(out, "Paroles de la chanson") {
			t.Errorf("provider boilerplate should be stripped, got %q", out)
		}
	})

	t.Run("failed jobs are listed and retried", func(t *testing.T) {
		env := setupCLI(t, "memory", func(c *shared.Config) { c.Fetch.MaxAttempts = 1 })
		env.provider.Err = shared.ErrProviderUnavailable
		u := "--user=" + env.user

		env.mustRun(t, "song", "add", u, "--track", "Alors on danse", "--artist", "Stromae")
		if _, err := env.app.queue.ProcessNext(context.Background()); err != nil {
			t.Fatal(err)
		}

		out := env.mustRun(t, "queue", "failed")
		if !strings.Contains(out, "Failed fetch jobs (1)") {
			t.Errorf("expected one failed job, got %q", out)
		}

		out = env.mustRun(t, "queue", "retry")
		if !strings.Contains(out, "Re-queued 1 job(s)") {
			t.Errorf("unexpected retry output: %q", out)
		}
		if got := env.onlySong(t).FetchState; got != models.FetchFetching {
			t.Errorf("expected fetching after retry, got %s", got)
		}
	})

	t.Run("queue commands need a backend", func(t *testing.T) {
		env := setupCLI(t, "none")
		_, err := env.run(t, "queue", "failed")
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LYRIX_DATABASE_PATH", "")

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Output: output, Logger: shared.NewLogger(&bytes.Buffer{})})
	root := func(args ...string) error {
		app := &cli.Command{Name: "lyrix", Commands: runner.register()}
		return app.Run(context.Background(), append([]string{"lyrix"}, args...))
	}

	if err := root("setup", "database", "--config", "config.toml"); err != nil {
		t.Fatalf("setup database: %v", err)
	}
	for _, f := range []string{"config.toml", "lyrix.db"} {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("expected %s to exist: %v", f, err)
		}
	}

	if err := root("setup", "status", "--config", "config.toml"); err != nil {
		t.Fatalf("setup status: %v", err)
	}
	if strings.Contains(output.String(), "pending") || !strings.Contains(output.String(), "applied") {
		t.Errorf("expected all migrations applied, got %q", output.String())
	}

	output.Reset()
	if err := root("setup", "rollback", "--config", "config.toml"); err != nil {
		t.Fatalf("setup rollback: %v", err)
	}
	if err := root("setup", "status", "--config", "config.toml"); err != nil {
		t.Fatalf("setup status: %v", err)
	}
	if !strings.Contains(output.String(), "pending") {
		t.Errorf("expected a pending migration after rollback, got %q", output.String())
	}
}

func TestParseOffsets(t *testing.T) {
	got, err := parseOffsets([]string{"1=1500", "3=01:02.25"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got[1] != 1500 || got[3] != 62250 {
		t.Errorf("unexpected offsets: %v", got)
	}

	for _, bad := range [][]string{nil, {"1"}, {"x=100"}, {"1=soon"}} {
		if _, err := parseOffsets(bad); err == nil {
			t.Errorf("parseOffsets(%v) should fail", bad)
		}
	}
}
