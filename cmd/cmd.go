// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "ID of the acting user",
		Sources: cli.EnvVars("LYRIX_USER"),
	}
}

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: true,
		},
	}
}

func withJSON(flags ...cli.Flag) []cli.Flag {
	return append(flags, jsonFlags()...)
}

func idArg() []cli.Argument {
	return []cli.Argument{&cli.StringArg{Name: "id"}}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag},
				Action: r.SetupDatabase,
			},
			{
				Name:   "status",
				Usage:  "Show applied and pending migrations",
				Flags:  []cli.Flag{configFlag},
				Action: r.SetupStatus,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Flags:  []cli.Flag{configFlag},
				Action: r.SetupRollback,
			},
		},
	}
}

// userCommand manages users.
func userCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage users",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a user",
				Flags: withJSON(
					&cli.StringFlag{Name: "email", Usage: "Email address", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Display name", Required: true},
				),
				Action: r.UserCreate,
			},
			{
				Name:   "list",
				Usage:  "List users",
				Flags:  jsonFlags(),
				Action: r.UserList,
			},
		},
	}
}

// songCommand manages saved songs.
func songCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "song",
		Aliases: []string{"songs"},
		Usage:   "Manage saved songs",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Save a song, fetching lyrics automatically when none are given",
				Flags: withJSON(
					userFlag(),
					&cli.StringFlag{Name: "track", Aliases: []string{"t"}, Usage: "Track title"},
					&cli.StringFlag{Name: "artist", Aliases: []string{"a"}, Usage: "Artist name"},
					&cli.StringFlag{Name: "album", Usage: "Album name"},
					&cli.StringFlag{Name: "spotify-id", Usage: "Spotify track ID to fill in metadata"},
					&cli.StringFlag{Name: "lyrics-file", Aliases: []string{"f"}, Usage: "Read lyrics from a file (- for stdin)"},
				),
				Action: r.SongAdd,
			},
			{
				Name:   "list",
				Usage:  "List saved songs, newest first",
				Flags:  withJSON(userFlag()),
				Action: r.SongList,
			},
			{
				Name:      "show",
				Usage:     "Show a saved song and its fetch state",
				Arguments: idArg(),
				Flags:     withJSON(userFlag()),
				Action:    r.SongShow,
			},
			{
				Name:      "rm",
				Aliases:   []string{"delete"},
				Usage:     "Delete a saved song with its lyrics and annotations",
				Arguments: idArg(),
				Flags:     []cli.Flag{userFlag()},
				Action:    r.SongRemove,
			},
			{
				Name:      "note",
				Usage:     "Set or clear the personal note",
				Arguments: idArg(),
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{Name: "text", Usage: "Note text (empty clears it)"},
				},
				Action: r.SongNote,
			},
			{
				Name:      "visibility",
				Usage:     "Set visibility to private, friends or public",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}, &cli.StringArg{Name: "visibility"}},
				Flags:     []cli.Flag{userFlag()},
				Action:    r.SongVisibility,
			},
		},
	}
}

// lyricsCommand works on lyrics documents.
func lyricsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "lyrics",
		Usage: "Read, edit and export lyrics documents",
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show numbered lyrics lines and the current version",
				Arguments: idArg(),
				Flags:     withJSON(userFlag()),
				Action:    r.LyricsShow,
			},
			{
				Name:      "save",
				Usage:     "Replace the lyrics, keeping the previous text in history",
				Arguments: idArg(),
				Flags: withJSON(
					userFlag(),
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read lyrics from a file (- for stdin)", Value: "-"},
					&cli.IntFlag{Name: "expected", Usage: "Expected current version (defaults to the stored version)", Value: -1},
				),
				Action: r.LyricsSave,
			},
			{
				Name:      "restore",
				Usage:     "Save a retained snapshot as a new version",
				Arguments: idArg(),
				Flags: withJSON(
					userFlag(),
					&cli.IntFlag{Name: "to", Usage: "Snapshot version to restore", Required: true},
				),
				Action: r.LyricsRestore,
			},
			{
				Name:      "history",
				Usage:     "List retained snapshots, newest first",
				Arguments: idArg(),
				Flags:     withJSON(userFlag()),
				Action:    r.LyricsHistory,
			},
			{
				Name:      "export",
				Usage:     "Export lyrics as txt, md, csv, lrc or json",
				Arguments: idArg(),
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{Name: "format", Usage: "Export format", Value: "txt"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file path (- for stdout)", Value: "-"},
				},
				Action: r.LyricsExport,
			},
			{
				Name:      "timestamps",
				Usage:     "Set playback offsets on lines without changing the version",
				Arguments: idArg(),
				Flags: withJSON(
					userFlag(),
					&cli.StringSliceFlag{Name: "set", Usage: "line=offset pairs, offset in ms or mm:ss.xx"},
				),
				Action: r.LyricsTimestamps,
			},
		},
	}
}

// annotateCommand manages line annotations.
func annotateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "annotate",
		Aliases: []string{"annotation"},
		Usage:   "Manage notes on lyrics lines",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List your annotations on a song",
				Arguments: idArg(),
				Flags:     withJSON(userFlag()),
				Action:    r.AnnotateList,
			},
			{
				Name:      "add",
				Usage:     "Annotate a line of a song",
				Arguments: idArg(),
				Flags: withJSON(
					userFlag(),
					&cli.IntFlag{Name: "line", Aliases: []string{"l"}, Usage: "Line number", Required: true},
					&cli.StringFlag{Name: "text", Usage: "Annotation text", Required: true},
					&cli.StringFlag{Name: "emoji", Usage: "Optional emoji"},
				),
				Action: r.AnnotateAdd,
			},
			{
				Name:      "edit",
				Usage:     "Change an annotation",
				Arguments: idArg(),
				Flags: withJSON(
					userFlag(),
					&cli.StringFlag{Name: "text", Usage: "Annotation text", Required: true},
					&cli.StringFlag{Name: "emoji", Usage: "Optional emoji (empty clears it)"},
				),
				Action: r.AnnotateEdit,
			},
			{
				Name:      "rm",
				Aliases:   []string{"delete"},
				Usage:     "Delete an annotation",
				Arguments: idArg(),
				Flags:     []cli.Flag{userFlag()},
				Action:    r.AnnotateRemove,
			},
		},
	}
}

// queueCommand inspects the lyrics fetch queue.
func queueCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Inspect and re-drive lyrics fetch jobs",
		Commands: []*cli.Command{
			{
				Name:   "failed",
				Usage:  "List fetch jobs retained after exhausting their attempts",
				Flags:  jsonFlags(),
				Action: r.QueueFailed,
			},
			{
				Name:   "retry",
				Usage:  "Move failed fetch jobs back to waiting",
				Action: r.QueueRetry,
			},
		},
	}
}

// workerCommand runs fetch workers in the foreground.
func workerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run lyrics fetch workers until interrupted",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "workers", Aliases: []string{"n"}, Usage: "Number of workers (defaults to queue.workers)"},
		},
		Action: r.Worker,
	}
}

// serveCommand runs the HTTP API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the lyrics HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (defaults to server.host:server.port)"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"n"}, Usage: "Fetch workers to run alongside the server (0 disables)", Value: -1},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for browsing lyrics interactively.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive lyrics browser",
		Flags: []cli.Flag{
			userFlag(),
			&cli.BoolFlag{Name: "fetch", Usage: "Run fetch workers while browsing"},
		},
		Action: r.TUI,
	}
}
