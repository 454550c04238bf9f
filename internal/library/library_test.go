package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/repositories"
	"github.com/desertthunder/lyrix/internal/services"
	"github.com/desertthunder/lyrix/internal/shared"
	tu "github.com/desertthunder/lyrix/internal/testing"
)

type fixture struct {
	db          *sql.DB
	songs       *repositories.SongRepository
	docs        *DocumentStore
	annotations *AnnotationStore
	service     *SongService
	owner       models.Caller
	stranger    models.Caller
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	logger := log.New(io.Discard)
	users := repositories.NewUserRepository(db)
	owner := &models.User{Email: "owner@example.com", Name: "Owner"}
	stranger := &models.User{Email: "stranger@example.com", Name: "Stranger"}
	for _, u := range []*models.User{owner, stranger} {
		if err := users.Create(context.Background(), u); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
	}

	songs := repositories.NewSongRepository(db)
	docs := NewDocumentStore(db, songs, NewSongMirror(songs, logger), 0, logger)

	return &fixture{
		db:          db,
		songs:       songs,
		docs:        docs,
		annotations: NewAnnotationStore(db, songs, logger),
		service:     NewSongService(songs, docs, nil, nil, logger),
		owner:       models.Caller{UserID: owner.ID},
		stranger:    models.Caller{UserID: stranger.ID},
	}
}

func (f *fixture) song(t *testing.T) *models.SavedSong {
	t.Helper()
	song, err := f.service.Create(context.Background(), f.owner, models.SongInput{Track: "Song", Artist: "Artist"})
	if err != nil {
		t.Fatalf("failed to create song: %v", err)
	}
	return song
}

func lineTexts(doc *models.LyricsDocument) []string {
	texts := make([]string, len(doc.Lines))
	for i, l := range doc.Lines {
		texts[i] = l.Text
	}
	return texts
}

func TestDocumentStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Create splits lines at version 1", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)

		doc, err := f.docs.Save(ctx, f.owner, song.ID, "line1\n\nline2", 0)
		if err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		if doc.Version != 1 {
			t.Errorf("expected version 1, got %d", doc.Version)
		}
		if got := lineTexts(doc); !reflect.DeepEqual(got, []string{"line1", "", "line2"}) {
			t.Errorf("unexpected lines %q", got)
		}
		for i, l := range doc.Lines {
			if l.LineNumber != i+1 {
				t.Errorf("line %d numbered %d", i, l.LineNumber)
			}
		}
		if len(doc.Snapshots) != 0 {
			t.Errorf("expected no snapshots, got %d", len(doc.Snapshots))
		}
	})

	t.Run("Second save snapshots the first", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)

		if _, err := f.docs.Save(ctx, f.owner, song.ID, "line1\n\nline2", 0); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		doc, err := f.docs.Save(ctx, f.owner, song.ID, "only one line", 1)
		if err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		if doc.Version != 2 {
			t.Errorf("expected version 2, got %d", doc.Version)
		}
		if len(doc.Lines) != 1 || doc.Lines[0].Text != "only one line" {
			t.Errorf("unexpected lines %q", lineTexts(doc))
		}
		if len(doc.Snapshots) != 1 {
			t.Fatalf("expected 1 snapshot, got %d", len(doc.Snapshots))
		}
		if doc.Snapshots[0].Version != 1 || doc.Snapshots[0].RawText != "line1\n\nline2" {
			t.Errorf("unexpected snapshot %+v", doc.Snapshots[0])
		}
	})

	saveN := func(t *testing.T, f *fixture, songID string, n int) int {
		t.Helper()
		version := 0
		for i := 1; i <= n; i++ {
			doc, err := f.docs.Save(ctx, f.owner, songID, fmt.Sprintf("text %d", i), version)
			if err != nil {
				t.Fatalf("save %d failed: %v", i, err)
			}
			version = doc.Version
		}
		return version
	}

	t.Run("25 saves after creation keep versions 6 to 25", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)

		if version := saveN(t, f, song.ID, 26); version != 26 {
			t.Fatalf("expected version 26, got %d", version)
		}

		history, err := f.docs.History(ctx, f.owner, song.ID)
		if err != nil {
			t.Fatalf("failed to read history: %v", err)
		}
		if len(history) != 20 {
			t.Fatalf("expected 20 snapshots, got %d", len(history))
		}
		for i, s := range history {
			want := 25 - i
			if s.Version != want || s.RawText != fmt.Sprintf("text %d", want) {
				t.Errorf("snapshot %d: expected version %d, got %d %q", i, want, s.Version, s.RawText)
			}
		}

		if _, err := f.docs.RestoreVersion(ctx, f.owner, song.ID, 5); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("evicted version should be ErrNotFound, got %v", err)
		}
	})

	t.Run("Restore creates a new version", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)

		if version := saveN(t, f, song.ID, 25); version != 25 {
			t.Fatalf("expected version 25, got %d", version)
		}

		restored, err := f.docs.RestoreVersion(ctx, f.owner, song.ID, 6)
		if err != nil {
			t.Fatalf("failed to restore: %v", err)
		}
		if restored.Version != 26 {
			t.Errorf("expected version 26, got %d", restored.Version)
		}
		if restored.RawText != "text 6" || len(restored.Lines) != 1 || restored.Lines[0].Text != "text 6" {
			t.Errorf("expected restored text 'text 6', got %q", restored.RawText)
		}
		if restored.Snapshots[0].Version != 25 || restored.Snapshots[0].RawText != "text 25" {
			t.Errorf("pre-restore state should be snapshotted, got %+v", restored.Snapshots[0])
		}
		if len(restored.Snapshots) != 20 {
			t.Errorf("expected history to stay at 20, got %d", len(restored.Snapshots))
		}
	})

	t.Run("Line count matches newline segments", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)

		version := 0
		for _, raw := range []string{"", "\n", "a\n", "\na\n\nb\n", "x"} {
			doc, err := f.docs.Save(ctx, f.owner, song.ID, raw, version)
			if err != nil {
				t.Fatalf("failed to save %q: %v", raw, err)
			}
			version = doc.Version

			want := strings.Count(raw, "\n") + 1
			if len(doc.Lines) != want || doc.Lines[len(doc.Lines)-1].LineNumber != want {
				t.Errorf("raw %q: expected %d lines, got %d", raw, want, len(doc.Lines))
			}
		}
	})

	t.Run("Identical text still bumps the version", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)

		f.docs.Save(ctx, f.owner, song.ID, "same", 0)
		doc, err := f.docs.Save(ctx, f.owner, song.ID, "same", 1)
		if err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		if doc.Version != 2 || len(doc.Snapshots) != 1 {
			t.Errorf("expected version 2 with 1 snapshot, got %d/%d", doc.Version, len(doc.Snapshots))
		}
	})

	t.Run("Get is idempotent", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)
		f.docs.Save(ctx, f.owner, song.ID, "a\nb", 0)
		f.docs.Save(ctx, f.owner, song.ID, "c", 1)

		first, err := f.docs.Get(ctx, f.owner, song.ID)
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		second, _ := f.docs.Get(ctx, f.owner, song.ID)
		if !reflect.DeepEqual(first, second) {
			t.Error("consecutive Gets returned different content")
		}
	})

	t.Run("Stale expected version conflicts and writes nothing", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)
		f.docs.Save(ctx, f.owner, song.ID, "v1", 0)
		f.docs.Save(ctx, f.owner, song.ID, "v2", 1)

		if _, err := f.docs.Save(ctx, f.owner, song.ID, "stale", 1); !errors.Is(err, shared.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if _, err := f.docs.Save(ctx, f.owner, song.ID, "fresh create", 0); !errors.Is(err, shared.ErrConflict) {
			t.Fatalf("expected ErrConflict for create over existing document, got %v", err)
		}

		doc, _ := f.docs.Get(ctx, f.owner, song.ID)
		if doc.Version != 2 || doc.RawText != "v2" || len(doc.Snapshots) != 1 {
			t.Errorf("conflicting saves must not write, got version %d %q with %d snapshots", doc.Version, doc.RawText, len(doc.Snapshots))
		}
	})

	t.Run("Expected version on missing document conflicts", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)

		if _, err := f.docs.Save(ctx, f.owner, song.ID, "x", 3); !errors.Is(err, shared.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("Concurrent saves on one version: exactly one wins", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)
		f.docs.Save(ctx, f.owner, song.ID, "base", 0)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.docs.Save(ctx, f.owner, song.ID, fmt.Sprintf("writer %d", i), 1)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, shared.ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if wins != 1 || conflicts != 3 {
			t.Errorf("expected 1 win and 3 conflicts, got %d/%d", wins, conflicts)
		}
	})

	t.Run("Ownership is uniform not found", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)
		f.docs.Save(ctx, f.owner, song.ID, "mine", 0)

		if _, err := f.docs.Get(ctx, f.stranger, song.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Get: expected ErrNotFound, got %v", err)
		}
		if _, err := f.docs.Save(ctx, f.stranger, song.ID, "theirs", 1); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Save: expected ErrNotFound, got %v", err)
		}
		if _, err := f.docs.RestoreVersion(ctx, f.stranger, song.ID, 1); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Restore: expected ErrNotFound, got %v", err)
		}
		if _, err := f.docs.Get(ctx, models.Caller{}, song.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("anonymous Get: expected ErrNotFound, got %v", err)
		}
		if _, err := f.docs.Get(ctx, f.owner, "no-such-song"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("missing song: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Get without document", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)

		if _, err := f.docs.Get(ctx, f.owner, song.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := f.docs.RestoreVersion(ctx, f.owner, song.ID, 1); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Mirror follows every save", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)
		f.docs.Save(ctx, f.owner, song.ID, "first", 0)
		f.docs.Save(ctx, f.owner, song.ID, "second", 1)

		got, _ := f.songs.Get(ctx, song.ID)
		if got.Lyrics == nil || *got.Lyrics != "second" {
			t.Errorf("expected mirror 'second', got %v", got.Lyrics)
		}
	})

	t.Run("Mirror failure does not fail save", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)
		failing := &tu.FailingLegacyWriter{}
		docs := NewDocumentStore(f.db, f.songs, NewSongMirror(failing, nil), 0, nil)

		doc, err := docs.Save(ctx, f.owner, song.ID, "text", 0)
		if err != nil {
			t.Fatalf("save should succeed despite mirror failure: %v", err)
		}
		if doc.Version != 1 || failing.Calls() != 1 {
			t.Errorf("expected version 1 and one mirror attempt, got %d/%d", doc.Version, failing.Calls())
		}
	})

	t.Run("SetLineTimestamps", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)
		f.docs.Save(ctx, f.owner, song.ID, "a\nb\nc", 0)

		doc, err := f.docs.SetLineTimestamps(ctx, f.owner, song.ID, map[int]int64{1: 0, 3: 12500})
		if err != nil {
			t.Fatalf("failed to set timestamps: %v", err)
		}
		if doc.Version != 1 {
			t.Errorf("timestamps must not create a version, got %d", doc.Version)
		}
		if doc.Lines[0].TimestampMS == nil || *doc.Lines[0].TimestampMS != 0 || doc.Lines[1].TimestampMS != nil || *doc.Lines[2].TimestampMS != 12500 {
			t.Errorf("unexpected timestamps on %+v", doc.Lines)
		}

		if _, err := f.docs.SetLineTimestamps(ctx, f.owner, song.ID, map[int]int64{9: 1}); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("unknown line: expected ErrNotFound, got %v", err)
		}
		if _, err := f.docs.SetLineTimestamps(ctx, f.owner, song.ID, map[int]int64{1: -5}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("negative offset: expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Populate marks done in the same write", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)

		doc, err := f.docs.Populate(ctx, song.ID, "fetched")
		if err != nil {
			t.Fatalf("failed to populate: %v", err)
		}
		if doc.Version != 1 {
			t.Errorf("expected version 1, got %d", doc.Version)
		}

		got, _ := f.songs.Get(ctx, song.ID)
		if got.FetchState != models.FetchDone {
			t.Errorf("expected done, got %s", got.FetchState)
		}
		if got.Lyrics == nil || *got.Lyrics != "fetched" {
			t.Errorf("expected mirror to be written, got %v", got.Lyrics)
		}

		if _, err := f.docs.Populate(ctx, song.ID, "again"); !errors.Is(err, shared.ErrConflict) {
			t.Errorf("expected ErrConflict when a document exists, got %v", err)
		}
	})
}

func TestAnnotationStore(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*fixture, *models.SavedSong, *models.LyricsDocument) {
		f := setupFixture(t)
		song := f.song(t)
		doc, err := f.docs.Save(ctx, f.owner, song.ID, "a\n\nb", 0)
		if err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		return f, song, doc
	}

	t.Run("CRUD", func(t *testing.T) {
		f, song, doc := setup(t)
		line := doc.Lines[2]

		emoji := "\U0001F3B5"
		a, err := f.annotations.Create(ctx, f.owner, line.ID, "the hook", &emoji)
		if err != nil {
			t.Fatalf("failed to create: %v", err)
		}
		if a.LineNumber != 3 || a.Emoji == nil {
			t.Errorf("unexpected annotation %+v", a)
		}

		list, err := f.annotations.ListForLine(ctx, f.owner, line.ID)
		if err != nil || len(list) != 1 {
			t.Fatalf("expected 1 annotation, got %d %v", len(list), err)
		}

		empty := ""
		updated, err := f.annotations.Update(ctx, f.owner, a.ID, "the real hook", &empty)
		if err != nil {
			t.Fatalf("failed to update: %v", err)
		}
		if updated.Text != "the real hook" || updated.Emoji != nil {
			t.Errorf("unexpected update result %+v", updated)
		}

		bySong, _ := f.annotations.ListForSong(ctx, f.owner, song.ID)
		if len(bySong) != 1 {
			t.Errorf("expected 1 annotation on song, got %d", len(bySong))
		}

		if err := f.annotations.Delete(ctx, f.owner, a.ID); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if err := f.annotations.Delete(ctx, f.owner, a.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("second delete: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		f, _, doc := setup(t)

		if _, err := f.annotations.Create(ctx, f.owner, doc.Lines[0].ID, strings.Repeat("x", 501), nil); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("long text: expected ErrInvalidInput, got %v", err)
		}
		tooMany := "\U0001F3B5\U0001F3B5\U0001F3B5"
		if _, err := f.annotations.Create(ctx, f.owner, doc.Lines[0].ID, "ok", &tooMany); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("three emoji: expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("One per user per line", func(t *testing.T) {
		f, _, doc := setup(t)

		if _, err := f.annotations.Create(ctx, f.owner, doc.Lines[0].ID, "first", nil); err != nil {
			t.Fatalf("failed to create: %v", err)
		}
		if _, err := f.annotations.Create(ctx, f.owner, doc.Lines[0].ID, "second", nil); !errors.Is(err, shared.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("Non-owner sees not found", func(t *testing.T) {
		f, song, doc := setup(t)
		a, _ := f.annotations.Create(ctx, f.owner, doc.Lines[0].ID, "mine", nil)

		if _, err := f.annotations.Create(ctx, f.stranger, doc.Lines[0].ID, "theirs", nil); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Create: expected ErrNotFound, got %v", err)
		}
		if _, err := f.annotations.ListForLine(ctx, f.stranger, doc.Lines[0].ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("ListForLine: expected ErrNotFound, got %v", err)
		}
		if _, err := f.annotations.ListForSong(ctx, f.stranger, song.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("ListForSong: expected ErrNotFound, got %v", err)
		}
		if _, err := f.annotations.Update(ctx, f.stranger, a.ID, "hijack", nil); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Update: expected ErrNotFound, got %v", err)
		}
		if err := f.annotations.Delete(ctx, f.stranger, a.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Delete: expected ErrNotFound, got %v", err)
		}
		if _, err := f.annotations.Create(ctx, f.owner, "no-such-line", "x", nil); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("missing line: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Saving lyrics drops annotations", func(t *testing.T) {
		f, song, doc := setup(t)
		f.annotations.Create(ctx, f.owner, doc.Lines[0].ID, "will vanish", nil)

		if n, _ := f.annotations.CountForSong(ctx, f.owner, song.ID); n != 1 {
			t.Fatalf("expected 1 annotation before save, got %d", n)
		}

		if _, err := f.docs.Save(ctx, f.owner, song.ID, "a\n\nb", doc.Version); err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		if n, _ := f.annotations.CountForSong(ctx, f.owner, song.ID); n != 0 {
			t.Errorf("expected annotations removed with old lines, got %d", n)
		}
		if _, err := f.annotations.ListForLine(ctx, f.owner, doc.Lines[0].ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("old line should be gone, got %v", err)
		}
	})
}

type recordingEnqueuer struct {
	songs []string
	err   error
}

func (r *recordingEnqueuer) EnqueueFetch(ctx context.Context, song *models.SavedSong) error {
	r.songs = append(r.songs, song.ID)
	return r.err
}

type stubCatalog struct{}

func (stubCatalog) Track(ctx context.Context, id string) (*services.Track, error) {
	if id != "sp1" {
		return nil, shared.ErrTrackNotFound
	}
	return &services.Track{ID: id, Title: "Heroes", Artist: "David Bowie", Album: "Heroes"}, nil
}

func TestSongService(t *testing.T) {
	ctx := context.Background()

	t.Run("Create with lyrics makes version 1", func(t *testing.T) {
		f := setupFixture(t)
		enq := &recordingEnqueuer{}
		f.service.SetEnqueuer(enq)

		song, err := f.service.Create(ctx, f.owner, models.SongInput{Track: " Song ", Artist: "Artist", Lyrics: "la\nla"})
		if err != nil {
			t.Fatalf("failed to create: %v", err)
		}
		if song.Track != "Song" || song.FetchState != models.FetchIdle {
			t.Errorf("unexpected song %+v", song)
		}
		if song.Lyrics == nil || *song.Lyrics != "la\nla" {
			t.Errorf("expected mirror populated, got %v", song.Lyrics)
		}
		if len(enq.songs) != 0 {
			t.Error("songs with lyrics must not be queued")
		}

		doc, err := f.docs.Get(ctx, f.owner, song.ID)
		if err != nil || doc.Version != 1 || len(doc.Lines) != 2 {
			t.Errorf("expected version-1 document with 2 lines, got %+v %v", doc, err)
		}
	})

	t.Run("Create does not keep the song when lyrics cannot be saved", func(t *testing.T) {
		f := setupFixture(t)
		trigger := `CREATE TRIGGER reject_documents BEFORE INSERT ON lyrics_documents
			BEGIN SELECT RAISE(ABORT, 'disk full'); END`
		if _, err := f.db.Exec(trigger); err != nil {
			t.Fatalf("failed to create trigger: %v", err)
		}

		if _, err := f.service.Create(ctx, f.owner, models.SongInput{Track: "Song", Artist: "Artist", Lyrics: "la"}); err == nil {
			t.Fatal("expected create to fail")
		}

		songs, err := f.service.List(ctx, f.owner)
		if err != nil {
			t.Fatalf("failed to list songs: %v", err)
		}
		if len(songs) != 0 {
			t.Errorf("expected no songs left behind, got %d", len(songs))
		}
	})

	t.Run("Create without lyrics queues fetch", func(t *testing.T) {
		f := setupFixture(t)
		enq := &recordingEnqueuer{}
		f.service.SetEnqueuer(enq)

		song, err := f.service.Create(ctx, f.owner, models.SongInput{Track: "Song", Artist: "Artist", Lyrics: "  "})
		if err != nil {
			t.Fatalf("failed to create: %v", err)
		}
		if song.FetchState != models.FetchFetching {
			t.Errorf("expected fetching, got %s", song.FetchState)
		}
		if len(enq.songs) != 1 || enq.songs[0] != song.ID {
			t.Errorf("expected song to be queued, got %v", enq.songs)
		}
	})

	t.Run("Enqueue failure leaves song idle", func(t *testing.T) {
		f := setupFixture(t)
		f.service.SetEnqueuer(&recordingEnqueuer{err: errors.New("broker down")})

		song, err := f.service.Create(ctx, f.owner, models.SongInput{Track: "Song"})
		if err != nil {
			t.Fatalf("song creation should survive enqueue failure: %v", err)
		}
		if song.FetchState != models.FetchIdle {
			t.Errorf("expected idle, got %s", song.FetchState)
		}
	})

	t.Run("No queue leaves song idle", func(t *testing.T) {
		f := setupFixture(t)
		song := f.song(t)
		if song.FetchState != models.FetchIdle {
			t.Errorf("expected idle, got %s", song.FetchState)
		}
	})

	t.Run("Track required", func(t *testing.T) {
		f := setupFixture(t)
		if _, err := f.service.Create(ctx, f.owner, models.SongInput{Artist: "Artist"}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Spotify metadata", func(t *testing.T) {
		f := setupFixture(t)
		svc := NewSongService(f.songs, f.docs, stubCatalog{}, nil, nil)

		song, err := svc.Create(ctx, f.owner, models.SongInput{SpotifyID: "sp1"})
		if err != nil {
			t.Fatalf("failed to create: %v", err)
		}
		if song.Track != "Heroes" || song.Artist != "David Bowie" || song.SpotifyID != "sp1" {
			t.Errorf("unexpected song %+v", song)
		}

		if _, err := svc.Create(ctx, f.owner, models.SongInput{SpotifyID: "nope"}); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})

	t.Run("Note, visibility, list, delete", func(t *testing.T) {
		f := setupFixture(t)
		first := f.song(t)
		second := f.song(t)

		song, err := f.service.SetNote(ctx, f.owner, first.ID, "sing softly")
		if err != nil || song.Note == nil || *song.Note != "sing softly" {
			t.Fatalf("unexpected note result %+v %v", song, err)
		}
		song, _ = f.service.SetNote(ctx, f.owner, first.ID, " ")
		if song.Note != nil {
			t.Error("blank note should clear")
		}

		song, err = f.service.SetVisibility(ctx, f.owner, first.ID, "PUBLIC")
		if err != nil || song.Visibility != models.VisibilityPublic {
			t.Fatalf("unexpected visibility result %+v %v", song, err)
		}
		if _, err := f.service.SetVisibility(ctx, f.owner, first.ID, "secret"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := f.service.SetNote(ctx, f.stranger, first.ID, "x"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("stranger note: expected ErrNotFound, got %v", err)
		}

		list, _ := f.service.List(ctx, f.owner)
		if len(list) != 2 || list[0].ID != second.ID {
			t.Errorf("expected newest first, got %d songs", len(list))
		}

		f.docs.Save(ctx, f.owner, first.ID, "a", 0)
		if err := f.service.Delete(ctx, f.owner, first.ID); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if _, err := f.service.Get(ctx, f.owner, first.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected deleted song gone, got %v", err)
		}
		if has, _ := f.docs.HasDocument(ctx, first.ID); has {
			t.Error("document should be deleted with its song")
		}
	})
}
