package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/shared"
	"github.com/desertthunder/lyrix/internal/tasks"
)

type fakeLibrary struct {
	songs    []*models.SavedSong
	docs     map[string]*models.LyricsDocument
	listErr  error
	restored []int
}

func (f *fakeLibrary) List(ctx context.Context, caller models.Caller) ([]*models.SavedSong, error) {
	return f.songs, f.listErr
}

func (f *fakeLibrary) Get(ctx context.Context, caller models.Caller, songID string) (*models.LyricsDocument, error) {
	doc, ok := f.docs[songID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return doc, nil
}

func (f *fakeLibrary) RestoreVersion(ctx context.Context, caller models.Caller, songID string, version int) (*models.LyricsDocument, error) {
	doc, ok := f.docs[songID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	f.restored = append(f.restored, version)
	for _, s := range doc.Snapshots {
		if s.Version == version {
			next := *doc
			next.Version = doc.Version + 1
			next.RawText = s.RawText
			next.Lines = []models.LyricsLine{{LineNumber: 1, Text: s.RawText}}
			return &next, nil
		}
	}
	return nil, shared.ErrNotFound
}

func newFakeLibrary() *fakeLibrary {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &fakeLibrary{
		songs: []*models.SavedSong{
			{ID: "s1", Track: "Heroes", Artist: "David Bowie", FetchState: models.FetchDone},
			{ID: "s2", Track: "Alors on danse", Artist: "Stromae", FetchState: models.FetchFetching},
		},
		docs: map[string]*models.LyricsDocument{
			"s1": {
				ID: "d1", SongID: "s1", Version: 3, RawText: "I, I will be king\n\nAnd you",
				Lines: []models.LyricsLine{
					{LineNumber: 1, Text: "I, I will be king"},
					{LineNumber: 2, Text: ""},
					{LineNumber: 3, Text: "And you"},
				},
				Snapshots: []models.LyricsSnapshot{
					{Version: 2, RawText: "second draft", CreatedAt: now},
					{Version: 1, RawText: "first draft", CreatedAt: now},
				},
			},
		},
	}
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

// send delivers msg and runs any resulting command once, feeding its message back in.
func send(t *testing.T, m *Model, msg tea.Msg) {
	t.Helper()
	_, cmd := m.Update(msg)
	if cmd == nil {
		return
	}
	if out, ok := cmd().(Msg); ok {
		m.Update(out)
	}
}

func loadedModel(t *testing.T, lib *fakeLibrary) *Model {
	t.Helper()
	m := NewModel(context.Background(), models.Caller{UserID: "u1"}, lib, lib)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(m.Init()())
	return m
}

func TestModel(t *testing.T) {
	t.Run("loads songs on init", func(t *testing.T) {
		m := loadedModel(t, newFakeLibrary())

		if got := len(m.songList.Items()); got != 2 {
			t.Fatalf("expected 2 songs, got %d", got)
		}
		if !strings.Contains(m.View(), "Heroes") {
			t.Errorf("song list should render track names, got:\n%s", m.View())
		}
	})

	t.Run("list error is shown", func(t *testing.T) {
		lib := newFakeLibrary()
		lib.listErr = errors.New("database unavailable")
		m := loadedModel(t, lib)

		if !strings.Contains(m.View(), "database unavailable") {
			t.Errorf("expected error in view, got:\n%s", m.View())
		}
	})

	t.Run("opens lyrics with numbered lines and version", func(t *testing.T) {
		m := loadedModel(t, newFakeLibrary())
		send(t, m, keyPress("enter"))

		if m.view != LyricsView {
			t.Fatalf("expected lyrics view, got %d", m.view)
		}
		view := m.View()
		if !strings.Contains(view, "version 3") {
			t.Errorf("expected version in header, got:\n%s", view)
		}
		if !strings.Contains(view, "I, I will be king") || !strings.Contains(view, "3") {
			t.Errorf("expected numbered lines, got:\n%s", view)
		}
	})

	t.Run("song without lyrics shows fetch state", func(t *testing.T) {
		m := loadedModel(t, newFakeLibrary())
		send(t, m, keyPress("j"))
		send(t, m, keyPress("enter"))

		if m.view != LyricsView {
			t.Fatalf("expected lyrics view, got %d", m.view)
		}
		if m.document != nil {
			t.Error("expected no document")
		}
		if !strings.Contains(m.View(), "fetching") {
			t.Errorf("expected fetch state in header, got:\n%s", m.View())
		}

		send(t, m, keyPress("h"))
		if m.view != LyricsView {
			t.Error("history should not open without a document")
		}
	})

	t.Run("restores selected snapshot after confirmation", func(t *testing.T) {
		lib := newFakeLibrary()
		m := loadedModel(t, lib)
		send(t, m, keyPress("enter"))
		send(t, m, keyPress("h"))

		if m.view != HistoryView {
			t.Fatalf("expected history view, got %d", m.view)
		}
		if got := len(m.snapshotList.Items()); got != 2 {
			t.Fatalf("expected 2 snapshots, got %d", got)
		}

		send(t, m, keyPress("r"))
		if m.view != ConfirmView {
			t.Fatalf("expected confirm view, got %d", m.view)
		}
		if !strings.Contains(m.View(), "Restore version 2") {
			t.Errorf("expected confirmation prompt, got:\n%s", m.View())
		}

		send(t, m, keyPress("y"))
		if len(lib.restored) != 1 || lib.restored[0] != 2 {
			t.Fatalf("expected restore of version 2, got %v", lib.restored)
		}
		if m.view != LyricsView {
			t.Fatalf("expected lyrics view after restore, got %d", m.view)
		}
		if m.document.Version != 4 {
			t.Errorf("expected version 4, got %d", m.document.Version)
		}
		if !strings.Contains(m.View(), "Restored as version 4") {
			t.Errorf("expected restore status, got:\n%s", m.View())
		}
	})

	t.Run("declining confirmation returns to history", func(t *testing.T) {
		lib := newFakeLibrary()
		m := loadedModel(t, lib)
		send(t, m, keyPress("enter"))
		send(t, m, keyPress("h"))
		send(t, m, keyPress("r"))
		send(t, m, keyPress("n"))

		if m.view != HistoryView {
			t.Errorf("expected history view, got %d", m.view)
		}
		if len(lib.restored) != 0 {
			t.Errorf("nothing should be restored, got %v", lib.restored)
		}
	})

	t.Run("esc walks back to the song list", func(t *testing.T) {
		m := loadedModel(t, newFakeLibrary())
		send(t, m, keyPress("enter"))
		send(t, m, keyPress("h"))
		send(t, m, keyPress("esc"))
		if m.view != LyricsView {
			t.Fatalf("expected lyrics view, got %d", m.view)
		}
		send(t, m, keyPress("esc"))
		if m.view != SongListView {
			t.Errorf("expected song list view, got %d", m.view)
		}
	})

	t.Run("progress updates are displayed", func(t *testing.T) {
		ch := make(chan tasks.ProgressUpdate, 1)
		m := loadedModel(t, newFakeLibrary()).WithProgress(ch)
		m.Update(progressUpdateMsg(tasks.ProgressUpdate{Phase: tasks.Stored, Message: "stored Heroes"}))

		if !strings.Contains(m.View(), "stored Heroes") {
			t.Errorf("expected progress message, got:\n%s", m.View())
		}
	})
}

func TestRenderLines(t *testing.T) {
	lines := []models.LyricsLine{
		{LineNumber: 1, Text: "first"},
		{LineNumber: 2, Text: ""},
		{LineNumber: 3, Text: "third"},
	}
	out := renderLines(lines)

	rows := strings.Split(out, "\n")
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d: %q", len(rows), out)
	}
	for i, want := range []string{"first", "", "third"} {
		if !strings.HasSuffix(rows[i], want) {
			t.Errorf("row %d = %q, want suffix %q", i, rows[i], want)
		}
	}
	if !strings.Contains(rows[2], fmt.Sprint(3)) {
		t.Errorf("row 3 should carry its line number, got %q", rows[2])
	}
}
