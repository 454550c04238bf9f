package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/shared"
	"github.com/desertthunder/lyrix/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	SongListView ViewState = iota
	LyricsView
	HistoryView
	ConfirmView
)

// SongLister lists the songs in a caller's library.
type SongLister interface {
	List(ctx context.Context, caller models.Caller) ([]*models.SavedSong, error)
}

// DocumentReader reads lyrics documents and restores snapshots.
type DocumentReader interface {
	Get(ctx context.Context, caller models.Caller, songID string) (*models.LyricsDocument, error)
	RestoreVersion(ctx context.Context, caller models.Caller, songID string, version int) (*models.LyricsDocument, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	caller       models.Caller
	view         ViewState
	songs        SongLister
	docs         DocumentReader
	width        int
	height       int
	songList     list.Model
	snapshotList list.Model
	lyrics       viewport.Model
	selected     *models.SavedSong
	document     *models.LyricsDocument
	pending      *models.LyricsSnapshot
	progressChan <-chan tasks.ProgressUpdate
	progress     *tasks.ProgressUpdate
	status       string
	err          error
	help         help.Model
	keys         keyMap
}

type progressUpdateMsg tasks.ProgressUpdate

// NewModel creates a new TUI model browsing caller's library.
func NewModel(ctx context.Context, caller models.Caller, songs SongLister, docs DocumentReader) *Model {
	return &Model{
		ctx:          ctx,
		caller:       caller,
		view:         SongListView,
		songs:        songs,
		docs:         docs,
		songList:     newList("Songs", nil),
		snapshotList: newList("History", nil),
		lyrics:       viewport.New(0, 0),
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// WithProgress makes the model follow fetch pipeline updates, refreshing the song list as they arrive.
func (m *Model) WithProgress(ch <-chan tasks.ProgressUpdate) *Model {
	m.progressChan = ch
	return m
}

// Init initializes the TUI by loading the caller's songs.
func (m *Model) Init() tea.Cmd {
	if m.progressChan != nil {
		return tea.Batch(m.fetchSongs(), m.waitForProgress())
	}
	return m.fetchSongs()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		if m.songList.FilterState() == list.Filtering || m.snapshotList.FilterState() == list.Filtering {
			return m.updateLists(msg)
		}
		switch m.view {
		case SongListView:
			return m.handleSongListKeys(msg)
		case LyricsView:
			return m.handleLyricsKeys(msg)
		case HistoryView:
			return m.handleHistoryKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)

	case progressUpdateMsg:
		update := tasks.ProgressUpdate(msg)
		m.progress = &update
		return m, tea.Batch(m.fetchSongs(), m.waitForProgress())
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSongsFetched:
		res := msg.data.(songsResult)
		if res.err != nil {
			m.err = res.err
			return m, nil
		}
		items := make([]list.Item, len(res.songs))
		for i, s := range res.songs {
			items[i] = songItem{song: s}
		}
		cmd := m.songList.SetItems(items)
		return m, cmd

	case MsgDocumentFetched:
		res := msg.data.(documentResult)
		m.selected = res.song
		switch {
		case errors.Is(res.err, shared.ErrNotFound):
			m.setDocument(nil)
		case res.err != nil:
			m.status = styles.err.Render(res.err.Error())
			return m, nil
		default:
			m.setDocument(res.doc)
		}
		m.status = ""
		m.view = LyricsView
		return m, nil

	case MsgRestored:
		res := msg.data.(documentResult)
		if res.err != nil {
			m.status = styles.err.Render(fmt.Sprintf("Restore failed: %v", res.err))
			m.view = HistoryView
			return m, nil
		}
		m.setDocument(res.doc)
		m.status = styles.ok.Render(fmt.Sprintf("Restored as version %d", res.doc.Version))
		m.view = LyricsView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case SongListView:
		return m.renderSongList()
	case LyricsView:
		return m.renderLyrics()
	case HistoryView:
		return m.renderHistory()
	case ConfirmView:
		return m.renderConfirm()
	default:
		return ""
	}
}

func (m *Model) handleSongListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchSongs()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.songList.SelectedItem().(songItem); ok {
			return m, m.fetchDocument(item.song)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.songList, cmd = m.songList.Update(msg)
	return m, cmd
}

func (m *Model) handleLyricsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = SongListView
		m.status = ""
		return m, m.fetchSongs()
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchDocument(m.selected)
	case key.Matches(msg, m.keys.history):
		if m.document == nil {
			return m, nil
		}
		m.view = HistoryView
		return m, nil
	}

	var cmd tea.Cmd
	m.lyrics, cmd = m.lyrics.Update(msg)
	return m, cmd
}

func (m *Model) handleHistoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = LyricsView
		return m, nil
	case key.Matches(msg, m.keys.restore):
		if item, ok := m.snapshotList.SelectedItem().(snapshotItem); ok {
			snapshot := item.snapshot
			m.pending = &snapshot
			m.view = ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.snapshotList, cmd = m.snapshotList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		version := m.pending.Version
		m.pending = nil
		m.view = HistoryView
		m.status = styles.warn.Render(fmt.Sprintf("Restoring version %d...", version))
		return m, m.restore(m.selected, version)
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.pending = nil
		m.view = HistoryView
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case SongListView:
		m.songList, cmd = m.songList.Update(msg)
	case HistoryView:
		m.snapshotList, cmd = m.snapshotList.Update(msg)
	case LyricsView:
		m.lyrics, cmd = m.lyrics.Update(msg)
	}
	return m, cmd
}

func (m *Model) setDocument(doc *models.LyricsDocument) {
	m.document = doc
	if doc == nil {
		m.lyrics.SetContent(styles.help.Render("No lyrics yet."))
		m.snapshotList.SetItems(nil)
		return
	}

	m.lyrics.SetContent(renderLines(doc.Lines))
	m.lyrics.GotoTop()

	items := make([]list.Item, len(doc.Snapshots))
	for i, s := range doc.Snapshots {
		items[i] = snapshotItem{snapshot: s}
	}
	m.snapshotList.SetItems(items)
	m.snapshotList.Title = fmt.Sprintf("History of '%s'", m.selected.Track)
}

func (m *Model) resize() {
	w, h := max(m.width-4, 0), max(m.height-8, 0)
	m.songList.SetSize(w, h)
	m.snapshotList.SetSize(w, h)
	m.lyrics.Width = w
	m.lyrics.Height = h
}

func (m *Model) fetchSongs() tea.Cmd {
	return func() tea.Msg {
		songs, err := m.songs.List(m.ctx, m.caller)
		return songsFetchedMsg(songs, err)
	}
}

func (m *Model) fetchDocument(song *models.SavedSong) tea.Cmd {
	if song == nil {
		return nil
	}
	return func() tea.Msg {
		doc, err := m.docs.Get(m.ctx, m.caller, song.ID)
		return documentFetchedMsg(song, doc, err)
	}
}

func (m *Model) restore(song *models.SavedSong, version int) tea.Cmd {
	return func() tea.Msg {
		doc, err := m.docs.RestoreVersion(m.ctx, m.caller, song.ID, version)
		return restoredMsg(song, doc, err)
	}
}

func (m *Model) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		update, ok := <-m.progressChan
		if !ok {
			return nil
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderSongList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.refresh, m.keys.quit}
	out := m.songList.View()
	if m.progress != nil {
		out += "\n" + styles.warn.Render(m.progress.Message)
	}
	if m.status != "" {
		out += "\n" + m.status
	}
	return fmt.Sprintf("%s\n\n%s", out, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderLyrics() string {
	header := m.selected.Track
	if m.selected.Artist != "" {
		header = fmt.Sprintf("%s - %s", m.selected.Artist, m.selected.Track)
	}
	if m.document != nil {
		header = fmt.Sprintf("%s (version %d)", header, m.document.Version)
	} else {
		header = fmt.Sprintf("%s [%s]", header, m.selected.FetchState)
	}

	helpKeys := []key.Binding{m.keys.history, m.keys.refresh, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n%s\n\n%s", styles.title.Render(header), m.lyrics.View(), m.status, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderHistory() string {
	helpKeys := []key.Binding{m.keys.restore, m.keys.back, m.keys.quit}
	out := m.snapshotList.View()
	if len(m.snapshotList.Items()) == 0 {
		out = styles.help.Render("No earlier versions retained.")
	}
	return fmt.Sprintf("%s\n%s\n\n%s", out, m.status, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Restore version %d of '%s'?", m.pending.Version, m.selected.Track))
	info := fmt.Sprintf("\nCurrent version: %d\nThe restored text is saved as a new version.\n", m.document.Version)
	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	return fmt.Sprintf("%s\n%s\n%s", title, info, m.help.ShortHelpView(helpKeys))
}

// renderLines numbers each line, leaving stanza breaks blank.
func renderLines(lines []models.LyricsLine) string {
	var b strings.Builder
	for _, l := range lines {
		if l.Text == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString(styles.gutter.Render(fmt.Sprintf("%d", l.LineNumber)))
		b.WriteString(l.Text)
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func newList(title string, items []list.Item) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowHelp(false)
	return l
}
