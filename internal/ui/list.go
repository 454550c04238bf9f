package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/lyrix/internal/models"
)

var (
	_ list.Item = songItem{}
	_ list.Item = snapshotItem{}
)

// songItem wraps [models.SavedSong] to implement [list.Item].
type songItem struct {
	song *models.SavedSong
}

func (i songItem) FilterValue() string { return i.song.Track + " " + i.song.Artist }
func (i songItem) Title() string       { return i.song.Track }
func (i songItem) Description() string {
	state := string(i.song.FetchState)
	desc := fetchStateStyle(state).Render(state)
	if i.song.Artist != "" {
		desc = fmt.Sprintf("%s • %s", i.song.Artist, desc)
	}
	return desc
}

// snapshotItem wraps [models.LyricsSnapshot] to implement [list.Item].
type snapshotItem struct {
	snapshot models.LyricsSnapshot
}

func (i snapshotItem) FilterValue() string { return i.snapshot.RawText }
func (i snapshotItem) Title() string {
	return fmt.Sprintf("Version %d", i.snapshot.Version)
}
func (i snapshotItem) Description() string {
	first, _, _ := strings.Cut(strings.TrimSpace(i.snapshot.RawText), "\n")
	return fmt.Sprintf("%s • %s", i.snapshot.CreatedAt.Format("2006-01-02 15:04"), first)
}
