package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/lyrix/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSongsFetched MsgKind = iota
	MsgDocumentFetched
	MsgRestored
)

type songsResult struct {
	songs []*models.SavedSong
	err   error
}

type documentResult struct {
	song *models.SavedSong
	doc  *models.LyricsDocument
	err  error
}

// songsFetchedMsg is the constructor for [MsgSongsFetched]
func songsFetchedMsg(songs []*models.SavedSong, err error) Msg {
	return Msg{kind: MsgSongsFetched, data: songsResult{songs, err}}
}

// documentFetchedMsg is the constructor for [MsgDocumentFetched]
func documentFetchedMsg(song *models.SavedSong, doc *models.LyricsDocument, err error) Msg {
	return Msg{kind: MsgDocumentFetched, data: documentResult{song, doc, err}}
}

// restoredMsg is the constructor for [MsgRestored]
func restoredMsg(song *models.SavedSong, doc *models.LyricsDocument, err error) Msg {
	return Msg{kind: MsgRestored, data: documentResult{song, doc, err}}
}
