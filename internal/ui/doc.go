// Package ui implements an interactive terminal lyrics browser using bubbletea's Elm architecture.
//
// The TUI provides three views:
//  1. [SongListView] : Browse saved songs with their fetch state
//  2. [LyricsView] : Read the current lyrics with line numbers and version
//  3. [HistoryView] : Browse retained snapshots and restore one as a new version
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, h, r, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
