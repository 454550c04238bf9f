// Package models defines domain entities for the lyrix lyrics store.
//
// The package contains two categories of types:
//
// 1. Persistent Entities: database-backed records
//   - [User] : owner of saved songs
//   - [SavedSong] : a song in a user's library with its legacy lyrics mirror and fetch state
//   - [LyricsDocument] : the structured lyrics of one saved song
//   - [LyricsLine] : one addressable line of a document
//   - [LyricsSnapshot] : a prior raw-text state of a document
//   - [LineAnnotation] : a user's note on a single line
//
// 2. Inputs and identity: [Caller] and [SongInput] carry the acting user and create requests into the core.
//
// Validate methods return errors wrapping [shared.ErrInvalidInput].
package models
