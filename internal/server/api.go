package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/lyrix/internal/formatter"
	"github.com/desertthunder/lyrix/internal/library"
	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/shared"
)

const maxBodyBytes = 1 << 20

// API serves songs, lyrics documents and annotations as JSON.
type API struct {
	songs       *library.SongService
	docs        *library.DocumentStore
	annotations *library.AnnotationStore
	logger      *log.Logger
}

// NewAPI creates an [API].
func NewAPI(songs *library.SongService, docs *library.DocumentStore, annotations *library.AnnotationStore, logger *log.Logger) *API {
	return &API{songs: songs, docs: docs, annotations: annotations, logger: logger}
}

// Register adds the API routes to r. Every route except /health requires [UserHeader].
func (a *API) Register(r Router) {
	authed := func(fn func(http.ResponseWriter, *http.Request, models.Caller)) http.Handler {
		return RequireUser(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			caller, _ := CallerFrom(req.Context())
			fn(w, req, caller)
		}))
	}

	r.HandleFunc(http.MethodGet, "/health", a.health)

	r.Handle(http.MethodPost, "/songs", authed(a.createSong))
	r.Handle(http.MethodGet, "/songs", authed(a.listSongs))
	r.Handle(http.MethodGet, "/songs/{id}", authed(a.getSong))
	r.Handle(http.MethodPatch, "/songs/{id}", authed(a.updateSong))
	r.Handle(http.MethodDelete, "/songs/{id}", authed(a.deleteSong))

	r.Handle(http.MethodGet, "/songs/{id}/lyrics", authed(a.getLyrics))
	r.Handle(http.MethodPut, "/songs/{id}/lyrics", authed(a.saveLyrics))
	r.Handle(http.MethodGet, "/songs/{id}/lyrics/history", authed(a.history))
	r.Handle(http.MethodPost, "/songs/{id}/lyrics/restore/{version}", authed(a.restore))
	r.Handle(http.MethodPut, "/songs/{id}/lyrics/timestamps", authed(a.setTimestamps))
	r.Handle(http.MethodGet, "/songs/{id}/lyrics/export", authed(a.export))

	r.Handle(http.MethodGet, "/songs/{id}/annotations", authed(a.songAnnotations))
	r.Handle(http.MethodGet, "/lines/{id}/annotations", authed(a.lineAnnotations))
	r.Handle(http.MethodPost, "/lines/{id}/annotations", authed(a.createAnnotation))
	r.Handle(http.MethodPatch, "/annotations/{id}", authed(a.updateAnnotation))
	r.Handle(http.MethodDelete, "/annotations/{id}", authed(a.deleteAnnotation))
}

type errorResponse struct {
	Error string `json:"error"`
}

type createSongRequest struct {
	Track     string `json:"track"`
	Artist    string `json:"artist"`
	Album     string `json:"album"`
	SpotifyID string `json:"spotify_id"`
	Lyrics    string `json:"lyrics"`
}

type updateSongRequest struct {
	Note       *string `json:"note"`
	Visibility *string `json:"visibility"`
}

type saveLyricsRequest struct {
	RawText         *string `json:"raw_text"`
	ExpectedVersion int     `json:"expected_version"`
}

type timestampsRequest struct {
	Timestamps map[int]int64 `json:"timestamps"`
}

type annotationRequest struct {
	Text  string  `json:"text"`
	Emoji *string `json:"emoji"`
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) createSong(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	var body createSongRequest
	if !a.decode(w, r, &body) {
		return
	}
	song, err := a.songs.Create(r.Context(), caller, models.SongInput{
		Track:     body.Track,
		Artist:    body.Artist,
		Album:     body.Album,
		SpotifyID: body.SpotifyID,
		Lyrics:    body.Lyrics,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, song)
}

func (a *API) listSongs(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	songs, err := a.songs.List(r.Context(), caller)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

func (a *API) getSong(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	song, err := a.songs.Get(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

func (a *API) updateSong(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	var body updateSongRequest
	if !a.decode(w, r, &body) {
		return
	}
	id := r.PathValue("id")
	if body.Note == nil && body.Visibility == nil {
		a.writeError(w, fmt.Errorf("%w: note or visibility is required", shared.ErrInvalidInput))
		return
	}

	var (
		song *models.SavedSong
		err  error
	)
	if body.Visibility != nil {
		if song, err = a.songs.SetVisibility(r.Context(), caller, id, *body.Visibility); err != nil {
			a.writeError(w, err)
			return
		}
	}
	if body.Note != nil {
		if song, err = a.songs.SetNote(r.Context(), caller, id, *body.Note); err != nil {
			a.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, song)
}

func (a *API) deleteSong(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	if err := a.songs.Delete(r.Context(), caller, r.PathValue("id")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getLyrics(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	doc, err := a.docs.Get(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) saveLyrics(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	var body saveLyricsRequest
	if !a.decode(w, r, &body) {
		return
	}
	if body.RawText == nil {
		a.writeError(w, fmt.Errorf("%w: raw_text is required", shared.ErrInvalidInput))
		return
	}
	doc, err := a.docs.Save(r.Context(), caller, r.PathValue("id"), *body.RawText, body.ExpectedVersion)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) history(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	snapshots, err := a.docs.History(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (a *API) restore(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	version, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || version < 1 {
		a.writeError(w, fmt.Errorf("%w: version must be a positive integer", shared.ErrInvalidInput))
		return
	}
	doc, err := a.docs.RestoreVersion(r.Context(), caller, r.PathValue("id"), version)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) setTimestamps(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	var body timestampsRequest
	if !a.decode(w, r, &body) {
		return
	}
	doc, err := a.docs.SetLineTimestamps(r.Context(), caller, r.PathValue("id"), body.Timestamps)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) export(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	format, err := formatter.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	ctx := r.Context()
	id := r.PathValue("id")
	song, err := a.songs.Get(ctx, caller, id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	doc, err := a.docs.Get(ctx, caller, id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	annotations, err := a.annotations.ListForSong(ctx, caller, id)
	if err != nil {
		a.writeError(w, err)
		return
	}

	data, err := formatter.Export(&formatter.LyricsExport{Song: song, Document: doc, Annotations: annotations}, format)
	if err != nil {
		a.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", song.ID+"."+string(format)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (a *API) songAnnotations(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	annotations, err := a.annotations.ListForSong(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, annotations)
}

func (a *API) lineAnnotations(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	annotations, err := a.annotations.ListForLine(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, annotations)
}

func (a *API) createAnnotation(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	var body annotationRequest
	if !a.decode(w, r, &body) {
		return
	}
	annotation, err := a.annotations.Create(r.Context(), caller, r.PathValue("id"), body.Text, body.Emoji)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, annotation)
}

func (a *API) updateAnnotation(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	var body annotationRequest
	if !a.decode(w, r, &body) {
		return
	}
	annotation, err := a.annotations.Update(r.Context(), caller, r.PathValue("id"), body.Text, body.Emoji)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, annotation)
}

func (a *API) deleteAnnotation(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	if err := a.annotations.Delete(r.Context(), caller, r.PathValue("id")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.writeError(w, fmt.Errorf("%w: invalid JSON body: %v", shared.ErrInvalidInput, err))
		return false
	}
	return true
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrTrackNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func contentType(f formatter.Format) string {
	switch f {
	case formatter.FormatJSON:
		return "application/json"
	case formatter.FormatCSV:
		return "text/csv; charset=utf-8"
	case formatter.FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}
