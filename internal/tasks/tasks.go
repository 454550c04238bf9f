package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/lyrix/internal/lyrics"
	"github.com/desertthunder/lyrix/internal/models"
	"github.com/desertthunder/lyrix/internal/queue"
	"github.com/desertthunder/lyrix/internal/services"
	"github.com/desertthunder/lyrix/internal/shared"
)

// FetchJobName names lyrics fetch jobs on the queue.
const FetchJobName = "lyrics.fetch"

// FetchPayload is the job payload of a lyrics fetch.
type FetchPayload struct {
	SongID string `json:"song_id"`
	Track  string `json:"track"`
	Artist string `json:"artist"`
}

func (p FetchPayload) label() string {
	if p.Artist == "" {
		return p.Track
	}
	return p.Artist + " - " + p.Track
}

// FetchPolicy controls provider timeouts, retries and job retention.
type FetchPolicy struct {
	Timeout       time.Duration
	MaxAttempts   int
	Backoff       time.Duration
	KeepOnSuccess bool
	KeepOnFailure bool
}

// DefaultFetchPolicy allows three attempts with a 10s timeout, backing off from 5s,
// and keeps failed jobs for inspection.
func DefaultFetchPolicy() FetchPolicy {
	return FetchPolicy{
		Timeout:       10 * time.Second,
		MaxAttempts:   3,
		Backoff:       5 * time.Second,
		KeepOnFailure: true,
	}
}

// PolicyFromConfig builds a [FetchPolicy] from the [fetch] config section.
func PolicyFromConfig(c shared.FetchConfig) FetchPolicy {
	return FetchPolicy{
		Timeout:       c.Timeout(),
		MaxAttempts:   c.MaxAttempts,
		Backoff:       c.Backoff(),
		KeepOnSuccess: c.KeepOnSuccess,
		KeepOnFailure: c.KeepOnFailure,
	}
}

func (p FetchPolicy) options() queue.Options {
	return queue.Options{
		MaxAttempts:   p.MaxAttempts,
		Backoff:       p.Backoff,
		KeepOnSuccess: p.KeepOnSuccess,
		KeepOnFailure: p.KeepOnFailure,
	}
}

// SongStates reads songs and moves their fetch state. Implemented by repositories.SongRepository.
type SongStates interface {
	Get(ctx context.Context, id string) (*models.SavedSong, error)
	SetFetchState(ctx context.Context, id string, state models.FetchState) error
}

// DocumentWriter stores fetched lyrics. Implemented by library.DocumentStore.
type DocumentWriter interface {
	HasDocument(ctx context.Context, songID string) (bool, error)
	Populate(ctx context.Context, songID, raw string) (*models.LyricsDocument, error)
}

// FetchPipeline retrieves lyrics for songs saved without them.
type FetchPipeline struct {
	queue    *queue.Queue
	songs    SongStates
	docs     DocumentWriter
	provider services.LyricsProvider
	policy   FetchPolicy
	logger   *log.Logger
	progress chan<- ProgressUpdate
}

// NewFetchPipeline creates a [FetchPipeline] and registers its handler on q.
func NewFetchPipeline(q *queue.Queue, songs SongStates, docs DocumentWriter, provider services.LyricsProvider, policy FetchPolicy, logger *log.Logger) *FetchPipeline {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	p := &FetchPipeline{
		queue:    q,
		songs:    songs,
		docs:     docs,
		provider: provider,
		policy:   policy,
		logger:   shared.WithLogger(logger, "component", "fetch"),
	}
	q.Register(FetchJobName, p.Handle)
	q.OnExhausted(FetchJobName, p.exhausted)
	return p
}

// SetProgress sets the channel progress updates are sent to. Nil disables reporting.
func (p *FetchPipeline) SetProgress(progress chan<- ProgressUpdate) {
	p.progress = progress
}

// sendProgress sends a progress update through the channel without blocking.
func (p *FetchPipeline) sendProgress(update ProgressUpdate) {
	if p.progress == nil {
		return
	}
	select {
	case p.progress <- update:
	default:
	}
}

// EnqueueFetch schedules a lyrics fetch for song.
func (p *FetchPipeline) EnqueueFetch(ctx context.Context, song *models.SavedSong) error {
	payload := FetchPayload{SongID: song.ID, Track: song.Track, Artist: song.Artist}
	job, err := p.queue.Enqueue(ctx, FetchJobName, payload, p.policy.options())
	if err != nil {
		return err
	}
	p.logger.Debug("lyrics fetch queued", "song_id", song.ID, "job_id", job.ID)
	p.sendProgress(queuedUpdate(payload, job.MaxAttempts))
	return nil
}

// Handle runs one attempt of a fetch job. A returned error asks the queue to retry.
func (p *FetchPipeline) Handle(ctx context.Context, job *queue.Job) error {
	var payload FetchPayload
	if err := job.Decode(&payload); err != nil {
		p.logger.Error("dropping malformed fetch job", "job_id", job.ID, "error", err)
		return nil
	}
	logger := p.logger.With("song_id", payload.SongID, "attempt", job.Attempts)
	attempt, maxAttempts := job.Attempts, job.MaxAttempts

	if _, err := p.songs.Get(ctx, payload.SongID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			logger.Info("song deleted before fetch, dropping job")
			p.sendProgress(skippedUpdate(payload, attempt, maxAttempts, "song deleted"))
			return nil
		}
		return err
	}

	has, err := p.docs.HasDocument(ctx, payload.SongID)
	if err != nil {
		return err
	}
	if has {
		logger.Info("song already has lyrics")
		p.sendProgress(skippedUpdate(payload, attempt, maxAttempts, "lyrics already saved"))
		return p.songs.SetFetchState(ctx, payload.SongID, models.FetchDone)
	}

	p.sendProgress(fetchingUpdate(payload, attempt, maxAttempts, p.provider.Name()))
	text, err := p.lookup(ctx, payload)
	switch {
	case errors.Is(err, shared.ErrNoLyricsFound):
		logger.Info("no lyrics found")
		p.sendProgress(failedUpdate(payload, attempt, maxAttempts, err))
		return p.songs.SetFetchState(ctx, payload.SongID, models.FetchFailed)
	case err != nil:
		return p.attemptFailed(ctx, logger, payload, job, err)
	}

	raw := lyrics.Clean(text)
	if raw == "" {
		logger.Info("provider returned only boilerplate")
		p.sendProgress(failedUpdate(payload, attempt, maxAttempts, shared.ErrNoLyricsFound))
		return p.songs.SetFetchState(ctx, payload.SongID, models.FetchFailed)
	}

	doc, err := p.docs.Populate(ctx, payload.SongID, raw)
	switch {
	case errors.Is(err, shared.ErrConflict):
		logger.Info("lyrics saved by user during fetch, discarding fetched text")
		p.sendProgress(skippedUpdate(payload, attempt, maxAttempts, "lyrics already saved"))
		return p.songs.SetFetchState(ctx, payload.SongID, models.FetchDone)
	case errors.Is(err, shared.ErrNotFound):
		p.sendProgress(skippedUpdate(payload, attempt, maxAttempts, "song deleted"))
		return nil
	case err != nil:
		return p.attemptFailed(ctx, logger, payload, job, err)
	}

	logger.Info("lyrics stored", "lines", len(doc.Lines))
	p.sendProgress(storedUpdate(payload, attempt, maxAttempts, len(doc.Lines)))
	return nil
}

func (p *FetchPipeline) lookup(ctx context.Context, payload FetchPayload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.policy.Timeout)
	defer cancel()

	text, err := p.provider.Lyrics(ctx, payload.Artist, payload.Track)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, shared.ErrProviderTimeout) {
		err = fmt.Errorf("%w: %v", shared.ErrProviderTimeout, err)
	}
	return text, err
}

func (p *FetchPipeline) attemptFailed(ctx context.Context, logger *log.Logger, payload FetchPayload, job *queue.Job, cause error) error {
	if !job.LastAttempt() {
		logger.Warn("lyrics fetch attempt failed", "error", cause)
		p.sendProgress(retryingUpdate(payload, job.Attempts, job.MaxAttempts, cause))
		return cause
	}

	logger.Error("lyrics fetch failed", "error", cause)
	p.sendProgress(failedUpdate(payload, job.Attempts, job.MaxAttempts, cause))
	if err := p.songs.SetFetchState(ctx, payload.SongID, models.FetchFailed); err != nil && !errors.Is(err, shared.ErrNotFound) {
		logger.Error("failed to mark fetch failed", "error", err)
	}
	return cause
}

// exhausted marks the song failed when its job runs out of attempts outside Handle.
func (p *FetchPipeline) exhausted(ctx context.Context, job *queue.Job, cause error) {
	var payload FetchPayload
	if err := job.Decode(&payload); err != nil {
		return
	}
	p.logger.Error("lyrics fetch failed", "song_id", payload.SongID, "error", cause)
	p.sendProgress(failedUpdate(payload, job.MaxAttempts, job.MaxAttempts, cause))
	if err := p.songs.SetFetchState(ctx, payload.SongID, models.FetchFailed); err != nil && !errors.Is(err, shared.ErrNotFound) {
		p.logger.Error("failed to mark fetch failed", "song_id", payload.SongID, "error", err)
	}
}

// Failed lists fetch jobs retained after exhausting their attempts.
func (p *FetchPipeline) Failed(ctx context.Context) ([]*queue.Job, error) {
	return p.queue.Failed(ctx)
}

// RetryFailed re-queues retained failed jobs and moves their songs back to fetching.
func (p *FetchPipeline) RetryFailed(ctx context.Context) (int, error) {
	jobs, err := p.queue.Failed(ctx)
	if err != nil {
		return 0, err
	}

	n, err := p.queue.RetryFailed(ctx)
	if err != nil {
		return 0, err
	}

	for _, job := range jobs {
		var payload FetchPayload
		if job.Name != FetchJobName || job.Decode(&payload) != nil {
			continue
		}
		if err := p.songs.SetFetchState(ctx, payload.SongID, models.FetchFetching); err != nil && !errors.Is(err, shared.ErrNotFound) {
			p.logger.Warn("failed to reset fetch state", "song_id", payload.SongID, "error", err)
		}
	}
	return n, nil
}
