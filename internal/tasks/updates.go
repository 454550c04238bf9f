package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event of a fetch job.
//
// Used to send real-time updates to the CLI worker or UI layer for display.
type ProgressUpdate struct {
	Phase       Phase  // Pipeline phase
	SongID      string // Song the job is for
	Attempt     int    // Current attempt, starting at 1
	MaxAttempts int    // Attempts allowed
	Message     string // Human-readable message for display
	Data        any    // Optional phase-specific data for advanced UIs
}

// Fetch pipeline phase enumeration
type Phase int

const (
	Queued Phase = iota
	Fetching
	Skipped
	Retrying
	Stored
	Failed
)

func (p Phase) String() string {
	switch p {
	case Queued:
		return "queued"
	case Fetching:
		return "fetching"
	case Skipped:
		return "skipped"
	case Retrying:
		return "retrying"
	case Stored:
		return "stored"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

func queuedUpdate(p FetchPayload, maxAttempts int) ProgressUpdate {
	return ProgressUpdate{
		Phase:       Queued,
		SongID:      p.SongID,
		MaxAttempts: maxAttempts,
		Message:     fmt.Sprintf("Queued lyrics fetch: %s", p.label()),
	}
}

func fetchingUpdate(p FetchPayload, attempt, maxAttempts int, provider string) ProgressUpdate {
	return ProgressUpdate{
		Phase:       Fetching,
		SongID:      p.SongID,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Message:     fmt.Sprintf("[%d/%d] Fetching %s from %s...", attempt, maxAttempts, p.label(), provider),
	}
}

func skippedUpdate(p FetchPayload, attempt, maxAttempts int, reason string) ProgressUpdate {
	return ProgressUpdate{
		Phase:       Skipped,
		SongID:      p.SongID,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Message:     fmt.Sprintf("Skipped %s: %s", p.label(), reason),
	}
}

func retryingUpdate(p FetchPayload, attempt, maxAttempts int, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:       Retrying,
		SongID:      p.SongID,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Message:     fmt.Sprintf("[%d/%d] ✗ %s: %v (will retry)", attempt, maxAttempts, p.label(), err),
	}
}

func storedUpdate(p FetchPayload, attempt, maxAttempts, lines int) ProgressUpdate {
	return ProgressUpdate{
		Phase:       Stored,
		SongID:      p.SongID,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Message:     fmt.Sprintf("[%d/%d] ✓ %s (%d lines)", attempt, maxAttempts, p.label(), lines),
		Data:        lines,
	}
}

func failedUpdate(p FetchPayload, attempt, maxAttempts int, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:       Failed,
		SongID:      p.SongID,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Message:     fmt.Sprintf("[%d/%d] ✗ %s: %v", attempt, maxAttempts, p.label(), err),
	}
}
