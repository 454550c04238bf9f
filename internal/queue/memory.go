package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryBroker keeps jobs in process memory. Jobs are lost when the process exits.
type MemoryBroker struct {
	mu   sync.Mutex
	jobs map[string]*Job
	seq  map[string]int
	next int
}

// NewMemoryBroker creates an empty [MemoryBroker].
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{jobs: make(map[string]*Job), seq: make(map[string]int)}
}

func (b *MemoryBroker) Push(ctx context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	stored := *job
	b.jobs[job.ID] = &stored
	b.next++
	b.seq[job.ID] = b.next
	return nil
}

func (b *MemoryBroker) Claim(ctx context.Context, now, lockUntil time.Time) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var due *Job
	for _, j := range b.jobs {
		if !claimable(j, now) {
			continue
		}
		if due == nil || j.RunAt.Before(due.RunAt) || (j.RunAt.Equal(due.RunAt) && b.seq[j.ID] < b.seq[due.ID]) {
			due = j
		}
	}
	if due == nil {
		return nil, nil
	}

	if due.Status == StatusActive {
		due.LastError = ErrStalled.Error()
	}
	due.Status = StatusActive
	due.LockedUntil = lockUntil
	due.Attempts++
	claimed := *due
	return &claimed, nil
}

func claimable(j *Job, now time.Time) bool {
	switch j.Status {
	case StatusWaiting:
		return !j.RunAt.After(now)
	case StatusActive:
		return !j.LockedUntil.After(now)
	}
	return false
}

func (b *MemoryBroker) Complete(ctx context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !job.KeepOnSuccess {
		b.remove(job.ID)
		return nil
	}
	if j, ok := b.jobs[job.ID]; ok {
		j.Status = StatusCompleted
	}
	return nil
}

func (b *MemoryBroker) Retry(ctx context.Context, job *Job, at time.Time, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if j, ok := b.jobs[job.ID]; ok {
		j.Status = StatusWaiting
		j.RunAt = at
		j.LockedUntil = time.Time{}
		j.LastError = causeText(cause)
	}
	return nil
}

func (b *MemoryBroker) Fail(ctx context.Context, job *Job, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !job.KeepOnFailure {
		b.remove(job.ID)
		return nil
	}
	if j, ok := b.jobs[job.ID]; ok {
		j.Status = StatusFailed
		j.LastError = causeText(cause)
	}
	return nil
}

func (b *MemoryBroker) Failed(ctx context.Context) ([]*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := make([]*Job, 0)
	for _, j := range b.jobs {
		if j.Status == StatusFailed {
			c := *j
			failed = append(failed, &c)
		}
	}
	sort.Slice(failed, func(i, k int) bool { return b.seq[failed[i].ID] < b.seq[failed[k].ID] })
	return failed, nil
}

func (b *MemoryBroker) RetryFailed(ctx context.Context, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, j := range b.jobs {
		if j.Status != StatusFailed {
			continue
		}
		j.Status = StatusWaiting
		j.Attempts = 0
		j.RunAt = now
		n++
	}
	return n, nil
}

// Len returns the number of stored jobs in any status.
func (b *MemoryBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.jobs)
}

func (b *MemoryBroker) Close() error { return nil }

func (b *MemoryBroker) remove(id string) {
	delete(b.jobs, id)
	delete(b.seq, id)
}
