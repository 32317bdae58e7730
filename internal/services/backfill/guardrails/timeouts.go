// Package guardrails holds cross cutting safety helpers for backfill,
// adapted from the teacher's hour-scoped timeout bundle to the repo/post
// scopes spec.md §5 names
package guardrails

import (
	"context"
	"time"
)

// Timeouts is the per-step time budget spec.md §5 names. Zero values mean
// no extra timeout at that level
type Timeouts struct {
	// Repo is the overall time budget for one repo_queue task (fetch + walk + persist)
	Repo time.Duration

	// ThreadFetch caps the thread-view RPC
	ThreadFetch time.Duration

	// RecordFetch caps the direct record-fetch fallback RPC
	RecordFetch time.Duration
}

// Default returns the timeouts spec.md §5 specifies: repo-queue
// soft-demotion 60s, thread-view fetch 10s, record fetch 15s
func Default() Timeouts {
	return Timeouts{Repo: 60 * time.Second, ThreadFetch: 10 * time.Second, RecordFetch: 15 * time.Second}
}

// ForRepo returns a sub context for one repo_queue task bounded by Repo and any remaining parent budget
func ForRepo(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Repo)
}

// ForThreadFetch returns a sub context for the thread-view fetch step
func ForThreadFetch(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.ThreadFetch)
}

// ForRecordFetch returns a sub context for the direct record-fetch fallback step
func ForRecordFetch(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.RecordFetch)
}

// Remaining returns the time until the deadline on ctx or zero when none is set or already expired
func Remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
	}
	return 0
}

// withChildTimeout chooses the tighter of the requested duration and any parent remainder.
// Never extends the parent deadline. d == 0 means no additional limit.
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem := Remaining(parent); rem > 0 && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}
