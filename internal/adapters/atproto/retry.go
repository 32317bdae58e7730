package atproto

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxStatusRetries = 5

// StatusError is a typed error carrying the HTTP status and optional
// rate-limit-reset header, the atproto analogue of the teacher's
// GHStatusError in adapters/ingest/github/client.go
type StatusError struct {
	Status        int
	RateLimitReset time.Time // zero if not present
	Body          string
}

func (e *StatusError) Error() string {
	return "atproto: http " + strconv.Itoa(e.Status) + ": " + e.Body
}

// CancellationStyle reports false: queue.IsCancellation never treats a
// StatusError as cancellation-style, so the task queue does not requeue on it
func (e *StatusError) CancellationStyle() bool { return false }

var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:     true,
	http.StatusTooManyRequests:    true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// shouldRetry implements spec.md §4.2's 5-step retry decision ladder.
// attempt is 0-indexed (number of prior attempts already made).
func shouldRetry(ctx context.Context, err error, attempt int) (wait time.Duration, retry bool) {
	// 1. cancellation/abort: never retry here, let C1 requeue instead
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var se *StatusError
	if errors.As(err, &se) {
		// 2. rate-limit-reset header present: sleep until that epoch second
		if !se.RateLimitReset.IsZero() {
			d := time.Until(se.RateLimitReset)
			if d < 0 {
				d = 0
			}
			return d, true
		}

		// 3. retryable status and budget remains
		if retryableStatuses[se.Status] && attempt < maxStatusRetries {
			return backoff(attempt), true
		}
		return 0, false
	}

	// 4. transient-network markers
	if attempt < maxStatusRetries && isTransientNetworkError(err) {
		return backoff(attempt), true
	}

	// 5. otherwise, surface
	return 0, false
}

// backoff is 3^(attempt+1) seconds, per spec.md §4.2 point 3
func backoff(attempt int) time.Duration {
	secs := 1
	for i := 0; i <= attempt; i++ {
		secs *= 3
	}
	return time.Duration(secs) * time.Second
}

func isTransientNetworkError(err error) bool {
	s := strings.ToLower(err.Error())
	for _, marker := range []string{"tcp", "network", "dns"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err represents the remote saying a record or
// post simply doesn't exist, the steady-state case spec.md §4.5/§7 says
// must terminate silently rather than retry or log
func IsNotFound(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	if se.Status == http.StatusNotFound || se.Status == http.StatusBadRequest {
		return true
	}
	body := strings.ToLower(se.Body)
	return strings.Contains(body, "not found") || strings.Contains(body, "notfound")
}

// sleepCtx sleeps for d or returns early with ctx.Err() if ctx is cancelled first
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
