// Package progress renders backfill throughput to the terminal via
// schollz/progressbar, the library the pack already reaches for (see
// vjache-cie/cmd/cie/index.go). Unlike that teacher's single phase-scoped
// bar, pinakes runs several queues concurrently, so this package keeps one
// named counter per collection and multiplexes them onto stacked bars.
package progress

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"pinakes/internal/core/queue"
)

// Names of the counters the backfill engine tracks, one per collection
// plus the embeddings backfill pass
const (
	CounterPost       = "post"
	CounterRepost     = "repost"
	CounterLike       = "like"
	CounterFollow     = "follow"
	CounterEmbeddings = "embeddings"
)

var allCounters = []string{CounterPost, CounterRepost, CounterLike, CounterFollow, CounterEmbeddings}

// window is how far back Rate() looks to compute throughput
const window = 10 * time.Second

type sample struct {
	at    time.Time
	total int64
}

// counter tracks a running total plus a rolling window of samples for rate
type counter struct {
	mu      sync.Mutex
	bar     *progressbar.ProgressBar
	total   int64
	samples []sample
}

func (c *counter) add(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total += n
	now := time.Now()
	c.samples = append(c.samples, sample{at: now, total: c.total})
	cut := now.Add(-window)
	i := 0
	for i < len(c.samples) && c.samples[i].at.Before(cut) {
		i++
	}
	c.samples = c.samples[i:]
	if c.bar != nil {
		_ = c.bar.Add64(n)
	}
}

// rate returns items/sec over the trailing window
func (c *counter) rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.samples) < 2 {
		return 0
	}
	first, last := c.samples[0], c.samples[len(c.samples)-1]
	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(last.total-first.total) / elapsed
}

// Scope owns one bar per named counter and is safe for concurrent Add calls
// from multiple queue workers
type Scope struct {
	mu       sync.Mutex
	counters map[string]*counter
	quiet    bool
	closed   bool
}

// NewScope creates a progress scope. When quiet is true no bars are drawn
// (used under non-interactive output or in tests) but counts still accrue
func NewScope(quiet bool) *Scope {
	s := &Scope{counters: make(map[string]*counter), quiet: quiet}
	for _, name := range allCounters {
		s.counters[name] = &counter{}
		if !quiet {
			s.counters[name].bar = progressbar.NewOptions64(-1,
				progressbar.OptionSetDescription(fmt.Sprintf("%-10s", name)),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("item"),
				progressbar.OptionOnCompletion(func() {}),
			)
		}
	}
	return s
}

// Add increments the named counter by n. Unknown names are ignored rather
// than panicking, so new collections added later don't crash old engines
func (s *Scope) Add(name string, n int64) {
	s.mu.Lock()
	c := s.counters[name]
	s.mu.Unlock()
	if c == nil {
		return
	}
	c.add(n)
}

// Total returns the running total for a counter
func (s *Scope) Total(name string) int64 {
	s.mu.Lock()
	c := s.counters[name]
	s.mu.Unlock()
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Rate returns the trailing-window items/sec for a counter
func (s *Scope) Rate(name string) float64 {
	s.mu.Lock()
	c := s.counters[name]
	s.mu.Unlock()
	if c == nil {
		return 0
	}
	return c.rate()
}

// Close finishes all bars; safe to call more than once
func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, c := range s.counters {
		if c.bar != nil {
			_ = c.bar.Finish()
		}
	}
	return nil
}

// Listen wires a queue.Event channel to the named counter: one Completed
// event increments the counter by one, Errored/Drained are ignored here
// since the queue itself handles retry bookkeeping
func (s *Scope) Listen(name string, events <-chan queue.Event) {
	go func() {
		for ev := range events {
			if ev.Kind == queue.Completed {
				s.Add(name, 1)
			}
		}
	}()
}
