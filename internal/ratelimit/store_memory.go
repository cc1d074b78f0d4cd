package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemory is a sliding-window store for a single process.
type InMemory struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	now     func() time.Time
}

type slidingWindow struct {
	admitted []time.Time
	window   time.Duration
}

func NewInMemory() *InMemory {
	return &InMemory{windows: make(map[string]*slidingWindow), now: time.Now}
}

func (s *InMemory) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sw := s.windows[key]
	if sw == nil {
		sw = &slidingWindow{window: window}
		s.windows[key] = sw
	}
	sw.window = window
	sw.evict(now)

	if len(sw.admitted) >= limit {
		return Result{Allowed: false, Limit: limit, Remaining: 0, ResetAt: sw.admitted[0].Add(window)}, nil
	}
	sw.admitted = append(sw.admitted, now)
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(sw.admitted),
		ResetAt:   sw.admitted[0].Add(window),
	}, nil
}

// Sweep drops windows with no admitted requests left and returns how many it removed.
func (s *InMemory) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, sw := range s.windows {
		sw.evict(now)
		if len(sw.admitted) == 0 {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// evict removes timestamps that fell out of the window.
func (sw *slidingWindow) evict(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for i < len(sw.admitted) && !sw.admitted[i].After(cutoff) {
		i++
	}
	sw.admitted = sw.admitted[i:]
}
