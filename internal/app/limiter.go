package app

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CityLimiter allows one external search per city per cooldown. It lives in
// process memory only: several API replicas each keep their own map.
type CityLimiter struct {
	mu       sync.Mutex
	cooldown time.Duration
	entries  map[string]*cityEntry
	now      func() time.Time
}

type cityEntry struct {
	lim  *rate.Limiter
	last time.Time
}

func NewCityLimiter(cooldown time.Duration) *CityLimiter {
	if cooldown <= 0 {
		cooldown = 10 * time.Minute
	}
	return &CityLimiter{cooldown: cooldown, entries: map[string]*cityEntry{}, now: time.Now}
}

func (l *CityLimiter) Allow(slug string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, ok := l.entries[slug]
	if !ok {
		e = &cityEntry{lim: rate.NewLimiter(rate.Every(l.cooldown), 1)}
		l.entries[slug] = e
	}
	e.last = now
	return e.lim.AllowN(now, 1)
}

// Forget gives the city its token back, e.g. after the webhook call failed.
func (l *CityLimiter) Forget(slug string) {
	l.mu.Lock()
	delete(l.entries, slug)
	l.mu.Unlock()
}

// Sweep drops entries idle for a full cooldown; their bucket is full again
// so dropping them changes nothing.
func (l *CityLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.cooldown)
	n := 0
	for k, e := range l.entries {
		if e.last.Before(cutoff) {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

func (l *CityLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Run sweeps every cooldown until ctx is done.
func (l *CityLimiter) Run(ctx context.Context) {
	t := time.NewTicker(l.cooldown)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}
