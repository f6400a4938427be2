package scans

import (
	"sync"
	"time"
	"unicode/utf8"
)

const (
	// DefaultDedupWindow is how long a repeated fingerprint is suppressed.
	DefaultDedupWindow = 5 * time.Second
	// DefaultDedupCapacity is the entry count above which expired entries are swept.
	DefaultDedupCapacity = 10000
	// fingerprintUALength is how many user-agent characters go into a fingerprint.
	fingerprintUALength = 64
)

// Clock returns the current time.
type Clock func() time.Time

// Deduplicator suppresses repeated scans of the same fingerprint within a
// trailing window. It is process-local and memory-only: it filters prefetch
// and double-fetch noise, it does not make analytics exact, and separate
// server instances do not share state.
type Deduplicator struct {
	mu       sync.Mutex
	seen     map[string]time.Time // fingerprint -> last admission
	window   time.Duration
	capacity int
	now      Clock
}

// NewDeduplicator creates a deduplicator. A nil clock uses time.Now.
func NewDeduplicator(window time.Duration, capacity int, clock Clock) *Deduplicator {
	if clock == nil {
		clock = time.Now
	}

	return &Deduplicator{
		seen:     make(map[string]time.Time),
		window:   window,
		capacity: capacity,
		now:      clock,
	}
}

// Admit reports whether a scan with this fingerprint should be recorded.
// An admission restarts the window for the fingerprint; a suppressed hit does not.
func (d *Deduplicator) Admit(fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()

	admitted := true
	if last, ok := d.seen[fingerprint]; ok && now.Sub(last) < d.window {
		admitted = false
	} else {
		d.seen[fingerprint] = now
	}

	if len(d.seen) > d.capacity {
		d.sweep(now)
	}

	return admitted
}

// Len returns the number of tracked fingerprints.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.seen)
}

func (d *Deduplicator) sweep(now time.Time) {
	for fp, last := range d.seen {
		if now.Sub(last) >= d.window {
			delete(d.seen, fp)
		}
	}
}

// Fingerprint builds the dedup key from the short code, client IP and the
// first 64 characters of the user agent.
func Fingerprint(code, ip, userAgent string) string {
	return code + ":" + ip + ":" + truncateRunes(userAgent, fingerprintUALength)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}

	return s
}
