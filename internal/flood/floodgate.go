// Package flood provides per-client rate limiting for the HTTP API.
package flood

import (
	"sync"
	"time"
)

const (
	// windowDuration is the fixed time window for rate limiting (always 1 minute)
	windowDuration = 60 * time.Second
	// cleanupInterval is how often we clean up expired entries
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long before we remove idle client entries
	idleTimeout = 10 * time.Minute
)

// Floodgate provides per-client sliding window rate limiting for API requests
type Floodgate struct {
	limitPerMinute int                     // Maximum requests per client per minute
	entries        map[string]*clientEntry // Key: client identifier (remote address)
	mutex          sync.RWMutex
	stopCleanup    chan struct{}
}

// clientEntry tracks request timestamps for a single client
type clientEntry struct {
	timestamps []time.Time // Sliding window of request timestamps
	lastSeen   time.Time   // When this client was last seen (for cleanup)
}

// New creates a new Floodgate with the specified request limit.
// The time window is fixed at 60 seconds (1 minute)
func New(limitPerMinute int) *Floodgate {
	fg := &Floodgate{
		limitPerMinute: limitPerMinute,
		entries:        make(map[string]*clientEntry),
		stopCleanup:    make(chan struct{}),
	}

	go fg.cleanup()

	return fg
}

// Stop stops the background cleanup goroutine
func (fg *Floodgate) Stop() {
	close(fg.stopCleanup)
}

// Allow checks whether a request from the given client should be served.
// Returns false when the client exceeded its per-minute budget.
func (fg *Floodgate) Allow(clientID string) bool {
	now := time.Now()

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	entry, exists := fg.entries[clientID]
	if !exists {
		entry = &clientEntry{
			timestamps: make([]time.Time, 0, fg.limitPerMinute+1),
		}
		fg.entries[clientID] = entry
	}

	entry.lastSeen = now

	// Remove timestamps outside the window
	windowStart := now.Add(-windowDuration)
	validTimestamps := entry.timestamps[:0] // Reuse slice capacity
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			validTimestamps = append(validTimestamps, ts)
		}
	}
	entry.timestamps = validTimestamps

	if len(entry.timestamps) >= fg.limitPerMinute {
		return false
	}

	entry.timestamps = append(entry.timestamps, now)
	return true
}

// cleanup removes idle client entries to prevent memory leaks
func (fg *Floodgate) cleanup() {
	fg.performCleanup()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fg.performCleanup()
		case <-fg.stopCleanup:
			return
		}
	}
}

func (fg *Floodgate) performCleanup() {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	cutoff := time.Now().Add(-idleTimeout)
	for key, entry := range fg.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(fg.entries, key)
		}
	}
}

// GetStats returns statistics about the floodgate for monitoring/debugging
func (fg *Floodgate) GetStats() Stats {
	fg.mutex.RLock()
	defer fg.mutex.RUnlock()

	return Stats{
		ActiveClients:  len(fg.entries),
		LimitPerMinute: fg.limitPerMinute,
		WindowSeconds:  int(windowDuration.Seconds()),
	}
}

// Stats contains floodgate statistics
type Stats struct {
	ActiveClients  int `json:"active_clients"`
	LimitPerMinute int `json:"limit_per_minute"`
	WindowSeconds  int `json:"window_seconds"`
}
