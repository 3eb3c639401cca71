package guard

import (
	"sync"
	"time"
)

// SpamWindow is the fixed size of the sliding window used by the tracker.
const SpamWindow = 10 * time.Second

// SpamTracker keeps a sliding time-window of message ids per (chat, user) pair
// and reports when a burst exceeds the allowed rate. Thread-safe. State is
// in-memory only and rebuilt from scratch on restart.
type SpamTracker struct {
	window  time.Duration
	entries map[spamKey][]spamEntry
	lock    sync.Mutex
}

type spamKey struct {
	chatID int64
	userID int64
}

type spamEntry struct {
	msgID int
	ts    time.Time
}

// NewSpamTracker creates a tracker with the given window, or SpamWindow if zero.
func NewSpamTracker(window time.Duration) *SpamTracker {
	if window <= 0 {
		window = SpamWindow
	}
	return &SpamTracker{window: window, entries: make(map[spamKey][]spamEntry)}
}

// Check records a message and reports whether the sender exceeded the limit.
// Expired entries are purged first, then the message is appended and the
// remaining count compared to limit. On a detected burst it returns all tracked
// message ids, including the current one, and clears the key entirely so the
// next message starts a fresh count.
func (s *SpamTracker) Check(chatID, userID int64, msgID int, now time.Time, limit int) (burst []int, spam bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	key := spamKey{chatID: chatID, userID: userID}
	kept := s.entries[key][:0]
	for _, e := range s.entries[key] {
		if now.Sub(e.ts) < s.window {
			kept = append(kept, e)
		}
	}
	kept = append(kept, spamEntry{msgID: msgID, ts: now})

	if len(kept) > limit {
		burst = make([]int, 0, len(kept))
		for _, e := range kept {
			burst = append(burst, e.msgID)
		}
		delete(s.entries, key)
		return burst, true
	}

	s.entries[key] = kept
	return nil, false
}

// Count returns the number of currently tracked messages for the pair, expired
// entries included. Used by tests and introspection only.
func (s *SpamTracker) Count(chatID, userID int64) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.entries[spamKey{chatID: chatID, userID: userID}])
}
