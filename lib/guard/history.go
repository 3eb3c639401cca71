package guard

import (
	"container/ring"
	"sort"
	"sync"
)

// MaxQueryLimit caps how many records a single query may return, which in turn
// bounds the number of delete calls a bulk-clear command can issue.
const MaxQueryLimit = 100

// HistoryRecord is one tracked message.
type HistoryRecord struct {
	ChatID   int64
	MsgID    int
	UserID   int64
	Username string // lowercased, "unknown" when the sender has none
}

// History is a bounded FIFO of recent messages across all chats, thread-safe.
// Once capacity is reached the oldest record is evicted on every insert.
type History struct {
	records *ring.Ring
	size    int
	lock    sync.RWMutex
}

// NewHistory creates a history buffer with the given capacity, minimum 1.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{records: ring.New(size), size: size}
}

// Push appends a record, evicting the oldest one when full.
func (h *History) Push(rec HistoryRecord) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.records.Value = rec
	h.records = h.records.Next()
}

// Recent returns up to limit records for the chat, most recent first (message
// ids are monotonic per chat, so sorted by id descending). Records from the
// excluded usernames are skipped. The limit is capped at MaxQueryLimit.
func (h *History) Recent(chatID int64, exclude []string, limit int) []HistoryRecord {
	if limit < 1 {
		return nil
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	excluded := make(map[string]struct{}, len(exclude))
	for _, u := range exclude {
		excluded[u] = struct{}{}
	}

	h.lock.RLock()
	var res []HistoryRecord
	h.records.Do(func(v interface{}) {
		rec, ok := v.(HistoryRecord)
		if !ok || rec.ChatID != chatID {
			return
		}
		if _, skip := excluded[rec.Username]; skip {
			return
		}
		res = append(res, rec)
	})
	h.lock.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].MsgID > res[j].MsgID })
	if len(res) > limit {
		res = res[:limit]
	}
	return res
}

// Size returns the buffer capacity.
func (h *History) Size() int { return h.size }
