package game

import "sync"

// History is the bounded, newest-first log of completed sessions. It lives
// for the process only; nothing is persisted.
type History struct {
	mu       sync.Mutex
	limit    int
	sessions []Session
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 50
	}
	return &History{limit: limit}
}

// Append inserts s at the front. When the log overflows, the oldest entries
// fall off the tail.
func (h *History) Append(s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = append([]Session{s}, h.sessions...)
	if len(h.sessions) > h.limit {
		h.sessions = h.sessions[:h.limit]
	}
}

// List returns a copy of the log, newest first.
func (h *History) List() []Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Session, len(h.sessions))
	copy(out, h.sessions)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = nil
}
