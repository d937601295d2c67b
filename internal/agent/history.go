package agent

import "github.com/docsight/docsight/internal/domain"

// History is the append-only conversation log threaded through one
// orchestration run. Entries are never mutated or removed; history only
// grows within a run and is never shared across turns.
type History struct {
	entries []domain.ConversationEntry
}

func NewHistory(seed ...domain.ConversationEntry) *History {
	h := &History{}
	h.entries = append(h.entries, seed...)
	return h
}

func (h *History) Append(e domain.ConversationEntry) {
	h.entries = append(h.entries, e)
}

// Snapshot returns a copy of the log, not a live view.
func (h *History) Snapshot() []domain.ConversationEntry {
	out := make([]domain.ConversationEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) Len() int {
	return len(h.entries)
}
