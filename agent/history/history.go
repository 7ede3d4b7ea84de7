package history

import (
	"errors"
	"fmt"
)

// Role tags a transcript entry. Values match the oracle wire roles.
type Role string

const (
	RoleSystem    Role = "system"    // system instruction
	RoleUser      Role = "user"      // user turn
	RoleAssistant Role = "assistant" // oracle reply
	RoleDeveloper Role = "developer" // tool observation
)

var (
	ErrEmptyHistory       = errors.New("history is empty")
	ErrMissingSystemEntry = errors.New("first history entry must be the system instruction")
)

// Entry is one immutable unit of the transcript. Payload is opaque text,
// in practice a serialized protocol message.
type Entry struct {
	Role    Role   `json:"role"`
	Payload string `json:"payload"`
}

// History is the append-only conversation log owned by a session.
// The first entry is always the system instruction. It is not safe for
// concurrent use; the orchestration loop is strictly sequential.
type History struct {
	entries []Entry
	window  Window
}

type Option func(*History)

// WithWindow sets the strategy used by View.
func WithWindow(w Window) Option {
	return func(h *History) {
		if w != nil {
			h.window = w
		}
	}
}

// New seeds a history with the system instruction entry.
func New(systemPrompt string, opts ...Option) *History {
	h := &History{
		entries: make([]Entry, 0, 16),
		window:  KeepAll{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.entries = append(h.entries, Entry{Role: RoleSystem, Payload: systemPrompt})
	return h
}

// Restore rebuilds a history from previously journaled entries.
func Restore(entries []Entry, opts ...Option) (*History, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyHistory
	}
	if entries[0].Role != RoleSystem {
		return nil, fmt.Errorf("%w: got role=%q", ErrMissingSystemEntry, entries[0].Role)
	}
	h := &History{window: KeepAll{}}
	for _, opt := range opts {
		opt(h)
	}
	h.entries = append(make([]Entry, 0, len(entries)+16), entries...)
	return h, nil
}

// Append adds an entry at the tail.
func (h *History) Append(e Entry) {
	h.entries = append(h.entries, e)
}

// Snapshot returns a copy of the full ordered transcript.
func (h *History) Snapshot() []Entry {
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// View returns the transcript as it should be sent to the oracle.
func (h *History) View() []Entry {
	return h.window.Select(h.Snapshot())
}

func (h *History) Len() int {
	return len(h.entries)
}

// Last returns the tail entry.
func (h *History) Last() Entry {
	return h.entries[len(h.entries)-1]
}
