package history

// Window selects which part of the log is resent to the oracle.
// Implementations must keep the system entry first and must not reorder.
type Window interface {
	Select(entries []Entry) []Entry
}

// KeepAll resends the whole transcript.
type KeepAll struct{}

func (KeepAll) Select(entries []Entry) []Entry {
	return entries
}

// KeepRecent keeps the system entry plus roughly the last Max entries.
// The cut is moved forward to the next user turn so a window never starts
// in the middle of a turn. The turn in progress is always kept whole.
type KeepRecent struct {
	Max int
}

func (w KeepRecent) Select(entries []Entry) []Entry {
	if w.Max <= 0 || len(entries) <= w.Max+1 {
		return entries
	}

	cut := len(entries) - w.Max
	start := -1
	for i := cut; i < len(entries); i++ {
		if entries[i].Role == RoleUser {
			start = i
			break
		}
	}
	if start < 0 {
		// no user boundary inside the window: fall back to the last user turn
		for i := cut - 1; i > 0; i-- {
			if entries[i].Role == RoleUser {
				start = i
				break
			}
		}
	}
	if start <= 1 {
		return entries
	}

	out := make([]Entry, 0, len(entries)-start+1)
	out = append(out, entries[0])
	return append(out, entries[start:]...)
}
