package contract

import "time"

// Todo mirrors a record of the external store. The agent never builds one itself.
type Todo struct {
	ID        int64     `json:"id"`
	Todo      string    `json:"todo"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ToolCall struct {
	Tool   string `json:"tool"`
	Failed bool   `json:"failed,omitempty"`
}

// TurnEvent summarises one completed user turn.
type TurnEvent struct {
	SessionID   string     `json:"session_id"`
	Input       string     `json:"input"`
	Output      string     `json:"output"`
	Steps       int        `json:"steps"`
	ToolCalls   []ToolCall `json:"tool_calls,omitempty"`
	CompletedAt time.Time  `json:"completed_at"`
}
