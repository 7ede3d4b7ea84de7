package orchestrator

// State is a position of the orchestration loop.
type State int

const (
	StateAwaitUserInput State = iota
	StateAwaitOracleReply
	StateDispatch
	// StateHalted is entered after a fatal error. No further turns run.
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateAwaitUserInput:
		return "await_user_input"
	case StateAwaitOracleReply:
		return "await_oracle_reply"
	case StateDispatch:
		return "dispatch"
	case StateHalted:
		return "halted"
	default:
		return "unknown"
	}
}
