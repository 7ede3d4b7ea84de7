package contract

import (
	"context"

	historyx "github.com/tanpawarit/Chative-Todo-Agent/agent/history"
)

// Oracle returns the raw content of the next reply for the given transcript.
type Oracle interface {
	Reply(ctx context.Context, transcript []historyx.Entry) (string, error)
}

type TodoStore interface {
	List(ctx context.Context) ([]Todo, error)
	Create(ctx context.Context, text string) (int64, error)
	Search(ctx context.Context, search string) ([]Todo, error)
	DeleteByID(ctx context.Context, id int64) error
}

// Journal persists transcript entries so a session can be replayed.
type Journal interface {
	Append(ctx context.Context, sessionID string, entry historyx.Entry) error
	Load(ctx context.Context, sessionID string) ([]historyx.Entry, error)
}

type TurnNotifier interface {
	NotifyTurn(ctx context.Context, ev TurnEvent) error
}
