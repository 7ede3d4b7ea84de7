package orchestrator

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Todo-Agent/agent/contract"
	qstashx "github.com/tanpawarit/Chative-Todo-Agent/pkg/qstash"
)

// QStashNotifier publishes each completed turn through QStash.
type QStashNotifier struct {
	client *qstashx.Client
}

func NewQStashNotifier(client *qstashx.Client) *QStashNotifier {
	return &QStashNotifier{client: client}
}

func (n *QStashNotifier) NotifyTurn(ctx context.Context, ev contractx.TurnEvent) error {
	dedupID := fmt.Sprintf("%s-%d", ev.SessionID, ev.CompletedAt.UnixNano())
	if _, err := n.client.Publish(ctx, ev, dedupID); err != nil {
		return err
	}
	return nil
}
