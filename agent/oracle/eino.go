package oracle

import (
	"context"
	"fmt"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Todo-Agent/agent/contract"
	historyx "github.com/tanpawarit/Chative-Todo-Agent/agent/history"
	metricsx "github.com/tanpawarit/Chative-Todo-Agent/pkg/metrics"
)

const backendEino = "eino"

// roleDeveloper has no eino constant; it is passed through to the wire as is.
const roleDeveloper schema.RoleType = "developer"

// Eino runs the transcript through a compiled chat model graph.
type Eino struct {
	runner compose.Runnable[[]*schema.Message, string]
}

func NewEino(ctx context.Context, chatModel einomodel.BaseChatModel) (*Eino, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrValidation)
	}
	runner, err := compileReplyGraph(ctx, chatModel)
	if err != nil {
		return nil, fmt.Errorf("%w: compile oracle graph: %v", contractx.ErrOracleInvoke, err)
	}
	return &Eino{runner: runner}, nil
}

func (e *Eino) Reply(ctx context.Context, transcript []historyx.Entry) (string, error) {
	messages, err := toSchemaMessages(transcript)
	if err != nil {
		return "", err
	}

	started := time.Now()
	out, err := e.runner.Invoke(ctx, messages)
	metricsx.OracleDuration.WithLabelValues(backendEino).Observe(time.Since(started).Seconds())
	if err != nil {
		return "", fmt.Errorf("%w: oracle graph invoke: %v", contractx.ErrOracleInvoke, err)
	}
	return out, nil
}

func compileReplyGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
) (compose.Runnable[[]*schema.Message, string], error) {
	graph := compose.NewGraph[[]*schema.Message, string]()

	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add oracle model node: %w", err)
	}
	if err := graph.AddLambdaNode("content",
		compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (string, error) {
			return replyContent(msg)
		}),
	); err != nil {
		return nil, fmt.Errorf("add oracle content node: %w", err)
	}

	edges := [][2]string{
		{compose.START, "model"},
		{"model", "content"},
		{"content", compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("oracle.reply_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile oracle reply graph: %w", err)
	}
	return runner, nil
}

func replyContent(msg *schema.Message) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("%w: chat model returned no message", contractx.ErrOracleInvoke)
	}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		usage := msg.ResponseMeta.Usage
		metricsx.OracleTokensTotal.WithLabelValues("input").Add(float64(usage.PromptTokens))
		metricsx.OracleTokensTotal.WithLabelValues("output").Add(float64(usage.CompletionTokens))
		log.Debug().
			Str("backend", backendEino).
			Int("prompt_tokens", usage.PromptTokens).
			Int("completion_tokens", usage.CompletionTokens).
			Msg("oracle replied")
	}
	return msg.Content, nil
}

func toSchemaMessages(transcript []historyx.Entry) ([]*schema.Message, error) {
	out := make([]*schema.Message, 0, len(transcript))
	for i, e := range transcript {
		switch e.Role {
		case historyx.RoleSystem:
			out = append(out, schema.SystemMessage(e.Payload))
		case historyx.RoleUser:
			out = append(out, schema.UserMessage(e.Payload))
		case historyx.RoleAssistant:
			out = append(out, schema.AssistantMessage(e.Payload, nil))
		case historyx.RoleDeveloper:
			out = append(out, &schema.Message{Role: roleDeveloper, Content: e.Payload})
		default:
			return nil, fmt.Errorf("%w: entry %d has unknown role=%q", contractx.ErrValidation, i, e.Role)
		}
	}
	return out, nil
}
