package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Todo-Agent/agent/contract"
	historyx "github.com/tanpawarit/Chative-Todo-Agent/agent/history"
	metricsx "github.com/tanpawarit/Chative-Todo-Agent/pkg/metrics"
	openrouterx "github.com/tanpawarit/Chative-Todo-Agent/pkg/openrouter"
)

const backendOpenAI = "openai"

// OpenAI queries a chat completions endpoint in JSON-object mode.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   *int
	jsonMode    bool
}

func NewOpenAI(client *openai.Client, cfg openrouterx.Config) (*OpenAI, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: openai client is required", contractx.ErrValidation)
	}
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		return nil, fmt.Errorf("%w: oracle model is required", contractx.ErrValidation)
	}
	return &OpenAI{
		client:      client,
		model:       modelName,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxCompletionToken,
		jsonMode:    cfg.JSONMode,
	}, nil
}

func (o *OpenAI) Reply(ctx context.Context, transcript []historyx.Entry) (string, error) {
	messages, err := toOpenAIMessages(transcript)
	if err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(o.model),
		Messages:    messages,
		Temperature: openai.Float(float64(o.temperature)),
	}
	if o.jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	if o.maxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*o.maxTokens))
	}

	started := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	metricsx.OracleDuration.WithLabelValues(backendOpenAI).Observe(time.Since(started).Seconds())
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %v", contractx.ErrOracleInvoke, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion returned no choices", contractx.ErrOracleInvoke)
	}

	metricsx.OracleTokensTotal.WithLabelValues("input").Add(float64(resp.Usage.PromptTokens))
	metricsx.OracleTokensTotal.WithLabelValues("output").Add(float64(resp.Usage.CompletionTokens))
	log.Debug().
		Str("backend", backendOpenAI).
		Str("model", o.model).
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Dur("latency", time.Since(started)).
		Msg("oracle replied")

	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(transcript []historyx.Entry) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(transcript))
	for i, e := range transcript {
		switch e.Role {
		case historyx.RoleSystem:
			out = append(out, openai.SystemMessage(e.Payload))
		case historyx.RoleUser:
			out = append(out, openai.UserMessage(e.Payload))
		case historyx.RoleAssistant:
			out = append(out, openai.AssistantMessage(e.Payload))
		case historyx.RoleDeveloper:
			out = append(out, openai.DeveloperMessage(e.Payload))
		default:
			return nil, fmt.Errorf("%w: entry %d has unknown role=%q", contractx.ErrValidation, i, e.Role)
		}
	}
	return out, nil
}
