package oracle

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Todo-Agent/agent/contract"
	llmx "github.com/tanpawarit/Chative-Todo-Agent/agent/llm"
	openrouterx "github.com/tanpawarit/Chative-Todo-Agent/pkg/openrouter"
)

// New builds the oracle selected by cfg.Backend.
func New(ctx context.Context, cfg llmx.Config) (contractx.Oracle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	orCfg := cfg.OpenRouter()

	switch strings.TrimSpace(cfg.Backend) {
	case llmx.BackendEino:
		chatModel, err := orCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contractx.ErrOracleInvoke, err)
		}
		return NewEino(ctx, chatModel)
	default:
		client := openrouterx.NewClient(orCfg)
		if client == nil {
			return nil, fmt.Errorf("%w: oracle api key is required", contractx.ErrValidation)
		}
		return NewOpenAI(client, orCfg)
	}
}
