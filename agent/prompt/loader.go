package prompt

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/system.tmpl
var systemRaw string

// Tool is one line of the tool list shown to the oracle.
type Tool struct {
	Signature   string
	Description string
}

// RenderSystem returns the system instruction with the given tools listed
// in order.
func RenderSystem(ctx context.Context, tools []Tool) (string, error) {
	if len(tools) == 0 {
		return "", fmt.Errorf("render system prompt: no tools")
	}

	template := einoprompt.FromMessages(schema.GoTemplate, schema.SystemMessage(systemRaw))
	messages, err := template.Format(ctx, map[string]any{"tools": tools})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	if len(messages) != 1 {
		return "", fmt.Errorf("render system prompt: expected 1 message, got %d", len(messages))
	}
	return strings.TrimSpace(messages[0].Content), nil
}
