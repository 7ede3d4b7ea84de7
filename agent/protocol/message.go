package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Todo-Agent/agent/contract"
	"github.com/xeipuuv/gojsonschema"
)

type Type string

const (
	TypePlan        Type = "plan"
	TypeAction      Type = "action"
	TypeOutput      Type = "output"
	TypeUser        Type = "user"
	TypeObservation Type = "observation"
)

// Message is a validated oracle reply. Exactly one of the variant fields is
// meaningful, selected by Type.
type Message struct {
	Type     Type            `json:"type"`
	Plan     string          `json:"plan,omitempty"`
	Function string          `json:"function,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
	Output   string          `json:"output,omitempty"`
}

const replySchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"enum": ["plan", "action", "output"]}
  },
  "oneOf": [
    {
      "properties": {"type": {"enum": ["plan"]}, "plan": {"type": "string"}},
      "required": ["plan"]
    },
    {
      "properties": {"type": {"enum": ["action"]}, "function": {"type": "string", "minLength": 1}},
      "required": ["function"]
    },
    {
      "properties": {"type": {"enum": ["output"]}, "output": {"type": "string"}},
      "required": ["output"]
    }
  ]
}`

var replyValidator = mustSchema(gojsonschema.NewStringLoader(replySchema))

func mustSchema(loader gojsonschema.JSONLoader) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(loader)
	if err != nil {
		panic(fmt.Sprintf("protocol: compile reply schema: %v", err))
	}
	return s
}

// Decode parses and validates one raw oracle reply. Any failure wraps
// contract.ErrProtocolViolation.
func Decode(raw string) (Message, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Message{}, fmt.Errorf("%w: empty reply", contractx.ErrProtocolViolation)
	}
	if !json.Valid([]byte(trimmed)) {
		return Message{}, fmt.Errorf("%w: reply is not valid JSON", contractx.ErrProtocolViolation)
	}

	result, err := replyValidator.Validate(gojsonschema.NewStringLoader(trimmed))
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", contractx.ErrProtocolViolation, err)
	}
	if !result.Valid() {
		return Message{}, fmt.Errorf("%w: %s", contractx.ErrProtocolViolation, joinErrors(result.Errors()))
	}

	var msg Message
	if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", contractx.ErrProtocolViolation, err)
	}
	if msg.Type == TypeAction && len(bytes.TrimSpace(msg.Input)) == 0 {
		msg.Input = json.RawMessage("null")
	}
	return msg, nil
}

func joinErrors(errs []gojsonschema.ResultError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "; ")
}
