package protocol

import (
	"encoding/json"
	"fmt"
)

type userEnvelope struct {
	Type Type   `json:"type"`
	User string `json:"user"`
}

// Observation wraps the result of one tool invocation.
type Observation struct {
	Type        Type   `json:"type"`
	Observation any    `json:"observation"`
	Error       string `json:"error,omitempty"`
}

// EncodeUser serializes a user turn the way the oracle is prompted to expect it.
func EncodeUser(text string) (string, error) {
	raw, err := json.Marshal(userEnvelope{Type: TypeUser, User: text})
	if err != nil {
		return "", fmt.Errorf("marshal user message: %w", err)
	}
	return string(raw), nil
}

func NewObservation(result any) Observation {
	return Observation{Type: TypeObservation, Observation: result}
}

// FailedObservation reports a tool failure back to the oracle.
func FailedObservation(err error) Observation {
	return Observation{Type: TypeObservation, Error: err.Error()}
}

func (o Observation) Encode() (string, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("marshal observation: %w", err)
	}
	return string(raw), nil
}
