// Package protocol defines the WebSocket wire contract: one JSON frame per
// event, each an envelope of {type, body}.
package protocol

import (
	"encoding/json"
	"fmt"
)

type Envelope struct {
	Type EventType `json:"type"`
	Body any       `json:"body,omitempty"`
}

func NewEnvelope(eventType EventType, body any) *Envelope {
	return &Envelope{Type: eventType, Body: body}
}

func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

func DecodeEnvelope(data []byte) (*Envelope, error) {
	var raw struct {
		Type EventType       `json:"type"`
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if raw.Type == "" {
		return nil, fmt.Errorf("decode envelope: missing type")
	}
	e := &Envelope{Type: raw.Type}
	if len(raw.Body) > 0 {
		e.Body = json.RawMessage(raw.Body)
	}
	return e, nil
}

// DecodeBody decodes the envelope body into the given type. Inbound bodies
// arrive as raw JSON; outbound bodies are already structs and take the
// re-encode path.
func DecodeBody[T any](e *Envelope) (*T, error) {
	var result T
	switch body := e.Body.(type) {
	case nil:
		return nil, fmt.Errorf("decode body to %T: empty body", result)
	case json.RawMessage:
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("decode body to %T: %w", result, err)
		}
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("re-encode body: %w", err)
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("decode body to %T: %w", result, err)
		}
	}
	return &result, nil
}
