package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PayloadEnvelope wraps every stored event payload. Consumers key dedupe on
// EventID and switch decoders on Version.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// Seal marshals data into a new envelope with a fresh event id.
func Seal(version int, occurredAt time.Time, data any) (PayloadEnvelope, json.RawMessage, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return PayloadEnvelope{}, nil, fmt.Errorf("marshal event data: %w", err)
	}
	env := PayloadEnvelope{
		Version:    max(version, 1),
		EventID:    uuid.NewString(),
		OccurredAt: occurredAt.UTC(),
		Data:       body,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return PayloadEnvelope{}, nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return env, raw, nil
}

// Open decodes a stored envelope.
func Open(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
