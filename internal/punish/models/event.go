package models

import (
	"encoding/json"
	"fmt"

	"netban/pkg/domain"
)

// Op enumerates invalidation event operations.
type Op string

const (
	OpUpsert Op = "upsert"
	OpLift   Op = "lift"
	OpExpire Op = "expire"
)

// InvalidationEvent is broadcast on the bus after every committed mutation.
// It carries the record on upsert so receivers can refresh their cache
// without a store round trip. Decoding ignores unknown fields so newer nodes
// can extend the payload.
type InvalidationEvent struct {
	Subject  domain.SubjectKey `json:"subjectKey"`
	Kind     Kind              `json:"kind"`
	Revision int64             `json:"revision"`
	Op       Op                `json:"operation"`
	Origin   string            `json:"originNode"`
	Record   *Punishment       `json:"record,omitempty"`
}

// EncodeEvent serializes an event for the bus channel.
func EncodeEvent(ev InvalidationEvent) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode invalidation event: %w", err)
	}
	return b, nil
}

// DecodeEvent parses an event off the bus channel.
func DecodeEvent(payload []byte) (InvalidationEvent, error) {
	var ev InvalidationEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return InvalidationEvent{}, fmt.Errorf("decode invalidation event: %w", err)
	}
	if ev.Subject.IsNil() {
		return InvalidationEvent{}, fmt.Errorf("invalidation event missing subject")
	}
	return ev, nil
}
