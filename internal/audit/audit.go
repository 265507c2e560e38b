// Package audit appends every punishment mutation to a moderation journal.
// The journal is best-effort by design: a broker outage must never block or
// fail a ban. Kafka is the durable home for compliance review; the
// punishments table stays the operational source of truth.
package audit

import (
	"context"
	"time"

	"netban/internal/punish/models"
	"netban/pkg/domain"
)

// Action enumerates journaled mutations.
type Action string

const (
	ActionIssue  Action = "issue"
	ActionLift   Action = "lift"
	ActionExpire Action = "expire"
)

// Event is one journal entry, serialized as JSON keyed by subject so all
// entries for a subject land on one partition in order.
type Event struct {
	Action    Action            `json:"action"`
	Subject   domain.SubjectKey `json:"subject"`
	Kind      models.Kind       `json:"kind"`
	Scope     models.Scope      `json:"scope,omitempty"`
	ServerID  string            `json:"serverId,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Operator  domain.Operator   `json:"operator"`
	Revision  int64             `json:"revision"`
	Node      string            `json:"node"`
	Timestamp time.Time         `json:"timestamp"`
}

// Journal records events without ever failing the caller.
type Journal interface {
	Record(ctx context.Context, ev Event)
}

// Nop is used when no broker is configured.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}
