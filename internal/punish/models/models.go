package models

import (
	"fmt"
	"time"

	"netban/pkg/domain"
)

// Kind enumerates the punishment variants. Kick is ephemeral: it is
// broadcast to connected nodes but never persisted.
type Kind string

const (
	KindBan  Kind = "ban"
	KindMute Kind = "mute"
	KindWarn Kind = "warn"
	KindKick Kind = "kick"
)

// ParseKind validates a kind string from config, commands, or the wire.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBan, KindMute, KindWarn, KindKick:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown punishment kind %q", s)
}

// Persistent reports whether records of this kind live in the durable store.
func (k Kind) Persistent() bool {
	return k != KindKick
}

// Scope bounds where a punishment applies.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeServer Scope = "server"
	ScopeProxy  Scope = "proxy"
)

// ParseScope validates a scope string.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeGlobal, ScopeServer, ScopeProxy:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown punishment scope %q", s)
}

// DefaultReason is recorded when the operator supplies none.
func DefaultReason(kind Kind) string {
	switch kind {
	case KindMute:
		return "Muted by the server"
	case KindWarn:
		return "Warned by the server"
	case KindKick:
		return "Kicked by the server"
	default:
		return "Banned by the server"
	}
}

// Punishment is the central record. Revision is assigned only by the durable
// store; zero means "not yet persisted".
type Punishment struct {
	Subject   domain.SubjectKey `json:"subject"`
	Kind      Kind              `json:"kind"`
	Scope     Scope             `json:"scope"`
	ServerID  string            `json:"serverId,omitempty"`
	Reason    string            `json:"reason"`
	IssuedBy  domain.Operator   `json:"issuedBy"`
	IssuedAt  time.Time         `json:"issuedAt"`
	ExpiresAt *time.Time        `json:"expiresAt,omitempty"`
	LiftedAt  *time.Time        `json:"liftedAt,omitempty"`
	LiftedBy  *domain.Operator  `json:"liftedBy,omitempty"`
	Revision  int64             `json:"revision"`
}

// Validate checks the invariants a record must satisfy before it may be
// handed to the store.
func (p *Punishment) Validate() error {
	if p.Subject.IsNil() {
		return fmt.Errorf("punishment subject is required")
	}
	if _, err := ParseKind(string(p.Kind)); err != nil {
		return err
	}
	if _, err := ParseScope(string(p.Scope)); err != nil {
		return err
	}
	if p.Scope == ScopeServer && p.ServerID == "" {
		return fmt.Errorf("server-scoped punishment requires a server id")
	}
	if p.Scope != ScopeServer && p.ServerID != "" {
		return fmt.Errorf("server id is only valid with server scope")
	}
	if p.IssuedAt.IsZero() {
		return fmt.Errorf("punishment issue time is required")
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(p.IssuedAt) {
		return fmt.Errorf("punishment expiry must be after issue time")
	}
	return nil
}

// Expired reports natural expiry. Lifted records are handled separately.
func (p *Punishment) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// Active reports whether the record is neither lifted nor expired at now.
func (p *Punishment) Active(now time.Time) bool {
	return p.LiftedAt == nil && !p.Expired(now)
}

// AppliesTo reports whether the record gates an action on the given server.
// Global and proxy records apply everywhere a proxy-level check runs;
// server-scoped records only match their own server. An empty serverID means
// a proxy-level (join) check, which server-scoped records do not gate.
func (p *Punishment) AppliesTo(serverID string) bool {
	switch p.Scope {
	case ScopeServer:
		return serverID != "" && p.ServerID == serverID
	default:
		return true
	}
}
