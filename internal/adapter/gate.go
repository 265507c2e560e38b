// Package adapter is the boundary consumed by per-engine integrations. The
// core stays identical across proxies and backends; an engine plugs in by
// calling the Gate from its join/chat/command hooks and implementing
// Platform for enforcement callbacks.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"netban/internal/punish/models"
	"netban/internal/punish/service"
	"netban/pkg/domain"
	"netban/pkg/platform/sentinel"
)

// Policy decides what a join check does when the source of truth cannot be
// reached in time. A deployment choice, never hardcoded.
type Policy string

const (
	// FailOpen lets the player in when punishment state is unknowable.
	FailOpen Policy = "fail-open"
	// FailClosed denies the join when punishment state is unknowable.
	FailClosed Policy = "fail-closed"
)

// ParsePolicy validates a policy string from configuration.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case FailOpen, FailClosed:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown join policy %q", s)
}

// Decision is the gate's answer for one hook invocation.
type Decision struct {
	Allowed bool
	// Record is the punishment that caused a denial, nil when Allowed or
	// when a fail-closed policy denied without evidence.
	Record *models.Punishment
	// Message is the player-facing denial text.
	Message string
	// Degraded marks decisions taken under the failure policy rather than
	// from known state.
	Degraded bool
}

// Gate applies punishment checks at the platform hook points.
type Gate struct {
	svc     *service.Service
	policy  Policy
	timeout time.Duration
	logger  *slog.Logger
}

func NewGate(svc *service.Service, policy Policy, timeout time.Duration, logger *slog.Logger) *Gate {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Gate{svc: svc, policy: policy, timeout: timeout, logger: logger}
}

// CheckJoin gates a connection attempt. This is the only hook where the
// fail-open/fail-closed policy applies: an unverifiable ban is a deployment
// decision, an unverifiable mute is not worth blocking a join over.
func (g *Gate) CheckJoin(ctx context.Context, subject domain.SubjectKey, serverID string) Decision {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	view, err := g.svc.CheckActive(ctx, subject)
	if err != nil {
		if errors.Is(err, sentinel.ErrStoreUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			return g.degraded(subject, err)
		}
		g.logger.Error("join check failed", "subject", subject, "error", err)
		return g.degraded(subject, err)
	}

	if ban := view.Ban(serverID, time.Now()); ban != nil {
		return Decision{Record: ban, Message: denialMessage(ban)}
	}
	return Decision{Allowed: true}
}

// CheckChat gates a chat message against mutes. Always fails open: when the
// store is unreachable an unverified mute does not drop chat.
func (g *Gate) CheckChat(ctx context.Context, subject domain.SubjectKey, serverID string) Decision {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	view, err := g.svc.CheckActive(ctx, subject)
	if err != nil {
		g.logger.Warn("chat check degraded to allow", "subject", subject, "error", err)
		return Decision{Allowed: true, Degraded: true}
	}
	if mute := view.Mute(serverID, time.Now()); mute != nil {
		return Decision{Record: mute, Message: denialMessage(mute)}
	}
	return Decision{Allowed: true}
}

// CheckCommand gates a command invocation; mutes cover commands that speak
// (me, msg, say), which is the adapter's call — the gate only reports state.
func (g *Gate) CheckCommand(ctx context.Context, subject domain.SubjectKey, serverID string) Decision {
	return g.CheckChat(ctx, subject, serverID)
}

func (g *Gate) degraded(subject domain.SubjectKey, cause error) Decision {
	if g.policy == FailClosed {
		g.logger.Warn("join denied under fail-closed policy",
			"subject", subject, "error", cause)
		return Decision{
			Degraded: true,
			Message:  "Unable to verify your standing, please try again shortly",
		}
	}
	g.logger.Warn("join allowed under fail-open policy",
		"subject", subject, "error", cause)
	return Decision{Allowed: true, Degraded: true}
}

func denialMessage(p *models.Punishment) string {
	var until string
	if p.ExpiresAt != nil {
		until = " until " + p.ExpiresAt.UTC().Format(time.RFC1123)
	}
	switch p.Kind {
	case models.KindMute:
		return fmt.Sprintf("You are muted%s: %s", until, p.Reason)
	case models.KindWarn:
		return fmt.Sprintf("You have been warned: %s", p.Reason)
	case models.KindKick:
		return fmt.Sprintf("You have been kicked: %s", p.Reason)
	default:
		return fmt.Sprintf("You are banned%s: %s", until, p.Reason)
	}
}
