package adapter

import (
	"context"
	"log/slog"
	"time"

	"netban/internal/punish/models"
	"netban/internal/punish/service"
	"netban/pkg/domain"
)

// Platform is the capability surface an engine integration provides so the
// core can enforce punishments against already-connected players. One
// implementation per engine; the core never imports engine code.
type Platform interface {
	Name() string
	// KickPlayer disconnects the subject if currently online; a no-op for
	// offline subjects.
	KickPlayer(ctx context.Context, subject domain.SubjectKey, reason string) error
	// NotifyPlayer delivers a message to the subject if online (mute/warn
	// notices).
	NotifyPlayer(ctx context.Context, subject domain.SubjectKey, message string) error
}

// Enforcer subscribes to punishment changes and applies them to connected
// players the instant they take effect, wherever they were issued.
type Enforcer struct {
	platform Platform
	logger   *slog.Logger
	serverID string
}

// NewEnforcer registers the enforcer on the service's change feed.
func NewEnforcer(svc *service.Service, platform Platform, serverID string, logger *slog.Logger) *Enforcer {
	e := &Enforcer{platform: platform, logger: logger, serverID: serverID}
	svc.Subscribe(e.onChange)
	return e
}

func (e *Enforcer) onChange(ev models.InvalidationEvent) {
	if ev.Op != models.OpUpsert || ev.Record == nil {
		return
	}
	if !ev.Record.AppliesTo(e.serverID) && ev.Record.Scope == models.ScopeServer {
		return
	}

	// Enforcement happens off the bus handler's goroutine; engine calls can
	// block on their own schedulers.
	go func(rec models.Punishment) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		switch rec.Kind {
		case models.KindBan, models.KindKick:
			if err := e.platform.KickPlayer(ctx, rec.Subject, denialMessage(&rec)); err != nil {
				e.logger.Warn("enforcement kick failed",
					"platform", e.platform.Name(), "subject", rec.Subject, "error", err)
			}
		case models.KindMute, models.KindWarn:
			if err := e.platform.NotifyPlayer(ctx, rec.Subject, denialMessage(&rec)); err != nil {
				e.logger.Warn("enforcement notice failed",
					"platform", e.platform.Name(), "subject", rec.Subject, "error", err)
			}
		}
	}(*ev.Record)
}
