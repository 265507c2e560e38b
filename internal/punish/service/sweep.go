package service

import (
	"context"
	"time"

	"netban/internal/audit"
	"netban/internal/punish/metrics"
	"netban/internal/punish/models"
)

const sweepBatch = 200

// RunSweep periodically transitions naturally-expired records and nudges
// every node's cache with an expire event, so long-lived entries refresh
// before their TTL. Runs until ctx is cancelled.
func (s *Service) RunSweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	expired, err := s.store.FindExpired(ctx, s.now(), sweepBatch)
	if err != nil {
		s.count(func(m *metrics.Metrics) { m.StoreFailures.Inc() })
		s.logger.Warn("expiry sweep failed", "error", err)
		return
	}
	for _, p := range expired {
		s.count(func(m *metrics.Metrics) { m.SweepExpired.Inc() })
		ev := models.InvalidationEvent{
			Subject:  p.Subject,
			Kind:     p.Kind,
			Revision: p.Revision,
			Op:       models.OpExpire,
			Origin:   s.cfg.NodeID,
		}
		s.publish(ctx, ev)
		s.journal.Record(ctx, s.auditEvent(audit.ActionExpire, p))
		s.logger.Info("punishment expired",
			"subject", p.Subject, "kind", p.Kind, "revision", p.Revision)
	}
}
