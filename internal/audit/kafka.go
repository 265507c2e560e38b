package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Topic is the moderation journal topic.
const Topic = "netban.moderation.audit"

// KafkaJournal produces journal entries asynchronously. Delivery failures
// are logged and counted, never surfaced to the mutating operation.
type KafkaJournal struct {
	client *kgo.Client
	logger *slog.Logger
}

func NewKafka(client *kgo.Client, logger *slog.Logger) *KafkaJournal {
	return &KafkaJournal{client: client, logger: logger}
}

func (j *KafkaJournal) Record(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		j.logger.Error("encode audit event", "action", ev.Action, "error", err)
		return
	}
	record := &kgo.Record{
		Topic: Topic,
		Key:   []byte(ev.Subject.String()),
		Value: payload,
	}
	j.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			j.logger.Warn("audit event delivery failed",
				"action", ev.Action, "subject", ev.Subject, "error", err)
		}
	})
}

// Flush drains in-flight produces; called on shutdown.
func (j *KafkaJournal) Flush(ctx context.Context) error {
	return j.client.Flush(ctx)
}
