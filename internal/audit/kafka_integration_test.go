//go:build integration

package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"netban/internal/platform/kafka"
	"netban/internal/punish/models"
	"netban/pkg/testutil/containers"
)

type KafkaJournalSuite struct {
	suite.Suite
	broker  *containers.RedpandaContainer
	journal *KafkaJournal
}

func TestKafkaJournalSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaJournalSuite))
}

func (s *KafkaJournalSuite) SetupSuite() {
	s.broker = containers.NewRedpandaContainer(s.T())

	producer := s.broker.NewClient(s.T())
	s.Require().NoError(kafka.EnsureTopic(context.Background(), producer, Topic, 3))
	s.journal = NewKafka(producer, slog.New(slog.DiscardHandler))
}

func (s *KafkaJournalSuite) TestEnsureTopicIsIdempotent() {
	client := s.broker.NewClient(s.T())
	s.NoError(kafka.EnsureTopic(context.Background(), client, Topic, 3))
}

func (s *KafkaJournalSuite) TestRecordLandsOnTheJournalTopic() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sent := Event{
		Action:    ActionIssue,
		Subject:   "p1",
		Kind:      models.KindBan,
		Scope:     models.ScopeGlobal,
		Reason:    "griefing",
		Revision:  1,
		Node:      "node-a",
		Timestamp: time.Now().UTC(),
	}
	s.journal.Record(ctx, sent)
	s.Require().NoError(s.journal.Flush(ctx))

	consumer := s.broker.NewClient(s.T(),
		kgo.ConsumeTopics(Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	rec := records[0]
	s.Equal("p1", string(rec.Key), "entries are keyed by subject for per-subject ordering")

	var got Event
	s.Require().NoError(json.Unmarshal(rec.Value, &got))
	s.Equal(ActionIssue, got.Action)
	s.Equal(sent.Subject, got.Subject)
	s.Equal(sent.Revision, got.Revision)
	s.Equal("node-a", got.Node)
}
