package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"netban/internal/punish/bus"
	"netban/internal/punish/cache"
	"netban/internal/punish/models"
	"netban/internal/punish/store"
	"netban/internal/punish/store/memory"
	"netban/internal/punish/store/mocks"
	"netban/pkg/domain"
	"netban/pkg/platform/sentinel"
)

// countingStore wraps a store and counts GetActive calls, so tests can tell
// a cache hit from a silent re-fetch.
type countingStore struct {
	store.Store
	gets atomic.Int64
}

func (c *countingStore) GetActive(ctx context.Context, subject domain.SubjectKey) ([]*models.Punishment, error) {
	c.gets.Add(1)
	return c.Store.GetActive(ctx, subject)
}

type ServiceSuite struct {
	suite.Suite
	network *bus.MemoryNetwork
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.network = bus.NewMemoryNetwork()
}

func (s *ServiceSuite) newNode(id string, st store.Store) (*Service, *bus.MemoryBus) {
	b := s.network.Join()
	svc := New(Config{NodeID: id, DegradedTTL: 10 * time.Millisecond},
		st, cache.NewLRU(64, time.Minute), b, nil, nil, slog.New(slog.DiscardHandler))
	return svc, b
}

func ban(subject domain.SubjectKey) *models.Punishment {
	return &models.Punishment{
		Subject:  subject,
		Kind:     models.KindBan,
		Scope:    models.ScopeGlobal,
		Reason:   "griefing",
		IssuedBy: domain.Console,
		IssuedAt: time.Now(),
	}
}

func (s *ServiceSuite) TestReadYourWrites() {
	ctx := context.Background()
	st := &countingStore{Store: memory.New()}
	svc, _ := s.newNode("a", st)

	// Prime the cache with the empty view.
	view, err := svc.CheckActive(ctx, "p1")
	s.Require().NoError(err)
	s.True(view.Empty())
	s.Equal(int64(1), st.gets.Load())

	_, err = svc.Issue(ctx, ban("p1"))
	s.Require().NoError(err)

	// The issuing node sees its own write immediately, from cache.
	view, err = svc.CheckActive(ctx, "p1")
	s.Require().NoError(err)
	s.Require().NotNil(view.Ban("", time.Now()))
	s.Equal(int64(1), st.gets.Load(), "read-your-writes must not re-fetch")
}

func (s *ServiceSuite) TestIssuePropagatesAcrossNodes() {
	ctx := context.Background()
	shared := memory.New()
	nodeA, _ := s.newNode("a", shared)

	// Node B gets a deliberately empty store: if its cache ends up holding
	// the ban, it can only have come off the bus.
	emptyStore := &countingStore{Store: memory.New()}
	nodeB, _ := s.newNode("b", emptyStore)

	view, err := nodeB.CheckActive(ctx, "p1")
	s.Require().NoError(err)
	s.True(view.Empty())

	_, err = nodeA.Issue(ctx, ban("p1"))
	s.Require().NoError(err)

	view, err = nodeB.CheckActive(ctx, "p1")
	s.Require().NoError(err)
	s.Require().NotNil(view.Ban("", time.Now()))
	s.Equal(int64(1), emptyStore.gets.Load())
}

func (s *ServiceSuite) TestLiftPropagatesAcrossNodes() {
	ctx := context.Background()
	shared := memory.New()
	nodeA, _ := s.newNode("a", shared)
	nodeB, _ := s.newNode("b", shared)

	_, err := nodeA.Issue(ctx, ban("p1"))
	s.Require().NoError(err)

	view, err := nodeB.CheckActive(ctx, "p1")
	s.Require().NoError(err)
	s.Require().NotNil(view.Ban("", time.Now()))

	s.Require().NoError(nodeA.Lift(ctx, "p1", models.KindBan, domain.Console))

	view, err = nodeB.CheckActive(ctx, "p1")
	s.Require().NoError(err)
	s.Nil(view.Ban("", time.Now()), "lift must clear the remote cache")
}

func (s *ServiceSuite) TestScopeResolutionAcrossServers() {
	ctx := context.Background()
	svc, _ := s.newNode("a", memory.New())

	p := ban("p1")
	p.Kind = models.KindMute
	p.Scope = models.ScopeServer
	p.ServerID = "lobby"
	_, err := svc.Issue(ctx, p)
	s.Require().NoError(err)

	view, err := svc.CheckActive(ctx, "p1")
	s.Require().NoError(err)
	now := time.Now()
	s.NotNil(view.Mute("lobby", now))
	s.Nil(view.Mute("survival", now))
}

func (s *ServiceSuite) TestStaleEventsAreRejected() {
	svc, _ := s.newNode("a", memory.New())

	rec := ban("p1")
	rec.Revision = 5
	svc.handleEvent(models.InvalidationEvent{
		Subject: "p1", Kind: models.KindBan, Revision: 5,
		Op: models.OpUpsert, Origin: "b", Record: rec,
	})

	view, err := svc.CheckActive(context.Background(), "p1")
	s.Require().NoError(err)
	// The cache was empty when the event arrived, so the read filled from
	// the (empty) store; prime it again with the revision-5 record.
	s.True(view.Empty())
	svc.handleEvent(models.InvalidationEvent{
		Subject: "p1", Kind: models.KindBan, Revision: 5,
		Op: models.OpUpsert, Origin: "b", Record: rec,
	})

	// A delayed lift of revision 3 must not un-ban the subject.
	svc.handleEvent(models.InvalidationEvent{
		Subject: "p1", Kind: models.KindBan, Revision: 3,
		Op: models.OpLift, Origin: "b",
	})
	view, err = svc.CheckActive(context.Background(), "p1")
	s.Require().NoError(err)
	s.NotNil(view.Ban("", time.Now()), "stale lift must be dropped")

	// An equal-revision replay is a no-op too.
	svc.handleEvent(models.InvalidationEvent{
		Subject: "p1", Kind: models.KindBan, Revision: 5,
		Op: models.OpLift, Origin: "b",
	})
	view, err = svc.CheckActive(context.Background(), "p1")
	s.Require().NoError(err)
	s.NotNil(view.Ban("", time.Now()))

	// The genuinely newer lift lands.
	svc.handleEvent(models.InvalidationEvent{
		Subject: "p1", Kind: models.KindBan, Revision: 6,
		Op: models.OpLift, Origin: "b",
	})
	view, err = svc.CheckActive(context.Background(), "p1")
	s.Require().NoError(err)
	s.Nil(view.Ban("", time.Now()))
}

func (s *ServiceSuite) TestLiftIsIdempotent() {
	ctrl := gomock.NewController(s.T())
	st := mocks.NewMockStore(ctrl)
	svc, _ := s.newNode("a", st)

	var notified atomic.Int64
	svc.Subscribe(func(models.InvalidationEvent) { notified.Add(1) })

	s.Run("not found counts as success", func() {
		st.EXPECT().Lift(gomock.Any(), domain.SubjectKey("ghost"), models.KindBan, gomock.Any(), gomock.Any()).
			Return(nil, sentinel.ErrNotFound)
		s.NoError(svc.Lift(context.Background(), "ghost", models.KindBan, domain.Console))
	})

	s.Run("losing the lift race counts as success", func() {
		st.EXPECT().Lift(gomock.Any(), domain.SubjectKey("p1"), models.KindBan, gomock.Any(), gomock.Any()).
			Return(nil, sentinel.ErrConflict)
		s.NoError(svc.Lift(context.Background(), "p1", models.KindBan, domain.Console))
	})

	s.Run("store outage is surfaced", func() {
		st.EXPECT().Lift(gomock.Any(), domain.SubjectKey("p1"), models.KindBan, gomock.Any(), gomock.Any()).
			Return(nil, sentinel.ErrStoreUnavailable)
		err := svc.Lift(context.Background(), "p1", models.KindBan, domain.Console)
		s.ErrorIs(err, sentinel.ErrStoreUnavailable)
	})

	s.Zero(notified.Load(), "no-op lifts must not broadcast")
}

func (s *ServiceSuite) TestConcurrentMissesShareOneFetch() {
	ctrl := gomock.NewController(s.T())
	st := mocks.NewMockStore(ctrl)
	svc, _ := s.newNode("a", st)

	records := []*models.Punishment{ban("p1")}
	records[0].Revision = 1
	st.EXPECT().GetActive(gomock.Any(), domain.SubjectKey("p1")).
		DoAndReturn(func(context.Context, domain.SubjectKey) ([]*models.Punishment, error) {
			time.Sleep(30 * time.Millisecond)
			return records, nil
		}).Times(1)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			view, err := svc.CheckActive(context.Background(), "p1")
			s.NoError(err)
			s.NotNil(view.Ban("", time.Now()))
		}()
	}
	wg.Wait()
}

func (s *ServiceSuite) TestStoreUnavailableIsNotCached() {
	ctrl := gomock.NewController(s.T())
	st := mocks.NewMockStore(ctrl)
	svc, _ := s.newNode("a", st)

	st.EXPECT().GetActive(gomock.Any(), domain.SubjectKey("p1")).
		Return(nil, sentinel.ErrStoreUnavailable).Times(2)

	_, err := svc.CheckActive(context.Background(), "p1")
	s.ErrorIs(err, sentinel.ErrStoreUnavailable)

	// A failed fetch leaves no negative entry behind; the next read tries
	// the store again.
	_, err = svc.CheckActive(context.Background(), "p1")
	s.ErrorIs(err, sentinel.ErrStoreUnavailable)
}

func (s *ServiceSuite) TestDegradedTTLWhileBusDown() {
	ctx := context.Background()
	st := &countingStore{Store: memory.New()}
	svc, b := s.newNode("a", st)

	_, err := svc.Issue(ctx, ban("p1"))
	s.Require().NoError(err)
	_, err = svc.CheckActive(ctx, "p1")
	s.Require().NoError(err)
	fetched := st.gets.Load()

	// Entries older than the degraded TTL stop being served once the bus
	// reports disconnected.
	time.Sleep(20 * time.Millisecond)
	b.SetConnected(false)
	_, err = svc.CheckActive(ctx, "p1")
	s.Require().NoError(err)
	s.Equal(fetched+1, st.gets.Load(), "degraded read must go to the store")

	// Reconnected, the regular TTL applies again and the refill serves hits.
	b.SetConnected(true)
	_, err = svc.CheckActive(ctx, "p1")
	s.Require().NoError(err)
	s.Equal(fetched+1, st.gets.Load())
}

func (s *ServiceSuite) TestIssueSurvivesPublishFailure() {
	ctx := context.Background()
	st := memory.New()
	svc, b := s.newNode("a", st)

	b.SetConnected(false)
	stored, err := svc.Issue(ctx, ban("p1"))
	s.Require().NoError(err, "a committed write must not fail on publish")
	s.NotZero(stored.Revision)

	// The local cache still learned about the write.
	view, err := svc.CheckActive(ctx, "p1")
	s.Require().NoError(err)
	s.NotNil(view.Ban("", time.Now()))
}

func (s *ServiceSuite) TestKickIsBroadcastOnly() {
	ctrl := gomock.NewController(s.T())
	st := mocks.NewMockStore(ctrl) // no expectations: any store call fails the test
	nodeA, _ := s.newNode("a", st)
	nodeB, _ := s.newNode("b", st)

	var got atomic.Pointer[models.InvalidationEvent]
	nodeB.Subscribe(func(ev models.InvalidationEvent) { got.Store(&ev) })

	kick := ban("p1")
	kick.Kind = models.KindKick
	_, err := nodeA.Issue(context.Background(), kick)
	s.Require().NoError(err)

	ev := got.Load()
	s.Require().NotNil(ev, "remote node must see the kick")
	s.Equal(models.KindKick, ev.Kind)
}

func (s *ServiceSuite) TestIssueFillsDefaults() {
	svc, _ := s.newNode("a", memory.New())

	p := ban("p1")
	p.Reason = ""
	p.IssuedAt = time.Time{}
	stored, err := svc.Issue(context.Background(), p)
	s.Require().NoError(err)
	s.Equal(models.DefaultReason(models.KindBan), stored.Reason)
	s.False(stored.IssuedAt.IsZero())

	bad := ban("p2")
	bad.Kind = "frobnicate"
	_, err = svc.Issue(context.Background(), bad)
	s.Error(err)
}

func (s *ServiceSuite) TestSweepExpiresAcrossNodes() {
	ctx := context.Background()
	shared := memory.New()
	nodeA, _ := s.newNode("a", shared)
	nodeB, _ := s.newNode("b", shared)

	p := ban("p1")
	exp := time.Now().Add(5 * time.Millisecond)
	p.ExpiresAt = &exp
	_, err := nodeA.Issue(ctx, p)
	s.Require().NoError(err)

	// Node B caches the view while the ban is still live.
	_, err = nodeB.CheckActive(ctx, "p1")
	s.Require().NoError(err)

	var expireSeen atomic.Int64
	nodeB.Subscribe(func(ev models.InvalidationEvent) {
		if ev.Op == models.OpExpire {
			expireSeen.Add(1)
		}
	})

	time.Sleep(10 * time.Millisecond)
	nodeA.sweepOnce(ctx)

	s.Equal(int64(1), expireSeen.Load())
	view, err := nodeB.CheckActive(ctx, "p1")
	s.Require().NoError(err)
	s.Nil(view.Ban("", time.Now()))

	// Swept records are not found again.
	nodeA.sweepOnce(ctx)
	s.Equal(int64(1), expireSeen.Load())
}

func (s *ServiceSuite) TestIssueNotifiesSubscribersOnce() {
	ctx := context.Background()
	svc, _ := s.newNode("a", memory.New())

	var notified atomic.Int64
	svc.Subscribe(func(models.InvalidationEvent) { notified.Add(1) })

	// The subject is not cached, so the bus echo cannot be caught by the
	// revision guard; it has to be dropped by origin.
	_, err := svc.Issue(ctx, ban("p1"))
	s.Require().NoError(err)
	s.Equal(int64(1), notified.Load(), "the origin's own bus echo must not replay")

	kick := ban("p2")
	kick.Kind = models.KindKick
	_, err = svc.Issue(ctx, kick)
	s.Require().NoError(err)
	s.Equal(int64(2), notified.Load(), "kicks carry no revision and rely on the origin drop")
}

func (s *ServiceSuite) TestConcurrentEventApplicationKeepsNewestRevision() {
	ctx := context.Background()
	svc, _ := s.newNode("a", memory.New())

	// Prime an entry so events apply to an existing view.
	_, err := svc.CheckActive(ctx, "p1")
	s.Require().NoError(err)

	// Thirty-one upserts race one lift that carries the newest revision.
	// Whatever the interleaving, the lift must win: a lower-revision event
	// may never overwrite a higher-revision entry.
	const newest = int64(32)
	var wg sync.WaitGroup
	for rev := int64(1); rev <= newest; rev++ {
		wg.Add(1)
		go func(rev int64) {
			defer wg.Done()
			ev := models.InvalidationEvent{
				Subject: "p1", Kind: models.KindBan, Revision: rev,
				Op: models.OpUpsert, Origin: "b",
			}
			if rev == newest {
				ev.Op = models.OpLift
			} else {
				rec := ban("p1")
				rec.Revision = rev
				ev.Record = rec
			}
			svc.handleEvent(ev)
		}(rev)
	}
	wg.Wait()

	entry, ok := svc.cache.Get("p1")
	s.Require().True(ok)
	s.Equal(newest, entry.Revision)

	view, err := svc.CheckActive(ctx, "p1")
	s.Require().NoError(err)
	s.Nil(view.Ban("", time.Now()), "the lift carries the newest revision and must win")
}

func (s *ServiceSuite) TestSubscribersRunAfterCacheUpdate() {
	ctx := context.Background()
	shared := memory.New()
	nodeA, _ := s.newNode("a", shared)
	nodeB, _ := s.newNode("b", shared)

	// Prime node B so the event path updates an existing entry.
	_, err := nodeB.CheckActive(ctx, "p1")
	s.Require().NoError(err)

	done := make(chan struct{})
	nodeB.Subscribe(func(ev models.InvalidationEvent) {
		// By the time a subscriber runs, the cache already reflects the event.
		view, err := nodeB.CheckActive(ctx, ev.Subject)
		s.NoError(err)
		s.NotNil(view.Ban("", time.Now()))
		close(done)
	})

	_, err = nodeA.Issue(ctx, ban("p1"))
	s.Require().NoError(err)
	<-done
}
