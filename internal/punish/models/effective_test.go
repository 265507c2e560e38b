package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netban/pkg/domain"
)

func activeRecord(kind Kind, scope Scope, serverID string, rev int64) *Punishment {
	return &Punishment{
		Subject:  "p1",
		Kind:     kind,
		Scope:    scope,
		ServerID: serverID,
		Reason:   "test",
		IssuedBy: domain.Console,
		IssuedAt: time.Now().Add(-time.Minute),
		Revision: rev,
	}
}

func TestEffectiveFor(t *testing.T) {
	now := time.Now()

	t.Run("server scoped record is invisible elsewhere", func(t *testing.T) {
		e := &Effective{Subject: "p1", Records: []*Punishment{
			activeRecord(KindMute, ScopeServer, "lobby", 1),
		}}
		assert.Nil(t, e.Mute("survival", now))
		assert.NotNil(t, e.Mute("lobby", now))
		// A proxy-level check (no server) does not match server scope.
		assert.Nil(t, e.Mute("", now))
	})

	t.Run("global outranks server scope", func(t *testing.T) {
		e := &Effective{Subject: "p1", Records: []*Punishment{
			activeRecord(KindBan, ScopeServer, "lobby", 2),
			activeRecord(KindBan, ScopeGlobal, "", 1),
		}}
		got := e.Ban("lobby", now)
		require.NotNil(t, got)
		assert.Equal(t, ScopeGlobal, got.Scope)
	})

	t.Run("same scope ties break toward newer revision", func(t *testing.T) {
		e := &Effective{Subject: "p1", Records: []*Punishment{
			activeRecord(KindBan, ScopeGlobal, "", 1),
			activeRecord(KindBan, ScopeGlobal, "", 7),
		}}
		got := e.Ban("", now)
		require.NotNil(t, got)
		assert.Equal(t, int64(7), got.Revision)
	})

	t.Run("lifted and expired records never match", func(t *testing.T) {
		lifted := activeRecord(KindBan, ScopeGlobal, "", 1)
		at := now.Add(-time.Second)
		lifted.LiftedAt = &at

		expired := activeRecord(KindBan, ScopeGlobal, "", 2)
		exp := now.Add(-time.Second)
		expired.ExpiresAt = &exp

		e := &Effective{Subject: "p1", Records: []*Punishment{lifted, expired}}
		assert.Nil(t, e.Ban("", now))
	})
}

func TestEffectiveMaxRevision(t *testing.T) {
	var empty *Effective
	assert.True(t, empty.Empty())

	e := &Effective{Subject: "p1", Records: []*Punishment{
		activeRecord(KindBan, ScopeGlobal, "", 3),
		activeRecord(KindMute, ScopeGlobal, "", 9),
	}}
	assert.Equal(t, int64(9), e.MaxRevision())
	assert.False(t, e.Empty())
}

func TestEffectivePrune(t *testing.T) {
	now := time.Now()
	expired := activeRecord(KindBan, ScopeGlobal, "", 1)
	exp := now.Add(-time.Second)
	expired.ExpiresAt = &exp

	e := &Effective{Subject: "p1", Records: []*Punishment{
		expired,
		activeRecord(KindMute, ScopeGlobal, "", 2),
	}}
	pruned := e.Prune(now)
	require.Len(t, pruned.Records, 1)
	assert.Equal(t, KindMute, pruned.Records[0].Kind)
}
