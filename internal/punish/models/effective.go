package models

import (
	"time"

	"netban/pkg/domain"
)

// Effective is the resolved punishment view for one subject: every record
// that was active at resolution time. It is what the cache stores, so
// resolution against a particular server or kind happens on read without
// another store query.
type Effective struct {
	Subject domain.SubjectKey `json:"subject"`
	Records []*Punishment     `json:"records,omitempty"`
}

// scopeRank orders scopes for precedence when several records of the same
// kind gate the same action. Lower is more restrictive: a global ban beats a
// server-scoped one.
var scopeRank = map[Scope]int{
	ScopeGlobal: 0,
	ScopeProxy:  1,
	ScopeServer: 2,
}

// MaxRevision is the revision the cache entry reflects. Zero when no records
// exist, which still orders correctly against any real revision.
func (e *Effective) MaxRevision() int64 {
	var max int64
	for _, r := range e.Records {
		if r.Revision > max {
			max = r.Revision
		}
	}
	return max
}

// Empty reports whether the subject had no active punishments.
func (e *Effective) Empty() bool {
	return e == nil || len(e.Records) == 0
}

// For returns the most restrictive record of the given kind that gates an
// action on serverID (empty for a proxy-level check), or nil. Precedence:
// global, then proxy, then matching server scope; ties break toward the
// newer revision.
func (e *Effective) For(kind Kind, serverID string, now time.Time) *Punishment {
	if e == nil {
		return nil
	}
	var best *Punishment
	for _, r := range e.Records {
		if r.Kind != kind || !r.Active(now) || !r.AppliesTo(serverID) {
			continue
		}
		if best == nil {
			best = r
			continue
		}
		if scopeRank[r.Scope] < scopeRank[best.Scope] ||
			(scopeRank[r.Scope] == scopeRank[best.Scope] && r.Revision > best.Revision) {
			best = r
		}
	}
	return best
}

// Ban is shorthand for the record that blocks a join.
func (e *Effective) Ban(serverID string, now time.Time) *Punishment {
	return e.For(KindBan, serverID, now)
}

// Mute is shorthand for the record that blocks chat.
func (e *Effective) Mute(serverID string, now time.Time) *Punishment {
	return e.For(KindMute, serverID, now)
}

// Prune drops records that are no longer active. Used when serving a cached
// view so natural expiry is honored even before the sweep notices.
func (e *Effective) Prune(now time.Time) *Effective {
	if e == nil {
		return nil
	}
	kept := make([]*Punishment, 0, len(e.Records))
	for _, r := range e.Records {
		if r.Active(now) {
			kept = append(kept, r)
		}
	}
	return &Effective{Subject: e.Subject, Records: kept}
}
