package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, the cache, and the bus
// return these (optionally wrapped) so the service and adapters can branch
// with errors.Is without knowing which backend produced them.
//
// These represent factual states about resources, not validation failures:
//   - ErrNotFound: no active record for the subject (not an error on reads;
//     represented as an empty result at the service boundary)
//   - ErrConflict: optimistic-concurrency loss on a conditional store write
//   - ErrStoreUnavailable: the durable store could not be reached; must never
//     collapse into a "not punished" answer
//   - ErrBusDisconnected: the invalidation transport is down; reads still
//     work, freshness guarantees degrade
//   - ErrExpired: the record exists but its expiry has passed
//   - ErrInvalidState: entity in the wrong state for the requested transition
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrBusDisconnected  = errors.New("bus disconnected")
	ErrExpired          = errors.New("expired")
	ErrInvalidState     = errors.New("invalid state")
)
