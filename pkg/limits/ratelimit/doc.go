// Package ratelimit tracks in-flight requests per license.
//
// Rate and quota limits are evaluated against the usage ledger, which only
// learns about a request once the provider has answered. Two requests that
// are admitted concurrently would both see the same ledger counts. Within a
// process, Reservations closes that gap: admission for a key is serialized
// by Lock, and every admitted request holds a Slot until its usage record
// is written. The in-flight count is added to the ledger counts while the
// lock is held.
//
//	g := reservations.Lock(licenseID)
//	inflight := g.InFlight()
//	// ... read ledger counts, evaluate with inflight added ...
//	slot := g.Reserve()
//	g.Unlock()
//	defer slot.Release()
//
// Requests admitted by other processes sharing the same store are not seen.
//
// # Thread Safety
//
// Reservations is safe for concurrent use. Entries for keys with no lock
// holder and no outstanding slot are dropped.
package ratelimit
