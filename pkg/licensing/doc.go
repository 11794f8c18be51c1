// Package licensing models plans, customers, licenses and usage records, and
// implements the license directory, the plan registry, and seat-limited
// license allocation.
//
// # Components
//
//   - Directory resolves a license key to an active license. Expiration is
//     detected lazily at read time: the pure CheckLicense decision reports
//     that a license must be expired and the directory then persists the
//     status flip as a separate, idempotent side effect.
//   - Registry serves plans through a short-lived read-through cache.
//   - Allocator issues new license keys and, for plans with a seat limit,
//     relies on the store's atomic conditional insert so a capped plan can
//     never be oversold.
//
// # Errors
//
// Lookups fail with the sentinel errors in errors.go. Callers distinguish
// them with errors.Is; inactive licenses additionally carry their status in
// a *StatusError.
package licensing
