// Package storage persists plans, customers, licenses, and the usage ledger.
//
// # Overview
//
// Store is the single persistence interface used by the gateway. It embeds
// the narrow licensing store interfaces and the append-only Ledger of usage
// records. Implementations:
//
//   - Memory: in-process maps, for tests and ephemeral deployments
//   - SQLite: file-based persistence (modernc.org/sqlite, no cgo)
//   - MongoDB: see package storage/mongo
//
// # Time ranges
//
// Ledger queries select records with From <= CreatedAt <= To. A zero From or
// To leaves that side open. Timestamps are stored in UTC with millisecond
// precision.
//
// # Seat-limited plans
//
// CreateLicenseWithinSeatLimit inserts a license only while the plan has
// fewer than limit non-cancelled licenses, as one atomic step. Concurrent
// callers never oversell a plan.
//
// # Thread Safety
//
// All stores are safe for concurrent use.
package storage
