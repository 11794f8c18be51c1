// Package analytics computes the daily business snapshot of the gateway:
// customer and license counts, recurring and one-time revenue by plan, and
// the day's metered usage.
//
// A Job builds one DailySnapshot per UTC day and upserts it into a
// SnapshotStore, pruning snapshots older than the retention window. The
// Scheduler runs the job on a cron expression (github.com/robfig/cron/v3),
// by default every night at 02:00 for the previous day.
//
// Snapshots are kept apart from the primary store in their own SQLite file
// (github.com/mattn/go-sqlite3) so reporting queries never contend with the
// usage ledger.
//
// # Revenue
//
// Only active licenses count. A plan's price counts towards MRR unless the
// plan is a lifetime plan, in which case it counts as one-time revenue. A
// customer is paying when they hold at least one active license on a plan
// with a price above zero.
package analytics
