// Package limits evaluates plan limits against the usage ledger.
//
// # Overview
//
// A plan can impose four limits, each disabled when zero:
//
//   - monthly_requests: requests per UTC calendar month
//   - requests_per_minute: requests in the trailing minute
//   - requests_per_hour: requests in the trailing hour
//   - monthly_budget: spend per UTC calendar month
//
// Every predicate passes while the current value is strictly below the
// limit, so a limit of N admits exactly N requests. Sliding windows include
// both endpoints.
//
// # Architecture
//
// The package is organized into sub-packages:
//
//   - window: month bounds, sliding windows, reset times
//   - budget: cost, rounding, and percentages
//   - enforcement: mapping evaluations to 429/402 decisions
//   - ratelimit: per-license in-flight reservations
//
// The Aggregator reads the ledger, Evaluate applies the predicates, and the
// Manager combines both with reservations.
//
// # Usage
//
//	manager := limits.NewManager(store, collector, logger)
//
//	stats, ev, err := manager.Check(ctx, license.ID, plan, time.Now())
//	if err != nil {
//	    return err
//	}
//	if !ev.Allowed() {
//	    return fmt.Errorf("blocked by %v", ev.Blocking)
//	}
//
// # Thread Safety
//
// All types are safe for concurrent use. Manager serializes admission per
// license; reads for different licenses proceed in parallel.
package limits
