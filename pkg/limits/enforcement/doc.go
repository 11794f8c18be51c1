// Package enforcement turns a limit evaluation into the decision returned to
// the caller.
//
// # Overview
//
// A blocked request is answered with one of two statuses:
//
//   - 429 Too Many Requests when only quota or rate dimensions block; the
//     caller should wait for a window to reset.
//   - 402 Payment Required when the monthly budget is among the blocking
//     dimensions; the caller has to upgrade or wait for the next month.
//
// Requests that pass but have used 80% or more of their monthly quota or
// budget are allowed with a warning.
//
// # Usage
//
//	enforcer := enforcement.NewEnforcer()
//	result := enforcer.Enforce(evaluation, stats)
//	if !result.Allowed {
//	    // respond with result.Status and result.Reason
//	}
//
// # Thread Safety
//
// The Enforcer holds no mutable state and can be used concurrently from
// multiple goroutines.
package enforcement
