// Package gate implements the request gate in front of metered AI calls.
//
// Every chat request walks the same states:
//
//	received -> license_checked -> limits_checked -> provider_called -> logged -> responded
//
// and stops at the first state that rejects it. Rejections and failures are
// returned as *Error values carrying the HTTP status to answer with, so the
// HTTP layer never inspects lower-level errors.
//
//   - no key or an unusable license: 401
//   - plan without ai_included: 403
//   - limits: 429, or 402 when the monthly budget is among the blocking factors
//   - unknown provider: 400; supported but unconfigured provider: 503
//   - provider timeout, 5xx or network error: 502
//
// Admission reserves an in-flight slot for the license so concurrent
// requests in the same process see each other. The slot is released only
// after the usage record has been appended, so for a brief moment a request
// is counted twice, never zero times. Requests served by other processes are
// not reserved; the resulting overshoot is bounded by the concurrency of the
// fleet.
//
// The provider is called exactly once per admitted request, bounded by
// gate.provider_timeout. Only successful calls are recorded in the ledger;
// tokens come from the provider's usage block when present and from the
// estimator otherwise.
package gate
