// Package proxy provides the HTTP surface of the gateway: JSON response
// helpers, request decoding, and error rendering shared by the handlers and
// middleware subpackages.
//
// # Error Bodies
//
// Every failure is answered with a JSON object carrying at least "error":
//
//	{"error": "License key required"}
//
// Limit rejections extend it with the failing dimensions and the status of
// every limit so clients can show why a request was refused:
//
//	{
//	  "error": "Monthly usage limit exceeded",
//	  "reason": "quota_exceeded",
//	  "blocking_factors": ["monthly_requests"],
//	  "limits_status": {"monthly_requests": {"passed": false, "current": 1000, "limit": 1000, "percentage": 100}}
//	}
//
// Internal failures are logged and answered with a generic 500 body; causes
// are never sent to clients.
//
// # Request Decoding
//
// DecodeAndValidate reads a size-limited body and runs its validate tags
// (github.com/go-playground/validator/v10). An empty or malformed body is
// reported as "Missing JSON data".
//
// # Client Addresses
//
// ClientIP honours X-Forwarded-For and X-Real-IP so usage records carry the
// caller's address when the gateway runs behind a reverse proxy.
package proxy
