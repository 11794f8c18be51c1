// Package handlers implements the HTTP endpoints of the gateway.
//
// Customer endpoints:
//
//	POST /api/validate            ValidateHandler
//	POST /api/chat                ChatHandler
//	GET  /api/usage/current       UsageHandlers.Current
//	GET  /api/usage/history       UsageHandlers.History
//	GET  /api/limits/check        UsageHandlers.LimitsCheck
//	GET  /api/usage/{license_key} UsageHandlers.Legacy
//
// Admin endpoints, behind auth.Middleware:
//
//	POST  /api/admin/customers              AdminHandlers.CreateCustomer
//	POST  /api/admin/licenses               AdminHandlers.CreateLicense
//	PATCH /api/admin/licenses/{id}/status   AdminHandlers.UpdateLicenseStatus
//	GET   /api/admin/plans                  AdminHandlers.ListPlans
//	GET   /api/admin/analytics              AdminHandlers.Analytics
//	GET   /admin/health                     AdminHandlers.Health
//
// Handlers depend on small interfaces rather than concrete services, so
// tests can drive them with fakes. Routing lives in package server.
//
// # Errors
//
// Every failure is a JSON object with an error field:
//
//	{"error": "License key required"}
//
// Limit rejections add the blocking dimensions and the status of every
// limit:
//
//	{
//	  "error": "Rate limit exceeded",
//	  "blocking_factors": ["requests_per_minute"],
//	  "limits_status": {"requests_per_minute": {"passed": false, "current": 10, "limit": 10, "percentage": 100}}
//	}
//
// Unexpected failures are logged and answered with a generic 500 body.
package handlers
