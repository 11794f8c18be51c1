/*
Package auth authenticates admin API requests.

Admin keys are configured as bcrypt hashes, never in plaintext:

	admin:
	  header: X-Admin-Key
	  api_keys:
	    - name: ops
	      key_hash: $2a$10$...
	      enabled: true

Generate a key and its hash with the CLI:

	chatello admin new-key --name ops

# Middleware

Wrap admin routes with Middleware. Requests without a valid key get a
JSON 401 and never reach the handler:

	validator := auth.NewValidator(cfg.Admin)
	r.With(auth.Middleware(validator, cfg.Admin.Header, logger)).Route("/api/admin", ...)

Handlers can read the authenticated key's name for audit logging:

	if key, ok := auth.KeyFromContext(r.Context()); ok {
		logger.Info("license status changed", "admin", key.Name)
	}

# Performance

bcrypt comparison is deliberately slow. Keys that have verified once are
remembered by their SHA-256 digest, so repeat requests skip bcrypt. A
failed key is checked against every enabled hash on each attempt.
*/
package auth
