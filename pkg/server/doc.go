// Package server provides the HTTP server of the Chatello gateway.
//
// The server routes every public, licensed, and admin endpoint with chi and
// owns the listener lifecycle: start, graceful shutdown on context
// cancellation or SIGINT/SIGTERM, and an explicit Stop.
//
// # Middleware
//
// Requests pass through, outermost first:
//
//	Recovery -> RequestID -> Logging (+ HTTP metrics) -> Tracing -> CORS -> Timeout
//
// Licensed usage endpoints additionally run behind
// middleware.LicenseMiddleware and admin endpoints behind auth.Middleware.
//
// # Basic Usage
//
//	srv, err := server.New(cfg, server.Dependencies{
//	    Store:     store,
//	    Gate:      g,
//	    Limits:    lm,
//	    Directory: directory,
//	    Registry:  registry,
//	    Allocator: allocator,
//	    Providers: providers,
//	    Admin:     auth.NewValidator(cfg.Admin),
//	    Metrics:   collector,
//	    Tracer:    tracer,
//	    Logger:    logger,
//	    Version:   version,
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx)
//
// Start blocks until shutdown. In-flight requests are drained for at most
// server.shutdown_timeout.
package server
