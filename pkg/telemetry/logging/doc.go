// Package logging builds the process-wide structured logger.
//
// The logger is a plain *slog.Logger whose handler adds request-scoped
// fields (request ID, license ID, provider) from the context passed to the
// *Context logging methods and masks license keys before they are written.
//
// Basic usage:
//
//	logger, err := logging.New(cfg.Telemetry.Logging, os.Stdout)
//	slog.SetDefault(logger)
//
//	ctx = logging.WithRequestID(ctx, id)
//	logger.InfoContext(ctx, "license validated", "license_key", key)
package logging
