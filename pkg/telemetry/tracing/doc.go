// Package tracing provides OpenTelemetry distributed tracing for the gateway.
//
// Spans are exported over OTLP gRPC. When tracing is disabled a noop tracer
// is used and span creation costs next to nothing; a nil *Tracer is also
// safe to call.
//
// # Sampling
//
// Root spans are sampled by trace ID ratio (telemetry.tracing.sample_ratio).
// Child spans follow the parent's decision, so a trace is either recorded
// whole or not at all.
//
// # Propagation
//
// HTTPMiddleware extracts W3C traceparent/tracestate headers, opens a server
// span per request and returns the trace ID in X-Trace-ID.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "gate.chat")
//	defer span.End()
//	tracing.SetProviderAttributes(span, "openai", "gpt-4o-mini")
package tracing
