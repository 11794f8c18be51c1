package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Custom attribute keys use the "chatello.*" namespace.
const (
	AttrLicense  = "chatello.license"
	AttrPlan     = "chatello.plan"
	AttrProvider = "chatello.provider"
	AttrModel    = "chatello.model"
	AttrState    = "chatello.gate.state"
	AttrAction   = "chatello.gate.action"
	AttrBlocking = "chatello.limit.blocking"

	AttrTokensTotal = "chatello.tokens.total"
	AttrEstimated   = "chatello.tokens.estimated"
	AttrCost        = "chatello.cost"

	AttrErrorType = "chatello.error.type"
)

// SetLicenseAttributes records the masked license key and plan on a span.
func SetLicenseAttributes(span trace.Span, maskedKey, plan string) {
	span.SetAttributes(
		attribute.String(AttrLicense, maskedKey),
		attribute.String(AttrPlan, plan),
	)
}

// SetProviderAttributes sets provider-related attributes on a span.
func SetProviderAttributes(span trace.Span, provider, model string) {
	attrs := []attribute.KeyValue{attribute.String(AttrProvider, provider)}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrModel, model))
	}
	span.SetAttributes(attrs...)
}

// SetUsageAttributes records the tokens charged for a call and whether they
// came from the estimator.
func SetUsageAttributes(span trace.Span, tokens int64, estimated bool, cost float64) {
	span.SetAttributes(
		attribute.Int64(AttrTokensTotal, tokens),
		attribute.Bool(AttrEstimated, estimated),
		attribute.Float64(AttrCost, cost),
	)
}

// SetDecisionAttributes records the gate outcome.
func SetDecisionAttributes(span trace.Span, state, action string, blocking []string) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrState, state),
		attribute.String(AttrAction, action),
	}
	if len(blocking) > 0 {
		attrs = append(attrs, attribute.StringSlice(AttrBlocking, blocking))
	}
	span.SetAttributes(attrs...)
}

// SetErrorAttributes records err with a classification label.
func SetErrorAttributes(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}
	span.SetAttributes(attribute.String(AttrErrorType, errorType))
	SetError(span, err)
}
