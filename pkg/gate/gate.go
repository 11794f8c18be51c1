package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chatello/gateway/pkg/config"
	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/limits"
	"chatello/gateway/pkg/limits/enforcement"
	"chatello/gateway/pkg/limits/ratelimit"
	"chatello/gateway/pkg/processing/tokens"
	"chatello/gateway/pkg/providerfactory"
	"chatello/gateway/pkg/providers"
	"chatello/gateway/pkg/telemetry/logging"
	"chatello/gateway/pkg/telemetry/metrics"
	"chatello/gateway/pkg/telemetry/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// PlanSource resolves a license's current plan.
type PlanSource interface {
	GetPlan(ctx context.Context, id string) (*licensing.Plan, error)
}

// ProviderSource resolves provider names to clients. It returns errors
// wrapping providerfactory.ErrUnknownProvider or
// providerfactory.ErrNotConfigured.
type ProviderSource interface {
	Get(name string) (providers.Provider, error)
}

// Dependencies are the collaborators of a Gate. Tracer, Metrics, Logger,
// and Clock are optional.
type Dependencies struct {
	Directory *licensing.Directory
	Plans     PlanSource
	Limits    *limits.Manager
	Providers ProviderSource
	Estimator tokens.Estimator

	Tracer  *tracing.Tracer
	Metrics *metrics.Collector
	Logger  *slog.Logger
	Clock   func() time.Time
}

// Gate admits metered requests and proxies chat calls. It is safe for
// concurrent use.
type Gate struct {
	cfg       config.GateConfig
	directory *licensing.Directory
	plans     PlanSource
	limits    *limits.Manager
	enforcer  *enforcement.Enforcer
	providers ProviderSource
	estimator tokens.Estimator

	tracer  *tracing.Tracer
	metrics *metrics.Collector
	logger  *slog.Logger
	clock   func() time.Time
}

// New creates a gate. Zero timeout and default fields in cfg take the
// package config defaults.
func New(cfg config.GateConfig, deps Dependencies) *Gate {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = config.DefaultProviderTimeout
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = config.DefaultProvider
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = config.DefaultMaxTokens
	}
	if cfg.DefaultTemperature == 0 {
		cfg.DefaultTemperature = config.DefaultTemperature
	}

	g := &Gate{
		cfg:       cfg,
		directory: deps.Directory,
		plans:     deps.Plans,
		limits:    deps.Limits,
		enforcer:  enforcement.NewEnforcer(),
		providers: deps.Providers,
		estimator: deps.Estimator,
		tracer:    deps.Tracer,
		metrics:   deps.Metrics,
		logger:    logging.OrDefault(deps.Logger),
		clock:     deps.Clock,
	}
	if g.estimator == nil {
		g.estimator = tokens.NewSimpleEstimator(cfg.Estimator)
	}
	if g.clock == nil {
		g.clock = time.Now
	}
	return g
}

// Now returns the gate's clock reading in UTC.
func (g *Gate) Now() time.Time {
	return g.clock().UTC()
}

// Authenticate resolves key to an active license and its current plan.
func (g *Gate) Authenticate(ctx context.Context, key string, now time.Time) (*licensing.License, *licensing.Plan, error) {
	if key == "" {
		return nil, nil, &Error{
			Kind:    KindUnauthenticated,
			Status:  http.StatusUnauthorized,
			Message: MessageLicenseRequired,
			State:   StateReceived,
		}
	}

	ctx, span := g.tracer.Start(ctx, "gate.license")
	defer span.End()

	lic, err := g.directory.FindActiveLicense(ctx, key, now)
	if err != nil {
		gerr := licenseError(err)
		if !gerr.Expected() {
			tracing.SetError(span, err)
		}
		return nil, nil, gerr
	}

	plan, err := g.plans.GetPlan(ctx, lic.PlanID)
	if err != nil {
		tracing.SetError(span, err)
		return nil, nil, internalError(StateReceived, fmt.Errorf("failed to load plan %s: %w", lic.PlanID, err))
	}

	tracing.SetLicenseAttributes(span, logging.MaskLicenseKey(lic.Key), plan.Name)
	return lic, plan, nil
}

func licenseError(err error) *Error {
	e := &Error{Status: http.StatusUnauthorized, State: StateReceived}
	switch {
	case errors.Is(err, licensing.ErrExpiredLicense):
		e.Kind, e.Message = KindExpiredLicense, MessageExpiredLicense
	case errors.Is(err, licensing.ErrInactiveLicense):
		e.Kind, e.Message = KindInactiveLicense, MessageInvalidLicense
	case errors.Is(err, licensing.ErrInvalidLicense):
		e.Kind, e.Message = KindInvalidLicense, MessageInvalidLicense
	default:
		e = internalError(StateReceived, err)
		e.Message = MessageValidationFailed
	}
	return e
}

// Admission is a request that passed license, feature, and limit checks. Its
// reservation is settled when the gate records the usage; Release gives it
// back when the request is abandoned.
type Admission struct {
	License     *licensing.License
	Plan        *licensing.Plan
	Stats       *limits.UsageStats
	Evaluation  *limits.Evaluation
	Enforcement *enforcement.Result

	slot *ratelimit.Slot
}

// Release gives back the in-flight reservation. It is safe to call more
// than once.
func (a *Admission) Release() {
	if a != nil {
		a.slot.Release()
	}
}

// Admit runs the license, feature, and limit checks for key at now. feature
// may be empty to skip the feature check. A rejected request returns an
// *Error and no admission.
func (g *Gate) Admit(ctx context.Context, key string, feature licensing.Feature, now time.Time) (*Admission, error) {
	lic, plan, err := g.Authenticate(ctx, key, now)
	if err != nil {
		return nil, err
	}

	if feature != "" && !plan.HasFeature(feature) {
		return nil, &Error{
			Kind:    KindFeatureNotIncluded,
			Status:  http.StatusForbidden,
			Message: MessageAINotIncluded,
			Detail:  MessageUpgradeForAI,
			State:   StateLicenseChecked,
			Plan:    plan.Name,
		}
	}

	ctx, span := g.tracer.Start(ctx, "gate.limits")
	defer span.End()

	adm, err := g.limits.Admit(ctx, lic.ID, plan, now)
	if err != nil {
		tracing.SetError(span, err)
		return nil, internalError(StateLicenseChecked, fmt.Errorf("failed to evaluate limits: %w", err))
	}

	res := g.enforcer.Enforce(adm.Evaluation, adm.Stats)
	tracing.SetDecisionAttributes(span, StateLicenseChecked.String(), string(res.Action), res.Blocking)
	if !res.Allowed {
		return nil, &Error{
			Kind:       KindLimitExceeded,
			Status:     res.Status,
			Message:    res.Message,
			Detail:     res.Detail,
			State:      StateLicenseChecked,
			Reason:     res.Reason,
			Blocking:   res.Blocking,
			Evaluation: adm.Evaluation,
			RetryAfter: res.RetryAfter,
			Plan:       plan.Name,
		}
	}

	return &Admission{
		License:     lic,
		Plan:        plan,
		Stats:       adm.Stats,
		Evaluation:  adm.Evaluation,
		Enforcement: res,
		slot:        adm.Slot,
	}, nil
}

// ChatRequest is one proxied chat call.
type ChatRequest struct {
	LicenseKey string
	Provider   string
	Model      string
	Messages   []providers.Message

	// MaxTokens defaults to the gate default when zero.
	MaxTokens int

	// Temperature defaults to the gate default when nil.
	Temperature *float64

	IPAddress string
	UserAgent string
}

// ChatResult is a completed, recorded chat call.
type ChatResult struct {
	Provider       string
	Model          string
	Response       []byte
	Content        string
	Tokens         int64
	Estimated      bool
	ResponseTimeMS int64
	RecordID       string
	Warnings       []string
	State          State
}

// Chat admits req, calls the provider once under the gate timeout, records
// the usage, and returns the provider's answer. Only a successful provider
// call is recorded.
func (g *Gate) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	now := g.Now()
	ctx, span := g.tracer.Start(ctx, "gate.chat")
	defer span.End()

	res, err := g.chat(ctx, span, req, now)
	if err != nil {
		g.observeFailure(ctx, span, err)
		return nil, err
	}

	g.metrics.RecordGateDecision("allowed", "")
	tracing.SetDecisionAttributes(span, res.State.String(), string(enforcement.ActionAllow), nil)
	return res, nil
}

func (g *Gate) chat(ctx context.Context, span trace.Span, req *ChatRequest, now time.Time) (*ChatResult, error) {
	adm, err := g.Admit(ctx, req.LicenseKey, licensing.FeatureAIIncluded, now)
	if err != nil {
		return nil, err
	}
	defer adm.Release()

	state := StateLimitsChecked
	g.logger.DebugContext(ctx, "request admitted",
		"license_id", adm.License.ID,
		"plan", adm.Plan.Name,
		"state", state.String(),
	)

	name := strings.ToLower(strings.TrimSpace(req.Provider))
	if name == "" {
		name = g.cfg.DefaultProvider
	}
	provider, err := g.providers.Get(name)
	if err != nil {
		return nil, providerLookupError(name, state, adm.Plan.Name, err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.cfg.DefaultMaxTokens
	}
	temperature := g.cfg.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	model := req.Model
	if model == "" {
		model = provider.GetConfig().Model
	}

	callCtx, callSpan := g.tracer.Start(ctx, "gate.provider")
	tracing.SetProviderAttributes(callSpan, name, model)
	callCtx, cancel := context.WithTimeout(callCtx, g.cfg.ProviderTimeout)
	start := time.Now()
	resp, err := provider.SendCompletion(callCtx, &providers.CompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	elapsed := time.Since(start)
	cancel()
	state = StateProviderCalled
	if err != nil {
		tracing.SetErrorAttributes(callSpan, err, providers.ErrorType(err))
		callSpan.End()
		g.metrics.RecordProviderError(name, providers.ErrorType(err))
		return nil, &Error{
			Kind:    KindUpstream,
			Status:  http.StatusBadGateway,
			Message: MessageProviderError,
			State:   state,
			Plan:    adm.Plan.Name,
			Cause:   err,
		}
	}
	callSpan.End()

	if model == "" {
		model = resp.Model
	}

	tokensUsed, reported := resp.ReportedTokens()
	estimated := !reported
	if estimated {
		est := g.estimator.EstimateMessages(req.Messages, maxTokens)
		tokensUsed = int64(est.TotalTokens)
	}

	g.metrics.RecordProviderCall(name, model, elapsed, tokensUsed, estimated)
	tracing.SetUsageAttributes(span, tokensUsed, estimated, 0)

	rec := &licensing.UsageRecord{
		ID:             uuid.NewString(),
		LicenseID:      adm.License.ID,
		Endpoint:       "/api/chat/" + name,
		Provider:       name,
		Model:          model,
		TokensUsed:     tokensUsed,
		Estimated:      estimated,
		ResponseTimeMS: elapsed.Milliseconds(),
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		CreatedAt:      g.Now(),
	}
	if err := g.limits.Record(ctx, adm.slot, rec); err != nil {
		// The provider was already paid for; the caller still gets the answer.
		g.logger.ErrorContext(ctx, "failed to record usage",
			"license_id", adm.License.ID,
			"provider", name,
			"tokens", tokensUsed,
			"error", err,
		)
		rec.ID = ""
	} else {
		g.logger.DebugContext(ctx, "usage recorded",
			"license_id", adm.License.ID,
			"record_id", rec.ID,
			"tokens", tokensUsed,
			"estimated", estimated,
			"state", StateLogged.String(),
		)
	}

	return &ChatResult{
		Provider:       name,
		Model:          model,
		Response:       resp.Raw,
		Content:        resp.Content,
		Tokens:         tokensUsed,
		Estimated:      estimated,
		ResponseTimeMS: rec.ResponseTimeMS,
		RecordID:       rec.ID,
		Warnings:       adm.Enforcement.Warnings,
		State:          StateResponded,
	}, nil
}

func providerLookupError(name string, state State, plan string, err error) *Error {
	e := &Error{State: state, Plan: plan, Cause: err}
	switch {
	case errors.Is(err, providerfactory.ErrNotConfigured):
		e.Kind = KindProviderUnavailable
		e.Status = http.StatusServiceUnavailable
		e.Message = fmt.Sprintf("Provider %s not configured", name)
	case errors.Is(err, providerfactory.ErrUnknownProvider):
		e.Kind = KindValidation
		e.Status = http.StatusBadRequest
		e.Message = fmt.Sprintf("Unsupported provider: %s", name)
	default:
		return internalError(state, err)
	}
	return e
}

// observeFailure logs and counts a failed chat call at a level matching its
// kind.
func (g *Gate) observeFailure(ctx context.Context, span trace.Span, err error) {
	gerr, ok := AsError(err)
	if !ok {
		gerr = internalError(StateReceived, err)
	}

	tracing.SetDecisionAttributes(span, gerr.State.String(), string(gerr.Kind), gerr.Blocking)

	if gerr.Expected() {
		g.metrics.RecordGateDecision("rejected", string(gerr.Kind))
		g.logger.InfoContext(ctx, "request rejected",
			"kind", string(gerr.Kind),
			"status", gerr.Status,
			"state", gerr.State.String(),
			"plan", gerr.Plan,
			"blocking", gerr.Blocking,
		)
		return
	}

	tracing.SetError(span, err)
	g.metrics.RecordGateDecision("failed", string(gerr.Kind))
	g.logger.ErrorContext(ctx, "request failed",
		"kind", string(gerr.Kind),
		"state", gerr.State.String(),
		"plan", gerr.Plan,
		"error", gerr.Cause,
	)
}
