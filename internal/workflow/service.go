package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/workflow-gateway/internal/domain"
	"github.com/tjfontaine/workflow-gateway/internal/metrics"
	"github.com/tjfontaine/workflow-gateway/internal/storage"
)

const tracerName = "github.com/tjfontaine/workflow-gateway/internal/workflow"

// ServiceConfig wires a Service. Audit, Metrics and RequestID are optional.
type ServiceConfig struct {
	Registry  *Registry
	Enricher  *Enricher
	Deliverer *Deliverer
	Audit     storage.AuditStore
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	// RequestID extracts the inbound request id for audit records.
	RequestID func(context.Context) string
	Now       func() time.Time
}

// Service runs the trigger pipeline: resolve, enrich, deliver, translate.
type Service struct {
	registry  *Registry
	enricher  *Enricher
	deliverer *Deliverer
	audit     storage.AuditStore
	metrics   *metrics.Metrics
	logger    *slog.Logger
	requestID func(context.Context) string
	now       func() time.Time
	tracer    trace.Tracer
}

// NewService creates a trigger service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	enricher := cfg.Enricher
	if enricher == nil {
		enricher = NewEnricher(DefaultSource, now)
	}
	return &Service{
		registry:  cfg.Registry,
		enricher:  enricher,
		deliverer: cfg.Deliverer,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		logger:    logger,
		requestID: cfg.RequestID,
		now:       now,
		tracer:    otel.Tracer(tracerName),
	}
}

// Registry returns the service's slug registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Trigger forwards req on behalf of caller. Every expected failure is
// returned as a *domain.APIError; any other error is an internal fault.
func (s *Service) Trigger(ctx context.Context, req *TriggerRequest, caller domain.Caller) (*Response, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.trigger",
		trace.WithAttributes(attribute.String("workflow.slug", req.Slug)))
	defer span.End()

	target, err := s.registry.Resolve(req.Slug)
	if err != nil {
		s.metrics.ObserveTrigger(metrics.UnknownSlug, "not_found", 0)
		span.SetStatus(codes.Error, "workflow not found")
		return nil, err
	}

	payload := s.enricher.Enrich(req.Payload, caller)

	outcome, err := s.deliverer.Deliver(ctx, target, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("deliver workflow %q: %w", req.Slug, err)
	}

	span.SetAttributes(
		attribute.String("workflow.outcome", outcome.Kind.String()),
		attribute.Int("workflow.remote_status", outcome.StatusCode),
	)

	switch outcome.Kind {
	case OutcomeTimeout:
		s.logger.ErrorContext(ctx, "workflow request timed out",
			slog.String("slug", req.Slug),
			slog.Duration("elapsed", outcome.Duration),
			slog.String("error", errString(outcome.Err)),
		)
	case OutcomeTransportError:
		s.logger.ErrorContext(ctx, "failed to reach automation server",
			slog.String("slug", req.Slug),
			slog.String("error", errString(outcome.Err)),
		)
	case OutcomeRemoteError:
		s.logger.ErrorContext(ctx, "workflow execution failed",
			slog.String("slug", req.Slug),
			slog.Int("status", outcome.StatusCode),
			slog.String("body", string(outcome.Body)),
		)
	}

	resp, err := Translate(outcome)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	s.metrics.ObserveTrigger(req.Slug, outcome.Kind.String(), outcome.Duration)
	s.record(ctx, req.Slug, caller, outcome, resp, err)

	return resp, err
}

// record writes the audit entry. Failures never affect the response.
func (s *Service) record(ctx context.Context, slug string, caller domain.Caller, outcome *Outcome, resp *Response, respErr error) {
	if s.audit == nil {
		return
	}

	rec := &storage.TriggerRecord{
		ID:           uuid.New().String(),
		Slug:         slug,
		UserID:       caller.UserID(),
		UserName:     caller.UserName(),
		Outcome:      outcome.Kind.String(),
		RemoteStatus: outcome.StatusCode,
		DurationMS:   outcome.Duration.Milliseconds(),
		CreatedAt:    s.now().UTC(),
	}
	if s.requestID != nil {
		rec.RequestID = s.requestID(ctx)
	}
	if resp != nil {
		rec.ResponseStatus = resp.StatusCode
	}
	var apiErr *domain.APIError
	if errors.As(respErr, &apiErr) {
		rec.ResponseStatus = apiErr.HTTPStatusCode()
		rec.Error = apiErr.Message
	}

	if err := s.audit.RecordTrigger(context.WithoutCancel(ctx), rec); err != nil {
		s.metrics.ObserveAuditError()
		s.logger.WarnContext(ctx, "failed to record workflow trigger",
			slog.String("slug", slug),
			slog.String("error", err.Error()),
		)
	}
}

// RecentTriggers lists audit records, newest first. Without an audit store
// the list is empty.
func (s *Service) RecentTriggers(ctx context.Context, limit int) ([]*storage.TriggerRecord, error) {
	if s.audit == nil {
		return []*storage.TriggerRecord{}, nil
	}
	records, err := s.audit.ListTriggers(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	if records == nil {
		records = []*storage.TriggerRecord{}
	}
	return records, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
