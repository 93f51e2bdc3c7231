package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys
const (
	AttrPrincipalID = "mentorship.principal.id"
	AttrPath        = "mentorship.route.path"
	AttrRole        = "mentorship.profile.role"
)

// SpanOptions provides configuration for span creation.
type SpanOptions struct {
	PrincipalID string
	Path        string
	Role        string
}

// StartSpan starts a new span with common attributes.
func (p *Provider) StartSpan(ctx context.Context, name string, opts SpanOptions) (context.Context, trace.Span) {
	var attrs []attribute.KeyValue
	if opts.PrincipalID != "" {
		attrs = append(attrs, attribute.String(AttrPrincipalID, opts.PrincipalID))
	}
	if opts.Path != "" {
		attrs = append(attrs, attribute.String(AttrPath, opts.Path))
	}
	if opts.Role != "" {
		attrs = append(attrs, attribute.String(AttrRole, opts.Role))
	}
	return p.Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// SpanLogin starts a span for login operations.
func (p *Provider) SpanLogin(ctx context.Context) (context.Context, trace.Span) {
	return p.StartSpan(ctx, "mentorship.login", SpanOptions{})
}

// SpanResolve starts a span for profile resolution.
func (p *Provider) SpanResolve(ctx context.Context, principalID string) (context.Context, trace.Span) {
	return p.StartSpan(ctx, "mentorship.profile.resolve", SpanOptions{PrincipalID: principalID})
}

// EndSpan records err on the span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
