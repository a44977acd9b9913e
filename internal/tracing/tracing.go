package tracing

import (
	"context"
	"runtime/debug"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"

	"github.com/mailvault/mailvault/internal/logger"
)

const (
	SpanTagComponent = "component"
	SpanTagAccountID = "account.id"

	ComponentService    = "mailvault-service"
	ComponentRepository = "sqlite-repository"
	ComponentCronJob    = "cronJob"
	ComponentWorker     = "syncWorker"
)

type accountIDKey struct{}

// WithAccountID stores the active account id on the context so spans can tag it.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey{}, accountID)
}

func AccountIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(accountIDKey{}).(string); ok {
		return v
	}
	return ""
}

// SetDefaultServiceSpanTags tags a service-level span with the common attributes.
func SetDefaultServiceSpanTags(ctx context.Context, span opentracing.Span) {
	span.SetTag(SpanTagComponent, ComponentService)
	if accountID := AccountIDFromContext(ctx); accountID != "" {
		span.SetTag(SpanTagAccountID, accountID)
	}
}

// TagComponentRepository marks a span as a repository-level operation.
func TagComponentRepository(span opentracing.Span) {
	span.SetTag(SpanTagComponent, ComponentRepository)
}

// TagComponentCronJob marks a span as a scheduled maintenance job.
func TagComponentCronJob(span opentracing.Span) {
	span.SetTag(SpanTagComponent, ComponentCronJob)
}

// TagComponentWorker marks a span as a background worker round-trip.
func TagComponentWorker(span opentracing.Span) {
	span.SetTag(SpanTagComponent, ComponentWorker)
}

// StartTracerSpan starts a root span for work with no incoming trace, such
// as cron jobs and startup tasks.
func StartTracerSpan(ctx context.Context, operationName string) (opentracing.Span, context.Context) {
	span := opentracing.GlobalTracer().StartSpan(operationName)
	return span, opentracing.ContextWithSpan(ctx, span)
}

// TraceErr records an error on the span. Cancellations should not be traced
// as errors; callers filter those before reaching here.
func TraceErr(span opentracing.Span, err error, fields ...log.Field) {
	if span == nil || err == nil {
		return
	}
	ext.LogError(span, err, fields...)
}

// RecoverAndLogToJaeger reports a panic on a dedicated span before re-logging it.
func RecoverAndLogToJaeger(appLogger logger.Logger) {
	if r := recover(); r != nil {
		tracer := opentracing.GlobalTracer()
		span := tracer.StartSpan("panic-recovery")
		defer span.Finish()

		stackTrace := string(debug.Stack())
		span.LogKV(
			"event", "error",
			"error.object", r,
			"stack", stackTrace,
		)
		span.SetTag("error", true)

		appLogger.Errorf("Recovered from panic: %v\nStack trace:\n%s", r, stackTrace)
	}
}
