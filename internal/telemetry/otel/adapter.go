package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// SecurityEventEmitter forwards audit events as OTel log records, so reuse
// detection and revocations reach the collector as well as the database trail.
// It implements the audit logger contract and is fanned in next to the
// repository-backed logger.
type SecurityEventEmitter struct {
	logger otellog.Logger
}

// NewSecurityEventEmitter returns an emitter writing via the given provider.
// A nil provider yields a nil emitter, which the audit fan-out skips.
func NewSecurityEventEmitter(provider *sdklog.LoggerProvider) *SecurityEventEmitter {
	if provider == nil {
		return nil
	}
	return &SecurityEventEmitter{logger: provider.Logger("localmart.auth")}
}

// LogEvent emits one security event. Best-effort; the OTel SDK buffers and
// drops on backpressure, so this never blocks the auth path.
func (e *SecurityEventEmitter) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	if e == nil {
		return
	}
	rec := otellog.Record{}
	rec.SetTimestamp(time.Now().UTC())
	rec.SetSeverity(otellog.SeverityWarn)
	rec.SetBody(otellog.StringValue(action))
	if userID != "" {
		rec.AddAttributes(otellog.String("user_id", userID))
	}
	if resource != "" {
		rec.AddAttributes(otellog.String("resource", resource))
	}
	if metadata != "" {
		rec.AddAttributes(otellog.String("metadata", metadata))
	}
	e.logger.Emit(ctx, rec)
}
