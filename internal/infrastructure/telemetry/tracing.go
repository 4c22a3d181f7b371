package telemetry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer used by application services
const TracerName = "github.com/edubill/backend"

// Span attribute keys shared by services and the gin middleware
const (
	AttrAccountID     = attribute.Key("edubill.account_id")
	AttrAgencyID      = attribute.Key("edubill.agency_id")
	AttrTransactionID = attribute.Key("edubill.transaction_id")
	AttrScheduleItem  = attribute.Key("edubill.schedule_item_id")
	AttrStatusFrom    = attribute.Key("edubill.status_from")
	AttrStatusTo      = attribute.Key("edubill.status_to")
)

// StartServiceSpan starts an internal span named "<service>.<method>"
//
//	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "Claim", telemetry.AttrTransactionID.String(id.String()))
//	defer span.End()
func StartServiceSpan(ctx context.Context, service, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, fmt.Sprintf("%s.%s", service, method),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// UUIDAttr renders id as a string attribute, skipping nil ids
func UUIDAttr(key attribute.Key, id uuid.UUID) attribute.KeyValue {
	if id == uuid.Nil {
		return key.String("")
	}
	return key.String(id.String())
}

// RecordError marks the span failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// EndSpan records *errp on span and ends it, for use with a named error return
//
//	defer telemetry.EndSpan(span, &err)
func EndSpan(span trace.Span, errp *error) {
	if errp != nil {
		RecordError(span, *errp)
	}
	span.End()
}

// TraceID returns the active trace id or ""
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.TraceID().IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
