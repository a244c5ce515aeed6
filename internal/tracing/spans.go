package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrTitleID     = "title.id"
	AttrTitleName   = "title.name"
	AttrEntryID     = "entry.id"
	AttrEntryKind   = "entry.kind"
	AttrEntryPath   = "entry.path"
	AttrIntent      = "sync.intent"
	AttrCaptureKey  = "sync.capture_key"
	AttrRestoreKey  = "sync.restore_key"
	AttrActiveState = "sync.active"
	AttrFailures    = "sync.failures"
	AttrClass       = "reconcile.class"
	AttrResolution  = "reconcile.resolution"
	AttrStateFrom   = "state.from"
	AttrStateTo     = "state.to"
	AttrProcessID   = "process.pid"
)

// Span names.
const (
	SpanSyncTitle      = "sync.title"
	SpanSyncEntry      = "sync.entry"
	SpanSeed           = "sync.seed"
	SpanReconcile      = "reconcile.pass"
	SpanReconcileTitle = "reconcile.title"
	SpanTransition     = "monitor.transition"
	SpanProcessExit    = "process.exit"
)

// Event names for span events.
const (
	EventCaptured      = "artifact.captured"
	EventRestored      = "artifact.restored"
	EventEntryDisabled = "entry.disabled"
	EventConflict      = "conflict.detected"
)

// RecordError marks the span failed with err. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TitleAttrs returns the identifying attributes of a title.
func TitleAttrs(id, name string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrTitleID, id),
		attribute.String(AttrTitleName, name),
	}
}
