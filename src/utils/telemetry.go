package utils

import (
	"encoding/json"

	"go.opentelemetry.io/otel/trace"
)

// TraceContextDTO carries a span context across the audit stream boundary so
// a reader can re-join the originating trace.
type TraceContextDTO struct {
	TraceID    string `json:"trace_id"`
	SpanID     string `json:"span_id"`
	TraceFlags byte   `json:"trace_flags"`
	TraceState string `json:"trace_state"`
	IsRemote   bool   `json:"is_remote"`
}

func SerializeTraceContext(sc trace.SpanContext) ([]byte, error) {
	dto := TraceContextDTO{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		TraceFlags: byte(sc.TraceFlags()),
		TraceState: sc.TraceState().String(),
		IsRemote:   sc.IsRemote(),
	}

	return json.Marshal(dto)
}

func DeserializeTraceContext(data []byte) (trace.SpanContext, error) {
	var dto TraceContextDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return trace.SpanContext{}, err
	}

	traceID, err := trace.TraceIDFromHex(dto.TraceID)
	if err != nil {
		return trace.SpanContext{}, err
	}

	spanID, err := trace.SpanIDFromHex(dto.SpanID)
	if err != nil {
		return trace.SpanContext{}, err
	}

	traceState, err := trace.ParseTraceState(dto.TraceState)
	if err != nil {
		return trace.SpanContext{}, err
	}

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.TraceFlags(dto.TraceFlags),
		TraceState: traceState,
		Remote:     dto.IsRemote,
	}), nil
}
