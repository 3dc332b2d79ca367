package ctxutil

import "context"

// TraceData identifies the request a piece of work belongs to. It follows
// generation runs into the worker pool.
type TraceData struct {
	TraceID   string
	RequestID string
}

type traceKey struct{}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(Default(ctx), traceKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	td, _ := ctx.Value(traceKey{}).(*TraceData)
	return td
}

// Carry returns run with origin's trace data attached. run keeps its own
// deadline and cancellation.
func Carry(run, origin context.Context) context.Context {
	if td := GetTraceData(origin); td != nil {
		return WithTraceData(run, td)
	}
	return run
}

// LogFields returns trace_id and request_id pairs for logger.With.
func LogFields(ctx context.Context) []interface{} {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	fields := make([]interface{}, 0, 4)
	if td.TraceID != "" {
		fields = append(fields, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		fields = append(fields, "request_id", td.RequestID)
	}
	return fields
}
