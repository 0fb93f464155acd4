package ctxutil

import "context"

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
	RunID     string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// WithRunID attaches a pipeline run id, keeping any trace/request ids already present.
func WithRunID(ctx context.Context, runID string) context.Context {
	td := &TraceData{RunID: runID}
	if prev := GetTraceData(ctx); prev != nil {
		td.TraceID = prev.TraceID
		td.RequestID = prev.RequestID
	}
	return WithTraceData(ctx, td)
}

// LogFields returns the ids on ctx as logger key/value pairs.
func LogFields(ctx context.Context) []interface{} {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	out := make([]interface{}, 0, 6)
	if td.RunID != "" {
		out = append(out, "run_id", td.RunID)
	}
	if td.TraceID != "" {
		out = append(out, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		out = append(out, "request_id", td.RequestID)
	}
	return out
}
