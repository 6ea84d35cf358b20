package logger

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	ruleIDKey  contextKey = "rule_id"
)

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithRuleID tags the context with the saved rule being run
func WithRuleID(ctx context.Context, ruleID string) context.Context {
	return context.WithValue(ctx, ruleIDKey, ruleID)
}

// GetRuleID retrieves the rule ID from context
func GetRuleID(ctx context.Context) string {
	if ruleID, ok := ctx.Value(ruleIDKey).(string); ok {
		return ruleID
	}
	return ""
}
