package correlation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Header names accepted for an incoming correlation ID, in order of preference
const (
	HTTPHeader          = "X-Correlation-ID"
	HTTPRequestIDHeader = "X-Request-ID"
)

type contextKey int

const (
	correlationIDKey contextKey = iota
	requestStartTimeKey
	clientIPKey
	methodKey
)

// ID identifies one request or background job across log lines
type ID string

// String returns the string representation of the correlation ID
func (id ID) String() string {
	return string(id)
}

// IsEmpty returns true if the correlation ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// New generates a random correlation ID
func New() ID {
	return ID(uuid.NewString())
}

// FromString keeps a caller-supplied ID when it is usable and generates one otherwise
func FromString(s string) ID {
	if s == "" || len(s) > 128 {
		return New()
	}
	return ID(s)
}

// WithCorrelationID returns a new context with the correlation ID attached
func WithCorrelationID(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// FromContext extracts the correlation ID from a context
func FromContext(ctx context.Context) ID {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationIDKey).(ID); ok {
		return id
	}
	return ""
}

// RequestStartTimeFromContext extracts the request start time from a context
func RequestStartTimeFromContext(ctx context.Context) (time.Time, bool) {
	if ctx == nil {
		return time.Time{}, false
	}
	t, ok := ctx.Value(requestStartTimeKey).(time.Time)
	return t, ok
}

// ClientIPFromContext extracts the client IP from a context
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// MethodFromContext extracts the request method from a context
func MethodFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	method, _ := ctx.Value(methodKey).(string)
	return method
}

// RequestInfo contains the correlation data attached to one request
type RequestInfo struct {
	CorrelationID ID
	StartTime     time.Time
	ClientIP      string
	Method        string
}

// ToContext attaches all request info to a context
func (r *RequestInfo) ToContext(ctx context.Context) context.Context {
	ctx = WithCorrelationID(ctx, r.CorrelationID)
	ctx = context.WithValue(ctx, requestStartTimeKey, r.StartTime)
	ctx = context.WithValue(ctx, clientIPKey, r.ClientIP)
	ctx = context.WithValue(ctx, methodKey, r.Method)
	return ctx
}
