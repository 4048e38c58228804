package correlation

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_GeneratesUniqueIDs(t *testing.T) {
	ids := make(map[ID]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		assert.False(t, id.IsEmpty())
		assert.False(t, ids[id], "Generated ID should be unique")
		ids[id] = true
	}
}

func TestFromString(t *testing.T) {
	assert.Equal(t, ID("abc-123"), FromString("abc-123"))
	assert.False(t, FromString("").IsEmpty())

	long := strings.Repeat("x", 200)
	assert.NotEqual(t, ID(long), FromString(long))
}

func TestContextRoundTrip(t *testing.T) {
	assert.True(t, FromContext(context.Background()).IsEmpty())

	info := &RequestInfo{CorrelationID: "req-1", ClientIP: "10.0.0.5", Method: http.MethodGet}
	ctx := info.ToContext(context.Background())

	assert.Equal(t, ID("req-1"), FromContext(ctx))
	assert.Equal(t, "10.0.0.5", ClientIPFromContext(ctx))
	assert.Equal(t, http.MethodGet, MethodFromContext(ctx))

	fields := ContextFields(ctx)
	assert.Equal(t, "req-1", fields["correlation_id"])
	assert.Equal(t, "10.0.0.5", fields["client_ip"])
}

func TestMiddleware_PropagatesIncomingID(t *testing.T) {
	var seen ID
	handler := NewHTTPMiddleware(nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/communication_metrics", nil)
	req.Header.Set(HTTPRequestIDHeader, "upstream-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, ID("upstream-42"), seen)
	assert.Equal(t, "upstream-42", rec.Header().Get(HTTPHeader))
}

func TestMiddleware_GeneratesIDAndLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	handler := NewHTTPMiddleware(logger).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		LoggerFromContext(r.Context(), logger).Info("inside handler")
		w.WriteHeader(http.StatusBadRequest)
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	id := rec.Header().Get(HTTPHeader)
	require.NotEmpty(t, id)

	out := buf.String()
	assert.Contains(t, out, `"correlation_id":"`+id+`"`)
	assert.Contains(t, out, `"client_ip":"203.0.113.9"`)
	assert.Contains(t, out, "HTTP request completed with client error")
}
