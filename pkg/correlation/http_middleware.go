package correlation

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPMiddleware adds correlation ID tracking and access logging to HTTP requests
type HTTPMiddleware struct {
	logger *logrus.Logger
}

// NewHTTPMiddleware creates a new HTTP correlation middleware
func NewHTTPMiddleware(logger *logrus.Logger) *HTTPMiddleware {
	return &HTTPMiddleware{logger: logger}
}

// Middleware returns an HTTP middleware function that adds correlation ID tracking
func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqInfo := &RequestInfo{
			CorrelationID: FromString(extractCorrelationID(r)),
			StartTime:     time.Now(),
			ClientIP:      clientIP(r),
			Method:        r.Method,
		}

		r = r.WithContext(reqInfo.ToContext(r.Context()))
		w.Header().Set(HTTPHeader, reqInfo.CorrelationID.String())

		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		if m.logger == nil {
			return
		}

		entry := m.logger.WithFields(logrus.Fields{
			"correlation_id": reqInfo.CorrelationID.String(),
			"method":         r.Method,
			"path":           r.URL.Path,
			"status":         wrapper.statusCode,
			"duration_ms":    time.Since(reqInfo.StartTime).Milliseconds(),
			"client_ip":      reqInfo.ClientIP,
		})

		switch {
		case wrapper.statusCode >= 500:
			entry.Error("HTTP request completed with server error")
		case wrapper.statusCode >= 400:
			entry.Warn("HTTP request completed with client error")
		default:
			entry.Debug("HTTP request completed")
		}
	})
}

func extractCorrelationID(r *http.Request) string {
	if id := r.Header.Get(HTTPHeader); id != "" {
		return id
	}
	return r.Header.Get(HTTPRequestIDHeader)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); net.ParseIP(xri) != nil {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseWrapper wraps http.ResponseWriter to capture status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *responseWrapper) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWrapper) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Hijack lets WebSocket upgrades pass through the wrapper
func (w *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	w.written = true
	return h.Hijack()
}

// Unwrap returns the underlying ResponseWriter (for http.Flusher, etc.)
func (w *responseWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
