package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"commetrics-server/pkg/correlation"
	"commetrics-server/pkg/errors"
	"commetrics-server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// Config holds rate limiter settings
type Config struct {
	RequestsPerSecond float64
	Burst             int
	ClientTTL         time.Duration

	// Exempt addresses or CIDR ranges bypass the limiter
	ExemptIPs []string
}

// HTTPMiddleware rejects clients that exceed their request budget with 429
type HTTPMiddleware struct {
	limiter    *Limiter
	config     Config
	logger     *logrus.Logger
	exemptIPs  map[string]bool
	exemptNets []*net.IPNet
}

// NewHTTPMiddleware creates a new HTTP rate limiting middleware
func NewHTTPMiddleware(config Config, logger *logrus.Logger) *HTTPMiddleware {
	m := &HTTPMiddleware{
		limiter:   NewLimiter(config.RequestsPerSecond, config.Burst, config.ClientTTL),
		config:    config,
		logger:    logger,
		exemptIPs: make(map[string]bool),
	}

	for _, ip := range config.ExemptIPs {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		if strings.Contains(ip, "/") {
			_, ipNet, err := net.ParseCIDR(ip)
			if err != nil {
				logger.WithError(err).Warnf("Invalid CIDR in rate limit exemptions: %s", ip)
				continue
			}
			m.exemptNets = append(m.exemptNets, ipNet)
		} else {
			m.exemptIPs[ip] = true
		}
	}

	logger.WithFields(logrus.Fields{
		"rps":        config.RequestsPerSecond,
		"burst":      config.Burst,
		"exemptions": len(m.exemptIPs) + len(m.exemptNets),
	}).Info("HTTP rate limiting middleware initialized")

	return m
}

// Limiter returns the underlying limiter
func (m *HTTPMiddleware) Limiter() *Limiter {
	return m.limiter
}

// Middleware applies the per-client budget to next
func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientKey(r)
		if m.isExempt(ip) {
			next.ServeHTTP(w, r)
			return
		}

		allowed, retryAfter := m.limiter.Allow(ip)
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", m.limiter.Burst()))

		if !allowed {
			correlation.LoggerFromContext(r.Context(), m.logger).WithFields(logrus.Fields{
				"client_ip":   ip,
				"path":        r.URL.Path,
				"retry_after": retryAfter,
			}).Warn("Rate limit exceeded")
			metrics.RecordRateLimited(r.URL.Path)

			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(retryAfter.Seconds()))))
			errors.WriteError(w, errors.NewRateLimited(retryAfter))
			return
		}

		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%.0f", math.Floor(m.limiter.Remaining(ip))))
		next.ServeHTTP(w, r)
	})
}

// clientKey prefers the address resolved by the correlation middleware
func clientKey(r *http.Request) string {
	if ip := correlation.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (m *HTTPMiddleware) isExempt(ip string) bool {
	if m.exemptIPs[ip] {
		return true
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, ipNet := range m.exemptNets {
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}
