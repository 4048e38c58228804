package access

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"commetrics-server/pkg/correlation"
	"commetrics-server/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Claims carried by analytics bearer tokens
type Claims struct {
	Role             string   `json:"role"`
	Departments      []string `json:"departments,omitempty"`
	CanViewAnalytics bool     `json:"can_view_analytics"`
	jwt.RegisteredClaims
}

// Config controls token validation
type Config struct {
	Enabled   bool
	Secret    string
	Issuer    string
	AdminRole string
}

// Authorizer turns bearer tokens into department scopes
type Authorizer struct {
	config Config
	logger *logrus.Logger
}

// NewAuthorizer creates an authorizer
func NewAuthorizer(config Config, logger *logrus.Logger) *Authorizer {
	if config.AdminRole == "" {
		config.AdminRole = "admin"
	}
	return &Authorizer{
		config: config,
		logger: logger,
	}
}

// ValidateToken parses and verifies an HS256 token
func (a *Authorizer) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// IssueToken signs claims for subject; used by operators and tests
func (a *Authorizer) IssueToken(subject string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    a.config.Issuer,
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	return token.SignedString([]byte(a.config.Secret))
}

// ScopeFor derives the department scope from validated claims
func (a *Authorizer) ScopeFor(claims *Claims) (Scope, error) {
	if claims.Role == a.config.AdminRole {
		return Unrestricted(), nil
	}
	if !claims.CanViewAnalytics {
		return Scope{}, errors.NewPermissionDenied("analytics access is not granted",
			map[string]interface{}{"subject": claims.Subject})
	}
	departments := claims.Departments
	if departments == nil {
		departments = []string{}
	}
	return Scope{Departments: departments}, nil
}

// Authenticate resolves the caller's scope from the request. WebSocket
// upgrades may pass the token as ?token= since browsers cannot set headers.
func (a *Authorizer) Authenticate(r *http.Request) (Scope, error) {
	if !a.config.Enabled {
		return Unrestricted(), nil
	}

	tokenString := ""
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		tokenString = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	} else if isWebSocketRequest(r) {
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		return Scope{}, errors.NewUnauthenticated("missing bearer token")
	}

	claims, err := a.ValidateToken(tokenString)
	if err != nil {
		return Scope{}, errors.NewUnauthenticated("invalid bearer token",
			map[string]interface{}{"reason": err.Error()})
	}

	return a.ScopeFor(claims)
}

// Middleware attaches the caller's scope to the request context and rejects
// requests that cannot be authorized.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope, err := a.Authenticate(r)
		if err != nil {
			correlation.LoggerFromContext(r.Context(), a.logger).WithFields(logrus.Fields{
				"path":   r.URL.Path,
				"method": r.Method,
				"error":  err.Error(),
			}).Warning("Authorization failed")
			errors.WriteError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
	})
}

func isWebSocketRequest(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
