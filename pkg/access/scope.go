package access

import "context"

// Scope is the set of departments a caller may see
type Scope struct {
	All         bool     `json:"all"`
	Departments []string `json:"departments,omitempty"`
}

// Unrestricted is the scope used when authentication is disabled and for
// internal jobs such as the digest.
func Unrestricted() Scope {
	return Scope{All: true}
}

// Allows reports whether department is visible within the scope
func (s Scope) Allows(department string) bool {
	if s.All {
		return true
	}
	for _, d := range s.Departments {
		if d == department {
			return true
		}
	}
	return false
}

// VisibleDepartments returns nil for an unrestricted scope and a non-nil
// (possibly empty) list otherwise.
func (s Scope) VisibleDepartments() []string {
	if s.All {
		return nil
	}
	out := make([]string, len(s.Departments))
	copy(out, s.Departments)
	return out
}

type contextKey struct{}

// WithScope stores the caller's scope in ctx
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, contextKey{}, scope)
}

// ScopeFromContext returns the caller's scope. A context without one yields an
// empty scope that sees nothing.
func ScopeFromContext(ctx context.Context) Scope {
	if scope, ok := ctx.Value(contextKey{}).(Scope); ok {
		return scope
	}
	return Scope{}
}
