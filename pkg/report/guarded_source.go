package report

import (
	"context"

	"commetrics-server/pkg/circuitbreaker"
	"commetrics-server/pkg/communication"
	"commetrics-server/pkg/database"
)

// guardedSource sends call queries through a circuit breaker so an
// unreachable database fails requests fast instead of tying up workers
type guardedSource struct {
	source  CallSource
	breaker *circuitbreaker.CircuitBreaker
}

// WithCircuitBreaker wraps source with breaker. A nil breaker returns source unchanged.
func WithCircuitBreaker(source CallSource, breaker *circuitbreaker.CircuitBreaker) CallSource {
	if breaker == nil {
		return source
	}
	return &guardedSource{source: source, breaker: breaker}
}

func (g *guardedSource) ListDiarizedCalls(ctx context.Context, filter database.CallFilter) ([]communication.CallRecord, error) {
	var calls []communication.CallRecord
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		calls, err = g.source.ListDiarizedCalls(ctx, filter)
		return err
	})
	return calls, err
}
