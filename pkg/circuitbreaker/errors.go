package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

// ErrOpen matches every rejection by an open circuit
var ErrOpen = errors.New("circuit breaker is open")

// OpenError is returned instead of calling the protected function
type OpenError struct {
	Name    string
	RetryAt time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open until %s", e.Name, e.RetryAt.Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrOpen) hold for every OpenError
func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}
