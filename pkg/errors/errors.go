package errors

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"
)

// Standard error types that can be used throughout the application
var (
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInternalError    = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
	ErrUnavailable      = errors.New("service unavailable")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrCanceled         = errors.New("operation canceled")
	ErrRateLimited      = errors.New("rate limit exceeded")

	// Domain-specific error sentinel values
	ErrInvalidReportType     = errors.New("invalid report type")
	ErrInvalidPeriod         = errors.New("invalid reporting period")
	ErrDataSourceUnavailable = errors.New("call data source unavailable")
	ErrDepartmentForbidden   = errors.New("department not visible to caller")
)

// Error represents a structured error with caller location and additional context
type Error struct {
	original error
	message  string
	fields   map[string]interface{}

	// file and line record where the error was created
	file string
	line int

	// cause is the underlying failure. It is matched by Is but never
	// serialized, so driver and network details stay out of responses.
	cause error

	// Code is an optional error code for categorization
	Code string
}

func newError(original error, message, code string, fields []map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(2)

	fieldMap := make(map[string]interface{})
	if len(fields) > 0 && fields[0] != nil {
		for k, v := range fields[0] {
			fieldMap[k] = v
		}
	}

	return &Error{
		original: original,
		message:  message,
		fields:   fieldMap,
		file:     file,
		line:     line,
		Code:     code,
	}
}

// New creates a new structured error with the given message
func New(message string, fields ...map[string]interface{}) *Error {
	return newError(errors.New(message), message, "", fields)
}

// Wrap wraps an existing error with additional context
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	return newError(err, message, "", fields)
}

// WithField adds a single field to the error context
func (e *Error) WithField(key string, value interface{}) *Error {
	return e.WithFields(map[string]interface{}{key: value})
}

// WithFields adds multiple fields to the error context. The receiver is not modified.
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	if e == nil {
		return nil
	}

	result := *e
	result.fields = make(map[string]interface{}, len(e.fields)+len(fields))
	for k, v := range e.fields {
		result.fields[k] = v
	}
	for k, v := range fields {
		result.fields[k] = v
	}
	return &result
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}

	if e.message == "" || e.message == e.original.Error() {
		return e.original.Error()
	}

	return fmt.Sprintf("%s: %v", e.message, e.original)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Location returns the file:line where the error was created
func (e *Error) Location() string {
	if e == nil {
		return ""
	}

	parts := strings.Split(e.file, "/")
	filename := parts[len(parts)-1]

	return fmt.Sprintf("%s:%d", filename, e.line)
}

// GetFields returns the error's context fields
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// GetCode returns the error's code
func (e *Error) GetCode() string {
	if e == nil {
		return ""
	}
	return e.Code
}

// Is reports whether any error in err's tree matches target.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	if errors.Is(e.original, target) {
		return true
	}
	if e.cause != nil && errors.Is(e.cause, target) {
		return true
	}
	return e == target
}

// AsJSON returns the error in JSON-friendly map format
func (e *Error) AsJSON() map[string]interface{} {
	if e == nil {
		return nil
	}

	result := map[string]interface{}{
		"error":    e.Error(),
		"location": e.Location(),
	}

	if e.Code != "" {
		result["code"] = e.Code
	}

	if len(e.fields) > 0 {
		result["context"] = e.fields
	}

	return result
}

// NewInvalidInput creates a new ErrInvalidInput error with additional context
func NewInvalidInput(message string, fields ...map[string]interface{}) *Error {
	return newError(ErrInvalidInput, message, "INVALID_INPUT", fields)
}

// NewUnauthenticated creates a new ErrUnauthenticated with additional context
func NewUnauthenticated(message string, fields ...map[string]interface{}) *Error {
	return newError(ErrUnauthenticated, message, "UNAUTHENTICATED", fields)
}

// NewPermissionDenied creates a new ErrPermissionDenied with additional context
func NewPermissionDenied(message string, fields ...map[string]interface{}) *Error {
	return newError(ErrPermissionDenied, message, "PERMISSION_DENIED", fields)
}

// NewRateLimited is returned when a client exceeds its request budget
func NewRateLimited(retryAfter time.Duration) *Error {
	return newError(ErrRateLimited, "too many requests", "RATE_LIMITED",
		[]map[string]interface{}{{"retry_after_seconds": int(math.Ceil(retryAfter.Seconds()))}})
}

// NewInvalidReportType rejects an unknown report type
func NewInvalidReportType(reportType string) *Error {
	return newError(ErrInvalidReportType,
		fmt.Sprintf("unknown report type %q", reportType),
		"INVALID_REPORT_TYPE",
		[]map[string]interface{}{{"type": reportType}})
}

// NewInvalidPeriod rejects an unusable date window
func NewInvalidPeriod(details string, fields ...map[string]interface{}) *Error {
	return newError(ErrInvalidPeriod, fmt.Sprintf("invalid period: %s", details), "INVALID_PERIOD", fields)
}

// NewDepartmentForbidden is returned when a caller asks for a department outside its scope
func NewDepartmentForbidden(department string) *Error {
	return newError(ErrDepartmentForbidden,
		fmt.Sprintf("department %q is not visible", department),
		"DEPARTMENT_FORBIDDEN",
		[]map[string]interface{}{{"department": department}})
}

// NewDataSourceUnavailable wraps a failure of the call data source. cause is
// kept for errors.Is and logging only.
func NewDataSourceUnavailable(cause error, fields ...map[string]interface{}) *Error {
	e := newError(ErrDataSourceUnavailable, "failed to load call data", "DATA_SOURCE_UNAVAILABLE", fields)
	e.cause = cause
	return e
}

// GetErrorCode extracts the error code from an error if it's a structured error
func GetErrorCode(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetCode()
	}
	return ""
}
