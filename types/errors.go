package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigInvalidPath    = errors.New("config invalid path")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigLoadFailed     = errors.New("config load failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrCacheKindUnknown   = errors.New("cache kind unknown")
	ErrCachePolicyUnknown = errors.New("cache in-flight policy unknown")
	ErrLoadInFlight       = errors.New("load already in flight")
	ErrTicketNotCached    = errors.New("ticket not cached")
	ErrListenerInvalid    = errors.New("listener is nil or not comparable")
)

var (
	ErrNotifyConnectionFailed = errors.New("notification connection failed")
	ErrNotifyConfigInvalid    = errors.New("notification config invalid")
	ErrNotifyNotListening     = errors.New("notification listener not listening")
	ErrNotifyFilterEmpty      = errors.New("notification filter key empty")
	ErrNotifyTypeUnknown      = errors.New("notification source type unknown")
)

var (
	ErrSessionTypeUnknown = errors.New("session store type unknown")
	ErrSessionOpenFailed  = errors.New("session store open failed")
	ErrSessionCorrupted   = errors.New("session data corrupted")
	ErrNotAuthenticated   = errors.New("no auth token")
)

var (
	ErrMetricsTypeUnknown   = errors.New("metrics type unknown")
	ErrMetricsConfigInvalid = errors.New("metrics config invalid")
)

var (
	ErrClientRequestFailed   = errors.New("client request failed")
	ErrClientResponseInvalid = errors.New("client response invalid")
	ErrClientTimeout         = errors.New("client timeout")
	ErrCircuitBreakerOpen    = errors.New("circuit breaker open")
	ErrRequestInvalid        = errors.New("request invalid")
)

var (
	ErrLogFileIsEmpty      = errors.New("log file is empty")
	ErrLogFileWrongFormat  = errors.New("log file wrong format")
	ErrLoggerTypeUnknown   = errors.New("logger type unknown")
	ErrLoggerConfigInvalid = errors.New("logger config invalid")
)

var (
	ErrServiceIsRunning     = errors.New("service is running")
	ErrServiceIsNotRunning  = errors.New("service is not running")
	ErrComponentStartFailed = errors.New("component start failed")
	ErrComponentStopFailed  = errors.New("component stop failed")
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrOperationFailed  = errors.New("operation failed")
	ErrContextCancelled = errors.New("context cancelled")
	ErrInvalidState     = errors.New("invalid state")
)

// APIErrorKind classifies a failed API call.
type APIErrorKind string

const (
	// APIErrorTransport means no response arrived.
	APIErrorTransport APIErrorKind = "transport"
	// APIErrorHTTP means the server answered with a non-2xx status.
	APIErrorHTTP APIErrorKind = "http"
	// APIErrorLogical means a 2xx answer carried success=false.
	APIErrorLogical APIErrorKind = "logical"
)

type APIError struct {
	Kind        APIErrorKind
	StatusCode  int
	Message     string
	FieldErrors map[string][]string
	Err         error
}

func (e *APIError) Error() string {
	switch e.Kind {
	case APIErrorTransport:
		if e.Err != nil {
			return "network error: " + e.Err.Error()
		}
		return "network error"
	case APIErrorHTTP:
		msg := fmt.Sprintf("API error: %d", e.StatusCode)
		if e.Message != "" {
			msg += " " + e.Message
		}
		if len(e.FieldErrors) > 0 {
			msg += " (" + e.fieldSummary() + ")"
		}
		return msg
	default:
		if e.Message == "" {
			return "request was not successful"
		}
		return e.Message
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (e *APIError) fieldSummary() string {
	fields := make([]string, 0, len(e.FieldErrors))
	for field := range e.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+strings.Join(e.FieldErrors[field], ", "))
	}
	return strings.Join(parts, "; ")
}

func NewTransportError(err error) *APIError {
	return &APIError{Kind: APIErrorTransport, Err: err}
}

func NewHTTPError(status int, message string, fields map[string][]string) *APIError {
	return &APIError{Kind: APIErrorHTTP, StatusCode: status, Message: message, FieldErrors: fields}
}

func NewLogicalError(status int, message string) *APIError {
	return &APIError{Kind: APIErrorLogical, StatusCode: status, Message: message}
}

// AsAPIError unwraps err into an *APIError when it carries one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func IsAPIErrorKind(err error, kind APIErrorKind) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == kind
}

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
