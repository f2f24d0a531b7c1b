package domain

import "errors"

// Run-level failures. Single-check failures are never surfaced through these
// except ErrCheckExecution, which the runner folds into an error-status result.
var (
	// ErrDataUnavailable is returned when no provider knows the token.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrProviderError is returned when an upstream call fails or returns malformed data.
	ErrProviderError = errors.New("market data provider error")

	// ErrTimeout is returned when an upstream call exceeds its bounded wait.
	ErrTimeout = errors.New("market data provider timeout")

	// ErrInsufficientData is returned when no check executed in a run.
	ErrInsufficientData = errors.New("insufficient data: no check executed")

	// ErrCheckExecution marks a single check that could not complete.
	ErrCheckExecution = errors.New("check execution failed")

	// ErrInvalidToken is returned for identifiers that are not mint addresses.
	ErrInvalidToken = errors.New("invalid token identifier")
)

// ErrorKind is the machine-readable failure class exposed to callers.
type ErrorKind string

// Error kinds.
const (
	KindDataUnavailable  ErrorKind = "data_unavailable"
	KindProviderError    ErrorKind = "provider_error"
	KindTimeout          ErrorKind = "timeout"
	KindInsufficientData ErrorKind = "insufficient_data"
	KindInvalidToken     ErrorKind = "invalid_token"
	KindInternal         ErrorKind = "internal"
)

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrDataUnavailable):
		return KindDataUnavailable
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrProviderError):
		return KindProviderError
	case errors.Is(err, ErrInsufficientData):
		return KindInsufficientData
	case errors.Is(err, ErrInvalidToken):
		return KindInvalidToken
	default:
		return KindInternal
	}
}
