package helpers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-console/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type ConsoleError struct {
	Message string
	Cause   error
}

func (e *ConsoleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ConsoleError) Unwrap() error {
	return e.Cause
}

// Distinct error types for errors.As checks
type ConfigurationError struct{ ConsoleError }
type NetworkError struct{ ConsoleError }
type TransportError struct{ ConsoleError }
type DecodeError struct{ ConsoleError }
type DatabaseError struct{ ConsoleError }
type ValidationError struct{ ConsoleError }

// APIError is a non-2xx reply from the bot backend.
type APIError struct {
	ConsoleError
	StatusCode int
}

// -----------------------------------------------------------------------------

func NewConfigurationError(msg string, cause error) *ConfigurationError {
	return &ConfigurationError{ConsoleError{Message: msg, Cause: cause}}
}

func NewNetworkError(msg string, cause error) *NetworkError {
	return &NetworkError{ConsoleError{Message: msg, Cause: cause}}
}

func NewTransportError(msg string, cause error) *TransportError {
	return &TransportError{ConsoleError{Message: msg, Cause: cause}}
}

func NewDecodeError(msg string, cause error) *DecodeError {
	return &DecodeError{ConsoleError{Message: msg, Cause: cause}}
}

func NewDatabaseError(msg string, cause error) *DatabaseError {
	return &DatabaseError{ConsoleError{Message: msg, Cause: cause}}
}

func NewValidationError(msg string, cause error) *ValidationError {
	return &ValidationError{ConsoleError{Message: msg, Cause: cause}}
}

func NewAPIError(status int, body string) *APIError {
	return &APIError{
		ConsoleError: ConsoleError{Message: fmt.Sprintf("backend returned status %d: %s", status, body)},
		StatusCode:   status,
	}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// IsRetryable reports whether an operation that failed with err may succeed on retry.
// Client-side API errors (4xx) and context cancellation are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
	}
	var decodeErr *DecodeError
	return !errors.As(err, &decodeErr)
}

// -----------------------------------------------------------------------------

// RetryWithBackoff runs fn up to maxRetries+1 times, doubling the delay between attempts.
// It stops early on success, on a non-retryable error or when ctx is done.
func RetryWithBackoff(ctx context.Context, log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == maxRetries || !IsRetryable(err) {
			break
		}

		delay := baseDelay * (1 << attempt)
		if log != nil {
			log.Warning("%s failed (attempt %d/%d): %v. Retrying in %v", operation, attempt+1, maxRetries+1, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

// -----------------------------------------------------------------------------
// Panic containment
// -----------------------------------------------------------------------------

// SafeCall runs fn and converts a panic into an error.
func SafeCall(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered panic: %v", r)
		}
	}()
	fn()
	return nil
}
