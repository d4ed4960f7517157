package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strings"
	"time"
)

// ErrorType classifies a failed transfer attempt for the retry loop
type ErrorType int

const (
	// ErrorTypeSuccess indicates the operation succeeded
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeExpired indicates the signed URL is no longer accepted (403, expired signature)
	ErrorTypeExpired
	// ErrorTypeNetwork indicates connection trouble (reset, timeout, unexpected EOF)
	ErrorTypeNetwork
	// ErrorTypeRetryable indicates a server-side failure worth retrying (5xx, 429)
	ErrorTypeRetryable
	// ErrorTypeFatal indicates a failure that will not go away by retrying
	ErrorTypeFatal
)

// RetryConfig holds parameters for ExecuteWithRetry
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first (minimum 1)
	MaxAttempts int
	// InitialDelay is the base delay for exponential backoff
	InitialDelay time.Duration
	// MaxDelay caps the delay between attempts
	MaxDelay time.Duration
	// Renew is called before retrying after an ErrorTypeExpired failure, e.g. to
	// fetch a fresh signed URL. Without it expired errors are fatal.
	Renew func(context.Context) error
	// OnRetry is invoked before each retry
	OnRetry func(attempt int, err error, errorType ErrorType)
}

// StatusCodeError is returned by transfer code for unexpected HTTP statuses so
// the classifier does not have to parse strings.
type StatusCodeError struct {
	StatusCode int
	Status     string
}

func (e *StatusCodeError) Error() string {
	return fmt.Sprintf("unexpected status: %s", e.Status)
}

// ClassifyError determines the retry strategy for err
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeFatal
	}

	var se *StatusCodeError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 401 || se.StatusCode == 403:
			return ErrorTypeExpired
		case se.StatusCode == 408 || se.StatusCode == 429 || se.StatusCode >= 500:
			return ErrorTypeRetryable
		default:
			return ErrorTypeFatal
		}
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrorTypeNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTypeNetwork
	}

	errStr := strings.ToLower(err.Error())
	for _, s := range []string{"connection reset", "broken pipe", "connection refused", "tls handshake timeout", "i/o timeout", "timeout", "eof"} {
		if strings.Contains(errStr, s) {
			return ErrorTypeNetwork
		}
	}
	for _, s := range []string{"request has expired", "signature expired", "accessdenied"} {
		if strings.Contains(errStr, s) {
			return ErrorTypeExpired
		}
	}
	return ErrorTypeFatal
}

// CalculateBackoff returns exponential backoff with full jitter:
// random(0, min(maxDelay, initialDelay * 2^attempt)).
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}
	base := time.Duration(1<<uint(min(attempt, 30))) * initialDelay
	if base > maxDelay || base <= 0 {
		base = maxDelay
	}
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(base)))
}

// ExecuteWithRetry runs operation until it succeeds, fails fatally, the
// attempts run out or ctx is done. Backoff sleeps are interrupted by ctx.
func ExecuteWithRetry(ctx context.Context, cfg RetryConfig, operation func() error) error {
	attempts := max(cfg.MaxAttempts, 1)
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		errType := ClassifyError(err)
		if errType == ErrorTypeFatal || (errType == ErrorTypeExpired && cfg.Renew == nil) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, errType)
		}

		if errType == ErrorTypeExpired {
			if rerr := cfg.Renew(ctx); rerr != nil {
				return fmt.Errorf("renew after %v failed: %w", err, rerr)
			}
			continue
		}

		if err := sleepContext(ctx, CalculateBackoff(attempt+1, cfg.InitialDelay, cfg.MaxDelay)); err != nil {
			return fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ErrorTypeName returns a human-readable name for an ErrorType
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeExpired:
		return "expired"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
