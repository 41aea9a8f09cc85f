// Package errors classifies errors from the entry store's HTTP API and waits
// out the matching backoff.
package errors

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"
)

// StoreError represents an error returned by the entry store's HTTP API.
type StoreError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("entry store error (status %d): %s", e.StatusCode, e.Message)
}

// NewStoreError creates a new StoreError.
func NewStoreError(statusCode int, message string, retryAfter time.Duration) *StoreError {
	return &StoreError{
		StatusCode: statusCode,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// HandleStoreAPIError classifies an error from the entry store and waits out
// the matching backoff. A 503 sleeps Retry-After (or retryDelay) and returns
// nil, meaning the caller should retry now. Other 5xx, network timeouts and
// unclassified errors sleep retryDelay maxRetries times, logging each wait,
// and then return a wrapped error; 4xx errors return a wrapped error at once.
// It never re-runs the failed call itself.
func HandleStoreAPIError(err error, maxRetries int, retryDelay time.Duration) error {
	var storeErr *StoreError
	var netErr interface{ Timeout() bool }

	switch {
	case errors.As(err, &storeErr):
		return handleStoreError(storeErr, maxRetries, retryDelay)
	case errors.As(err, &netErr) && netErr.Timeout():
		return handleNetworkError(err, maxRetries, retryDelay)
	case err != nil:
		return handleGenericError(err, maxRetries, retryDelay)
	}

	return nil
}

func handleStoreError(err *StoreError, maxRetries int, retryDelay time.Duration) error {
	log.Printf("entry store API error: %v", err)

	// 503 (store unavailable, per spec's error taxonomy): honor Retry-After.
	if err.StatusCode == http.StatusServiceUnavailable {
		if err.RetryAfter > 0 {
			time.Sleep(err.RetryAfter)
			return nil
		}
		time.Sleep(retryDelay)
		return nil
	}

	if err.StatusCode >= 500 && err.StatusCode < 600 {
		for i := 0; i < maxRetries; i++ {
			log.Printf("entry store server error, retry %d/%d after %v", i+1, maxRetries, retryDelay)
			time.Sleep(retryDelay)
		}
		return fmt.Errorf("max retries reached for entry store error: %w", err)
	}

	// 404/400 (missing task, malformed patch): not retryable.
	return fmt.Errorf("entry store client error (no retry): %w", err)
}

func handleNetworkError(err error, maxRetries int, retryDelay time.Duration) error {
	log.Printf("network error talking to entry store: %v", err)

	for i := 0; i < maxRetries; i++ {
		log.Printf("network error, retry %d/%d after %v", i+1, maxRetries, retryDelay)
		time.Sleep(retryDelay)
	}

	return fmt.Errorf("max retries reached for network error: %w", err)
}

func handleGenericError(err error, maxRetries int, retryDelay time.Duration) error {
	log.Printf("unclassified entry store error: %v", err)

	for i := 0; i < maxRetries; i++ {
		log.Printf("retry %d/%d after %v", i+1, maxRetries, retryDelay)
		time.Sleep(retryDelay)
	}

	return fmt.Errorf("max retries reached: %w", err)
}
