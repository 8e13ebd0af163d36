// Package dberror classifies storage errors and retries the transient ones.
// Every backend funnels its failures through Wrap so the application layer
// only ever sees domain.StorageUnavailableError for retryable conditions.
package dberror

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/gdp-network/gdpnet/internal/domain"
	"github.com/gdp-network/gdpnet/internal/infra/observability"
)

// ErrorType classifies storage errors for appropriate handling.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeConnectivity indicates the store is unreachable.
	ErrorTypeConnectivity
	// ErrorTypeTimeout indicates the operation timed out.
	ErrorTypeTimeout
	// ErrorTypeContention indicates a lock or serialization conflict.
	ErrorTypeContention
	ErrorTypeAuth
	ErrorTypeQuery
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeConnectivity:
		return "connectivity"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeContention:
		return "contention"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Postgres SQLSTATE codes worth retrying.
var transientPgCodes = map[string]ErrorType{
	"40001": ErrorTypeContention,   // serialization_failure
	"40P01": ErrorTypeContention,   // deadlock_detected
	"55P03": ErrorTypeContention,   // lock_not_available
	"57P01": ErrorTypeConnectivity, // admin_shutdown
	"57P03": ErrorTypeConnectivity, // cannot_connect_now
	"53300": ErrorTypeConnectivity, // too_many_connections
}

var (
	connectivityPatterns = []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"no such host",
		"dial tcp",
		"dial unix",
		"broken pipe",
		"network is unreachable",
		"no route to host",
		"server shutdown",
		"neo4j is unavailable",
		"pool is closed",
		"driver is closed",
		"unexpected eof",
	}
	timeoutPatterns = []string{
		"i/o timeout",
		"timeout",
		"timed out",
	}
	contentionPatterns = []string{
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"sqlite_locked",
	}
	authPatterns = []string{
		"unauthorized",
		"authentication failed",
		"password authentication",
		"permission denied",
	}
	queryPatterns = []string{
		"syntax error",
		"no such table",
		"no such column",
		"does not exist",
		"invalid cypher",
	}
)

// Classify determines the type of a storage error.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if t, ok := transientPgCodes[pgErr.Code]; ok {
			return t
		}
		if strings.HasPrefix(pgErr.Code, "08") {
			return ErrorTypeConnectivity
		}
		if strings.HasPrefix(pgErr.Code, "28") {
			return ErrorTypeAuth
		}
		if strings.HasPrefix(pgErr.Code, "42") {
			return ErrorTypeQuery
		}
		return ErrorTypeUnknown
	}
	if pgconn.Timeout(err) {
		return ErrorTypeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeConnectivity
	}

	msg := strings.ToLower(err.Error())
	for _, group := range []struct {
		t        ErrorType
		patterns []string
	}{
		{ErrorTypeContention, contentionPatterns},
		{ErrorTypeConnectivity, connectivityPatterns},
		{ErrorTypeTimeout, timeoutPatterns},
		{ErrorTypeAuth, authPatterns},
		{ErrorTypeQuery, queryPatterns},
	} {
		for _, p := range group.patterns {
			if strings.Contains(msg, p) {
				return group.t
			}
		}
	}
	if neo4j.IsRetryable(err) {
		return ErrorTypeConnectivity
	}
	return ErrorTypeUnknown
}

// IsTransient reports whether err is worth retrying. Cancellation is never
// transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrStorageUnavailable) {
		return true
	}
	switch Classify(err) {
	case ErrorTypeConnectivity, ErrorTypeTimeout, ErrorTypeContention:
		return true
	default:
		return false
	}
}

// Wrap annotates a backend error with the operation that failed. Transient
// errors become *domain.StorageUnavailableError; domain errors pass through.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	transient := IsTransient(err)
	observability.StorageErrors.WithLabelValues(op, strconv.FormatBool(transient)).Inc()
	if transient {
		return &domain.StorageUnavailableError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidInput,
		domain.ErrUserNotFound,
		domain.ErrClaimNotFound,
		domain.ErrAlreadyClaimed,
		domain.ErrNotEligible,
		domain.ErrStorageUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ─── Retry ──────────────────────────────────────────────────────────────────

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryConfig returns defaults for storage retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
	}
}

// Retry executes fn, retrying transient errors with jittered exponential
// backoff. It returns the last error if all attempts fail.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := max(cfg.MaxAttempts, 1)
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(Backoff(cfg, attempt-1)):
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

// Backoff returns base·2^attempt capped at MaxBackoff, with up to 20% jitter
// removed so that concurrent retriers spread out.
func Backoff(cfg RetryConfig, attempt int) time.Duration {
	if cfg.BaseBackoff <= 0 {
		return 0
	}
	backoff := cfg.BaseBackoff * time.Duration(1<<uint(min(attempt, 20)))
	if cfg.MaxBackoff > 0 {
		backoff = min(backoff, cfg.MaxBackoff)
	}
	jitter := time.Duration(rand.Int63n(int64(backoff)/5 + 1))
	return backoff - jitter
}
