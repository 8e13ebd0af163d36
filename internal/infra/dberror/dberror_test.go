package dberror

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdp-network/gdpnet/internal/domain"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "read tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeUnknown},
		{"refused", errors.New("dial tcp 127.0.0.1:5432: connection refused"), ErrorTypeConnectivity},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), ErrorTypeContention},
		{"net timeout", timeoutErr{}, ErrorTypeTimeout},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, ErrorTypeContention},
		{"pg connection", &pgconn.PgError{Code: "08006"}, ErrorTypeConnectivity},
		{"pg auth", &pgconn.PgError{Code: "28P01"}, ErrorTypeAuth},
		{"pg syntax", &pgconn.PgError{Code: "42601"}, ErrorTypeQuery},
		{"pg unique", &pgconn.PgError{Code: "23505"}, ErrorTypeUnknown},
		{"sqlite schema", errors.New("no such table: claims"), ErrorTypeQuery},
		{"other", errors.New("boom"), ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(errors.New("connection reset by peer")))
	assert.True(t, IsTransient(errors.New("database is locked")))
	assert.True(t, IsTransient(&domain.StorageUnavailableError{Op: "x", Err: errors.New("y")}))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(fmt.Errorf("query: %w", context.DeadlineExceeded)))
	assert.False(t, IsTransient(errors.New("syntax error at or near")))
	assert.False(t, IsTransient(nil))
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("op", nil))

	err := Wrap("claims.create", errors.New("database is locked"))
	var su *domain.StorageUnavailableError
	require.ErrorAs(t, err, &su)
	assert.Equal(t, "claims.create", su.Op)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	err = Wrap("claims.get", domain.ErrClaimNotFound)
	assert.Same(t, domain.ErrClaimNotFound, err)

	err = Wrap("users.get", errors.New("no such column: foo"))
	assert.False(t, errors.Is(err, domain.ErrStorageUnavailable))
	assert.Contains(t, err.Error(), "users.get")
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

	t.Run("succeeds after transient", func(t *testing.T) {
		calls := 0
		got, err := Retry(context.Background(), cfg, func() (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("connection refused")
			}
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, got)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent", func(t *testing.T) {
		calls := 0
		_, err := Retry(context.Background(), cfg, func() (int, error) {
			calls++
			return 0, domain.ErrNotEligible
		})
		assert.ErrorIs(t, err, domain.ErrNotEligible)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		_, err := Retry(context.Background(), cfg, func() (string, error) {
			calls++
			return "", errors.New("database is locked")
		})
		assert.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Retry(ctx, RetryConfig{MaxAttempts: 3, BaseBackoff: time.Second}, func() (int, error) {
			return 0, errors.New("connection refused")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{BaseBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}
	for attempt := 0; attempt < 8; attempt++ {
		d := Backoff(cfg, attempt)
		assert.LessOrEqual(t, d, time.Second)
		assert.Greater(t, d, time.Duration(0))
	}
	assert.Zero(t, Backoff(RetryConfig{}, 3))
}
