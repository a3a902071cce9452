package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers which deliveries were already handled
type IdempotencyStore interface {
	// MarkProcessed sets the marker for key if it is absent and reports
	// whether this call set it
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Unmark removes a marker so a failed delivery can be retried
	Unmark(ctx context.Context, key string) error

	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is the time-to-live for processed event IDs
	TTL time.Duration

	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     30 * 24 * time.Hour,
		Enabled: true,
	}
}
