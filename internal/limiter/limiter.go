// Package limiter defines interfaces and implementations for OTP verification rate limiting.
package limiter

import (
	"context"
	"time"
)

// Limiter controls OTP verification attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether verification is currently allowed and optional retry-after.
	Allow(ctx context.Context, identity string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful verification.
	Success(ctx context.Context, identity string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, identity string, ipHash []byte) (bool, time.Duration, error)
}
