// Package retry implements bounded retries with linearly increasing delay
// and coarse classification of transport failures for user-facing reporting.
package retry

import (
	"context"
	"strings"
	"time"

	retrylib "github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Kind is a coarse failure class derived from known transport error substrings.
type Kind string

// Failure kinds.
const (
	KindAuthorization Kind = "authorization"
	KindConflict      Kind = "conflict"
	KindExpiredLink   Kind = "expired_link"
	KindUnknown       Kind = "unknown"
)

// Result is the structured outcome of a retried operation. Callers inspect it
// instead of handling a raised error, so they can degrade gracefully.
type Result struct {
	OK       bool
	Attempts int
	Kind     Kind
	Message  string // user-facing message for the final failure
	Err      error  // underlying error, nil on success
}

// Engine runs fallible operations with a fixed attempt budget and a delay of
// base*(maxAttempts-remaining) between attempts. Linear, not exponential.
type Engine struct {
	maxAttempts int
	base        time.Duration
	log         *zap.Logger
}

// New constructs an Engine. maxAttempts below 1 falls back to 3.
func New(log *zap.Logger, maxAttempts int, base time.Duration) *Engine {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &Engine{maxAttempts: maxAttempts, base: base, log: log}
}

// Do runs op until it succeeds or the attempt budget is spent.
func (e *Engine) Do(ctx context.Context, name string, op func(context.Context) error) Result {
	attempts := 0
	err := retrylib.Do(ctx, retrylib.WithMaxRetries(uint64(e.maxAttempts-1), e.linear()), func(ctx context.Context) error {
		attempts++
		if err := op(ctx); err != nil {
			e.log.Warn("retryable operation failed",
				zap.String("op", name),
				zap.Int("attempt", attempts),
				zap.Int("left", e.maxAttempts-attempts),
				zap.Error(err),
			)
			return retrylib.RetryableError(err)
		}
		return nil
	})
	if err == nil {
		return Result{OK: true, Attempts: attempts}
	}
	kind, msg := Classify(err)
	return Result{Attempts: attempts, Kind: kind, Message: msg, Err: err}
}

// linear returns a backoff whose nth delay is base*n.
func (e *Engine) linear() retrylib.Backoff {
	n := 0
	return retrylib.BackoffFunc(func() (time.Duration, bool) {
		n++
		return e.base * time.Duration(n), false
	})
}

// Classify maps known error substrings to a failure kind and message.
// Unrecognized errors pass through with their raw message.
func Classify(err error) (Kind, string) {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not-authorized"):
		return KindAuthorization, "not authorized (possibly banned)"
	case strings.Contains(msg, "conflict"):
		return KindConflict, "already a member"
	case strings.Contains(msg, "gone"):
		return KindExpiredLink, "invite link is invalid or expired"
	default:
		return KindUnknown, msg
	}
}
