// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyConnected indicates a live connection already exists for the identity.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrNoActiveSession indicates no live connection exists for the identity.
	ErrNoActiveSession = errors.New("no active session")

	// ErrAuthRevoked indicates the transport reported the identity as no longer registered.
	ErrAuthRevoked = errors.New("auth revoked")

	// ErrOTPNotFound indicates no pending verification challenge for the identity.
	ErrOTPNotFound = errors.New("no otp request found")

	// ErrOTPExpired indicates the pending challenge passed its TTL.
	ErrOTPExpired = errors.New("otp expired")

	// ErrOTPMismatch indicates the supplied code does not match the pending challenge.
	ErrOTPMismatch = errors.New("otp mismatch")

	// ErrRateLimited indicates a temporary lock due to repeated failed verifications.
	ErrRateLimited = errors.New("rate limited")
)
