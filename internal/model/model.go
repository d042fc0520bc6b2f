// Package model defines domain entities used by services and repositories.
package model

import (
	"strings"
	"time"
)

// NormalizeIdentity strips every non-digit character from a raw number.
// All durable records and the live-connection registry are keyed by the result.
func NormalizeIdentity(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SessionRecord is the durable credential blob for one identity.
// The creds payload is opaque to the server (and optionally sealed at rest).
type SessionRecord struct {
	Identity  string
	Creds     []byte
	UpdatedAt time.Time
}

// ConfigRecord is the durable per-identity settings blob.
type ConfigRecord struct {
	Identity  string
	Settings  Settings
	UpdatedAt time.Time
}

// Settings is an arbitrary key→value settings blob. Unknown keys round-trip
// untouched; typed accessors interpret the handful of keys the bot acts on.
type Settings map[string]string

// Well-known settings keys.
const (
	KeyAutoViewStatus = "AUTO_VIEW_STATUS"
	KeyAutoLikeStatus = "AUTO_LIKE_STATUS"
	KeyAutoLikeEmoji  = "AUTO_LIKE_EMOJI"
	KeyAutoReact      = "AUTO_REACT"
	KeyPrefix         = "PREFIX"
)

// Clone returns an independent copy of the settings map.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Enabled reports whether a key is switched on ("true" or "on").
func (s Settings) Enabled(key string) bool {
	v := strings.ToLower(strings.TrimSpace(s[key]))
	return v == "true" || v == "on"
}

// Prefix returns the command prefix, defaulting to ".".
func (s Settings) Prefix() string {
	if p := s[KeyPrefix]; p != "" {
		return p
	}
	return "."
}

// List splits a comma-separated value into trimmed non-empty items.
func (s Settings) List(key string) []string {
	var out []string
	for _, item := range strings.Split(s[key], ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Connection status values reported by bulk operations and the pairing route.
const (
	StatusAlreadyConnected    = "already_connected"
	StatusConnectionInitiated = "connection_initiated"
	StatusFailed              = "failed"
)

// BulkResult reports the outcome of one identity within connectAll/reconnectAll.
type BulkResult struct {
	Identity string `json:"number"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// About is a third party's public status text fetched through a live connection.
type About struct {
	Text  string
	SetAt time.Time
}
