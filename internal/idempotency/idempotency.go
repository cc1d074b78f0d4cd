// Package idempotency replays the first response for a repeated Idempotency-Key.
package idempotency

import (
	"context"
	"time"
)

type State string

const (
	StatePending State = "pending"
	StateDone    State = "done"
)

// Record is what a key resolves to. Fingerprint identifies the request body
// the key was first used with.
type Record struct {
	State       State  `json:"state"`
	Fingerprint string `json:"fingerprint"`
	StatusCode  int    `json:"statusCode,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Store reserves keys atomically. Reserve returns reserved=false together with
// the existing record when the key is already taken.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (existing Record, reserved bool, err error)
	Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}
