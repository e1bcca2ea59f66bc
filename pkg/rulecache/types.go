package rulecache

import (
	"context"
	"time"
)

// Backend is a TTL'd byte cache. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Get returns the cached value for key. ok is false on a miss;
	// a non-nil error indicates the backend itself failed.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Close releases resources held by the backend.
	Close() error
}

// Recorder receives cache outcome notifications. The telemetry package
// provides a Prometheus-backed implementation.
type Recorder interface {
	CacheHit()
	CacheMiss()
}

type nopRecorder struct{}

func (nopRecorder) CacheHit()  {}
func (nopRecorder) CacheMiss() {}
