package store

import "context"

// Store is the opaque durable key-value port the quest engine persists
// through. Values are JSON blobs; the store never interprets them.
//
// Load returns (value, true, nil) when the key exists and (nil, false, nil)
// when it does not — an externally cleared store simply reads as absent, so
// callers fall back to their default state without distinguishing "first
// run" from "reset".
type Store interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
