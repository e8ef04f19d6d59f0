// Package store provides the durable record store backing both planes.
//
// Three backends are supported: an in-memory map for development and tests,
// a Redis-backed distributed cache, and a MongoDB document store. All
// backends share the same contract: last-writer-wins upserts, absent-is-
// success deletes, and cross-process visibility within one consistency
// window of the backing store.
package store

import (
	"context"
)

// Store is the durable mapping from record name to record. The store
// exclusively owns persisted records; callers hold read-only views and must
// re-read to observe mutations.
type Store[T any] interface {
	// TryGet returns the record with the given name, or (nil, nil) when
	// absent.
	TryGet(ctx context.Context, name string) (*T, error)

	// Upsert persists the record under the given name. Idempotent.
	Upsert(ctx context.Context, name string, record *T) error

	// Delete removes the record. Deleting an absent record is success.
	Delete(ctx context.Context, name string) error

	// List returns all records. Backends that fan out reads from a name
	// index drop names whose record has vanished rather than failing the
	// whole list.
	List(ctx context.Context) ([]*T, error)
}

// Record kinds, used to partition the keyspace between adapters and tools.
const (
	KindAdapter = "adapter"
	KindTool    = "tool"
)
