// Package sessions maps MCP streamable-HTTP session ids to the backend
// replica they are pinned to.
//
// Entries are written once, on the first proxied response that carries a
// session id, and are never mutated afterwards. They expire after a TTL
// chosen to outlive any reasonably long MCP session.
package sessions

import (
	"context"
	"time"
)

// DefaultTTL is how long a session binding survives without being re-read.
// MCP sessions are long-lived, so this errs on the generous side.
const DefaultTTL = 8 * time.Hour

// Store is the durable mapping from session id to backend target URL.
type Store interface {
	// Get returns the target URL for the session, or ("", nil) when the
	// session is unknown or expired.
	Get(ctx context.Context, sessionID string) (string, error)

	// Set records the backend target for a session. Last writer wins;
	// session ids are assumed globally unique so writers never actually race.
	Set(ctx context.Context, sessionID, targetURL string) error

	// Close stops background cleanup and releases resources.
	Close() error
}
