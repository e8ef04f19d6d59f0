package sessions

import (
	"context"
	"fmt"

	"github.com/mcpgateway/mcpgateway/pkg/config"
	"github.com/mcpgateway/mcpgateway/pkg/store"
)

// NewStore builds the session store selected by the configuration.
func NewStore(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Kind {
	case config.StoreKindInMemory:
		return NewMemoryStore(DefaultTTL), nil

	case config.StoreKindDistributedCache:
		client, err := store.ConnectRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, DefaultTTL), nil

	default:
		// Sessions are ephemeral key-value pairs; the document store brings
		// nothing over the cache here, so it is not offered.
		return nil, fmt.Errorf("unrecognized session store kind: %q", cfg.Kind)
	}
}
