package toolgateway

import (
	"context"
	"sync"
	"time"

	"github.com/mcpgateway/mcpgateway/pkg/logger"
	"github.com/mcpgateway/mcpgateway/pkg/records"
	"github.com/mcpgateway/mcpgateway/pkg/store"
)

// cacheTTL bounds how stale the tool list may get. Permission filtering is
// never cached; it is applied per request on top of the raw list.
const cacheTTL = 5 * time.Minute

// listCache holds the raw tool record list per process. A stale hit is
// acceptable; concurrent refreshes collapse onto one loader.
type listCache struct {
	store store.Store[records.ToolRecord]

	mu        sync.Mutex
	tools     []*records.ToolRecord
	byName    map[string]*records.ToolRecord
	expiresAt time.Time
}

func newListCache(s store.Store[records.ToolRecord]) *listCache {
	return &listCache{store: s}
}

// snapshot returns the cached tool list, refreshing it when expired. On
// refresh failure a stale snapshot is served if one exists.
func (c *listCache) snapshot(ctx context.Context) ([]*records.ToolRecord, map[string]*records.ToolRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.expiresAt) {
		return c.tools, c.byName, nil
	}

	tools, err := c.store.List(ctx)
	if err != nil {
		if c.tools != nil {
			logger.Warnf("Tool list refresh failed, serving stale cache: %v", err)
			return c.tools, c.byName, nil
		}
		return nil, nil, err
	}

	byName := make(map[string]*records.ToolRecord, len(tools))
	for _, tool := range tools {
		byName[tool.Name] = tool
	}

	c.tools = tools
	c.byName = byName
	c.expiresAt = time.Now().Add(cacheTTL)
	return c.tools, c.byName, nil
}

// lookup resolves one tool by name, falling back to the store on a cache
// miss so freshly created tools are callable before the next refresh.
func (c *listCache) lookup(ctx context.Context, name string) (*records.ToolRecord, error) {
	_, byName, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if tool, ok := byName[name]; ok {
		return tool, nil
	}
	return c.store.TryGet(ctx, name)
}

// invalidate drops the cached list so the next read reloads.
func (c *listCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expiresAt = time.Time{}
}
