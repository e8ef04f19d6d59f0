package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpgateway/mcpgateway/pkg/records"
)

// storeUnderTest runs the same behavioral checks against every backend.
func storeUnderTest(t *testing.T, s Store[records.AdapterRecord]) {
	t.Helper()
	ctx := context.Background()

	t.Run("tryget absent", func(t *testing.T) {
		got, err := s.TryGet(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("upsert and get", func(t *testing.T) {
		record := &records.AdapterRecord{Name: "alpha", ImageName: "img", ImageVersion: "1", ReplicaCount: 1}
		require.NoError(t, s.Upsert(ctx, record.Name, record))

		got, err := s.TryGet(ctx, "alpha")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "alpha", got.Name)
		assert.Equal(t, int32(1), got.ReplicaCount)
	})

	t.Run("returned record is a copy", func(t *testing.T) {
		got, err := s.TryGet(ctx, "alpha")
		require.NoError(t, err)
		require.NotNil(t, got)
		got.ImageVersion = "mutated"

		again, err := s.TryGet(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, "1", again.ImageVersion)
	})

	t.Run("upsert overwrites", func(t *testing.T) {
		record := &records.AdapterRecord{Name: "alpha", ImageName: "img", ImageVersion: "2", ReplicaCount: 3}
		require.NoError(t, s.Upsert(ctx, record.Name, record))

		got, err := s.TryGet(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, "2", got.ImageVersion)
	})

	t.Run("list", func(t *testing.T) {
		record := &records.AdapterRecord{Name: "beta", ImageName: "img", ImageVersion: "1", ReplicaCount: 1}
		require.NoError(t, s.Upsert(ctx, record.Name, record))

		all, err := s.List(ctx)
		require.NoError(t, err)
		names := make([]string, 0, len(all))
		for _, r := range all {
			names = append(names, r.Name)
		}
		assert.ElementsMatch(t, []string{"alpha", "beta"}, names)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "alpha"))

		got, err := s.TryGet(ctx, "alpha")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete absent succeeds", func(t *testing.T) {
		assert.NoError(t, s.Delete(ctx, "never-existed"))
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	storeUnderTest(t, NewMemoryStore[records.AdapterRecord]())
}

func TestRedisStore(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	storeUnderTest(t, NewRedisStore[records.AdapterRecord](client, KindAdapter))
}

func TestRedisStoreKindsDoNotCollide(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	adapters := NewRedisStore[records.AdapterRecord](client, KindAdapter)
	tools := NewRedisStore[records.ToolRecord](client, KindTool)

	require.NoError(t, adapters.Upsert(ctx, "shared", &records.AdapterRecord{Name: "shared"}))

	got, err := tools.TryGet(ctx, "shared")
	require.NoError(t, err)
	assert.Nil(t, got)

	toolList, err := tools.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, toolList)
}

func TestRedisStoreListToleratesDanglingIndexEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore[records.AdapterRecord](client, KindAdapter)
	require.NoError(t, s.Upsert(ctx, "alive", &records.AdapterRecord{Name: "alive"}))

	// Simulate a half-finished delete: index entry remains, record is gone.
	_, err := mr.SAdd("mcpgw:adapter:names", "ghost")
	require.NoError(t, err)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "alive", all[0].Name)
}
