package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	backoff "github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mcpgateway/mcpgateway/pkg/config"
	"github.com/mcpgateway/mcpgateway/pkg/records"
)

// connectMaxElapsed bounds the startup connectivity probe. A store that is
// unreachable for this long fails the process rather than serving errors.
const connectMaxElapsed = 30 * time.Second

// Stores bundles the per-kind record stores over one shared backend
// connection.
type Stores struct {
	Adapters Store[records.AdapterRecord]
	Tools    Store[records.ToolRecord]

	closer func(ctx context.Context) error
}

// Close releases the backend connection, if any.
func (s *Stores) Close(ctx context.Context) error {
	if s.closer == nil {
		return nil
	}
	return s.closer(ctx)
}

// NewStores builds the record stores selected by the configuration.
func NewStores(ctx context.Context, cfg config.StoreConfig) (*Stores, error) {
	switch cfg.Kind {
	case config.StoreKindInMemory:
		return &Stores{
			Adapters: NewMemoryStore[records.AdapterRecord](),
			Tools:    NewMemoryStore[records.ToolRecord](),
		}, nil

	case config.StoreKindDistributedCache:
		client, err := connectRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Adapters: NewRedisStore[records.AdapterRecord](client, KindAdapter),
			Tools:    NewRedisStore[records.ToolRecord](client, KindTool),
			closer:   func(context.Context) error { return client.Close() },
		}, nil

	case config.StoreKindDocumentDB:
		db, closer, err := connectMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Adapters: NewMongoStore[records.AdapterRecord](db, KindAdapter),
			Tools:    NewMongoStore[records.ToolRecord](db, KindTool),
			closer:   closer,
		}, nil

	default:
		return nil, fmt.Errorf("unrecognized resource store kind: %q", cfg.Kind)
	}
}

// ConnectRedis dials the distributed cache and verifies connectivity with a
// bounded exponential backoff. Shared with the session store factory.
func ConnectRedis(ctx context.Context, cfg config.StoreConfig) (redis.UniversalClient, error) {
	return connectRedis(ctx, cfg)
}

func connectRedis(ctx context.Context, cfg config.StoreConfig) (redis.UniversalClient, error) {
	db := 0
	if cfg.Database != "" {
		parsed, err := strconv.Atoi(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("invalid redis database index %q: %w", cfg.Database, err)
		}
		db = parsed
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       db,
	})

	ping := func() (struct{}, error) {
		return struct{}{}, client.Ping(ctx).Err()
	}
	if _, err := backoff.Retry(ctx, ping,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(connectMaxElapsed)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func connectMongo(ctx context.Context, cfg config.StoreConfig) (*mongo.Database, func(ctx context.Context) error, error) {
	opts := mongooptions.Client().ApplyURI(cfg.Address)
	if cfg.Username != "" {
		opts = opts.SetAuth(mongooptions.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	ping := func() (struct{}, error) {
		return struct{}{}, client.Ping(ctx, nil)
	}
	if _, err := backoff.Retry(ctx, ping,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(connectMaxElapsed)); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "mcpgateway"
	}
	return client.Database(database), client.Disconnect, nil
}
