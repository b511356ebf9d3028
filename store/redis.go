// Package store persists dispatch network state in Redis. The
// coordinator stays the source of truth; the store only serializes
// whole snapshots, so a restart restores the network to its last
// flushed state without any incremental replay.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shorelinehq/dispatch/dispatch"
	"github.com/shorelinehq/dispatch/types"
)

const (
	networkKey  = "network:snapshot"
	listingsKey = "catalog:listings"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`

	// KeyPrefix namespaces all keys, so multiple deployments can share
	// one Redis.
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`

	// SnapshotInterval is how often the daemon flushes state. Zero
	// disables periodic flushing.
	SnapshotInterval time.Duration `yaml:"snapshot_interval" env:"SNAPSHOT_INTERVAL"`

	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	PoolSize   int `yaml:"pool_size" env:"POOL_SIZE"`
}

// DefaultConfig returns the default Redis configuration.
func DefaultConfig() Config {
	return Config{
		Addr:             "localhost:6379",
		KeyPrefix:        "dispatch",
		SnapshotInterval: 30 * time.Second,
		MaxRetries:       3,
		PoolSize:         10,
	}
}

// Store is a Redis-backed snapshot store.
type Store struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewStore connects to Redis and verifies the connection.
func NewStore(config Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		MaxRetries: config.MaxRetries,
		PoolSize:   config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", config.Addr, err)
	}

	s := &Store{
		client: client,
		prefix: config.KeyPrefix,
		logger: logger.With(zap.String("component", "store")),
	}
	s.logger.Info("store connected", zap.String("addr", config.Addr))
	return s, nil
}

func (s *Store) key(suffix string) string {
	if s.prefix == "" {
		return suffix
	}
	return s.prefix + ":" + suffix
}

// SaveNetwork serializes and stores a coordinator snapshot.
func (s *Store) SaveNetwork(ctx context.Context, snap *dispatch.Snapshot) error {
	if snap == nil {
		return types.NewError(types.ErrValidation, "nil snapshot")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(networkKey), data, 0).Err(); err != nil {
		return fmt.Errorf("storing snapshot: %w", err)
	}

	s.logger.Debug("network snapshot stored",
		zap.Int("agents", len(snap.Agents)),
		zap.Int("sessions", len(snap.Sessions)),
	)
	return nil
}

// LoadNetwork fetches the last stored snapshot. A missing key returns a
// NOT_FOUND error, which first boot treats as an empty network.
func (s *Store) LoadNetwork(ctx context.Context) (*dispatch.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(networkKey)).Bytes()
	if err == redis.Nil {
		return nil, types.NewError(types.ErrNotFound, "no network snapshot stored")
	}
	if err != nil {
		return nil, fmt.Errorf("fetching snapshot: %w", err)
	}

	var snap dispatch.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &snap, nil
}

// SaveListings stores the full catalog listing set.
func (s *Store) SaveListings(ctx context.Context, listings []*types.ServiceListing) error {
	data, err := json.Marshal(listings)
	if err != nil {
		return fmt.Errorf("marshaling listings: %w", err)
	}
	if err := s.client.Set(ctx, s.key(listingsKey), data, 0).Err(); err != nil {
		return fmt.Errorf("storing listings: %w", err)
	}
	s.logger.Debug("listings stored", zap.Int("count", len(listings)))
	return nil
}

// LoadListings fetches the stored listing set. A missing key returns a
// NOT_FOUND error.
func (s *Store) LoadListings(ctx context.Context) ([]*types.ServiceListing, error) {
	data, err := s.client.Get(ctx, s.key(listingsKey)).Bytes()
	if err == redis.Nil {
		return nil, types.NewError(types.ErrNotFound, "no listings stored")
	}
	if err != nil {
		return nil, fmt.Errorf("fetching listings: %w", err)
	}

	var listings []*types.ServiceListing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("unmarshaling listings: %w", err)
	}
	return listings, nil
}

// Ping verifies the Redis connection, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
