// Package redis stores state documents in Redis hashes, with a sorted set
// indexing their namespaces.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/worship-scheduler/internal/persistence"
)

// DefaultPrefix namespaces every document key written by Store.
const DefaultPrefix = "worship:state:"

// DefaultIndexKey is the sorted set listing every stored namespace. All
// members share score 0 so the set orders them lexicographically.
const DefaultIndexKey = "worship:index"

const (
	fieldData      = "data"
	fieldDigest    = "digest"
	fieldUpdatedAt = "updated_at"
)

// Store is a StateStore backed by Redis. Each document is a hash holding the
// JSON data, its digest and the last update time.
type Store struct {
	client *redis.Client
	prefix string
	index  string
	now    func() time.Time
}

// NewStore connects to the Redis server at redisURL.
func NewStore(ctx context.Context, redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewStoreWithClient(client), nil
}

// NewStoreWithClient creates a store from an existing Redis client.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client, prefix: DefaultPrefix, index: DefaultIndexKey, now: time.Now}
}

func (s *Store) key(namespace string) string {
	return s.prefix + namespace
}

// Load returns the document stored under namespace.
func (s *Store) Load(ctx context.Context, namespace string) (persistence.Document, error) {
	values, err := s.client.HGetAll(ctx, s.key(namespace)).Result()
	if err != nil {
		return persistence.Document{}, fmt.Errorf("redis: load %s: %w", namespace, err)
	}
	data, ok := values[fieldData]
	if !ok {
		return persistence.Document{}, persistence.ErrNotFound
	}

	doc := persistence.Document{
		Namespace: namespace,
		Data:      []byte(data),
		Digest:    values[fieldDigest],
	}
	if parsed, err := time.Parse(time.RFC3339Nano, values[fieldUpdatedAt]); err == nil {
		doc.UpdatedAt = parsed
	}
	return doc, nil
}

// Save writes the document unless the stored digest already matches. The
// compare and write run inside an optimistic WATCH transaction.
func (s *Store) Save(ctx context.Context, namespace string, data []byte) (bool, error) {
	if !persistence.ValidNamespace(namespace) {
		return false, persistence.ErrInvalidNamespace
	}
	key := s.key(namespace)
	digest := persistence.Digest(data)

	var written bool
	txf := func(tx *redis.Tx) error {
		written = false
		existing, err := tx.HGet(ctx, key, fieldDigest).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && existing == digest {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldData, data,
				fieldDigest, digest,
				fieldUpdatedAt, s.now().UTC().Format(time.RFC3339Nano),
			)
			pipe.ZAdd(ctx, s.index, redis.Z{Member: namespace})
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}

	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("redis: save %s: %w", namespace, err)
		}
		return written, nil
	}
	return false, fmt.Errorf("redis: save %s: %w", namespace, redis.TxFailedErr)
}

// Delete removes the document stored under namespace.
func (s *Store) Delete(ctx context.Context, namespace string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(namespace))
		pipe.ZRem(ctx, s.index, namespace)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete %s: %w", namespace, err)
	}
	return nil
}

// List returns the indexed namespaces beginning with prefix in byte order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	bounds := &redis.ZRangeBy{Min: "-", Max: "+"}
	if prefix != "" {
		// 0xff never occurs in UTF-8, so it sorts after every extension of prefix.
		bounds = &redis.ZRangeBy{Min: "[" + prefix, Max: "[" + prefix + "\xff"}
	}
	namespaces, err := s.client.ZRangeByLex(ctx, s.index, bounds).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list %s: %w", prefix, err)
	}
	if namespaces == nil {
		namespaces = make([]string, 0)
	}
	return namespaces, nil
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ persistence.StateStore = (*Store)(nil)
