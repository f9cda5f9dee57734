package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// mirrorEnvelope wraps a stored value with the schema version it was
// written under
type mirrorEnvelope struct {
	Version    int             `json:"v"`
	InsertedAt time.Time       `json:"inserted_at"`
	Value      json.RawMessage `json:"value"`
}

// RedisMirror is a persistent cache tier backed by Redis. Entries written
// under an older schema version are discarded on read; there is no
// migration across version bumps.
type RedisMirror struct {
	client *redis.Client
}

// NewRedisMirror creates a mirror from go-redis options
func NewRedisMirror(addr, password string, db int) *RedisMirror {
	return &RedisMirror{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// NewRedisMirrorFromClient wraps an existing client; used by tests
func NewRedisMirrorFromClient(client *redis.Client) *RedisMirror {
	return &RedisMirror{client: client}
}

// Ping checks connectivity
func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close closes the underlying connection
func (m *RedisMirror) Close() error {
	return m.client.Close()
}

// Get reads an entry, treating version mismatch as a miss and deleting the
// stale value
func (m *RedisMirror) Get(ctx context.Context, key string, version int, dest interface{}) (bool, error) {
	data, err := m.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read mirror entry: %w", err)
	}

	var envelope mirrorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		// undecodable entries are dropped, not surfaced
		_ = m.client.Del(ctx, key).Err()
		return false, nil
	}
	if envelope.Version != version {
		_ = m.client.Del(ctx, key).Err()
		return false, nil
	}

	if err := json.Unmarshal(envelope.Value, dest); err != nil {
		_ = m.client.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

// Set writes an entry under the given version; Redis enforces the TTL
func (m *RedisMirror) Set(ctx context.Context, key string, version int, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal mirror value: %w", err)
	}
	data, err := json.Marshal(mirrorEnvelope{
		Version:    version,
		InsertedAt: time.Now().UTC(),
		Value:      raw,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mirror envelope: %w", err)
	}
	if err := m.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write mirror entry: %w", err)
	}
	return nil
}
