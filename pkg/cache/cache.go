package cache

import (
	"context"
	"log/slog"
	"time"

	"geoquery/pkg/db"
)

// Cacher defines the caching interface used by the outbound HTTP client.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// SQLiteCache implements Cacher using pkg/db with a per-entry TTL.
type SQLiteCache struct {
	db  *db.DB
	ttl time.Duration
}

// NewSQLiteCache creates a new cache. A zero TTL means entries never expire.
func NewSQLiteCache(d *db.DB, ttl time.Duration) *SQLiteCache {
	return &SQLiteCache{db: d, ttl: ttl}
}

func (c *SQLiteCache) GetCache(ctx context.Context, key string) ([]byte, bool) {
	var val []byte
	var createdAt string
	row := c.db.QueryRowContext(ctx, "SELECT value, created_at FROM cache WHERE key = ?", key)
	if err := row.Scan(&val, &createdAt); err != nil {
		return nil, false
	}

	if c.ttl > 0 {
		created, err := time.Parse("2006-01-02 15:04:05", createdAt)
		if err == nil && time.Since(created.UTC()) > c.ttl {
			if _, err := c.db.ExecContext(ctx, "DELETE FROM cache WHERE key = ?", key); err != nil {
				slog.Debug("Failed to evict expired cache entry", "key", key, "error", err)
			}
			return nil, false
		}
	}
	return val, true
}

func (c *SQLiteCache) SetCache(ctx context.Context, key string, val []byte) error {
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO cache (key, value, created_at) VALUES (?, ?, CURRENT_TIMESTAMP) ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = CURRENT_TIMESTAMP",
		key, val)
	return err
}

// NullCache is a Cacher that never hits. Used in tests and for providers
// whose responses must not be reused.
type NullCache struct{}

func (NullCache) GetCache(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (NullCache) SetCache(ctx context.Context, key string, val []byte) error {
	return nil
}
