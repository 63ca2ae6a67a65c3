// Package cache keeps a short Redis trail of recent request activity and
// publishes fill events. Both surfaces are optional and nil-safe so dry-run
// and test flows run without Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recentKey = "perps:recent"
	recentCap = 100
)

// Activity is one recent-request entry.
type Activity struct {
	Signature string    `json:"signature"`
	Market    string    `json:"market"`
	Side      string    `json:"side"`
	Operation string    `json:"operation"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Cache wraps the Redis client.
type Cache struct {
	client *redis.Client
}

func New(addr string) *Cache {
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   0,
		}),
	}
}

// Ping verifies the connection.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// AddActivity pushes an entry onto the recent list and trims it to the cap.
// Nil-safe.
func (c *Cache) AddActivity(ctx context.Context, a *Activity) error {
	if c == nil {
		return nil
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.LPush(ctx, recentKey, data)
	pipe.LTrim(ctx, recentKey, 0, recentCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

// RecentActivity returns up to limit newest entries.
func (c *Cache) RecentActivity(ctx context.Context, limit int64) ([]Activity, error) {
	if c == nil {
		return nil, nil
	}
	if limit <= 0 || limit > recentCap {
		limit = recentCap
	}
	raw, err := c.client.LRange(ctx, recentKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent activity: %w", err)
	}
	out := make([]Activity, 0, len(raw))
	for _, item := range raw {
		var a Activity
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Close releases the client. Nil-safe.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
