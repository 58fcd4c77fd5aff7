// Package contact tracks recent outbound contact per member so pipelines
// can exclude members who were emailed inside the exclusion window.
package contact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisGuard records contacts as redis keys with a TTL equal to the
// exclusion window. Expiry does the forgetting; no sweep is needed.
type RedisGuard struct {
	client *redis.Client
	window time.Duration
}

// NewRedisGuard creates a guard over an existing client. The window is
// how long a contacted member stays excluded.
func NewRedisGuard(client *redis.Client, window time.Duration) *RedisGuard {
	if window <= 0 {
		window = 72 * time.Hour
	}
	return &RedisGuard{client: client, window: window}
}

func contactKey(memberID uuid.UUID) string {
	return fmt.Sprintf("mailflow:contacted:%s", memberID)
}

// RecentlyContacted reports whether the member was contacted inside the
// exclusion window.
func (g *RedisGuard) RecentlyContacted(ctx context.Context, memberID uuid.UUID) (bool, error) {
	_, err := g.client.Get(ctx, contactKey(memberID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("contact guard lookup: %w", err)
	}
	return true, nil
}

// MarkContacted records a contact now, resetting the window.
func (g *RedisGuard) MarkContacted(ctx context.Context, memberID uuid.UUID) error {
	err := g.client.Set(ctx, contactKey(memberID), time.Now().UTC().Format(time.RFC3339), g.window).Err()
	if err != nil {
		return fmt.Errorf("contact guard mark: %w", err)
	}
	return nil
}
