package preference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// RedisBacking stores preferences as JSON values keyed by
// "pref:<user>:<type>". No expiry is set on the keys; freshness is the TTL
// cache's concern, durability is Redis's.
type RedisBacking struct {
	client *redis.Client
}

func NewRedisBacking(client *redis.Client) *RedisBacking {
	return &RedisBacking{client: client}
}

func redisKey(userID string, t domain.NotificationType) string {
	return "pref:" + userID + ":" + string(t)
}

func (r *RedisBacking) Load(ctx context.Context, userID string, t domain.NotificationType) (*domain.Preference, error) {
	raw, err := r.client.Get(ctx, redisKey(userID, t)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var p domain.Preference
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("unmarshal preference: %w", err)
	}
	return &p, nil
}

func (r *RedisBacking) Save(ctx context.Context, p *domain.Preference) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal preference: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(p.UserID, p.Type), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisBacking) Delete(ctx context.Context, userID string, t domain.NotificationType) error {
	if err := r.client.Del(ctx, redisKey(userID, t)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

var _ Backing = (*RedisBacking)(nil)
