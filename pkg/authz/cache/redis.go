package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/atriumhq/atrium/pkg/authz"
)

// DefaultRedisTTL bounds staleness of shared cached sets
const DefaultRedisTTL = 5 * time.Minute

// Redis caches effective permission sets in Redis so multiple instances
// share one cache. Values are JSON-encoded code lists. Cache errors degrade
// to a direct resolution; a broken cache never breaks authorization.
type Redis struct {
	source Source
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis decorator over source and verifies connectivity
func NewRedis(source Source, addr, password string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &Redis{source: source, client: client, ttl: ttl}, nil
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	return r.client.Close()
}

// GetUserPermissions returns the cached effective set, resolving and
// repopulating on miss
func (r *Redis) GetUserPermissions(ctx context.Context, userID int64, tenantID *int64) ([]string, error) {
	key := userKey(userID, tenantID)

	cached, err := r.client.Get(ctx, key).Result()
	if err == nil {
		var codes []string
		if err := json.Unmarshal([]byte(cached), &codes); err == nil {
			return codes, nil
		}
	}

	codes, err := r.source.GetUserPermissions(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(codes); err == nil {
		r.client.Set(ctx, key, data, r.ttl)
	}
	return codes, nil
}

// UserHasPermission answers a point query from the cached set. Resource
// checks bypass the cache entirely.
func (r *Redis) UserHasPermission(ctx context.Context, userID int64, code string, tenantID *int64, resource *authz.ResourceRef) (bool, error) {
	if resource != nil {
		return r.source.UserHasPermission(ctx, userID, code, tenantID, resource)
	}
	codes, err := r.GetUserPermissions(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	return codesMatch(codes, code), nil
}

// Invalidate drops the cached set for one user/tenant pair
func (r *Redis) Invalidate(ctx context.Context, userID int64, tenantID *int64) error {
	return r.client.Del(ctx, userKey(userID, tenantID)).Err()
}
