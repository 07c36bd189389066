package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisProvisionStore shares provisioning progress across service instances.
type RedisProvisionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisProvisionStore(client *redis.Client, ttl time.Duration) *RedisProvisionStore {
	return &RedisProvisionStore{client: client, ttl: ttl}
}

func provisionKey(tenantID string) string {
	return fmt.Sprintf("tenants:provision:%s", tenantID)
}

func (s *RedisProvisionStore) Put(ctx context.Context, state ProvisionState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, provisionKey(state.TenantID), data, s.ttl).Err()
}

func (s *RedisProvisionStore) Get(ctx context.Context, tenantID string) (*ProvisionState, bool, error) {
	val, err := s.client.Get(ctx, provisionKey(tenantID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var st ProvisionState
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return nil, false, fmt.Errorf("decode provision state: %w", err)
	}
	return &st, true, nil
}

func (s *RedisProvisionStore) Delete(ctx context.Context, tenantID string) error {
	return s.client.Del(ctx, provisionKey(tenantID)).Err()
}
