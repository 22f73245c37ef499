package sessions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ Repo = (*RedisRepo)(nil)

// RedisRepo stores sessions as JSON values in Redis with a TTL.
type RedisRepo struct {
	redis *redis.Client
}

// NewRedisRepo creates a Redis-backed session store.
func NewRedisRepo(redisClient *redis.Client) *RedisRepo {
	return &RedisRepo{redis: redisClient}
}

func (r *RedisRepo) Upsert(ctx context.Context, session *Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "[RedisRepo.Upsert] marshal session")
	}
	if err := r.redis.Set(ctx, sessionKey(session.ID), payload, ttl).Err(); err != nil {
		return errors.Wrap(err, "[RedisRepo.Upsert] redis set")
	}
	return nil
}

func (r *RedisRepo) Get(ctx context.Context, id string) (*Session, error) {
	payload, err := r.redis.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Get] redis get")
	}

	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, errors.Wrap(err, "[RedisRepo.Get] unmarshal session")
	}
	return &session, nil
}

func (r *RedisRepo) Delete(ctx context.Context, id string) error {
	if err := r.redis.Del(ctx, sessionKey(id)).Err(); err != nil {
		return errors.Wrap(err, "[RedisRepo.Delete] redis del")
	}
	return nil
}

func sessionKey(id string) string {
	return "session:" + id
}
