package ranking

import (
	"context"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wonny/camon/backend/pkg/redis"
)

// ZMember is a sorted-set member with its score
type ZMember struct {
	Member string
	Score  float64
}

// Store is the persistence surface the engine needs. The production
// implementation is Redis; tests substitute an in-memory map.
type Store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]interface{}) error
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	ZAdd(ctx context.Context, key, member string, score float64) error
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMember, error)
	ZRangeByScoreMin(ctx context.Context, key string, min float64) ([]string, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error

	Del(ctx context.Context, keys ...string) error
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
}

// redisStore backs the engine with the shared Redis client
type redisStore struct {
	rdb *goredis.Client
}

func NewRedisStore(client *redis.Client) Store {
	return &redisStore{rdb: client.Redis()}
}

func (s *redisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, key).Result()
}

func (s *redisStore) HSet(ctx context.Context, key string, fields map[string]interface{}) error {
	return s.rdb.HSet(ctx, key, fields).Err()
}

func (s *redisStore) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	return s.rdb.HIncrBy(ctx, key, field, incr).Result()
}

func (s *redisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *redisStore) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.rdb.SAdd(ctx, key, args...).Err()
}

func (s *redisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.rdb.SMembers(ctx, key).Result()
}

func (s *redisStore) ZAdd(ctx context.Context, key, member string, score float64) error {
	return s.rdb.ZAdd(ctx, key, goredis.Z{Member: member, Score: score}).Err()
}

func (s *redisStore) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMember, error) {
	zs, err := s.rdb.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	members := make([]ZMember, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		members[i] = ZMember{Member: member, Score: z.Score}
	}
	return members, nil
}

func (s *redisStore) ZRangeByScoreMin(ctx context.Context, key string, min float64) ([]string, error) {
	return s.rdb.ZRangeByScore(ctx, key, &goredis.ZRangeBy{
		Min: strconv.FormatFloat(min, 'f', -1, 64),
		Max: "+inf",
	}).Result()
}

func (s *redisStore) ZCard(ctx context.Context, key string) (int64, error) {
	return s.rdb.ZCard(ctx, key).Result()
}

func (s *redisStore) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	return s.rdb.ZRemRangeByRank(ctx, key, start, stop).Err()
}

func (s *redisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// ScanKeys walks the keyspace with SCAN, never KEYS
func (s *redisStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, pattern, 500).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}
