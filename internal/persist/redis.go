package persist

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "ta2:fp:"

// RedisBackend stores fitted pipelines in Redis:
//
//	ta2:fp:<id>:doc    string holding the document
//	ta2:fp:<id>:steps  hash of step index to blob
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects to addr, which is either host:port or a
// redis:// URL, and pings the server.
func NewRedisBackend(ctx context.Context, addr string) (*RedisBackend, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		var err error
		if opts, err = redis.ParseURL(addr); err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisBackend{client: client}, nil
}

// Close closes the client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func redisDocKey(id string) string   { return redisPrefix + id + ":doc" }
func redisStepsKey(id string) string { return redisPrefix + id + ":steps" }

func (r *RedisBackend) PutBlob(ctx context.Context, fittedID string, step int, data []byte) error {
	if err := checkID(fittedID); err != nil {
		return err
	}
	return r.client.HSet(ctx, redisStepsKey(fittedID), strconv.Itoa(step), data).Err()
}

func (r *RedisBackend) PutDocument(ctx context.Context, fittedID string, doc []byte) error {
	if err := checkID(fittedID); err != nil {
		return err
	}
	return r.client.Set(ctx, redisDocKey(fittedID), doc, 0).Err()
}

func (r *RedisBackend) GetDocument(ctx context.Context, fittedID string) ([]byte, error) {
	data, err := r.client.Get(ctx, redisDocKey(fittedID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", redisDocKey(fittedID), ErrNotFound)
	}
	return data, err
}

func (r *RedisBackend) GetBlob(ctx context.Context, fittedID string, step int) ([]byte, error) {
	data, err := r.client.HGet(ctx, redisStepsKey(fittedID), strconv.Itoa(step)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s[%d]: %w", redisStepsKey(fittedID), step, ErrNotFound)
	}
	return data, err
}

func (r *RedisBackend) BlobCount(ctx context.Context, fittedID string) (int, error) {
	n, err := r.client.HLen(ctx, redisStepsKey(fittedID)).Result()
	return int(n), err
}

func (r *RedisBackend) ListDocuments(ctx context.Context) ([]string, error) {
	var ids []string
	iter := r.client.Scan(ctx, 0, redisPrefix+"*:doc", 100).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), redisPrefix)
		ids = append(ids, strings.TrimSuffix(key, ":doc"))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}
