package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const historyKeyPrefix = "chat:history:"

// RedisBackend persists each conversation as a single JSON array under one
// key per user. Every write rewrites the whole value and refreshes the TTL,
// so only a fresh append keeps a conversation alive.
type RedisBackend struct {
	client    *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
}

// NewRedisBackend connects and verifies reachability with a short ping.
// A failed ping is returned as an error so the caller can fall back to the
// volatile backend instead of serving with a dead connection.
func NewRedisBackend(ctx context.Context, redisURL string, ttl, opTimeout time.Duration) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisBackend{client: client, ttl: ttl, opTimeout: opTimeout}, nil
}

func historyKey(userID string) string { return historyKeyPrefix + userID }

func (b *RedisBackend) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.opTimeout)
}

func (b *RedisBackend) Get(ctx context.Context, userID string) ([]Message, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()

	raw, err := b.client.Get(ctx, historyKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeHistory(userID, []byte(raw)), nil
}

// decodeHistory is lenient: a corrupt value is a data-integrity problem,
// not an availability one, so it reads as empty instead of failing every
// request for that user.
func decodeHistory(userID string, raw []byte) []Message {
	var history []Message
	if err := json.Unmarshal(raw, &history); err != nil {
		logrus.WithField("user", userID).WithError(err).Warn("undecodable chat history, treating as empty")
		return nil
	}
	return history
}

func (b *RedisBackend) Set(ctx context.Context, userID string, history []Message) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode chat history: %w", err)
	}

	ctx, cancel := b.bound(ctx)
	defer cancel()
	if err := b.client.Set(ctx, historyKey(userID), data, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, userID string) error {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	if err := b.client.Del(ctx, historyKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (b *RedisBackend) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()

	var users []string
	iter := b.client.Scan(ctx, 0, historyKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		users = append(users, strings.TrimPrefix(iter.Val(), historyKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return users, nil
}

func (b *RedisBackend) Close() error { return b.client.Close() }
