package authsvc

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisVerifier resolves tokens against auth:token:<token> → user id
// bindings maintained by the identity service.
type RedisVerifier struct {
	rdb *redis.Client
}

func NewRedisVerifier(redisURL string) (*RedisVerifier, error) {
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisVerifier{rdb: rdb}, nil
}

func (v *RedisVerifier) Close() error {
	if v == nil || v.rdb == nil {
		return nil
	}
	return v.rdb.Close()
}

func tokenKey(token string) string { return "auth:token:" + strings.TrimSpace(token) }

func (v *RedisVerifier) Verify(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrUnauthorized
	}
	uid, err := v.rdb.Get(ctx, tokenKey(token)).Result()
	if err == redis.Nil {
		return "", ErrUnauthorized
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	if strings.TrimSpace(uid) == "" {
		return "", ErrUnauthorized
	}
	return uid, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
