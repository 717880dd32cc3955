package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrChallengeNotFound = errors.New("verification not found or expired")

// Challenge is a pending OTP verification.
type Challenge struct {
	ID       string
	Phone    string
	CodeHash string
	Attempts int
}

// RedisSessionStore keeps OTP challenges and revoked session ids.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSessionStore(client redis.UniversalClient, prefix string) *RedisSessionStore {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "zense"
	}
	return &RedisSessionStore{client: client, prefix: trimmed}
}

func (s *RedisSessionStore) challengeKey(id string) string {
	return fmt.Sprintf("%s:otp:%s", s.prefix, id)
}

func (s *RedisSessionStore) revokedKey(jti string) string {
	return fmt.Sprintf("%s:revoked:%s", s.prefix, jti)
}

// SaveChallenge stores a challenge that expires after ttl.
func (s *RedisSessionStore) SaveChallenge(ctx context.Context, c Challenge, ttl time.Duration) error {
	key := s.challengeKey(c.ID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"phone":     c.Phone,
			"code_hash": c.CodeHash,
			"attempts":  c.Attempts,
		})
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

// GetChallenge loads a live challenge.
func (s *RedisSessionStore) GetChallenge(ctx context.Context, id string) (*Challenge, error) {
	values, err := s.client.HGetAll(ctx, s.challengeKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrChallengeNotFound
	}
	attempts, _ := strconv.Atoi(values["attempts"])
	return &Challenge{
		ID:       id,
		Phone:    values["phone"],
		CodeHash: values["code_hash"],
		Attempts: attempts,
	}, nil
}

// IncrementAttempts records a failed guess and returns the new count.
func (s *RedisSessionStore) IncrementAttempts(ctx context.Context, id string) (int, error) {
	n, err := s.client.HIncrBy(ctx, s.challengeKey(id), "attempts", 1).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *RedisSessionStore) DeleteChallenge(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.challengeKey(id)).Err()
}

// RevokeToken blocks a session id until it would have expired anyway.
func (s *RedisSessionStore) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.revokedKey(jti), "1", ttl).Err()
}

func (s *RedisSessionStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.revokedKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
