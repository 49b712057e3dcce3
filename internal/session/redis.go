package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const tabKeyPrefix = "guest:tab:"

// RedisStore keeps the slots of one tab in Redis, expiring after ttl of
// inactivity like a browser session would.
type RedisStore struct {
	client *redis.Client
	tabID  string
	ttl    time.Duration
}

// NewRedisStore wraps client. A zero ttl keeps the keys until cleared.
func NewRedisStore(client *redis.Client, tabID string, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("session: redis client must not be nil")
	}
	if strings.TrimSpace(tabID) == "" {
		return nil, errors.New("session: tab id must not be empty")
	}
	return &RedisStore{client: client, tabID: tabID, ttl: ttl}, nil
}

func (s *RedisStore) key(slot string) string {
	return tabKeyPrefix + s.tabID + ":" + slot
}

func (s *RedisStore) Save(ctx context.Context, bookingNumber string, welcome *string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(KeyBookingNumber), bookingNumber, s.ttl)
		if welcome != nil {
			pipe.Set(ctx, s.key(KeyWelcome), *welcome, s.ttl)
		} else {
			pipe.Del(ctx, s.key(KeyWelcome))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis save: %w", err)
	}
	return nil
}

func (s *RedisStore) BookingNumber(ctx context.Context) (string, bool, error) {
	return s.get(ctx, KeyBookingNumber)
}

func (s *RedisStore) Welcome(ctx context.Context) (string, bool, error) {
	return s.get(ctx, KeyWelcome)
}

func (s *RedisStore) get(ctx context.Context, slot string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(slot)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session: redis read %s: %w", slot, err)
	}
	return v, true, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key(KeyBookingNumber), s.key(KeyWelcome)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
