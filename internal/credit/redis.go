package credit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const accountKeyPrefix = "credits:account:"

// RedisConfig holds configuration for the Redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore persists accounts as JSON records in Redis. Writes go through
// WATCH/MULTI so a concurrent reserve on the same account surfaces as
// ErrConflict instead of a lost update.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis store with connection validation.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func accountKey(userID string) string { return accountKeyPrefix + userID }

func (s *RedisStore) Load(ctx context.Context, userID string) (Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("load account %s: %w", userID, err)
	}
	var acct Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return Account{}, fmt.Errorf("decode account %s: %w", userID, err)
	}
	return acct, nil
}

func (s *RedisStore) Save(ctx context.Context, userID string, acct Account) error {
	key := accountKey(userID)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if acct.Version != 0 {
				return ErrConflict
			}
		case err != nil:
			return err
		default:
			var current Account
			if err := json.Unmarshal(data, &current); err != nil {
				return fmt.Errorf("decode account %s: %w", userID, err)
			}
			if acct.Version != current.Version {
				return ErrConflict
			}
		}

		next := acct
		next.Version++
		encoded, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}

	err := s.rdb.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

func (s *RedisStore) Users(ctx context.Context) ([]string, error) {
	var (
		users  []string
		cursor uint64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, accountKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan accounts: %w", err)
		}
		for _, k := range keys {
			users = append(users, k[len(accountKeyPrefix):])
		}
		cursor = next
		if cursor == 0 {
			return users, nil
		}
	}
}

// Close releases the underlying client.
func (s *RedisStore) Close() error { return s.rdb.Close() }
