package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"autobay/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists the order book under a single Redis key.
type RedisStore struct {
	mu     sync.Mutex
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{
		client: client,
		key:    key,
		logger: slog.Default().With("module", "state_redis"),
	}
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Load implements domain.StateStore.
func (s *RedisStore) Load(ctx context.Context) *domain.OrderBook {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.logger.Info("No saved state, starting empty", slog.String("key", s.key))
		} else {
			s.logger.Error("Failed to read state, starting empty", slog.String("key", s.key), slog.Any("error", err))
		}
		return domain.NewOrderBook()
	}

	book, err := decodeBook(data)
	if err != nil {
		s.logger.Error("Malformed state, starting empty", slog.String("key", s.key), slog.Any("error", err))
		return domain.NewOrderBook()
	}
	return book
}

// Save implements domain.StateStore.
func (s *RedisStore) Save(ctx context.Context, book *domain.OrderBook) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := encodeBook(book)
	if err != nil {
		return false, fmt.Errorf("encode state: %w", err)
	}

	current, readErr := s.client.Get(ctx, s.key).Bytes()
	if readErr != nil && !errors.Is(readErr, redis.Nil) {
		// Unknown stored state: do not risk clobbering it with an empty book.
		if book.IsZero() {
			return false, readErr
		}
	}
	if readErr == nil && bytes.Equal(current, data) {
		return false, nil
	}
	if book.IsZero() && readErr == nil {
		if stored, err := decodeBook(current); err == nil && !stored.IsZero() {
			s.logger.Warn("Refusing to overwrite state with an empty snapshot", slog.String("key", s.key))
			return false, nil
		}
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		s.logger.Error("Failed to write state", slog.String("key", s.key), slog.Any("error", err))
		return false, err
	}
	return true, nil
}
