// Package redisstore keeps the usage log in a Redis list. Each entry is one
// JSON-encoded element; RPUSH is atomic, so concurrent writers never lose entries.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/upb/agency-llm-client/models"
	"go.uber.org/zap"
)

// DefaultKey is used when Config.Key is empty
const DefaultKey = "agency:usage"

// Config describes the Redis connection
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Store is a UsageRepository backed by a Redis list
type Store struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// New connects to Redis and verifies the connection with PING
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, cfg.Key, logger), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, key string, logger *zap.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, key: key, logger: logger}
}

// Key returns the list key entries are pushed to
func (s *Store) Key() string {
	return s.key
}

// Append pushes one entry to the tail of the list
func (s *Store) Append(ctx context.Context, entry *models.UsageLogEntry) error {
	if entry == nil {
		return errors.New("usage entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal usage entry: %w", err)
	}
	if err := s.client.RPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("redis append usage entry: %w", err)
	}
	return nil
}

// List returns every entry in push order
func (s *Store) List(ctx context.Context) ([]*models.UsageLogEntry, error) {
	values, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read usage log: %w", err)
	}

	entries := make([]*models.UsageLogEntry, 0, len(values))
	for i, v := range values {
		var entry models.UsageLogEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			s.logger.Error("undecodable usage entry",
				zap.String("key", s.key), zap.Int("index", i), zap.Error(err))
			return nil, fmt.Errorf("invalid usage entry at index %d: %w", i, err)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// Close closes the client
func (s *Store) Close() error {
	return s.client.Close()
}
