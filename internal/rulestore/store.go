package rulestore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/log-redactor/internal/redact"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no rule document has been published
var ErrNotFound = errors.New("no rules published")

// Config contains Redis connection and key settings
type Config struct {
	URL            string
	Key            string
	Channel        string
	MaxConnections int
	MinIdleConns   int
}

// Store distributes rule documents through Redis. The document lives under
// Config.Key; every publish announces its checksum on Config.Channel.
type Store struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
}

// New connects to Redis and verifies the connection
func New(config *Config, logger *zap.Logger) (*Store, error) {
	// Parse Redis URL
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns

	store := NewWithClient(redis.NewClient(opts), config, logger)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.client.Ping(ctx).Err(); err != nil {
		store.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Rule store connected",
		zap.String("redis_url", maskRedisURL(config.URL)),
		zap.String("key", config.Key),
		zap.String("channel", config.Channel))

	return store, nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, config *Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, config: config, logger: logger}
}

// Name identifies the store as a rule source
func (s *Store) Name() string {
	return fmt.Sprintf("%s#%s", maskRedisURL(s.config.URL), s.config.Key)
}

// Fetch returns the published rule document
func (s *Store) Fetch(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.config.Key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to fetch rules: %w", err)
	}
	return data, nil
}

// Load fetches and compiles the published document, so a Store can be
// used directly as a reload source
func (s *Store) Load(ctx context.Context) (*redact.RuleSet, error) {
	data, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return redact.ParseJSON(data, s.Name())
}

// Publish validates doc, stores it and notifies subscribers. Documents
// that do not compile are rejected before anything is written.
func (s *Store) Publish(ctx context.Context, doc []byte) (*redact.RuleSet, error) {
	rs, err := redact.ParseJSON(doc, s.Name())
	if err != nil {
		return nil, err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.config.Key, doc, 0)
	pipe.Publish(ctx, s.config.Channel, rs.Checksum())
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Failed to publish rules", zap.Error(err))
		return nil, fmt.Errorf("failed to publish rules: %w", err)
	}

	s.logger.Info("Rules published",
		zap.String("key", s.config.Key),
		zap.Int("rules", rs.Len()),
		zap.String("checksum", rs.Checksum()))

	return rs, nil
}

// Subscribe calls fn with the announced checksum for every publish until
// ctx is cancelled
func (s *Store) Subscribe(ctx context.Context, fn func(ctx context.Context, checksum string)) error {
	pubsub := s.client.Subscribe(ctx, s.config.Channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.config.Channel, err)
	}

	s.logger.Info("Subscribed to rule updates", zap.String("channel", s.config.Channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.logger.Debug("Rule update announced", zap.String("checksum", msg.Payload))
			fn(ctx, msg.Payload)
		}
	}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// invalidURL stands in for URLs that cannot be parsed, since their
// password cannot be located
const invalidURL = "redis://<invalid-url>"

// maskRedisURL hides the password in a Redis URL for logging
func maskRedisURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return invalidURL
	}
	return u.Redacted()
}
