package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotConnected is returned when the Redis store is used before Connect.
var ErrNotConnected = errors.New("redis store not connected")

// Redis is a Store backed by a Redis server. It exists for headless
// deployments of the core where no OS keychain is available.
type Redis struct {
	rdb       *redis.Client
	keyPrefix string
	timeout   time.Duration
	logger    *slog.Logger
	connected bool
}

// RedisOptions configures the Redis-backed store.
type RedisOptions struct {
	URL       string
	KeyPrefix string
	Timeout   time.Duration
	Logger    *slog.Logger
}

// NewRedis creates a Redis-backed store. Connect must be called before use.
func NewRedis(opts RedisOptions) (*Redis, error) {
	redisOpts, err := parseRedisURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	redisOpts.ReadTimeout = timeout
	redisOpts.WriteTimeout = timeout

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Redis{
		rdb:       redis.NewClient(redisOpts),
		keyPrefix: opts.KeyPrefix,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// parseRedisURL parses a redis:// URL into connection options.
func parseRedisURL(redisURL string) (*redis.Options, error) {
	u, err := url.Parse(redisURL)
	if err != nil {
		return nil, err
	}

	opts := &redis.Options{
		Addr: u.Host,
	}

	if u.User != nil {
		if password, ok := u.User.Password(); ok {
			opts.Password = password
		}
	}

	if len(u.Path) > 1 {
		db, err := strconv.Atoi(u.Path[1:])
		if err == nil {
			opts.DB = db
		}
	}

	return opts, nil
}

// Connect establishes the connection.
func (r *Redis) Connect(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	r.connected = true
	r.logger.Info("connected to redis secret store")
	return nil
}

// Close closes the connection.
func (r *Redis) Close() error {
	r.connected = false
	return r.rdb.Close()
}

// Key returns the prefixed storage key.
func (r *Redis) Key(key string) string {
	return r.keyPrefix + key
}

// Save overwrites the value under key.
func (r *Redis) Save(key string, data []byte) error {
	if !r.connected {
		return ErrNotConnected
	}
	ctx, cancel := r.opContext()
	defer cancel()
	return r.rdb.Set(ctx, r.Key(key), data, 0).Err()
}

// Load reads the value under key. A missing key is not an error.
func (r *Redis) Load(key string) ([]byte, bool, error) {
	if !r.connected {
		return nil, false, ErrNotConnected
	}
	ctx, cancel := r.opContext()
	defer cancel()
	data, err := r.rdb.Get(ctx, r.Key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (r *Redis) Delete(key string) error {
	if !r.connected {
		return ErrNotConnected
	}
	ctx, cancel := r.opContext()
	defer cancel()
	return r.rdb.Del(ctx, r.Key(key)).Err()
}

func (r *Redis) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}
