package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/invoicemesh/core"
	"github.com/hupe1980/invoicemesh/logging"
	"github.com/redis/go-redis/v9"
)

var _ core.RunStore = (*RedisStore)(nil)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// KeyPrefix namespaces every key, e.g. "invoicemesh:".
	KeyPrefix string
	// TTL expires run records; 0 keeps them forever.
	TTL    time.Duration
	Logger logging.Logger
}

// RedisStore persists runs as JSON strings under <prefix>run:<id> and keeps a
// sorted set <prefix>runs scored by completion time for List.
type RedisStore struct {
	client redis.UniversalClient
	opts   RedisOptions
}

// NewRedisClient creates a go-redis client with conservative pool settings.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

// NewRedisStore wraps client. The store does not own the client; Close only
// closes it when called explicitly.
func NewRedisStore(client redis.UniversalClient, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{
		KeyPrefix: "invoicemesh:",
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisStore{client: client, opts: opts}
}

func (s *RedisStore) runKey(id string) string { return s.opts.KeyPrefix + "run:" + id }
func (s *RedisStore) indexKey() string        { return s.opts.KeyPrefix + "runs" }

// Ping tests the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Save writes the run record and its index entry in one transaction.
func (s *RedisStore) Save(ctx context.Context, run *core.OrchestrationRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("save run: missing run id")
	}

	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("save run %q: encode: %w", run.ID, err)
	}

	completed := run.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.runKey(run.ID), payload, s.opts.TTL)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(completed.UnixMilli()), Member: run.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save run %q: %w", run.ID, err)
	}

	s.opts.Logger.Debug("store.run.saved", "run_id", run.ID, "bytes", len(payload))
	return nil
}

// Get loads and decodes one run.
func (s *RedisStore) Get(ctx context.Context, id string) (*core.OrchestrationRun, error) {
	payload, err := s.client.Get(ctx, s.runKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get run %q: %w", id, core.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %q: %w", id, err)
	}
	return decodeRun(id, payload)
}

// List returns up to limit runs, newest first. Index entries whose record has
// expired are pruned.
func (s *RedisStore) List(ctx context.Context, limit int) ([]*core.OrchestrationRun, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if len(ids) == 0 {
		return []*core.OrchestrationRun{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.runKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	out := make([]*core.OrchestrationRun, 0, len(ids))
	var expired []any
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		run, err := decodeRun(ids[i], []byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}

	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), expired...).Err(); err != nil {
			s.opts.Logger.Warn("store.index.prune_failed", "error", err.Error())
		}
	}

	return out, nil
}

// Delete removes the run record and its index entry.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.runKey(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete run %q: %w", id, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("delete run %q: %w", id, core.ErrRunNotFound)
	}
	return nil
}

func decodeRun(id string, payload []byte) (*core.OrchestrationRun, error) {
	var run core.OrchestrationRun
	if err := json.Unmarshal(payload, &run); err != nil {
		return nil, fmt.Errorf("decode run %q: %w", id, err)
	}
	return &run, nil
}
