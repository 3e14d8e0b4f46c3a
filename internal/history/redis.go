package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "yomitori:history"

// RedisStore keeps entries in a hash keyed by ID with a sorted set index
// scored by creation time.
type RedisStore struct {
	client *redis.Client
	key    string
	limit  int
}

// NewRedisStore connects to the server at url (redis://host:port/db) and
// checks it is reachable.
func NewRedisStore(ctx context.Context, url, key string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client, key), nil
}

// NewRedisStoreWithClient wraps an existing client. An empty key uses
// "yomitori:history".
func NewRedisStoreWithClient(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisStore{client: client, key: key, limit: MaxEntries}
}

func (s *RedisStore) dataKey() string  { return s.key + ":data" }
func (s *RedisStore) indexKey() string { return s.key + ":index" }

func (s *RedisStore) Save(ctx context.Context, e Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", e.ID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.dataKey(), e.ID, data)
		p.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(e.CreatedAt.UnixMilli()), Member: e.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save entry %s: %w", e.ID, err)
	}
	return s.evict(ctx)
}

func (s *RedisStore) evict(ctx context.Context) error {
	n, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("count entries: %w", err)
	}
	excess := n - int64(s.limit)
	if excess <= 0 {
		return nil
	}
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, excess-1).Result()
	if err != nil {
		return fmt.Errorf("read oldest entries: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, s.indexKey(), members...)
		p.HDel(ctx, s.dataKey(), ids...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("evict entries: %w", err)
	}
	slog.Debug("Evicted history entries", "count", len(ids))
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Entry, error) {
	raw, err := s.client.HGet(ctx, s.dataKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get entry %s: %w", id, err)
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Entry{}, fmt.Errorf("decode entry %s: %w", id, err)
	}
	return e, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	if len(ids) == 0 {
		return []Entry{}, nil
	}
	vals, err := s.client.HMGet(ctx, s.dataKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	out := make([]Entry, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Index entry without data; skip it.
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", ids[i], err)
		}
		out = append(out, e)
	}
	newestFirst(out)
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.HDel(ctx, s.dataKey(), id)
		p.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.dataKey(), s.indexKey()).Err(); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
