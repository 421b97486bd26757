package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fleetmetra/geoingest/internal/faults"
)

// drainScript reads the entire list and deletes it inside one Lua
// script invocation. Redis runs scripts single-threaded against the
// keyspace, so from any other client's point of view the LRANGE and
// DEL appear as one indivisible action — exactly the atomic
// read-all-and-delete primitive the interface requires. A producer's
// RPUSH either lands entirely before this script runs (and is drained)
// or entirely after (and belongs to the next cycle); it can never be
// split across the boundary.
const drainScript = `
local items = redis.call('LRANGE', KEYS[1], 0, -1)
redis.call('DEL', KEYS[1])
return items
`

// Redis is a Client backed by a Redis list per family key.
type Redis struct {
	rdb  *redis.Client
	drain *redis.Script
}

// NewRedis wraps an existing *redis.Client. The caller owns the
// client's lifecycle (construction, Close).
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, drain: redis.NewScript(drainScript)}
}

func (r *Redis) Length(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: length %q: %w: %v", key, faults.ErrTransientIO, err)
	}
	return n, nil
}

func (r *Redis) AppendMany(ctx context.Context, key string, entries [][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	vals := make([]any, len(entries))
	for i, e := range entries {
		vals[i] = e
	}
	if err := r.rdb.RPush(ctx, key, vals...).Err(); err != nil {
		return fmt.Errorf("queue: append %q: %w: %v", key, faults.ErrTransientIO, err)
	}
	return nil
}

func (r *Redis) ReadAll(ctx context.Context, key string) ([][]byte, error) {
	vals, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: read all %q: %w: %v", key, faults.ErrTransientIO, err)
	}
	return toBytes(vals), nil
}

func (r *Redis) DeleteAll(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("queue: delete all %q: %w: %v", key, faults.ErrTransientIO, err)
	}
	return nil
}

func (r *Redis) ReadAllAndDeleteAtomically(ctx context.Context, key string) ([][]byte, error) {
	res, err := r.drain.Run(ctx, r.rdb, []string{key}).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: atomic drain %q: %w: %v", key, faults.ErrTransientIO, err)
	}
	items, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("queue: atomic drain %q: unexpected script reply type %T", key, res)
	}
	out := make([][]byte, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			continue
		}
		out = append(out, []byte(s))
	}
	return out, nil
}

func toBytes(vals []string) [][]byte {
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out
}
