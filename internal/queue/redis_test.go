package queue_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fleetmetra/geoingest/internal/queue"
)

func newTestRedis(t *testing.T) *queue.Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return queue.NewRedis(rdb)
}

func TestRedis_AtomicDrainReturnsOrderedEntriesAndEmptiesKey(t *testing.T) {
	ctx := context.Background()
	r := newTestRedis(t)

	require.NoError(t, r.AppendMany(ctx, "gps:history:global", [][]byte{
		[]byte(`{"deviceId":"A"}`),
		[]byte(`{"deviceId":"B"}`),
		[]byte(`{"deviceId":"C"}`),
	}))

	got, err := r.ReadAllAndDeleteAtomically(ctx, "gps:history:global")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.JSONEq(t, `{"deviceId":"A"}`, string(got[0]))
	require.JSONEq(t, `{"deviceId":"C"}`, string(got[2]))

	n, err := r.Length(ctx, "gps:history:global")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRedis_DrainOfEmptyKeyReturnsEmptySlice(t *testing.T) {
	ctx := context.Background()
	r := newTestRedis(t)

	got, err := r.ReadAllAndDeleteAtomically(ctx, "mobile:history:global")
	require.NoError(t, err)
	require.Empty(t, got)
}
