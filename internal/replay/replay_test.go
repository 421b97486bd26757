package replay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fleetmetra/geoingest/internal/backupstore"
	"github.com/fleetmetra/geoingest/internal/model"
	"github.com/fleetmetra/geoingest/internal/replay"
	"github.com/fleetmetra/geoingest/internal/ship"
)

// scriptedShipper returns outcomes from a queue, one per ShipNoBackup
// call, so tests can deterministically drive every branch of the
// replay loop.
type scriptedShipper struct {
	outcomes []ship.Result
	calls    int
}

func (s *scriptedShipper) ShipNoBackup(context.Context, model.Batch) ship.Result {
	r := s.outcomes[s.calls]
	s.calls++
	return r
}

func newPendingEntry(t *testing.T, store *backupstore.Store, maxRetries int) model.BackupEntry {
	t.Helper()
	entry, err := store.Create(context.Background(), model.FamilyGPS, []model.Record{
		{Family: model.FamilyGPS, ID: "device-1", Lat: 1, Lng: 2, Timestamp: time.Now().UTC()},
	}, maxRetries, nil)
	require.NoError(t, err)
	return entry
}

func TestReplayer_SuccessfulShipRemovesEntry(t *testing.T) {
	ctx := context.Background()
	store, err := backupstore.NewStore(t.TempDir())
	require.NoError(t, err)
	newPendingEntry(t, store, 3)

	shipper := &scriptedShipper{outcomes: []ship.Result{{Outcome: ship.Ok}}}
	r := replay.New(store, shipper, zaptest.NewLogger(t))

	summary, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, replay.Summary{Attempted: 1, Succeeded: 1}, summary)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReplayer_RecoverableFailureRequeuesEntry(t *testing.T) {
	ctx := context.Background()
	store, err := backupstore.NewStore(t.TempDir())
	require.NoError(t, err)
	entry := newPendingEntry(t, store, 3)

	shipper := &scriptedShipper{outcomes: []ship.Result{{Outcome: ship.RecoverableFail, Err: errors.New("still down")}}}
	r := replay.New(store, shipper, zaptest.NewLogger(t))

	summary, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, replay.Summary{Attempted: 1, Requeued: 1}, summary)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, entry.BackupID, pending[0].BackupID)
	assert.Equal(t, 1, pending[0].RetryCount)
}

func TestReplayer_RecoverableFailureExhaustsAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	store, err := backupstore.NewStore(t.TempDir())
	require.NoError(t, err)
	newPendingEntry(t, store, 1)

	shipper := &scriptedShipper{outcomes: []ship.Result{{Outcome: ship.RecoverableFail, Err: errors.New("still down")}}}
	r := replay.New(store, shipper, zaptest.NewLogger(t))

	summary, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, replay.Summary{Attempted: 1, Exhausted: 1}, summary)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReplayer_FatalFailureStopsThePass(t *testing.T) {
	ctx := context.Background()
	store, err := backupstore.NewStore(t.TempDir())
	require.NoError(t, err)
	newPendingEntry(t, store, 3)
	newPendingEntry(t, store, 3)

	shipper := &scriptedShipper{outcomes: []ship.Result{
		{Outcome: ship.FatalFail, Err: errors.New("disk full")},
		{Outcome: ship.Ok},
	}}
	r := replay.New(store, shipper, zaptest.NewLogger(t))

	summary, err := r.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, summary.Attempted)
	assert.Equal(t, 1, summary.Fatal)
	assert.Equal(t, 1, shipper.calls, "a fatal failure must stop the pass without attempting the next entry")
}
