package coordinator_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fleetmetra/geoingest/internal/backupstore"
	"github.com/fleetmetra/geoingest/internal/blobstore"
	"github.com/fleetmetra/geoingest/internal/coordinator"
	"github.com/fleetmetra/geoingest/internal/drain"
	"github.com/fleetmetra/geoingest/internal/model"
	"github.com/fleetmetra/geoingest/internal/queue"
	"github.com/fleetmetra/geoingest/internal/replay"
	"github.com/fleetmetra/geoingest/internal/ship"
	"github.com/fleetmetra/geoingest/internal/warehouse"
)

func keyFor(f model.Family) string { return "events:" + f.String() }

func testShipConfig() ship.Config {
	return ship.Config{
		TableFor:         func(f model.Family) string { return f.String() + "_events" },
		BlobPrefixFor:    func(f model.Family) string { return f.String() + "-data" },
		LoadOptionsFor:   func(model.Family) model.LoadOptions { return model.LoadOptions{MaxBadRecords: 0} },
		AwaitLoadWithin:  time.Second,
		MaxBackupRetries: 3,
	}
}

type harness struct {
	coord   *coordinator.Coordinator
	q       *queue.Memory
	backups *backupstore.Store
}

func newHarness(t *testing.T) harness {
	t.Helper()
	log := zaptest.NewLogger(t)

	q := queue.NewMemory()
	blobs, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	wh := warehouse.NewSimulate(blobs)
	backups, err := backupstore.NewStore(t.TempDir())
	require.NoError(t, err)

	shipper := ship.New(blobs, wh, backups, testShipConfig(), log)
	drainer := drain.New(q, keyFor, log)
	replayer := replay.New(backups, shipper, log)

	cfg := coordinator.Config{
		Families: []model.Family{model.FamilyGPS, model.FamilyMobile},
		Drainers: map[model.Family]coordinator.Drainer{
			model.FamilyGPS:    drainer,
			model.FamilyMobile: drainer,
		},
		Shippers: map[model.Family]coordinator.Shipper{
			model.FamilyGPS:    shipper,
			model.FamilyMobile: shipper,
		},
		Replayer: replayer,
	}

	return harness{coord: coordinator.New(cfg, log), q: q, backups: backups}
}

func gpsRecord(id string) []byte {
	return []byte(`{"deviceId":"` + id + `","lat":-12.0464,"lng":-77.0428,"timestamp":"2024-01-15T10:30:00Z"}`)
}

func mobileRecord(id string) []byte {
	return []byte(`{"userId":"` + id + `","lat":-12.05,"lng":-77.045,"timestamp":"2024-01-15T10:30:30Z","name":"n","email":"e@example.com"}`)
}

// S1 — happy path: both families drain cleanly and ship.
func TestCoordinator_HappyCycleShipsBothFamilies(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.q.AppendMany(ctx, keyFor(model.FamilyGPS), [][]byte{gpsRecord("A"), gpsRecord("B"), gpsRecord("C")}))
	require.NoError(t, h.q.AppendMany(ctx, keyFor(model.FamilyMobile), [][]byte{mobileRecord("u1"), mobileRecord("u2")}))

	result := h.coord.RunCycle(ctx)

	require.False(t, result.Skipped)
	require.Len(t, result.Families, 2)
	for _, fo := range result.Families {
		assert.Equal(t, ship.Ok, fo.Outcome)
		assert.Empty(t, fo.BackupID)
		assert.NoError(t, fo.Err)
	}

	gpsLen, err := h.q.Length(ctx, keyFor(model.FamilyGPS))
	require.NoError(t, err)
	assert.Zero(t, gpsLen)

	last, ok := h.coord.LastCycle()
	require.True(t, ok)
	assert.Equal(t, result.StartedAt, last.StartedAt)
}

// failingUploader fails every Upload call and delegates everything
// else, letting a test drive a single family's ship path into failure
// without touching the other family's blob store.
type failingUploader struct {
	blobstore.Client
}

func (failingUploader) Upload(context.Context, string, io.Reader, model.BlobMetadata) (model.UploadResult, error) {
	return model.UploadResult{}, errors.New("simulated upload failure")
}

// S5 — mixed families, one fails: mobile's blob store is wedged while
// GPS's is healthy, demonstrating per-family isolation within a cycle.
func TestCoordinator_FamilyFailureDoesNotBlockTheOther(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	q := queue.NewMemory()
	blobs, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	wh := warehouse.NewSimulate(blobs)
	backups, err := backupstore.NewStore(t.TempDir())
	require.NoError(t, err)

	gpsShipper := ship.New(blobs, wh, backups, testShipConfig(), log)
	mobileShipper := ship.New(failingUploader{Client: blobs}, wh, backups, testShipConfig(), log)

	drainer := drain.New(q, keyFor, log)
	replayer := replay.New(backups, gpsShipper, log)

	cfg := coordinator.Config{
		Families: []model.Family{model.FamilyGPS, model.FamilyMobile},
		Drainers: map[model.Family]coordinator.Drainer{
			model.FamilyGPS:    drainer,
			model.FamilyMobile: drainer,
		},
		Shippers: map[model.Family]coordinator.Shipper{
			model.FamilyGPS:    gpsShipper,
			model.FamilyMobile: mobileShipper,
		},
		Replayer: replayer,
	}
	coord := coordinator.New(cfg, log)

	require.NoError(t, q.AppendMany(ctx, keyFor(model.FamilyGPS), [][]byte{gpsRecord("A"), gpsRecord("B")}))
	require.NoError(t, q.AppendMany(ctx, keyFor(model.FamilyMobile), [][]byte{mobileRecord("u1"), mobileRecord("u2")}))

	result := coord.RunCycle(ctx)
	require.Len(t, result.Families, 2)

	byFamily := map[model.Family]coordinator.FamilyOutcome{}
	for _, fo := range result.Families {
		byFamily[fo.Family] = fo
	}

	assert.Equal(t, ship.Ok, byFamily[model.FamilyGPS].Outcome)
	assert.Equal(t, ship.RecoverableFail, byFamily[model.FamilyMobile].Outcome)
	assert.NotEmpty(t, byFamily[model.FamilyMobile].BackupID)

	pending, err := backups.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.FamilyMobile, pending[0].Family)
}

func TestCoordinator_SecondCallAfterReleaseRunsNormally(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.q.AppendMany(ctx, keyFor(model.FamilyGPS), [][]byte{gpsRecord("A")}))
	first := h.coord.RunCycle(ctx)
	require.False(t, first.Skipped)

	require.NoError(t, h.q.AppendMany(ctx, keyFor(model.FamilyMobile), [][]byte{mobileRecord("u1")}))
	second := h.coord.RunCycle(ctx)
	assert.False(t, second.Skipped, "the mutex must be released after the first cycle completes")
}
