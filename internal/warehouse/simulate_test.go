package warehouse_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmetra/geoingest/internal/blobstore"
	"github.com/fleetmetra/geoingest/internal/model"
	"github.com/fleetmetra/geoingest/internal/warehouse"
)

func TestSimulate_SuccessfulLoadCountsRows(t *testing.T) {
	ctx := context.Background()
	blobs, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = blobs.Upload(ctx, "gps-data/a.json", strings.NewReader(`{"deviceId":"A"}`+"\n"+`{"deviceId":"B"}`+"\n"), model.BlobMetadata{Family: model.FamilyGPS})
	require.NoError(t, err)

	wh := warehouse.NewSimulate(blobs)
	jobID, err := wh.StartLoad(ctx, "sim://gps-data/a.json", "gps_events", model.LoadOptions{MaxBadRecords: 0, JobTimeout: time.Second})
	require.NoError(t, err)

	job, err := wh.AwaitLoad(ctx, jobID, time.Second)
	require.NoError(t, err)
	assert.True(t, job.Successful())
	assert.EqualValues(t, 2, job.RowsLoaded)
}

func TestSimulate_BadRecordsBeyondToleranceFailTheJob(t *testing.T) {
	ctx := context.Background()
	blobs, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = blobs.Upload(ctx, "gps-data/bad.json", strings.NewReader("not-json\n"), model.BlobMetadata{Family: model.FamilyGPS})
	require.NoError(t, err)

	wh := warehouse.NewSimulate(blobs)
	jobID, err := wh.StartLoad(ctx, "sim://gps-data/bad.json", "gps_events", model.LoadOptions{MaxBadRecords: 0})
	require.NoError(t, err)

	job, err := wh.AwaitLoad(ctx, jobID, time.Second)
	require.NoError(t, err)
	assert.False(t, job.Successful())
	assert.Equal(t, model.JobError, job.TerminalState)
}
