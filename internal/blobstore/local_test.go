package blobstore_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmetra/geoingest/internal/blobstore"
	"github.com/fleetmetra/geoingest/internal/model"
)

func TestLocal_UploadThenReadRoundTrips(t *testing.T) {
	ctx := context.Background()
	l, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	body := "{\"deviceId\":\"A\"}\n{\"deviceId\":\"B\"}\n"
	meta := model.BlobMetadata{
		Family:       model.FamilyGPS,
		ProcessingID: "proc-1",
		RecordCount:  2,
		UploadedAt:   time.Now().UTC(),
		Format:       model.BlobFormat,
	}

	res, err := l.Upload(ctx, "gps-data/2024-01-15_proc-1.json", bytes.NewBufferString(body), meta)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), res.SizeBytes)

	got, err := l.Read(ctx, "gps-data/2024-01-15_proc-1.json")
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestLocal_ListFiltersByFamilyAndReadsSidecarMetadata(t *testing.T) {
	ctx := context.Background()
	l, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = l.Upload(ctx, "gps-data/a.json", bytes.NewBufferString("{}\n"), model.BlobMetadata{
		Family: model.FamilyGPS, ProcessingID: "p1", RecordCount: 1, UploadedAt: time.Now(), Format: model.BlobFormat,
	})
	require.NoError(t, err)
	_, err = l.Upload(ctx, "mobile-data/b.json", bytes.NewBufferString("{}\n"), model.BlobMetadata{
		Family: model.FamilyMobile, ProcessingID: "p2", RecordCount: 1, UploadedAt: time.Now(), Format: model.BlobFormat,
	})
	require.NoError(t, err)

	gps := model.FamilyGPS
	blobs, err := l.List(ctx, "", &gps)
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.Equal(t, "gps-data/a.json", blobs[0].Name)
	assert.Equal(t, "p1", blobs[0].Metadata.ProcessingID)
}

func TestLocal_DeleteRemovesObjectAndSidecar(t *testing.T) {
	ctx := context.Background()
	l, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = l.Upload(ctx, "gps-data/a.json", bytes.NewBufferString("{}\n"), model.BlobMetadata{Family: model.FamilyGPS})
	require.NoError(t, err)
	require.NoError(t, l.Delete(ctx, "gps-data/a.json"))

	_, err = l.Read(ctx, "gps-data/a.json")
	assert.Error(t, err)
}
