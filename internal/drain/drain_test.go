package drain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fleetmetra/geoingest/internal/drain"
	"github.com/fleetmetra/geoingest/internal/model"
	"github.com/fleetmetra/geoingest/internal/queue"
)

func keyFor(f model.Family) string { return "events:" + f.String() }

func TestDrainer_DrainAcceptsValidAndCountsRejected(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	require.NoError(t, q.AppendMany(ctx, keyFor(model.FamilyGPS), [][]byte{
		[]byte(`{"deviceId":"A","lat":1,"lng":2,"timestamp":"2026-01-01T00:00:00Z"}`),
		[]byte(`{"deviceId":"","lat":1,"lng":2,"timestamp":"2026-01-01T00:00:00Z"}`), // rejected: empty id
		[]byte(`not-json`),                                                          // rejected: malformed
		[]byte(`{"deviceId":"B","lat":200,"lng":2,"timestamp":"2026-01-01T00:00:00Z"}`), // rejected: lat out of range
	}))

	d := drain.New(q, keyFor, zaptest.NewLogger(t))
	batch, err := d.Drain(ctx, model.FamilyGPS)
	require.NoError(t, err)

	assert.Equal(t, model.FamilyGPS, batch.Family)
	assert.NotEmpty(t, batch.ProcessingID)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "A", batch.Records[0].ID)
	assert.Equal(t, 3, batch.RejectedCount)

	remaining, err := q.Length(ctx, keyFor(model.FamilyGPS))
	require.NoError(t, err)
	assert.Zero(t, remaining, "queue must be empty after an atomic drain")
}

func TestDrainer_DrainOfEmptyQueueReturnsEmptyBatch(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()

	d := drain.New(q, keyFor, zaptest.NewLogger(t))
	batch, err := d.Drain(ctx, model.FamilyMobile)
	require.NoError(t, err)

	assert.Empty(t, batch.Records)
	assert.Zero(t, batch.RejectedCount)
}
