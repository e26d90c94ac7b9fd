package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/offline-sync/internal/models"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "sync.batch.fest-2026", Subject("fest-2026"))
	assert.Equal(t, "sync.batch.a_b_c", Subject("a.b*c"))
}

func TestFromBatch(t *testing.T) {
	at := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	b := models.SyncBatch{
		ID:          "b-1",
		DeviceID:    "dev-1",
		FestivalID:  "fest",
		Status:      models.SyncPartial,
		ProcessedAt: &at,
		Result: &models.SyncResult{
			Total: 3, Success: 2, Failed: 1,
			Conflicts: []models.Conflict{{LocalID: "tx-3", Reason: "invalid signature", Resolution: models.ResolutionRejected}},
		},
	}
	e := FromBatch(b)
	assert.Equal(t, "b-1", e.BatchID)
	assert.Equal(t, models.SyncPartial, e.Status)
	assert.Equal(t, 3, e.Total)
	assert.Equal(t, 1, e.Failed)
	assert.Equal(t, at, e.ProcessedAt)
	require.Len(t, e.Conflicts, 1)
}

func TestMockPublisher(t *testing.T) {
	m := NewMockPublisher()
	require.NoError(t, m.PublishBatch(context.Background(), &BatchEvent{BatchID: "b-1"}))

	m.SetError(errors.New("nats down"))
	require.Error(t, m.PublishBatch(context.Background(), &BatchEvent{BatchID: "b-2"}))

	require.Len(t, m.Events(), 1)
	require.NoError(t, m.Close())
	assert.True(t, m.IsClosed())
}
