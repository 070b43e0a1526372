package outbox_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-wearable-agent/internal/models"
	"wisefido-wearable-agent/internal/outbox"
)

func newRedisStore(t *testing.T) *outbox.RedisSnapshotStore {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return outbox.NewRedisSnapshotStore(client, "wearable:outbox:records")
}

func TestRedisSnapshotStore_MissingKeyMeansEmpty(t *testing.T) {
	store := newRedisStore(t)

	records, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRedisSnapshotStore_RoundTrip(t *testing.T) {
	store := newRedisStore(t)

	want := []models.StoredRecord{
		{
			ID:          "rec-1",
			OccurredAt:  time.Date(2025, 1, 21, 10, 46, 23, 0, time.UTC),
			HeartRate:   58,
			Temperature: 37.7,
			Motion:      1.57,
			HourKey:     "2025-01-21T10",
			RawMessage:  "2025/01/21 10:46:23,58,37.7,1.57",
		},
		{
			ID:         "rec-2",
			OccurredAt: time.Date(2025, 1, 21, 11, 2, 0, 0, time.UTC),
			Sent:       true,
			HourKey:    "2025-01-21T11",
		},
	}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "rec-1", got[0].ID)
	assert.False(t, got[0].Sent)
	assert.True(t, got[1].Sent)
}

func TestRedisSnapshotStore_BacksOutbox(t *testing.T) {
	store := newRedisStore(t)

	ob, err := outbox.NewOutbox(store, 7*24*time.Hour, zap.NewNop())
	require.NoError(t, err)

	_, err = ob.Append(models.SensorReading{
		OccurredAt:  time.Now().UTC(),
		HeartRate:   62,
		Temperature: 36.4,
		Motion:      0.2,
	}, "raw")
	require.NoError(t, err)

	// 从同一 key 恢复的 Outbox 看到同样的记录
	restored, err := outbox.NewOutbox(store, 7*24*time.Hour, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, restored.Stats().Total)
}
