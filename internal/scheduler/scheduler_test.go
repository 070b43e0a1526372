package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-wearable-agent/internal/models"
	"wisefido-wearable-agent/internal/outbox"
)

type fakeFlusher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeFlusher) FlushUnsent(ctx context.Context) (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 1, 0
}

func (f *fakeFlusher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeReporter struct {
	mu    sync.Mutex
	dates []string
}

func (f *fakeReporter) ReportDay(ctx context.Context, date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dates = append(f.dates, date)
	return nil
}

func newSchedulerForTest(t *testing.T, now time.Time) (*Scheduler, *outbox.Outbox, *fakeFlusher, *fakeReporter) {
	t.Helper()

	store := outbox.NewFileSnapshotStore(filepath.Join(t.TempDir(), "outbox.json"))
	ob, err := outbox.NewOutbox(store, 7*24*time.Hour, zap.NewNop())
	require.NoError(t, err)

	flusher := &fakeFlusher{}
	reporter := &fakeReporter{}
	s := NewScheduler(ob, flusher, reporter, 10*time.Minute, 10*time.Minute, 12, zap.NewNop())
	s.now = func() time.Time { return now }

	return s, ob, flusher, reporter
}

func appendAt(t *testing.T, ob *outbox.Outbox, at time.Time) {
	t.Helper()
	_, err := ob.Append(models.SensorReading{
		OccurredAt: at, HeartRate: 60, Temperature: 36.5, Motion: 0.5,
	}, "raw")
	require.NoError(t, err)
}

func TestScheduler_HourlyTriggerFires(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Hour).Add(5 * time.Minute)
	s, ob, flusher, _ := newSchedulerForTest(t, now)

	// 上一小时有未发送数据
	appendAt(t, ob, now.Add(-time.Hour))

	s.Tick(context.Background())
	assert.Equal(t, 1, flusher.callCount())
}

func TestScheduler_HourlyTriggerOncePerHour(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Hour).Add(2 * time.Minute)
	s, ob, flusher, _ := newSchedulerForTest(t, now)

	appendAt(t, ob, now.Add(-time.Hour))

	s.Tick(context.Background())
	// Flush 未清除 sent 标记（fake），再次 tick 也不应重复触发
	s.Tick(context.Background())
	assert.Equal(t, 1, flusher.callCount())
}

func TestScheduler_HourlyTriggerOutsideWindow(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Hour).Add(30 * time.Minute)
	s, ob, flusher, _ := newSchedulerForTest(t, now)

	appendAt(t, ob, now.Add(-time.Hour))

	s.Tick(context.Background())
	assert.Equal(t, 0, flusher.callCount())
}

func TestScheduler_HourlyTriggerNoUnsentData(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Hour).Add(5 * time.Minute)
	s, _, flusher, _ := newSchedulerForTest(t, now)

	s.Tick(context.Background())
	assert.Equal(t, 0, flusher.callCount())
}

func TestScheduler_HourlyTriggerIgnoresCurrentHourData(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Hour).Add(5 * time.Minute)
	s, ob, flusher, _ := newSchedulerForTest(t, now)

	// 只有当前小时的数据：等它的整点过了再发
	appendAt(t, ob, now)

	s.Tick(context.Background())
	assert.Equal(t, 0, flusher.callCount())
}

func TestScheduler_DailyTriggerAtNoon(t *testing.T) {
	day := time.Date(2025, 6, 10, 12, 3, 0, 0, time.UTC)
	s, _, _, reporter := newSchedulerForTest(t, day)

	s.Tick(context.Background())

	require.Len(t, reporter.dates, 1)
	assert.Equal(t, "2025-06-09", reporter.dates[0])

	// Same window, second tick: once-per-day bucketing holds
	s.Tick(context.Background())
	assert.Len(t, reporter.dates, 1)
}

func TestScheduler_DailyTriggerOutsideNoonWindow(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
	}{
		{"before noon", time.Date(2025, 6, 10, 11, 55, 0, 0, time.UTC)},
		{"after window", time.Date(2025, 6, 10, 12, 15, 0, 0, time.UTC)},
		{"evening", time.Date(2025, 6, 10, 20, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _, reporter := newSchedulerForTest(t, tt.now)
			s.Tick(context.Background())
			assert.Empty(t, reporter.dates)
		})
	}
}

func TestScheduler_DailyTriggerNextDayFiresAgain(t *testing.T) {
	s, _, _, reporter := newSchedulerForTest(t, time.Date(2025, 6, 10, 12, 3, 0, 0, time.UTC))

	s.Tick(context.Background())
	require.Len(t, reporter.dates, 1)

	s.now = func() time.Time { return time.Date(2025, 6, 11, 12, 3, 0, 0, time.UTC) }
	s.Tick(context.Background())
	require.Len(t, reporter.dates, 2)
	assert.Equal(t, "2025-06-10", reporter.dates[1])
}
