package outbox_test

import (
	"errors"
	"sync"

	"wisefido-wearable-agent/internal/models"
)

// fakeSnapshotStore 仅用于单元测试（内存快照 + 可注入失败）
type fakeSnapshotStore struct {
	mu       sync.Mutex
	snapshot []models.StoredRecord
	saves    int
	failSave bool
}

var errSaveFailed = errors.New("simulated snapshot write failure")

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{}
}

func (f *fakeSnapshotStore) Load() ([]models.StoredRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.StoredRecord{}, f.snapshot...), nil
}

func (f *fakeSnapshotStore) Save(records []models.StoredRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return errSaveFailed
	}
	f.snapshot = append([]models.StoredRecord{}, records...)
	f.saves++
	return nil
}

func (f *fakeSnapshotStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}
