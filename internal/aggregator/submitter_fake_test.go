package aggregator_test

import (
	"context"
	"errors"
	"sync"

	"wisefido-wearable-agent/internal/models"
)

// fakeSubmitter 仅用于单元测试（记录提交、可按 measured_at 注入失败）
type fakeSubmitter struct {
	mu            sync.Mutex
	healthSamples []models.HealthSample
	sleepSamples  []models.SleepSample
	failHealthFor map[string]bool // measured_at → 失败
	failSleep     bool
}

var errRemoteDown = errors.New("simulated remote failure")

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{
		failHealthFor: make(map[string]bool),
	}
}

func (f *fakeSubmitter) SubmitHealthSample(ctx context.Context, sample models.HealthSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHealthFor[sample.MeasuredAt] {
		return errRemoteDown
	}
	f.healthSamples = append(f.healthSamples, sample)
	return nil
}

func (f *fakeSubmitter) SubmitSleepSample(ctx context.Context, sample models.SleepSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSleep {
		return errRemoteDown
	}
	f.sleepSamples = append(f.sleepSamples, sample)
	return nil
}
