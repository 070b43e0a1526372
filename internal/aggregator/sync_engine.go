package aggregator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"wisefido-wearable-agent/internal/models"
	"wisefido-wearable-agent/internal/outbox"
)

// HealthSubmitter 远端健康 API 写入端口
type HealthSubmitter interface {
	SubmitHealthSample(ctx context.Context, sample models.HealthSample) error
	SubmitSleepSample(ctx context.Context, sample models.SleepSample) error
}

// SyncEngine 重发/同步引擎
// 找出所有未发送的小时桶，逐桶计算平均值并推送远端；
// 成功的桶整体置位 sent，失败的桶留待下一轮重试（至少一次交付）。
// 远端调用失败只计数，不越过本组件边界向外抛
type SyncEngine struct {
	outbox    *outbox.Outbox
	submitter HealthSubmitter
	sendDelay time.Duration
	logger    *zap.Logger
}

// NewSyncEngine 创建同步引擎
// sendDelay 为相邻小时桶之间的发送间隔，避免突发压垮远端
func NewSyncEngine(ob *outbox.Outbox, submitter HealthSubmitter, sendDelay time.Duration, logger *zap.Logger) *SyncEngine {
	return &SyncEngine{
		outbox:    ob,
		submitter: submitter,
		sendDelay: sendDelay,
		logger:    logger,
	}
}

// FlushUnsent 对每个未发送小时桶尝试一次推送，返回成功/失败桶数
// 单个桶的失败不影响其他桶；同一桶内标记与推送串行
func (e *SyncEngine) FlushUnsent(ctx context.Context) (succeeded, failed int) {
	grouped := e.outbox.ListUnsent()
	if len(grouped) == 0 {
		e.logger.Debug("No unsent buckets to flush")
		return 0, 0
	}

	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.logger.Info("Flushing unsent buckets",
		zap.Int("bucket_count", len(keys)),
	)

	for i, hourKey := range keys {
		select {
		case <-ctx.Done():
			e.logger.Warn("Flush interrupted",
				zap.Int("succeeded", succeeded),
				zap.Int("failed", failed),
			)
			return succeeded, failed
		default:
		}

		if i > 0 && e.sendDelay > 0 {
			time.Sleep(e.sendDelay)
		}

		if err := e.flushBucket(ctx, hourKey, grouped[hourKey]); err != nil {
			failed++
			e.logger.Error("Failed to flush bucket",
				zap.String("hour_key", hourKey),
				zap.Error(err),
			)
			continue
		}
		succeeded++
	}

	e.logger.Info("Flush pass completed",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
	)
	return succeeded, failed
}

// flushBucket 推送一个小时桶的聚合值并置位 sent
func (e *SyncEngine) flushBucket(ctx context.Context, hourKey string, records []models.StoredRecord) error {
	sample, err := AggregateBucket(hourKey, records)
	if err != nil {
		return err
	}

	e.logger.Info("Submitting hourly aggregate",
		zap.String("hour_key", hourKey),
		zap.Int("record_count", len(records)),
		zap.Float64("body", sample.Body),
		zap.Int("heart_rate", sample.HeartRate),
	)

	if err := e.submitter.SubmitHealthSample(ctx, sample); err != nil {
		return err
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	// 推送已成功，置位失败意味着下一轮会重复提交；
	// 服务端按桶幂等容忍重复，这里把错误上抛即可
	return e.outbox.MarkSent(ids)
}

// AggregateBucket 计算一个小时桶的聚合负载
// 体温取算术平均保留 1 位小数，心率取算术平均四舍五入到整数，
// measured_at 为桶起始整点
func AggregateBucket(hourKey string, records []models.StoredRecord) (models.HealthSample, error) {
	start, err := models.HourKeyStart(hourKey)
	if err != nil {
		return models.HealthSample{}, err
	}
	if len(records) == 0 {
		return models.HealthSample{}, fmt.Errorf("empty bucket %s", hourKey)
	}

	var sumTemp, sumHR float64
	for _, r := range records {
		sumTemp += r.Temperature
		sumHR += r.HeartRate
	}
	n := float64(len(records))

	return models.HealthSample{
		MeasuredAt: start.UTC().Format(time.RFC3339),
		Body:       math.Round(sumTemp/n*10) / 10,
		HeartRate:  int(math.Round(sumHR / n)),
	}, nil
}
