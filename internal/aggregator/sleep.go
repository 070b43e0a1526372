package aggregator

import (
	"context"
	"math"

	"go.uber.org/zap"

	"wisefido-wearable-agent/internal/models"
	"wisefido-wearable-agent/internal/outbox"
)

// 睡眠判定阈值：心率落在静息区间且动作幅度低
const (
	sleepHeartRateMin = 50.0
	sleepHeartRateMax = 70.0
	sleepMotionMax    = 0.7
)

// 睡眠质量分界：6 小时
const goodSleepMinutes = 360.0

// CalculateSleep 从单日按时间排序的记录推导睡眠汇总
// 这是启发式估计，不是医学测量。
// 连续满足睡眠判定的记录构成一段区间；只有被非睡眠记录闭合的
// 区间才计入总时长，数据末尾未闭合的区间不计
func CalculateSleep(records []models.StoredRecord) models.SleepSummary {
	var periods []models.SleepPeriod
	var currentStart *models.StoredRecord

	for i := range records {
		r := records[i]
		sleeping := r.HeartRate >= sleepHeartRateMin &&
			r.HeartRate <= sleepHeartRateMax &&
			r.Motion < sleepMotionMax

		if sleeping && currentStart == nil {
			currentStart = &records[i]
		} else if !sleeping && currentStart != nil {
			periods = append(periods, models.SleepPeriod{
				Start: currentStart.OccurredAt,
				End:   r.OccurredAt,
			})
			currentStart = nil
		}
	}

	totalMinutes := 0.0
	for _, p := range periods {
		totalMinutes += p.End.Sub(p.Start).Minutes()
	}

	quality := "poor"
	if totalMinutes >= goodSleepMinutes {
		quality = "good"
	}

	return models.SleepSummary{
		Periods:    periods,
		TotalHours: math.Round(totalMinutes/60*100) / 100,
		Quality:    quality,
	}
}

// SleepReporter 每日睡眠汇总上报任务
type SleepReporter struct {
	outbox    *outbox.Outbox
	submitter HealthSubmitter
	logger    *zap.Logger
}

// NewSleepReporter 创建睡眠上报任务
func NewSleepReporter(ob *outbox.Outbox, submitter HealthSubmitter, logger *zap.Logger) *SleepReporter {
	return &SleepReporter{
		outbox:    ob,
		submitter: submitter,
		logger:    logger,
	}
}

// ReportDay 计算并上报指定 UTC 日期的睡眠汇总
// 当日无记录时跳过（记日志，不算错误）
func (r *SleepReporter) ReportDay(ctx context.Context, date string) error {
	day, err := models.ParseDate(date)
	if err != nil {
		return err
	}

	records := r.outbox.RecordsOn(day)
	if len(records) == 0 {
		r.logger.Warn("No records for sleep report, skipping",
			zap.String("date", date),
		)
		return nil
	}

	summary := CalculateSleep(records)
	r.logger.Info("Sleep summary calculated",
		zap.String("date", date),
		zap.Int("record_count", len(records)),
		zap.Int("period_count", len(summary.Periods)),
		zap.Float64("total_hours", summary.TotalHours),
		zap.String("quality", summary.Quality),
	)

	sample := models.SleepSample{
		Date:       date,
		SleepHours: summary.TotalHours,
	}
	if err := r.submitter.SubmitSleepSample(ctx, sample); err != nil {
		r.logger.Error("Failed to submit sleep sample",
			zap.String("date", date),
			zap.Error(err),
		)
		return err
	}

	r.logger.Info("Sleep sample submitted",
		zap.String("date", date),
		zap.Float64("sleep_hours", sample.SleepHours),
	)
	return nil
}
