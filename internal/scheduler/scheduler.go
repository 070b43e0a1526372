package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wisefido-wearable-agent/internal/models"
	"wisefido-wearable-agent/internal/outbox"
)

// Flusher 小时桶推送入口（由同步引擎实现）
type Flusher interface {
	FlushUnsent(ctx context.Context) (succeeded, failed int)
}

// DailyReporter 每日睡眠汇总入口
type DailyReporter interface {
	ReportDay(ctx context.Context, date string) error
}

// Scheduler 聚合调度器
// 单个粗粒度定时器驱动两个独立检查：
//   - 整点触发：进入整点后的窗口期、且上一小时桶有未发送数据时，触发一次推送
//   - 每日触发：到达上报时刻的窗口期时，对前一天的数据触发一次睡眠汇总
//
// 两个检查都是当前时间与 Outbox 内容的纯函数，借助 sent 标记与
// last-sent 跟踪天然幂等，定时器漏拍或重拍不影响正确性。
// 沿用轮询+幂等检查的设计，不引入精确的 cron 调度
type Scheduler struct {
	outbox        *outbox.Outbox
	flusher       Flusher
	reporter      DailyReporter
	pollInterval  time.Duration
	triggerWindow time.Duration
	sleepHour     int

	lastFlushHour  string // "2006-01-02T15"，避免同一小时内重复触发
	lastReportDate string // "2006-01-02"，每天只上报一次

	now    func() time.Time
	logger *zap.Logger
}

// NewScheduler 创建调度器
func NewScheduler(
	ob *outbox.Outbox,
	flusher Flusher,
	reporter DailyReporter,
	pollInterval time.Duration,
	triggerWindow time.Duration,
	sleepHour int,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		outbox:        ob,
		flusher:       flusher,
		reporter:      reporter,
		pollInterval:  pollInterval,
		triggerWindow: triggerWindow,
		sleepHour:     sleepHour,
		now:           time.Now,
		logger:        logger,
	}
}

// Run 启动调度循环（阻塞直到 ctx 取消）
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.logger.Info("Scheduler started",
		zap.Duration("poll_interval", s.pollInterval),
		zap.Duration("trigger_window", s.triggerWindow),
		zap.Int("sleep_report_hour", s.sleepHour),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick 执行一轮检查（导出以便手动触发与测试）
func (s *Scheduler) Tick(ctx context.Context) {
	s.checkHourly(ctx)
	s.checkDaily(ctx)
}

// checkHourly 整点触发检查
func (s *Scheduler) checkHourly(ctx context.Context) {
	now := s.now().UTC()
	if time.Duration(now.Minute())*time.Minute >= s.triggerWindow {
		return
	}

	currentHour := models.HourKeyFor(now)
	if currentHour == s.lastFlushHour {
		return
	}

	previousHour := models.HourKeyFor(now.Add(-time.Hour))
	if !s.outbox.HasUnsentInHour(previousHour) {
		return
	}

	s.logger.Info("Hourly trigger fired",
		zap.String("previous_hour", previousHour),
	)
	s.lastFlushHour = currentHour

	succeeded, failed := s.flusher.FlushUnsent(ctx)
	s.logger.Info("Hourly flush finished",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
	)
}

// checkDaily 每日睡眠汇总触发检查（对前一天的数据）
func (s *Scheduler) checkDaily(ctx context.Context) {
	now := s.now().UTC()
	if now.Hour() != s.sleepHour {
		return
	}
	if time.Duration(now.Minute())*time.Minute >= s.triggerWindow {
		return
	}

	yesterday := now.AddDate(0, 0, -1).Format(models.DateLayout)
	if yesterday == s.lastReportDate {
		return
	}

	s.logger.Info("Daily sleep trigger fired",
		zap.String("date", yesterday),
	)
	s.lastReportDate = yesterday

	if err := s.reporter.ReportDay(ctx, yesterday); err != nil {
		s.logger.Error("Daily sleep report failed",
			zap.String("date", yesterday),
			zap.Error(err),
		)
	}
}
