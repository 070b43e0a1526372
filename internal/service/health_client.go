package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"wisefido-wearable-agent/internal/models"
)

// HealthClient 远端健康 API 客户端
// 两个写端点都假定服务端对同一桶/同一日期的重复提交幂等容忍，
// 因此客户端不做请求内重试（重试由同步引擎的下一轮 pass 负责）
type HealthClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHealthClient 创建健康 API 客户端
func NewHealthClient(baseURL, token string, logger *zap.Logger) *HealthClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if token != "" {
		client.SetAuthToken(token)
	}

	return &HealthClient{
		httpClient: client,
		logger:     logger,
	}
}

// SubmitHealthSample 提交小时聚合健康数据
func (c *HealthClient) SubmitHealthSample(ctx context.Context, sample models.HealthSample) error {
	c.logger.Info("Calling health API: submit health sample",
		zap.String("measured_at", sample.MeasuredAt),
		zap.Float64("body", sample.Body),
		zap.Int("heart_rate", sample.HeartRate),
	)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(sample).
		Post("/api/health/")

	if err != nil {
		return fmt.Errorf("failed to call health API: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("health API error: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// SubmitSleepSample 提交每日睡眠数据
func (c *HealthClient) SubmitSleepSample(ctx context.Context, sample models.SleepSample) error {
	c.logger.Info("Calling health API: submit sleep sample",
		zap.String("date", sample.Date),
		zap.Float64("sleep_hours", sample.SleepHours),
	)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(sample).
		Post("/api/health/sleep/")

	if err != nil {
		return fmt.Errorf("failed to call health API: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("health API error: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
