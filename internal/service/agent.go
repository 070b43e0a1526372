package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"wisefido-wearable-agent/internal/aggregator"
	"wisefido-wearable-agent/internal/config"
	"wisefido-wearable-agent/internal/consumer"
	"wisefido-wearable-agent/internal/outbox"
	"wisefido-wearable-agent/internal/protocol"
	"wisefido-wearable-agent/internal/scheduler"
)

// AgentService 穿戴设备网关服务
// 入站链路：传输通知 → 帧重组 → 解析校验 → Outbox
// 出站链路：同步引擎读 Outbox → 远端 API → 置位 sent
// 调度器与睡眠任务独立于入站链路，只读 Outbox
type AgentService struct {
	config      *config.Config
	logger      *zap.Logger
	redisClient *redis.Client
	mqttClient  *consumer.MQTTClient
	outbox      *outbox.Outbox
	syncEngine  *aggregator.SyncEngine
	reporter    *aggregator.SleepReporter
	scheduler   *scheduler.Scheduler
	consumer    *consumer.NotificationConsumer
}

// NewAgentService 创建网关服务
func NewAgentService(cfg *config.Config, logger *zap.Logger) (*AgentService, error) {
	// 选择快照存储后端
	var store outbox.SnapshotStore
	var redisClient *redis.Client
	switch cfg.Wearable.StorageBackend {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store = outbox.NewRedisSnapshotStore(redisClient, cfg.Wearable.OutboxKey)
	case "file":
		store = outbox.NewFileSnapshotStore(cfg.Wearable.StoragePath)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Wearable.StorageBackend)
	}

	// 恢复 Outbox
	retention := time.Duration(cfg.Wearable.RetentionDays) * 24 * time.Hour
	ob, err := outbox.NewOutbox(store, retention, logger)
	if err != nil {
		return nil, err
	}

	// 远端 API 客户端与同步引擎
	healthClient := NewHealthClient(cfg.API.BaseURL, cfg.API.Token, logger)
	sendDelay := time.Duration(cfg.Wearable.BucketSendDelay) * time.Millisecond
	syncEngine := aggregator.NewSyncEngine(ob, healthClient, sendDelay, logger)
	reporter := aggregator.NewSleepReporter(ob, healthClient, logger)

	// 调度器
	sched := scheduler.NewScheduler(
		ob,
		syncEngine,
		reporter,
		time.Duration(cfg.Wearable.PollInterval)*time.Second,
		time.Duration(cfg.Wearable.TriggerWindow)*time.Minute,
		cfg.Wearable.SleepReportHour,
		logger,
	)

	// 连接传输层（之后由 paho 自动重连）
	mqttClient, err := consumer.NewMQTTClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to transport: %w", err)
	}

	// 协议管线
	reassembler := protocol.NewReassembler(logger)
	parser := protocol.NewParser(logger)

	return &AgentService{
		config:     cfg,
		logger:     logger,
		outbox:     ob,
		syncEngine: syncEngine,
		reporter:   reporter,
		scheduler:  sched,
		mqttClient: mqttClient,
		consumer: consumer.NewNotificationConsumer(
			cfg, mqttClient, reassembler, parser, ob, logger,
		),
		redisClient: redisClient,
	}, nil
}

// Start 启动服务
func (s *AgentService) Start(ctx context.Context) error {
	s.logger.Info("Starting wearable agent service",
		zap.String("device_id", s.config.Wearable.DeviceID),
		zap.String("storage_backend", s.config.Wearable.StorageBackend),
	)

	// 启动补发：对快照恢复出的未发送桶尝试一次推送
	succeeded, failed := s.syncEngine.FlushUnsent(ctx)
	s.logger.Info("Startup catch-up flush finished",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
	)

	// 调度器后台运行
	go s.scheduler.Run(ctx)

	// 消费者阻塞直到 ctx 取消
	return s.consumer.Start(ctx)
}

// Stop 停止服务
func (s *AgentService) Stop(ctx context.Context) error {
	if s.consumer != nil && s.mqttClient != nil {
		if err := s.consumer.Stop(ctx); err != nil {
			s.logger.Error("Failed to stop consumer", zap.Error(err))
		}
		s.mqttClient.Disconnect()
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	stats := s.outbox.Stats()
	s.logger.Info("Wearable agent service stopped",
		zap.Int("total_records", stats.Total),
		zap.Int("unsent_records", stats.Unsent),
	)
	return nil
}
