package consumer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"wisefido-wearable-agent/internal/config"
	"wisefido-wearable-agent/internal/outbox"
	"wisefido-wearable-agent/internal/protocol"
)

// Publisher 传输层发布接口（仅用到 MQTTClient 的发布能力）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Subscriber 传输层订阅接口
type Subscriber interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topics ...string) error
}

// Transport 收发合一的传输层接口（MQTTClient 实现）
type Transport interface {
	Publisher
	Subscriber
}

// NotificationConsumer 穿戴设备通知消费者
// BLE 桥接器把设备的每条 notify 载荷原样发布到 wearable/{device_id}/data；
// 这里喂给帧重组器，重组出的消息经解析校验后落入 Outbox。
// 传输层保证通知回调串行到达，消费路径无需额外同步
type NotificationConsumer struct {
	config      *config.Config
	transport   Transport
	reassembler *protocol.Reassembler
	parser      *protocol.Parser
	outbox      *outbox.Outbox
	logger      *zap.Logger
}

// NewNotificationConsumer 创建通知消费者
func NewNotificationConsumer(
	cfg *config.Config,
	transport Transport,
	reassembler *protocol.Reassembler,
	parser *protocol.Parser,
	ob *outbox.Outbox,
	logger *zap.Logger,
) *NotificationConsumer {
	return &NotificationConsumer{
		config:      cfg,
		transport:   transport,
		reassembler: reassembler,
		parser:      parser,
		outbox:      ob,
		logger:      logger,
	}
}

// dataTopic 设备数据主题，如 "wearable/wearable-01/data"
func (c *NotificationConsumer) dataTopic() string {
	return fmt.Sprintf("wearable/%s/data", c.config.Wearable.DeviceID)
}

// commandTopic 设备命令主题（时钟同步写入）
func (c *NotificationConsumer) commandTopic() string {
	return fmt.Sprintf("wearable/%s/command", c.config.Wearable.DeviceID)
}

// Start 启动消费者
func (c *NotificationConsumer) Start(ctx context.Context) error {
	if err := c.transport.Subscribe(c.dataTopic(), c.config.MQTT.QoS, c.handleNotification); err != nil {
		return fmt.Errorf("failed to subscribe to data topic: %w", err)
	}

	c.logger.Info("Notification consumer started",
		zap.String("topic", c.dataTopic()),
	)

	// 连接建立后同步一次设备时钟
	c.SyncClock()

	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *NotificationConsumer) Stop(ctx context.Context) error {
	if err := c.transport.Unsubscribe(c.dataTopic()); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("Notification consumer stopped")
	return nil
}

// SyncClock 向设备下发当前 Unix 秒（"T<unixSeconds>"）
// 发送失败只记录日志，会话继续；设备会以 SYNC_OK 确认
func (c *NotificationConsumer) SyncClock() {
	payload := "T" + strconv.FormatInt(time.Now().Unix(), 10)

	c.logger.Info("Sending clock sync",
		zap.String("payload", payload),
	)

	if err := c.transport.Publish(c.commandTopic(), c.config.MQTT.QoS, false, []byte(payload)); err != nil {
		c.logger.Warn("Clock sync write failed, continuing without sync",
			zap.Error(err),
		)
	}
}

// handleNotification 处理一条原始通知载荷
func (c *NotificationConsumer) handleNotification(topic string, payload []byte) error {
	c.logger.Debug("Received notification",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	event := c.reassembler.Feed(payload)
	switch event.Kind {
	case protocol.EventClockSync:
		// 无状态事件，SYNC_OK 永远不会进入解析器
		return nil
	case protocol.EventMessage:
		return c.handleMessage(event.Message)
	default:
		return nil
	}
}

// handleMessage 解析重组后的消息并写入 Outbox
func (c *NotificationConsumer) handleMessage(message string) error {
	reading, err := c.parser.ParseReading(message)
	if err != nil {
		// 校验失败的读数直接丢弃：原始分片已随缓冲清空，无法重试
		c.logger.Warn("Dropping unparseable message",
			zap.String("message", message),
			zap.Error(err),
		)
		return nil
	}

	recordID, err := c.outbox.Append(reading, message)
	if err != nil {
		return fmt.Errorf("failed to append reading: %w", err)
	}

	stats := c.outbox.Stats()
	c.logger.Info("Reading stored",
		zap.String("record_id", recordID),
		zap.Time("occurred_at", reading.OccurredAt),
		zap.Float64("heart_rate", reading.HeartRate),
		zap.Float64("temperature", reading.Temperature),
		zap.Float64("motion", reading.Motion),
		zap.Int("unsent", stats.Unsent),
	)
	return nil
}
