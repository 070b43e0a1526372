package config

import (
	"os"
	"strconv"
)

// MQTTConfig MQTT配置（BLE 网关桥接器通过 MQTT 转发穿戴设备通知）
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// RedisConfig Redis配置（可选的快照存储后端）
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config 穿戴设备网关服务配置
type Config struct {
	MQTT  MQTTConfig
	Redis RedisConfig

	// 穿戴设备特定配置
	Wearable struct {
		// 设备 ID（MQTT 主题片段，如 "wearable/{id}/data"）
		DeviceID string

		// 快照存储后端
		// 选项：file（本地 JSON 快照）、redis（单 key JSON 快照）
		StorageBackend string
		StoragePath    string // file 后端的快照文件路径
		OutboxKey      string // redis 后端的快照 key

		// 数据保留天数（超过后无条件删除，含未发送数据）
		RetentionDays int

		// 调度器轮询间隔（秒），默认 600 秒（10 分钟）
		PollInterval int

		// 整点/正午触发窗口（分钟），默认 10 分钟
		TriggerWindow int

		// 每个小时桶发送之间的间隔（毫秒），避免突发请求
		BucketSendDelay int

		// 睡眠汇总上报时刻（小时，0-23），默认 12（正午）
		SleepReportHour int
	}

	// 远端健康 API 配置
	API struct {
		BaseURL string
		Token   string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// MQTT（默认连接本机桥接器）
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-wearable-agent")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Wearable.DeviceID = getEnv("WEARABLE_DEVICE_ID", "wearable-01")
	cfg.Wearable.StorageBackend = getEnv("STORAGE_BACKEND", "file")
	cfg.Wearable.StoragePath = getEnv("STORAGE_PATH", "data/outbox.json")
	cfg.Wearable.OutboxKey = getEnv("OUTBOX_KEY", "wearable:outbox:records")
	cfg.Wearable.RetentionDays = getEnvInt("RETENTION_DAYS", 7)
	cfg.Wearable.PollInterval = getEnvInt("POLL_INTERVAL_SECONDS", 600)
	cfg.Wearable.TriggerWindow = getEnvInt("TRIGGER_WINDOW_MINUTES", 10)
	cfg.Wearable.BucketSendDelay = getEnvInt("BUCKET_SEND_DELAY_MS", 500)
	cfg.Wearable.SleepReportHour = getEnvInt("SLEEP_REPORT_HOUR", 12)

	cfg.API.BaseURL = getEnv("API_BASE_URL", "http://localhost:8000")
	cfg.API.Token = getEnv("API_TOKEN", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}
