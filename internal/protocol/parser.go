package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"wisefido-wearable-agent/internal/models"
)

// ErrTooFewFields 消息字段不足（至少需要 日时,心率,体温,动作 四段）
var ErrTooFewFields = errors.New("too few fields in sensor message")

// datetimeLayout 固件的本地时间格式，按 UTC 处理
const datetimeLayout = "2006/01/02 15:04:05"

// 生理合理区间与修正默认值
// 传感器噪声很常见，单个异常字段不应丢弃整条读数；
// 超出区间的字段替换为默认值并记录日志，保证数据质量可审计
const (
	heartRateMin, heartRateMax = 30.0, 200.0
	heartRateDefault           = 60.0

	temperatureMin, temperatureMax = 30.0, 45.0
	temperatureDefault             = 36.5

	motionMin, motionMax = 0.0, 100.0
	motionDefault        = 0.0
)

// Parser 读数解析/校验器
type Parser struct {
	logger *zap.Logger
}

// NewParser 创建解析器
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// ParseReading 解析一条重组后的消息文本
// 格式：<datetime>,<heartRate>,<temperature>,<motion>[,...]
// 仅在字段不足或数值字段无法解析时失败；越界字段做替换修正，不拒绝
func (p *Parser) ParseReading(text string) (models.SensorReading, error) {
	parts := strings.Split(text, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if len(parts) < 4 {
		return models.SensorReading{}, fmt.Errorf("%w: got %d, need 4", ErrTooFewFields, len(parts))
	}

	occurredAt, err := time.Parse(datetimeLayout, parts[0])
	if err != nil {
		return models.SensorReading{}, fmt.Errorf("invalid datetime %q: %w", parts[0], err)
	}
	occurredAt = occurredAt.UTC()

	heartRate, err := parseNumeric("heart_rate", parts[1])
	if err != nil {
		return models.SensorReading{}, err
	}
	temperature, err := parseNumeric("temperature", parts[2])
	if err != nil {
		return models.SensorReading{}, err
	}
	motion, err := parseNumeric("motion", parts[3])
	if err != nil {
		return models.SensorReading{}, err
	}

	heartRate = p.correct("heart_rate", heartRate, heartRateMin, heartRateMax, heartRateDefault)
	temperature = p.correct("temperature", temperature, temperatureMin, temperatureMax, temperatureDefault)
	motion = p.correct("motion", motion, motionMin, motionMax, motionDefault)

	return models.SensorReading{
		OccurredAt:  occurredAt,
		HeartRate:   heartRate,
		Temperature: temperature,
		Motion:      motion,
	}, nil
}

// correct 越界值替换为默认值（带日志）
func (p *Parser) correct(field string, value, min, max, def float64) float64 {
	if value < min || value > max {
		p.logger.Warn("Out-of-range sensor value corrected",
			zap.String("field", field),
			zap.Float64("value", value),
			zap.Float64("default", def),
		)
		return def
	}
	return value
}

func parseNumeric(field, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", field, s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s value %q: not a finite number", field, s)
	}
	return v, nil
}
