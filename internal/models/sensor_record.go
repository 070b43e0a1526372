package models

import (
	"time"
)

// SensorReading 一条重组完成并校验后的传感器读数
// （心率 bpm / 体温 °C / 动作幅度，无量纲）
type SensorReading struct {
	OccurredAt  time.Time `json:"occurred_at"`
	HeartRate   float64   `json:"heart_rate"`
	Temperature float64   `json:"temperature"`
	Motion      float64   `json:"motion"`
}

// StoredRecord 落盘的读数记录（Outbox 持久化单元）
// HourKey 在写入时由 OccurredAt 截断到小时生成，之后不再重算
type StoredRecord struct {
	ID          string    `json:"id"`
	OccurredAt  time.Time `json:"occurred_at"`
	HeartRate   float64   `json:"heart_rate"`
	Temperature float64   `json:"temperature"`
	Motion      float64   `json:"motion"`
	Sent        bool      `json:"sent"`
	HourKey     string    `json:"hour_key"`
	RawMessage  string    `json:"raw_message"`
}

// HourKeyLayout hourKey 的时间格式（UTC，截断到小时）
// 如 "2025-01-21T10"
const HourKeyLayout = "2006-01-02T15"

// HourKeyFor 由读数时间生成 hourKey
func HourKeyFor(t time.Time) string {
	return t.UTC().Format(HourKeyLayout)
}

// HourKeyStart 解析 hourKey 对应的整点时间（UTC）
func HourKeyStart(key string) (time.Time, error) {
	return time.Parse(HourKeyLayout, key)
}

// DateLayout 日期格式（UTC 日界）
const DateLayout = "2006-01-02"

// ParseDate 解析 "YYYY-MM-DD" 日期
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// HealthSample 远端健康数据写入请求体
type HealthSample struct {
	MeasuredAt string  `json:"measured_at"`
	Body       float64 `json:"body"`
	HeartRate  int     `json:"heart_rate"`
}

// SleepSample 远端睡眠数据写入请求体
type SleepSample struct {
	Date       string  `json:"date"`
	SleepHours float64 `json:"sleep_hours"`
}

// SleepPeriod 一段连续的睡眠区间（闭区间，已结束）
type SleepPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SleepSummary 单日睡眠汇总
// Quality: "good"（≥6小时）或 "poor"
type SleepSummary struct {
	Periods    []SleepPeriod `json:"periods"`
	TotalHours float64       `json:"total_hours"`
	Quality    string        `json:"quality"`
}
