package outbox

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-wearable-agent/internal/models"
)

// Stats Outbox 状态统计（向上层暴露的唯一状态面）
type Stats struct {
	Total  int
	Sent   int
	Unsent int
}

// Outbox 持久化发件箱
// 持有全部读数记录的唯一内存副本；每次变更（追加/置位/清理）
// 完成后立即整体重写持久化快照，进程死亡最多丢失正在进行的那次变更。
// 其他组件只能通过这里的方法访问记录，不允许直接改动底层存储。
type Outbox struct {
	mu        sync.Mutex
	records   []models.StoredRecord
	store     SnapshotStore
	retention time.Duration
	logger    *zap.Logger
}

// NewOutbox 创建 Outbox 并从快照恢复
func NewOutbox(store SnapshotStore, retention time.Duration, logger *zap.Logger) (*Outbox, error) {
	records, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load outbox snapshot: %w", err)
	}

	sent, unsent := 0, 0
	for _, r := range records {
		if r.Sent {
			sent++
		} else {
			unsent++
		}
	}
	logger.Info("Outbox snapshot loaded",
		zap.Int("total", len(records)),
		zap.Int("sent", sent),
		zap.Int("unsent", unsent),
	)

	return &Outbox{
		records:   records,
		store:     store,
		retention: retention,
		logger:    logger,
	}, nil
}

// Append 追加一条读数
// 写入时由 OccurredAt 生成 hourKey（之后不变），sent=false；
// 顺带清理超过保留期的旧记录；快照写入失败则整个操作失败
func (o *Outbox) Append(reading models.SensorReading, rawMessage string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	record := models.StoredRecord{
		ID:          uuid.NewString(),
		OccurredAt:  reading.OccurredAt,
		HeartRate:   reading.HeartRate,
		Temperature: reading.Temperature,
		Motion:      reading.Motion,
		Sent:        false,
		HourKey:     models.HourKeyFor(reading.OccurredAt),
		RawMessage:  rawMessage,
	}
	next := append(append([]models.StoredRecord{}, o.records...), record)

	// 保留期外的记录无条件删除（含未发送，接受的数据丢失上界）
	cutoff := time.Now().Add(-o.retention)
	kept := next[:0]
	removed := 0
	for _, r := range next {
		if r.OccurredAt.After(cutoff) {
			kept = append(kept, r)
		} else {
			removed++
		}
	}

	if err := o.store.Save(kept); err != nil {
		return "", fmt.Errorf("failed to persist outbox: %w", err)
	}
	o.records = kept

	if removed > 0 {
		o.logger.Info("Pruned expired records on append",
			zap.Int("removed", removed),
		)
	}
	o.logger.Debug("Record appended",
		zap.String("record_id", record.ID),
		zap.String("hour_key", record.HourKey),
		zap.Int("total", len(o.records)),
	)
	return record.ID, nil
}

// MarkSent 将给定记录置为已发送（单向翻转，重复标记为空操作）
func (o *Outbox) MarkSent(ids []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	next := append([]models.StoredRecord{}, o.records...)
	flipped := 0
	for i := range next {
		if _, ok := idSet[next[i].ID]; ok && !next[i].Sent {
			next[i].Sent = true
			flipped++
		}
	}
	if flipped == 0 {
		return nil
	}

	if err := o.store.Save(next); err != nil {
		return fmt.Errorf("failed to persist outbox: %w", err)
	}
	o.records = next

	o.logger.Debug("Records marked sent",
		zap.Int("flipped", flipped),
	)
	return nil
}

// Prune 删除 occurredAt 早于保留期的记录，返回删除数
func (o *Outbox) Prune(olderThan time.Duration) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	kept := make([]models.StoredRecord, 0, len(o.records))
	removed := 0
	for _, r := range o.records {
		if r.OccurredAt.After(cutoff) {
			kept = append(kept, r)
		} else {
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	if err := o.store.Save(kept); err != nil {
		return 0, fmt.Errorf("failed to persist outbox: %w", err)
	}
	o.records = kept

	o.logger.Info("Outbox pruned",
		zap.Int("removed", removed),
		zap.Int("remaining", len(kept)),
	)
	return removed, nil
}

// ListUnsent 按 hourKey 分组返回全部未发送记录（副本）
func (o *Outbox) ListUnsent() map[string][]models.StoredRecord {
	o.mu.Lock()
	defer o.mu.Unlock()

	grouped := make(map[string][]models.StoredRecord)
	for _, r := range o.records {
		if !r.Sent {
			grouped[r.HourKey] = append(grouped[r.HourKey], r)
		}
	}
	return grouped
}

// HasUnsentInHour 指定 hourKey 是否存在未发送记录
func (o *Outbox) HasUnsentInHour(hourKey string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, r := range o.records {
		if r.HourKey == hourKey && !r.Sent {
			return true
		}
	}
	return false
}

// RecordsOn 返回指定 UTC 日期的全部记录（按时间升序）
func (o *Outbox) RecordsOn(date time.Time) []models.StoredRecord {
	o.mu.Lock()
	defer o.mu.Unlock()

	day := date.UTC().Format("2006-01-02")
	var result []models.StoredRecord
	for _, r := range o.records {
		if r.OccurredAt.UTC().Format("2006-01-02") == day {
			result = append(result, r)
		}
	}
	sortByOccurredAt(result)
	return result
}

// UnsentByHour 各 hourKey 的未发送记录数（诊断用）
func (o *Outbox) UnsentByHour() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()

	counts := make(map[string]int)
	for _, r := range o.records {
		if !r.Sent {
			counts[r.HourKey]++
		}
	}
	return counts
}

// All 返回全部记录的副本（诊断导出用）
func (o *Outbox) All() []models.StoredRecord {
	o.mu.Lock()
	defer o.mu.Unlock()

	result := append([]models.StoredRecord{}, o.records...)
	sortByOccurredAt(result)
	return result
}

// Stats 返回状态统计
func (o *Outbox) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Stats{Total: len(o.records)}
	for _, r := range o.records {
		if r.Sent {
			s.Sent++
		} else {
			s.Unsent++
		}
	}
	return s
}

func sortByOccurredAt(records []models.StoredRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].OccurredAt.Before(records[j].OccurredAt)
	})
}
