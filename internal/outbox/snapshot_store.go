package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-redis/redis/v8"

	"wisefido-wearable-agent/internal/models"
)

// SnapshotStore 快照存储端口
// Outbox 每次变更后整体重写快照；实现只需保证 Save 的原子可见性，
// 未来可替换为带索引的存储而不触及 Outbox 逻辑
type SnapshotStore interface {
	Load() ([]models.StoredRecord, error)
	Save(records []models.StoredRecord) error
}

// FileSnapshotStore 本地 JSON 文件快照存储
// 先写临时文件再 rename，进程中途死亡不会留下半截快照
type FileSnapshotStore struct {
	path string
}

// NewFileSnapshotStore 创建文件快照存储
func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

// Load 读取快照；文件不存在视为空 Outbox（首次启动）
func (s *FileSnapshotStore) Load() ([]models.StoredRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot %s: %w", s.path, err)
	}

	var records []models.StoredRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", s.path, err)
	}
	return records, nil
}

// Save 整体重写快照
func (s *FileSnapshotStore) Save(records []models.StoredRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".outbox-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot %s: %w", s.path, err)
	}
	return nil
}

// RedisSnapshotStore 基于 go-redis 的单 key JSON 快照存储
type RedisSnapshotStore struct {
	client *redis.Client
	key    string
}

// NewRedisSnapshotStore 创建 Redis 快照存储
func NewRedisSnapshotStore(client *redis.Client, key string) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, key: key}
}

// Load 读取快照；key 不存在视为空 Outbox
func (s *RedisSnapshotStore) Load() ([]models.StoredRecord, error) {
	ctx := context.Background()
	val, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot key %s: %w", s.key, err)
	}

	var records []models.StoredRecord
	if err := json.Unmarshal([]byte(val), &records); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot key %s: %w", s.key, err)
	}
	return records, nil
}

// Save 整体重写快照（SET 本身原子）
func (s *RedisSnapshotStore) Save(records []models.StoredRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.client.Set(context.Background(), s.key, string(data), 0).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot key %s: %w", s.key, err)
	}
	return nil
}
