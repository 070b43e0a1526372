package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/xuri/excelize/v2"

	"wisefido-wearable-agent/internal/config"
	"wisefido-wearable-agent/internal/models"
	"wisefido-wearable-agent/internal/outbox"
)

// 运维辅助工具：把 Outbox 快照导出为 xlsx，便于排查未发送积压
// 用法: export-outbox [-out outbox.xlsx]
// 存储后端配置沿用服务的环境变量（STORAGE_BACKEND 等）
func main() {
	outPath := flag.String("out", "outbox.xlsx", "output xlsx path")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var store outbox.SnapshotStore
	switch cfg.Wearable.StorageBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to redis: %v\n", err)
			os.Exit(1)
		}
		defer client.Close()
		store = outbox.NewRedisSnapshotStore(client, cfg.Wearable.OutboxKey)
	case "file":
		store = outbox.NewFileSnapshotStore(cfg.Wearable.StoragePath)
	default:
		fmt.Fprintf(os.Stderr, "Unsupported storage backend: %s\n", cfg.Wearable.StorageBackend)
		os.Exit(1)
	}

	records, err := store.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load snapshot: %v\n", err)
		os.Exit(1)
	}

	if err := writeWorkbook(*outPath, records); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write workbook: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Exported %d records to %s\n", len(records), *outPath)
}

func writeWorkbook(path string, records []models.StoredRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheetName = "Outbox"
	f.SetSheetName("Sheet1", sheetName)

	headers := []string{"ID", "Occurred At", "Hour Key", "Heart Rate", "Temperature", "Motion", "Sent", "Raw Message"}
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return err
		}
	}

	for row, r := range records {
		values := []interface{}{
			r.ID,
			r.OccurredAt.UTC().Format(time.RFC3339),
			r.HourKey,
			r.HeartRate,
			r.Temperature,
			r.Motion,
			r.Sent,
			r.RawMessage,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return err
			}
		}
	}

	return f.SaveAs(path)
}
