package protocol

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// 控制哨兵（见设备固件协议文档）
const (
	sentinelSyncOK = "SYNC_OK"
	sentinelEnd    = "END"
)

// chunkPattern 分片帧格式：<n>/<total>:<payload>
var chunkPattern = regexp.MustCompile(`^(\d+)/(\d+):(.*)$`)

// EventKind 重组器产出的事件类型
type EventKind int

const (
	// EventNone 无事件（分片已缓存，或载荷被丢弃）
	EventNone EventKind = iota
	// EventClockSync 收到时钟同步确认（SYNC_OK）
	EventClockSync
	// EventMessage 重组出一条完整逻辑消息
	EventMessage
)

// Event 重组器的单次产出
type Event struct {
	Kind    EventKind
	Message string // Kind == EventMessage 时为重组后的文本
}

// reassemblyState 重组状态（整体替换，不做部分更新）
// total == 0 表示 Idle；收到 1 号分片后进入 Accumulating
type reassemblyState struct {
	total  int
	chunks map[int]string
}

func idleState() reassemblyState {
	return reassemblyState{}
}

// Reassembler 帧重组器
// 从传输层的单条通知载荷流中重组逻辑消息：
//   - "SYNC_OK"           → 时钟同步确认，清空缓冲
//   - "END"               → 终止哨兵，按序拼接 1..total 分片（缺失分片跳过）
//   - "<n>/<total>:<数据>" → 分片，n==1 时重置预期分片总数
//   - 其他                 → 丢弃
//
// 单条载荷解码失败时清空缓冲自愈，不向调用方传播错误。
type Reassembler struct {
	state  reassemblyState
	logger *zap.Logger
}

// NewReassembler 创建帧重组器
func NewReassembler(logger *zap.Logger) *Reassembler {
	return &Reassembler{
		state:  idleState(),
		logger: logger,
	}
}

// Feed 处理一条原始通知载荷，返回至多一个事件
func (r *Reassembler) Feed(raw []byte) Event {
	text, err := decodePayload(raw)
	if err != nil {
		// 载荷损坏视为重同步点：清空缓冲，等待下一个序列
		r.logger.Warn("Failed to decode payload, resetting reassembly buffer",
			zap.Error(err),
		)
		r.state = idleState()
		return Event{Kind: EventNone}
	}

	trimmed := strings.TrimSpace(text)

	if trimmed == sentinelSyncOK {
		r.logger.Info("Clock sync acknowledged by sensor")
		r.state = idleState()
		return Event{Kind: EventClockSync}
	}

	if trimmed == sentinelEnd {
		return r.finishMessage()
	}

	if m := chunkPattern.FindStringSubmatch(text); m != nil {
		r.storeChunk(m)
		return Event{Kind: EventNone}
	}

	r.logger.Warn("Unrecognized payload dropped",
		zap.String("payload", text),
	)
	return Event{Kind: EventNone}
}

// finishMessage 按序拼接已缓存分片并清空状态
func (r *Reassembler) finishMessage() Event {
	state := r.state
	r.state = idleState()

	var sb strings.Builder
	for i := 1; i <= state.total; i++ {
		chunk, ok := state.chunks[i]
		if !ok {
			// 容忍丢包：缺失分片不贡献内容，消息照常产出
			r.logger.Warn("Missing chunk in sequence",
				zap.Int("chunk", i),
				zap.Int("total", state.total),
			)
			continue
		}
		sb.WriteString(chunk)
	}

	message := sb.String()
	if message == "" {
		r.logger.Warn("Reassembled message is empty, nothing to emit")
		return Event{Kind: EventNone}
	}

	r.logger.Debug("Message reassembled",
		zap.Int("chunks", len(state.chunks)),
		zap.Int("length", len(message)),
	)
	return Event{Kind: EventMessage, Message: message}
}

// storeChunk 缓存一个分片；1 号分片重置预期总数（即使中途到达）
func (r *Reassembler) storeChunk(m []string) {
	seq, _ := strconv.Atoi(m[1])
	total, _ := strconv.Atoi(m[2])
	payload := m[3]

	if seq < 1 || total < 1 {
		r.logger.Warn("Malformed chunk header dropped",
			zap.Int("seq", seq),
			zap.Int("total", total),
		)
		return
	}

	next := r.state
	if seq == 1 {
		// 1 号分片是新序列的权威起点：丢弃旧缓冲
		next = reassemblyState{total: total, chunks: make(map[int]string)}
	} else if next.chunks == nil {
		next = reassemblyState{total: next.total, chunks: make(map[int]string)}
	} else {
		// 复制后整体替换，避免部分更新
		chunks := make(map[int]string, len(next.chunks)+1)
		for k, v := range next.chunks {
			chunks[k] = v
		}
		next = reassemblyState{total: next.total, chunks: chunks}
	}
	next.chunks[seq] = payload
	r.state = next

	r.logger.Debug("Chunk buffered",
		zap.Int("seq", seq),
		zap.Int("total", total),
		zap.Int("buffered", len(next.chunks)),
	)
}

// decodePayload 将原始载荷规整为文本
// 固件在部分链路上以十六进制 ASCII 发送，此处自动识别并还原
func decodePayload(raw []byte) (string, error) {
	text := string(raw)
	if text == "" {
		return "", nil
	}
	if !isHexString(text) {
		return text, nil
	}
	if len(text)%2 != 0 {
		return "", fmt.Errorf("odd-length hex payload: %d chars", len(text))
	}
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return "", fmt.Errorf("invalid hex payload: %w", err)
	}
	// 去除填充的 NUL 字节
	return strings.TrimRight(string(decoded), "\x00"), nil
}

func isHexString(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
