package protocol_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-wearable-agent/internal/protocol"
)

func feedAll(r *protocol.Reassembler, payloads ...string) []protocol.Event {
	var events []protocol.Event
	for _, p := range payloads {
		events = append(events, r.Feed([]byte(p)))
	}
	return events
}

func TestReassembler_CompleteSequence(t *testing.T) {
	r := protocol.NewReassembler(zap.NewNop())

	events := feedAll(r,
		"1/3:2025/01/21 10:46:23,",
		"2/3:58,37.7,",
		"3/3:1.57",
		"END",
	)

	for i := 0; i < 3; i++ {
		assert.Equal(t, protocol.EventNone, events[i].Kind)
	}
	require.Equal(t, protocol.EventMessage, events[3].Kind)
	assert.Equal(t, "2025/01/21 10:46:23,58,37.7,1.57", events[3].Message)
}

func TestReassembler_MissingInteriorChunk(t *testing.T) {
	r := protocol.NewReassembler(zap.NewNop())

	// 2/3 never arrives; reassembly is lenient and emits what it has
	feedAll(r, "1/3:AAA,", "3/3:CCC")
	event := r.Feed([]byte("END"))

	require.Equal(t, protocol.EventMessage, event.Kind)
	assert.Equal(t, "AAA,CCC", event.Message)
}

func TestReassembler_NewFirstChunkDiscardsPreviousSequence(t *testing.T) {
	r := protocol.NewReassembler(zap.NewNop())

	// An incomplete sequence is abandoned when a new chunk #1 arrives
	feedAll(r, "1/2:OLD", "1/2:NEW,", "2/2:DATA")
	event := r.Feed([]byte("END"))

	require.Equal(t, protocol.EventMessage, event.Kind)
	assert.Equal(t, "NEW,DATA", event.Message)
}

func TestReassembler_SyncOKClearsBuffer(t *testing.T) {
	r := protocol.NewReassembler(zap.NewNop())

	feedAll(r, "1/2:AAA")
	event := r.Feed([]byte("SYNC_OK"))
	require.Equal(t, protocol.EventClockSync, event.Kind)

	// Buffer was cleared, so END has nothing to emit
	event = r.Feed([]byte("END"))
	assert.Equal(t, protocol.EventNone, event.Kind)
}

func TestReassembler_UnrecognizedPayloadDoesNotAffectBuffer(t *testing.T) {
	r := protocol.NewReassembler(zap.NewNop())

	feedAll(r, "1/2:AAA,", "garbage without header", "2/2:BBB")
	event := r.Feed([]byte("END"))

	require.Equal(t, protocol.EventMessage, event.Kind)
	assert.Equal(t, "AAA,BBB", event.Message)
}

func TestReassembler_EndWithoutChunksEmitsNothing(t *testing.T) {
	r := protocol.NewReassembler(zap.NewNop())

	event := r.Feed([]byte("END"))
	assert.Equal(t, protocol.EventNone, event.Kind)
}

func TestReassembler_HexEncodedPayload(t *testing.T) {
	r := protocol.NewReassembler(zap.NewNop())

	// 固件在部分链路上以十六进制 ASCII 发送
	encoded := hex.EncodeToString([]byte("1/1:2025/01/21 10:46:23,58,37.7,1.57"))
	events := feedAll(r, encoded, "END")

	assert.Equal(t, protocol.EventNone, events[0].Kind)
	require.Equal(t, protocol.EventMessage, events[1].Kind)
	assert.Equal(t, "2025/01/21 10:46:23,58,37.7,1.57", events[1].Message)
}

func TestReassembler_DecodeFailureResetsBuffer(t *testing.T) {
	r := protocol.NewReassembler(zap.NewNop())

	feedAll(r, "1/2:AAA")
	// Odd-length all-hex payload fails to decode and acts as a resync point
	event := r.Feed([]byte("abc"))
	assert.Equal(t, protocol.EventNone, event.Kind)

	event = r.Feed([]byte("END"))
	assert.Equal(t, protocol.EventNone, event.Kind)
}

func TestReassembler_ZeroChunkHeaderDropped(t *testing.T) {
	r := protocol.NewReassembler(zap.NewNop())

	feedAll(r, "1/1:GOOD", "0/1:BAD")
	event := r.Feed([]byte("END"))

	require.Equal(t, protocol.EventMessage, event.Kind)
	assert.Equal(t, "GOOD", event.Message)
}
