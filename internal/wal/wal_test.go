package wal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Dir:            t.TempDir(),
		SyncMode:       "none", // fast for tests
		MaxSegmentSize: minSegmentSize,
		MaxSegmentRecs: 200,
	}
}

func testPayloads(n int) [][]byte {
	payloads := make([][]byte, n)
	for i := range payloads {
		payloads[i] = fmt.Appendf(nil, `{"entity":"trace","entityId":"t-%d","action":"update","data":{"step":%d}}`, i, i)
	}
	return payloads
}

func closeWAL(t *testing.T, w *WAL) {
	t.Helper()
	if err := w.Close(); err != nil {
		t.Logf("wal close: %v", err)
	}
}

func TestWAL_DisabledWhenDirEmpty(t *testing.T) {
	w, err := New(testLogger(), Config{})
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestWAL_WriteAndRecover(t *testing.T) {
	cfg := testConfig(t)
	w, err := New(testLogger(), cfg)
	require.NoError(t, err)

	payloads := testPayloads(5)
	require.NoError(t, w.Write(payloads))
	require.NoError(t, w.Close())

	// Reopen and recover — all 5 should come back in write order.
	w2, err := New(testLogger(), cfg)
	require.NoError(t, err)
	defer closeWAL(t, w2)

	recovered, err := w2.Recover()
	require.NoError(t, err)
	require.Len(t, recovered, 5)
	for i, r := range recovered {
		assert.Equal(t, string(payloads[i]), string(r), "payload %d mismatch", i)
	}
}

func TestWAL_CheckpointAdvancesRecovery(t *testing.T) {
	cfg := testConfig(t)
	w, err := New(testLogger(), cfg)
	require.NoError(t, err)

	payloads := testPayloads(10)
	require.NoError(t, w.Write(payloads))

	// Checkpoint the first 6 records.
	require.NoError(t, w.Checkpoint(6))
	require.NoError(t, w.Close())

	// Recover — should get only the last 4.
	w2, err := New(testLogger(), cfg)
	require.NoError(t, err)
	defer closeWAL(t, w2)

	recovered, err := w2.Recover()
	require.NoError(t, err)
	require.Len(t, recovered, 4, "should recover only un-checkpointed records")
	for i, r := range recovered {
		assert.Equal(t, string(payloads[6+i]), string(r), "recovered payload %d mismatch", i)
	}
}

func TestWAL_CheckpointAll_EmptyRecovery(t *testing.T) {
	cfg := testConfig(t)
	w, err := New(testLogger(), cfg)
	require.NoError(t, err)

	require.NoError(t, w.Write(testPayloads(3)))
	require.NoError(t, w.Checkpoint(3))
	require.NoError(t, w.Close())

	w2, err := New(testLogger(), cfg)
	require.NoError(t, err)
	defer closeWAL(t, w2)

	recovered, err := w2.Recover()
	require.NoError(t, err)
	assert.Empty(t, recovered, "all records checkpointed, nothing to recover")
}

func TestWAL_SegmentRotation(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxSegmentRecs = minSegmentRecords
	w, err := New(testLogger(), cfg)
	require.NoError(t, err)
	defer closeWAL(t, w)

	require.NoError(t, w.Write(testPayloads(minSegmentRecords*2+10)))
	assert.GreaterOrEqual(t, w.SegmentCount(), 3, "expected rotation into multiple segments")
}

func TestWAL_CheckpointReclaimsSegments(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxSegmentRecs = minSegmentRecords
	w, err := New(testLogger(), cfg)
	require.NoError(t, err)
	defer closeWAL(t, w)

	n := minSegmentRecords * 3
	require.NoError(t, w.Write(testPayloads(n)))
	before := w.SegmentCount()

	require.NoError(t, w.Checkpoint(n))
	assert.Less(t, w.SegmentCount(), before, "fully-flushed segments should be deleted")
}

func TestWAL_CorruptedRecordStopsSegmentRead(t *testing.T) {
	cfg := testConfig(t)
	w, err := New(testLogger(), cfg)
	require.NoError(t, err)

	payloads := testPayloads(4)
	require.NoError(t, w.Write(payloads))
	require.NoError(t, w.Close())

	// Flip a byte in the middle of the segment: the CRC of some record no
	// longer matches, so recovery must stop there without erroring out.
	segs, err := filepath.Glob(filepath.Join(cfg.Dir, "*.wal"))
	require.NoError(t, err)
	require.NotEmpty(t, segs)

	data, err := os.ReadFile(segs[0])
	require.NoError(t, err)
	mid := walHeaderSize + (len(data)-walHeaderSize)/2
	data[mid] ^= 0xFF
	require.NoError(t, os.WriteFile(segs[0], data, 0o600))

	w2, err := New(testLogger(), cfg)
	require.NoError(t, err)
	defer closeWAL(t, w2)

	recovered, err := w2.Recover()
	require.NoError(t, err)
	assert.Less(t, len(recovered), 4, "corrupted tail must be dropped")
	for i, r := range recovered {
		assert.Equal(t, string(payloads[i]), string(r), "intact prefix must survive")
	}
}

func TestWAL_OversizedPayloadRejected(t *testing.T) {
	cfg := testConfig(t)
	w, err := New(testLogger(), cfg)
	require.NoError(t, err)
	defer closeWAL(t, w)

	big := make([]byte, walMaxPayload+1)
	err = w.Write([][]byte{big})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestWAL_ConcurrentWrites(t *testing.T) {
	cfg := testConfig(t)
	w, err := New(testLogger(), cfg)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = w.Write([][]byte{fmt.Appendf(nil, `{"g":%d,"i":%d}`, g, i)})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	w2, err := New(testLogger(), cfg)
	require.NoError(t, err)
	defer closeWAL(t, w2)

	recovered, err := w2.Recover()
	require.NoError(t, err)
	assert.Len(t, recovered, 8*50)
}
