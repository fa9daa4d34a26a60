package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestWAL(t *testing.T) *WAL {
	t.Helper()
	w := &WAL{Path: filepath.Join(t.TempDir(), "test.wal")}
	if err := w.Open(); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestEntryEncodeDecode(t *testing.T) {
	entry := &Entry{
		LSN:       42,
		TxnID:     100,
		OpType:    OpAppend,
		Key:       []byte("board-1"),
		Value:     []byte(`{"index":0}`),
		Timestamp: time.Unix(0, 1700000000123456789),
	}

	decoded, err := DecodeEntry(entry.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded.LSN != entry.LSN {
		t.Errorf("LSN mismatch: got %d, want %d", decoded.LSN, entry.LSN)
	}
	if decoded.TxnID != entry.TxnID {
		t.Errorf("TxnID mismatch: got %d, want %d", decoded.TxnID, entry.TxnID)
	}
	if decoded.OpType != entry.OpType {
		t.Errorf("OpType mismatch: got %s, want %s", decoded.OpType, entry.OpType)
	}
	if string(decoded.Key) != string(entry.Key) {
		t.Errorf("Key mismatch: got %s, want %s", decoded.Key, entry.Key)
	}
	if string(decoded.Value) != string(entry.Value) {
		t.Errorf("Value mismatch: got %s, want %s", decoded.Value, entry.Value)
	}
	if !decoded.Timestamp.Equal(entry.Timestamp) {
		t.Errorf("Timestamp mismatch: got %v, want %v", decoded.Timestamp, entry.Timestamp)
	}
}

func TestDecodeDetectsCorruption(t *testing.T) {
	entry := &Entry{LSN: 1, OpType: OpCreate, Key: []byte("k"), Value: []byte("v")}
	data := entry.Encode()

	data[EntryHeaderSize] ^= 0xff
	if _, err := DecodeEntry(data); err != ErrCorrupted {
		t.Errorf("Expected ErrCorrupted, got %v", err)
	}
	if _, err := DecodeEntry(data[:10]); err != ErrTruncated {
		t.Errorf("Expected ErrTruncated, got %v", err)
	}
}

func TestWALWriteRead(t *testing.T) {
	w := openTestWAL(t)

	numEntries := 100
	for i := 0; i < numEntries; i++ {
		entry := Entry{
			LSN:       w.NextLSN(),
			TxnID:     uint64(i),
			OpType:    OpAppend,
			Key:       []byte(fmt.Sprintf("key-%d", i)),
			Value:     []byte(fmt.Sprintf("value-%d", i)),
			Timestamp: time.Now(),
		}
		if err := w.Write(entry); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Fsync(); err != nil {
		t.Fatal(err)
	}
	w.Close()

	files, _ := w.Files()
	entries, err := ReadAll(files)
	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != numEntries {
		t.Errorf("expected %d entries, got %d", numEntries, len(entries))
	}
	if string(entries[0].Key) != "key-0" {
		t.Errorf("first entry key mismatch: got %s", entries[0].Key)
	}
	if string(entries[numEntries-1].Key) != fmt.Sprintf("key-%d", numEntries-1) {
		t.Errorf("last entry key mismatch: got %s", entries[numEntries-1].Key)
	}
}

func TestCommitWritesMarker(t *testing.T) {
	w := openTestWAL(t)

	txn, err := w.Commit([]Entry{
		{OpType: OpCreate, Key: []byte("b1"), Value: []byte("create")},
		{OpType: OpAppend, Key: []byte("b1"), Value: []byte("v0")},
	})
	if err != nil {
		t.Fatal(err)
	}
	w.Close()

	files, _ := w.Files()
	entries, err := ReadAll(files)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.TxnID != txn {
			t.Errorf("entry %s has txn %d, want %d", e, e.TxnID, txn)
		}
	}
	if entries[2].OpType != OpCommit {
		t.Errorf("expected trailing commit marker, got %s", entries[2].OpType)
	}
	if entries[0].LSN >= entries[1].LSN || entries[1].LSN >= entries[2].LSN {
		t.Error("LSNs are not increasing within the transaction")
	}

	if _, err := w.Commit(nil); err != ErrEmptyTxn {
		t.Errorf("Expected ErrEmptyTxn, got %v", err)
	}
}

func TestCommitAfterClose(t *testing.T) {
	w := openTestWAL(t)
	w.Close()

	_, err := w.Commit([]Entry{{OpType: OpAppend, Key: []byte("b")}})
	if err != ErrLogClosed {
		t.Errorf("Expected ErrLogClosed, got %v", err)
	}
}

func TestWALRotationKeepsAllSegments(t *testing.T) {
	w := &WAL{Path: filepath.Join(t.TempDir(), "test.wal"), SegmentSize: 4 << 10}
	if err := w.Open(); err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	value := make([]byte, 1000)
	for i := 0; i < 40; i++ {
		if _, err := w.Commit([]Entry{{OpType: OpAppend, Key: []byte("b"), Value: value}}); err != nil {
			t.Fatal(err)
		}
	}

	files, err := w.Files()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) < 10 {
		t.Errorf("expected at least 10 segments, got %d", len(files))
	}

	entries, err := ReadAll(files)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 80 {
		t.Errorf("expected 80 entries across segments, got %d", len(entries))
	}
}

func TestLSNGeneration(t *testing.T) {
	w := openTestWAL(t)
	defer w.Close()

	var prevLSN uint64
	for i := 0; i < 100; i++ {
		lsn := w.NextLSN()
		if lsn <= prevLSN {
			t.Errorf("LSN not monotonically increasing: prev=%d, current=%d", prevLSN, lsn)
		}
		prevLSN = lsn
	}
}

func TestWALReopen(t *testing.T) {
	walPath := filepath.Join(t.TempDir(), "test.wal")
	w := &WAL{Path: walPath}
	if err := w.Open(); err != nil {
		t.Fatal(err)
	}

	var lastTxn uint64
	for i := 0; i < 10; i++ {
		txn, err := w.Commit([]Entry{{OpType: OpAppend, Key: []byte(fmt.Sprintf("key-%d", i))}})
		if err != nil {
			t.Fatal(err)
		}
		lastTxn = txn
	}
	lastLSN := w.lsn
	w.Close()

	w2 := &WAL{Path: walPath}
	if err := w2.Open(); err != nil {
		t.Fatal(err)
	}
	defer w2.Close()

	if w2.lsn != lastLSN {
		t.Errorf("LSN after reopen mismatch: got %d, want %d", w2.lsn, lastLSN)
	}
	if next := w2.NextLSN(); next != lastLSN+1 {
		t.Errorf("next LSN after reopen should be %d, got %d", lastLSN+1, next)
	}
	if next := w2.NextTxnID(); next != lastTxn+1 {
		t.Errorf("next txn after reopen should be %d, got %d", lastTxn+1, next)
	}
}

func TestReaderStopsSegmentAtCorruption(t *testing.T) {
	w := &WAL{Path: filepath.Join(t.TempDir(), "test.wal"), SegmentSize: 512}
	if err := w.Open(); err != nil {
		t.Fatal(err)
	}

	// Each transaction is about 300 bytes so every commit gets its own segment
	value := make([]byte, 200)
	for i := 0; i < 3; i++ {
		w.Commit([]Entry{{OpType: OpAppend, Key: []byte(fmt.Sprintf("key-%d", i)), Value: value}})
	}
	w.Close()

	files, _ := w.Files()
	if len(files) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(files))
	}

	fd, err := os.OpenFile(files[1], os.O_RDWR, 0644)
	if err != nil {
		t.Fatal(err)
	}
	fd.WriteAt([]byte{0xFF, 0xFF, 0xFF, 0xFF}, EntryHeaderSize+2)
	fd.Close()

	reader := NewReader(files)
	if err := reader.Open(); err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	var keys []string
	for {
		e, err := reader.Next()
		if err != nil {
			break
		}
		if e.OpType == OpAppend {
			keys = append(keys, string(e.Key))
		}
	}

	if len(keys) != 2 || keys[0] != "key-0" || keys[1] != "key-2" {
		t.Errorf("expected entries from intact segments only, got %v", keys)
	}
	if reader.Damaged != 1 {
		t.Errorf("expected 1 damaged segment, got %d", reader.Damaged)
	}
}

func TestReaderHandlesTornTail(t *testing.T) {
	w := openTestWAL(t)
	w.Commit([]Entry{{OpType: OpAppend, Key: []byte("whole")}})
	w.Close()

	files, _ := w.Files()
	fd, _ := os.OpenFile(files[0], os.O_WRONLY|os.O_APPEND, 0644)
	torn := (&Entry{LSN: 99, TxnID: 99, OpType: OpAppend, Key: []byte("torn")}).Encode()
	fd.Write(torn[:len(torn)-3])
	fd.Close()

	entries, err := ReadAll(files)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected the intact transaction only, got %d entries", len(entries))
	}
}

func TestMultipleLogsSameDirectory(t *testing.T) {
	dir := t.TempDir()

	wal1 := &WAL{Path: filepath.Join(dir, "east.wal")}
	wal2 := &WAL{Path: filepath.Join(dir, "west.wal")}
	if err := wal1.Open(); err != nil {
		t.Fatal(err)
	}
	if err := wal2.Open(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		wal1.Commit([]Entry{{OpType: OpAppend, Key: []byte(fmt.Sprintf("east-%d", i))}})
		wal2.Commit([]Entry{{OpType: OpAppend, Key: []byte(fmt.Sprintf("west-%d", i))}})
	}
	wal1.Close()
	wal2.Close()

	files1, _ := wal1.Files()
	files2, _ := wal2.Files()
	entries1, err := ReadAll(files1)
	if err != nil {
		t.Fatal(err)
	}
	entries2, err := ReadAll(files2)
	if err != nil {
		t.Fatal(err)
	}

	if len(entries1) != 10 || len(entries2) != 10 {
		t.Errorf("expected 10 entries per log, got %d and %d", len(entries1), len(entries2))
	}
	for _, e := range entries1 {
		if e.OpType == OpAppend && string(e.Key[:4]) != "east" {
			t.Errorf("east log contains foreign entry %s", e.Key)
		}
	}
}

func BenchmarkWALCommit(b *testing.B) {
	w := &WAL{Path: filepath.Join(b.TempDir(), "bench.wal")}
	if err := w.Open(); err != nil {
		b.Fatal(err)
	}
	defer w.Close()

	ops := []Entry{{OpType: OpAppend, Key: []byte("board"), Value: make([]byte, 4096)}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Commit(ops)
	}
}
