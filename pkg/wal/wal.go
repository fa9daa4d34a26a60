package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// MaxLogFileSize is the default size of a single WAL segment (100MB)
	MaxLogFileSize = 100 << 20

	// WALFilePrefix is the default base name for WAL files
	WALFilePrefix = "boards.wal"
)

// WAL is an append-only log split into numbered segments. Segments are
// never removed: together they are the full history.
type WAL struct {
	// Path is the base path for WAL files (e.g., "/data/boards.wal")
	Path string

	// SegmentSize overrides MaxLogFileSize when positive
	SegmentSize int64

	fd *os.File

	// mu serializes appends and rotation
	mu sync.Mutex

	lsn   uint64 // atomic
	txnID uint64 // atomic

	fileSize  int64
	fileIndex int

	closed bool

	// broken is set when a failed write could not be rolled back
	broken error
}

// Open opens the latest segment or creates the first one
func (w *WAL) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.Path), 0755); err != nil {
		return err
	}

	files, err := w.findLogFiles()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		fd, err := os.OpenFile(w.logFilePath(0), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		w.fd = fd
		w.fileSize = 0
		w.fileIndex = 0
		atomic.StoreUint64(&w.lsn, 0)
		atomic.StoreUint64(&w.txnID, 0)
		w.closed = false
		w.broken = nil
		return nil
	}

	latest := files[len(files)-1]
	fd, err := os.OpenFile(latest, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	stat, err := fd.Stat()
	if err != nil {
		fd.Close()
		return err
	}
	w.fd = fd
	w.fileSize = stat.Size()
	w.fileIndex = w.indexOf(latest)

	maxLSN, maxTxn, err := scanHighest(files)
	if err != nil {
		fd.Close()
		return err
	}
	atomic.StoreUint64(&w.lsn, maxLSN)
	atomic.StoreUint64(&w.txnID, maxTxn)

	w.closed = false
	w.broken = nil
	return nil
}

// NextLSN returns the next Log Sequence Number
func (w *WAL) NextLSN() uint64 {
	return atomic.AddUint64(&w.lsn, 1)
}

// NextTxnID returns the next transaction id
func (w *WAL) NextTxnID() uint64 {
	return atomic.AddUint64(&w.txnID, 1)
}

// Write appends a single entry without syncing
func (w *WAL) Write(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.appendNoLock(entry.Encode())
}

// Commit writes ops as one transaction followed by a commit marker and
// fsyncs. The whole transaction lands in one segment. If the write fails the
// segment is truncated back so later transactions stay readable.
func (w *WAL) Commit(ops []Entry) (uint64, error) {
	if len(ops) == 0 {
		return 0, ErrEmptyTxn
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writableNoLock(); err != nil {
		return 0, err
	}

	txnID := w.NextTxnID()
	now := time.Now()

	var buf []byte
	for _, op := range ops {
		op.LSN = w.NextLSN()
		op.TxnID = txnID
		if op.Timestamp.IsZero() {
			op.Timestamp = now
		}
		buf = append(buf, op.Encode()...)
	}
	commit := Entry{LSN: w.NextLSN(), TxnID: txnID, OpType: OpCommit, Timestamp: now}
	buf = append(buf, commit.Encode()...)

	start := w.fileSize
	if err := w.appendNoLock(buf); err != nil {
		w.rollbackNoLock(start)
		return 0, err
	}
	if err := w.fd.Sync(); err != nil {
		w.rollbackNoLock(start)
		return 0, err
	}
	return txnID, nil
}

// Fsync ensures all written data is persisted to disk
func (w *WAL) Fsync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrLogClosed
	}
	return w.fd.Sync()
}

// Close closes the WAL
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.fd == nil {
		w.closed = true
		return nil
	}

	err := w.fd.Close()
	w.closed = true
	return err
}

// Files returns the segment paths in order
func (w *WAL) Files() ([]string, error) {
	return w.findLogFiles()
}

func (w *WAL) writableNoLock() error {
	if w.closed {
		return ErrLogClosed
	}
	return w.broken
}

// appendNoLock writes data to the current segment (caller must hold mu)
func (w *WAL) appendNoLock(data []byte) error {
	if err := w.writableNoLock(); err != nil {
		return err
	}

	if w.fileSize > 0 && w.fileSize+int64(len(data)) > w.segmentSize() {
		if err := w.rotateNoLock(); err != nil {
			return err
		}
	}

	n, err := w.fd.Write(data)
	w.fileSize += int64(n)
	return err
}

// rollbackNoLock drops a partially written transaction. When that is not
// possible the log refuses further writes.
func (w *WAL) rollbackNoLock(size int64) {
	if w.fileSize <= size {
		return
	}
	if err := w.fd.Truncate(size); err != nil {
		w.broken = fmt.Errorf("wal: rollback failed: %w", err)
		return
	}
	w.fileSize = size
}

func (w *WAL) segmentSize() int64 {
	if w.SegmentSize > 0 {
		return w.SegmentSize
	}
	return MaxLogFileSize
}

// rotateNoLock moves to a new segment (caller must hold mu)
func (w *WAL) rotateNoLock() error {
	if err := w.fd.Sync(); err != nil {
		return err
	}
	if err := w.fd.Close(); err != nil {
		return err
	}

	w.fileIndex++
	fd, err := os.OpenFile(w.logFilePath(w.fileIndex), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		w.broken = err
		return err
	}

	w.fd = fd
	w.fileSize = 0
	return nil
}

// baseName returns the base filename for WAL files
func (w *WAL) baseName() string {
	return filepath.Base(w.Path)
}

// logFilePath returns the path for a segment with the given index
func (w *WAL) logFilePath(index int) string {
	dir := filepath.Dir(w.Path)
	name := fmt.Sprintf("%s.%06d", w.baseName(), index)
	return filepath.Join(dir, name)
}

func (w *WAL) indexOf(path string) int {
	var index int
	fmt.Sscanf(filepath.Base(path), w.baseName()+".%d", &index)
	return index
}

// findLogFiles returns all segments sorted by index
func (w *WAL) findLogFiles() ([]string, error) {
	dir := filepath.Dir(w.Path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && w.isWALFile(entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return w.indexOf(files[i]) < w.indexOf(files[j])
	})

	return files, nil
}

// isWALFile returns true if the filename is a segment of this log
func (w *WAL) isWALFile(name string) bool {
	var index int
	_, err := fmt.Sscanf(name, w.baseName()+".%d", &index)
	return err == nil
}

// scanHighest returns the highest LSN and transaction id across files
func scanHighest(files []string) (uint64, uint64, error) {
	var maxLSN, maxTxn uint64

	reader := NewReader(files)
	if err := reader.Open(); err != nil {
		return 0, 0, err
	}
	defer reader.Close()

	for {
		entry, err := reader.Next()
		if err != nil {
			break
		}
		if entry.LSN > maxLSN {
			maxLSN = entry.LSN
		}
		if entry.TxnID > maxTxn {
			maxTxn = entry.TxnID
		}
	}

	return maxLSN, maxTxn, nil
}
