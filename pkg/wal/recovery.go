package wal

import (
	"fmt"
	"io"
)

// ReplayFunc is called for each operation of a committed transaction
type ReplayFunc func(entry *Entry) error

// Recovery rebuilds state from the WAL
type Recovery struct {
	wal *WAL
}

// NewRecovery creates a recovery manager
func NewRecovery(wal *WAL) *Recovery {
	return &Recovery{wal: wal}
}

// Transaction represents a group of WAL entries for a single transaction
type Transaction struct {
	TxnID     uint64
	StartLSN  uint64
	Entries   []*Entry
	Committed bool
}

// RecoveryStats describes a completed replay
type RecoveryStats struct {
	TotalEntries       int
	CommittedTxns      int
	UncommittedTxns    int
	ReplayedOperations int
	DamagedSegments    int
	LastLSN            uint64
}

// Recover replays every committed operation in log order
func (r *Recovery) Recover(replay ReplayFunc) error {
	_, err := r.RecoverWithStats(replay)
	return err
}

// RecoverWithStats replays committed transactions and returns statistics.
// Transactions without a commit marker are skipped.
func (r *Recovery) RecoverWithStats(replay ReplayFunc) (*RecoveryStats, error) {
	stats := &RecoveryStats{}

	files, err := r.wal.findLogFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return stats, nil
	}

	reader := NewReader(files)
	if err := reader.Open(); err != nil {
		return nil, err
	}
	defer reader.Close()

	var entries []*Entry
	for {
		entry, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read WAL entries: %w", err)
		}
		entries = append(entries, entry)
	}

	stats.TotalEntries = len(entries)
	stats.DamagedSegments = reader.Damaged
	if len(entries) > 0 {
		stats.LastLSN = entries[len(entries)-1].LSN
	}

	for _, txn := range groupByTransaction(entries) {
		if !txn.Committed {
			stats.UncommittedTxns++
			continue
		}
		stats.CommittedTxns++
		for _, entry := range txn.Entries {
			if err := replay(entry); err != nil {
				return stats, fmt.Errorf("replay failed at LSN %d: %w", entry.LSN, err)
			}
			stats.ReplayedOperations++
		}
	}

	return stats, nil
}

// groupByTransaction groups WAL entries by transaction ID in order of first
// appearance
func groupByTransaction(entries []*Entry) []*Transaction {
	txnMap := make(map[uint64]*Transaction)
	var txnList []*Transaction

	for _, entry := range entries {
		txn, exists := txnMap[entry.TxnID]
		if !exists {
			txn = &Transaction{
				TxnID:    entry.TxnID,
				StartLSN: entry.LSN,
			}
			txnMap[entry.TxnID] = txn
			txnList = append(txnList, txn)
		}

		if entry.OpType == OpCommit {
			txn.Committed = true
		} else {
			txn.Entries = append(txn.Entries, entry)
		}
	}

	return txnList
}
