package durable

import (
	"fmt"

	"github.com/moclojer/chrondb-sub002/internal/metrics"
	"github.com/moclojer/chrondb-sub002/internal/wal"
)

// Recover implements spec §4.5's "Recovery at startup" sweep: enumerate
// pending() sorted by timestamp (wal.Log.Pending already returns them in
// that order) and advance or roll back each entry, then truncate
// terminal entries. Safe to call repeatedly (spec: "Recovery is
// idempotent").
func (s *Store) Recover() error {
	entries, corrupt, err := s.WAL().Pending()
	if err != nil {
		return fmt.Errorf("durable: recovery: list pending entries: %w", err)
	}

	for _, c := range corrupt {
		s.log.Error("durable: recovery: quarantining corrupt wal entry", "entry", c.ID, "error", c.Err)
		if err := s.WAL().Quarantine(c.ID); err != nil {
			s.log.Error("durable: recovery: quarantine failed", "entry", c.ID, "error", err)
		}
	}

	metrics.WALPendingEntries.Set(float64(len(entries)))

	for i, entry := range entries {
		if err := s.recoverOne(entry); err != nil {
			s.log.Error("durable: recovery step failed", "entry", entry.ID, "error", err)
		}
		metrics.WALPendingEntries.Set(float64(len(entries) - i - 1))
	}

	return s.WAL().Truncate()
}

func (s *Store) recoverOne(entry *wal.Entry) error {
	switch entry.State {
	case wal.StatePending:
		// No visible side effect occurred yet; the core's conservative
		// policy is to roll back rather than guess whether the mutation
		// reached the Git engine.
		return s.WAL().MarkState(entry, wal.StateRolledBack)

	case wal.StateGitCommitted:
		if err := s.reapplyIndex(entry); err != nil {
			s.log.Warn("durable: recovery: reapply index failed", "entry", entry.ID, "error", err)
		}
		return s.WAL().MarkState(entry, wal.StateCompleted)

	case wal.StateIndexCommitted:
		return s.WAL().MarkState(entry, wal.StateCompleted)

	default:
		// completed / rolled-back: nothing to do, Truncate() will sweep it.
		return nil
	}
}

// reapplyIndex re-runs the index side of a git-committed entry: save is
// idempotent (index overwrites by id), delete is a no-op if the document
// is already absent.
func (s *Store) reapplyIndex(entry *wal.Entry) error {
	switch entry.Operation {
	case wal.OpSave:
		doc, found, err := s.base.Get(entry.Branch, entry.DocumentID)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		return s.idx.IndexDoc(entry.Branch, doc)

	case wal.OpDelete:
		s.idx.Delete(entry.Branch, entry.DocumentID)
		return nil

	default:
		return fmt.Errorf("durable: recovery: unknown operation %q", entry.Operation)
	}
}
