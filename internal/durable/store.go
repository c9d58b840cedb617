package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/moclojer/chrondb-sub002/internal/contracts"
	"github.com/moclojer/chrondb-sub002/internal/git2"
	"github.com/moclojer/chrondb-sub002/internal/index"
	"github.com/moclojer/chrondb-sub002/internal/metrics"
	"github.com/moclojer/chrondb-sub002/internal/occ"
	"github.com/moclojer/chrondb-sub002/internal/wal"
)

// Store is the durable composite of spec §4.8: it interposes WAL, OCC and
// index updates around Base, implementing internal/contracts.Store.
type Store struct {
	base    *Base
	wal     *wal.Log
	locks   *occ.BranchLocks
	version *occ.VersionTracker
	idx     *index.Index
	retry   occ.RetryOptions
	log     *slog.Logger
}

// NewStore assembles a durable composite from its already-constructed
// parts. retry's zero value selects occ.DefaultRetryOptions.
func NewStore(base *Base, walLog *wal.Log, locks *occ.BranchLocks, version *occ.VersionTracker, idx *index.Index, retry occ.RetryOptions, log *slog.Logger) *Store {
	return &Store{base: base, wal: walLog, locks: locks, version: version, idx: idx, retry: retry, log: log}
}

// Close releases the WAL and index handles the composite owns. Base's
// underlying repository is closed separately by whoever opened it (the
// caller that built this Store), matching spec §5's "process-wide
// singletons with explicit close" ownership model.
func (s *Store) Close() error {
	return errors.Join(s.wal.Close(), s.idx.Close(), s.version.Close())
}

// Put is the contracts.Store Save operation, implementing spec §4.8's
// save(doc, branch) pipeline: WAL append, branch-locked base.save, index
// update (best-effort), version bump, all under with_occ_retry. ctx
// optionally carries a txctx.Context (spec §4.4); see contracts.Store.Put.
func (s *Store) Put(ctx context.Context, id string, docFields map[string]any, branch string) (map[string]any, error) {
	start := time.Now()
	if docFields == nil {
		return nil, ErrDocumentInvalid
	}
	docFields["id"] = id
	doc := Document(docFields)

	var stored Document
	err := occ.WithRetry(s.retry, func(attempt int) error {
		if attempt > 0 {
			metrics.OCCRetries.WithLabelValues(branch).Inc()
		}
		entry, appendErr := s.wal.Append(wal.OpSave, id, branch, doc.Table(), mustMarshal(doc))
		if appendErr != nil {
			return fmt.Errorf("%w: %v", ErrWalWriteFailed, appendErr)
		}
		if attempt > 0 {
			_ = s.wal.IncrementAttempt(entry)
		}

		unlock := s.locks.Lock(branch)
		defer unlock()

		result, saveErr := s.base.Save(ctx, doc, branch)
		if saveErr != nil {
			_ = s.wal.MarkState(entry, wal.StateRolledBack)
			return saveErr
		}
		stored = result

		if err := s.wal.MarkState(entry, wal.StateGitCommitted); err != nil {
			s.log.Warn("durable: wal mark git-committed failed", "id", id, "error", err)
		}

		if err := s.idx.IndexDoc(branch, stored); err != nil {
			s.log.Warn("durable: index update failed, recovery will fix", "id", id, "error", err)
		} else if err := s.wal.MarkState(entry, wal.StateIndexCommitted); err != nil {
			s.log.Warn("durable: wal mark index-committed failed", "id", id, "error", err)
		}

		if err := s.wal.MarkState(entry, wal.StateCompleted); err != nil {
			s.log.Warn("durable: wal mark completed failed", "id", id, "error", err)
		}

		s.version.IncrementVersion(id, branch)
		return nil
	})
	metrics.Observe("put", start, err)
	if err != nil {
		return nil, err
	}
	return map[string]any(stored), nil
}

func mustMarshal(doc Document) []byte {
	data, err := json.Marshal(map[string]any(doc))
	if err != nil {
		return nil
	}
	return data
}

// Get bypasses WAL and OCC, per spec §4.8.
func (s *Store) Get(ctx context.Context, id, branch string) (map[string]any, bool, error) {
	start := time.Now()
	doc, found, err := s.base.Get(branch, id)
	metrics.Observe("get", start, err)
	if err != nil || !found {
		return nil, found, err
	}
	return map[string]any(doc), true, nil
}

// Delete mirrors Put's pipeline, symmetric per spec §4.8. ctx optionally
// carries a txctx.Context, exactly like Put.
func (s *Store) Delete(ctx context.Context, id, branch string) (bool, error) {
	start := time.Now()
	var existed bool
	err := occ.WithRetry(s.retry, func(attempt int) error {
		entry, appendErr := s.wal.Append(wal.OpDelete, id, branch, "", nil)
		if appendErr != nil {
			return fmt.Errorf("%w: %v", ErrWalWriteFailed, appendErr)
		}
		if attempt > 0 {
			_ = s.wal.IncrementAttempt(entry)
		}

		unlock := s.locks.Lock(branch)
		defer unlock()

		ok, delErr := s.base.Delete(ctx, id, branch)
		if delErr != nil {
			_ = s.wal.MarkState(entry, wal.StateRolledBack)
			return delErr
		}
		existed = ok

		if err := s.wal.MarkState(entry, wal.StateGitCommitted); err != nil {
			s.log.Warn("durable: wal mark git-committed failed", "id", id, "error", err)
		}

		s.idx.Delete(branch, id)
		if err := s.wal.MarkState(entry, wal.StateIndexCommitted); err != nil {
			s.log.Warn("durable: wal mark index-committed failed", "id", id, "error", err)
		}
		if err := s.wal.MarkState(entry, wal.StateCompleted); err != nil {
			s.log.Warn("durable: wal mark completed failed", "id", id, "error", err)
		}

		if ok {
			s.version.IncrementVersion(id, branch)
		}
		return nil
	})
	metrics.Observe("delete", start, err)
	if err != nil {
		return false, err
	}
	return existed, nil
}

func (s *Store) ListByPrefix(ctx context.Context, prefix, branch string) ([]map[string]any, error) {
	start := time.Now()
	docs, err := s.base.ListByPrefix(branch, prefix)
	metrics.Observe("list_by_prefix", start, err)
	return toMaps(docs), err
}

func (s *Store) ListByTable(ctx context.Context, table, branch string) ([]map[string]any, error) {
	start := time.Now()
	docs, err := s.base.ListByTable(branch, table)
	metrics.Observe("list_by_table", start, err)
	return toMaps(docs), err
}

func toMaps(docs []Document) []map[string]any {
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		out[i] = map[string]any(d)
	}
	return out
}

func (s *Store) History(ctx context.Context, id, branch string) ([]contracts.HistoryEntry, error) {
	start := time.Now()
	entries, err := s.base.History(branch, id)
	metrics.Observe("history", start, err)
	if err != nil {
		return nil, err
	}
	out := make([]contracts.HistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = contracts.HistoryEntry{
			CommitID:       e.CommitID,
			CommitTime:     e.CommitTime,
			CommitMessage:  e.CommitMessage,
			CommitterName:  e.CommitterName,
			CommitterEmail: e.CommitterEmail,
			Document:       map[string]any(e.Document),
		}
	}
	return out, nil
}

func (s *Store) GetAt(ctx context.Context, id, commit string) (map[string]any, bool, error) {
	doc, found, err := s.base.GetAt(id, commit)
	if err != nil || !found {
		return nil, found, err
	}
	return map[string]any(doc), true, nil
}

// Restore issues a new save via Base.Restore, then folds the restored
// document into the index exactly like a regular Put would, since a
// restore is itself a new commit per spec §4.9. ctx optionally carries a
// txctx.Context; Base.Restore layers its own "rollback"-flagged scope on
// top (see internal/durable/base.go), merging with any outer scope per
// spec §4.4's nested-scope rule.
func (s *Store) Restore(ctx context.Context, id, commit, branch string) (map[string]any, error) {
	start := time.Now()
	unlock := s.locks.Lock(branch)
	defer unlock()

	doc, _, err := s.base.Restore(ctx, id, commit, branch)
	metrics.Observe("restore", start, err)
	if err != nil {
		return nil, err
	}

	if err := s.idx.IndexDoc(branch, doc); err != nil {
		s.log.Warn("durable: index update failed after restore", "id", id, "error", err)
	}
	s.version.IncrementVersion(id, branch)

	return map[string]any(doc), nil
}

// Query runs ast (an index.Clause) against branch, returning matching ids.
func (s *Store) Query(ctx context.Context, ast any, branch string, limit, offset int) ([]string, error) {
	clause, ok := ast.(index.Clause)
	if !ok {
		return nil, fmt.Errorf("durable: query: unexpected ast type %T", ast)
	}
	start := time.Now()
	ids, err := s.idx.SearchQuery(branch, clause, index.SearchOptions{Limit: limit, Offset: offset})
	metrics.Observe("query", start, err)
	return ids, err
}

// Repo exposes the underlying repository, used by recovery and by the
// CLI/REPL for operations the contract surface doesn't cover.
func (s *Store) Repo() *git2.Repository { return s.base.engine.Repo() }

// WAL exposes the write-ahead log for the recovery sweep run at Open.
func (s *Store) WAL() *wal.Log { return s.wal }

// Index exposes the index for the recovery sweep run at Open.
func (s *Store) Index() *index.Index { return s.idx }

// Base exposes the base engine for the recovery sweep run at Open.
func (s *Store) Base() *Base { return s.base }

var _ contracts.Store = (*Store)(nil)
