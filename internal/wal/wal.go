// Package wal implements the one-file-per-entry write-ahead log of spec
// §4.5: a directory of self-describing JSON records named <uuid>.wal,
// each advanced through a small state machine by overwriting the entry
// file in place. State transitions use atomic.WriteFile (temp file +
// fsync + rename), the same discipline calvinalkan-agent-task/pkg/fs's
// AtomicWriter hand-rolls, so a crash mid-write is visible as either the
// old or the new content, never a torn mix of both.
package wal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
)

// Operation is the kind of mutation a WAL entry records.
type Operation string

const (
	OpSave   Operation = "save"
	OpDelete Operation = "delete"
)

// State is a WAL entry's position in its lifecycle, per spec §4.5.
type State string

const (
	StatePending        State = "pending"
	StateGitCommitted   State = "git-committed"
	StateIndexCommitted State = "index-committed"
	StateCompleted      State = "completed"
	StateRolledBack     State = "rolled-back"
)

// terminal reports whether a state requires no further recovery action.
func (s State) terminal() bool {
	return s == StateCompleted || s == StateRolledBack
}

// Entry is the self-describing WAL record of spec §3.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Operation  Operation `json:"operation"`
	DocumentID string    `json:"document_id"`
	Branch     string    `json:"branch"`
	Table      string    `json:"table,omitempty"`
	Content    []byte    `json:"content,omitempty"`
	State      State     `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Attempt is 0 on an entry appended by the first try of a mutation and
	// 1 on an entry appended by any with_occ_retry retry: every attempt
	// appends its own entry, so the value marks retries but does not count
	// them. Supplemented beyond spec §3 for diagnostics.
	Attempt int `json:"attempt,omitempty"`
}

// Log is a directory of WAL entry files.
type Log struct {
	dir string
}

// Open returns a Log rooted at dir, creating dir if it doesn't exist.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir %q: %w", dir, err)
	}
	return &Log{dir: dir}, nil
}

func (l *Log) path(id string) string {
	return filepath.Join(l.dir, id+".wal")
}

// Append writes a new entry in state "pending" and returns it with ID and
// timestamps populated.
func (l *Log) Append(op Operation, documentID, branch, table string, content []byte) (*Entry, error) {
	now := time.Now().UTC()
	e := &Entry{
		ID:         uuid.NewString(),
		Timestamp:  now,
		Operation:  op,
		DocumentID: documentID,
		Branch:     branch,
		Table:      table,
		Content:    content,
		State:      StatePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := l.write(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (l *Log) write(e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("wal: marshal entry %s: %w", e.ID, err)
	}
	if err := atomic.WriteFile(l.path(e.ID), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("wal: write entry %s: %w", e.ID, err)
	}
	return nil
}

// MarkState advances e to state, persisting the change, and bumps
// updated_at. The whole entry file is overwritten (spec §4.5: "a state
// transition is an overwrite of the entire entry file followed by fsync").
func (l *Log) MarkState(e *Entry, state State) error {
	e.State = state
	e.UpdatedAt = time.Now().UTC()
	return l.write(e)
}

// IncrementAttempt bumps e.Attempt and persists it. internal/durable.Store
// calls it once on each entry it appends from a with_occ_retry retry.
func (l *Log) IncrementAttempt(e *Entry) error {
	e.Attempt++
	e.UpdatedAt = time.Now().UTC()
	return l.write(e)
}

// Get reads a single entry by id. A torn write (crash mid-fsync) surfaces
// as a JSON parse error, per spec §4.5 and §7 ("torn writes would be
// visible as unparsable [content]").
func (l *Log) Get(id string) (*Entry, error) {
	data, err := os.ReadFile(l.path(id))
	if err != nil {
		return nil, fmt.Errorf("wal: read entry %s: %w", id, err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("wal: parse entry %s: %w", id, err)
	}
	return &e, nil
}

// CorruptEntry names a WAL file that failed to parse: spec §7's
// WalParseError, which recovery treats as a corrupt entry (rolled back)
// rather than a reason to abandon the rest of the scan.
type CorruptEntry struct {
	ID  string
	Err error
}

func (c CorruptEntry) Error() string {
	return fmt.Sprintf("wal: corrupt entry %s: %v", c.ID, c.Err)
}

// Pending returns every entry not in a terminal state, ordered by
// timestamp ascending. An entry file that fails to parse is classified
// as a CorruptEntry and skipped rather than aborting the scan, so a
// single torn write (spec §4.5's realistic crash artifact) never blocks
// recovery of every other pending entry.
func (l *Log) Pending() ([]*Entry, []CorruptEntry, error) {
	names, err := filepath.Glob(filepath.Join(l.dir, "*.wal"))
	if err != nil {
		return nil, nil, fmt.Errorf("wal: list entries: %w", err)
	}

	var entries []*Entry
	var corrupt []CorruptEntry
	for _, name := range names {
		id := trimWalSuffix(filepath.Base(name))
		e, err := l.Get(id)
		if err != nil {
			corrupt = append(corrupt, CorruptEntry{ID: id, Err: err})
			continue
		}
		if !e.State.terminal() {
			entries = append(entries, e)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, corrupt, nil
}

// Quarantine renames a corrupt entry's file out of the active *.wal set
// so later Pending/Truncate scans stop tripping over it, while keeping
// the original bytes on disk under a .corrupt suffix for forensics.
func (l *Log) Quarantine(id string) error {
	return os.Rename(l.path(id), l.path(id)+".corrupt")
}

func trimWalSuffix(name string) string {
	const suffix = ".wal"
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		return name[:len(name)-len(suffix)]
	}
	return name
}

// Truncate deletes every entry in a terminal state.
func (l *Log) Truncate() error {
	names, err := filepath.Glob(filepath.Join(l.dir, "*.wal"))
	if err != nil {
		return fmt.Errorf("wal: list entries: %w", err)
	}
	for _, name := range names {
		id := trimWalSuffix(filepath.Base(name))
		e, err := l.Get(id)
		if err != nil {
			// the recovery sweep should already have quarantined anything
			// unparseable that Pending reported;
			// skip rather than let one bad file abort the rest of the sweep.
			continue
		}
		if e.State.terminal() {
			if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("wal: remove entry %s: %w", id, err)
			}
		}
	}
	return nil
}

// Close is a no-op today (no open file handles are kept between calls) but
// is exposed so callers can treat Log like every other closable resource
// in the durable composite.
func (l *Log) Close() error { return nil }
