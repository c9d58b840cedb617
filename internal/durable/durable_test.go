package durable

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/moclojer/chrondb-sub002/internal/config"
	"github.com/moclojer/chrondb-sub002/internal/wal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore opens a Store against a fresh bare repository under a temp
// directory, exercising the real git2.InitBare path Open drives (spec
// §4.2's "Initial state"), not a mock. It returns the repository root too,
// so tests that need to reach into the WAL directory directly (simulating
// an external torn write) can do so without any wal-package test hooks.
func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	repoPath := t.TempDir()
	cfg := config.Defaults()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := Open(repoPath, cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, repoPath
}

// P1: round-trip save/get, modulo the system-added "_table".
func TestRoundTripSaveGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	stored, err := s.Put(ctx, "user:1", map[string]any{"name": "Alice"}, "main")
	require.NoError(t, err)
	assert.Equal(t, "user:1", stored["id"])
	assert.Equal(t, "Alice", stored["name"])
	assert.Equal(t, "user", stored["_table"])

	got, found, err := s.Get(ctx, "user:1", "main")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, stored, got)
}

// P2: delete idempotence.
func TestDeleteIdempotence(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "doc1", map[string]any{"v": 1}, "main")
	require.NoError(t, err)

	existed, err := s.Delete(ctx, "doc1", "main")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Delete(ctx, "doc1", "main")
	require.NoError(t, err)
	assert.False(t, existed)

	_, found, err := s.Get(ctx, "doc1", "main")
	require.NoError(t, err)
	assert.False(t, found)
}

// P4: successful saves to the same id on one branch produce strictly
// increasing version counters.
func TestMonotonicVersions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	assert.Equal(t, 0, s.version.GetVersion("k", "main"))

	for i := 1; i <= 3; i++ {
		_, err := s.Put(ctx, "k", map[string]any{"n": i}, "main")
		require.NoError(t, err)
		assert.Equal(t, i, s.version.GetVersion("k", "main"))
	}
}

// P5: after n successful saves/deletes of id on branch, history has length
// n with non-increasing commit times (newest first).
func TestHistoryCompleteness(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "abc", map[string]any{"value": 123}, "main")
	require.NoError(t, err)
	_, err = s.Put(ctx, "abc", map[string]any{"value": 1234}, "main")
	require.NoError(t, err)

	entries, err := s.History(ctx, "abc", "main")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1234.0, entries[0].Document["value"])
	assert.Equal(t, 123.0, entries[1].Document["value"])
	assert.False(t, entries[0].CommitTime.Before(entries[1].CommitTime))

	_, err = s.Delete(ctx, "abc", "main")
	require.NoError(t, err)

	entries, err = s.History(ctx, "abc", "main")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

// Scenario 3: rollback. Restore to the first commit brings the value back
// and adds a new, newest history entry whose message names the restore.
func TestRestoreRollback(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "abc", map[string]any{"value": 123}, "main")
	require.NoError(t, err)
	firstHistory, err := s.History(ctx, "abc", "main")
	require.NoError(t, err)
	require.Len(t, firstHistory, 1)
	firstCommit := firstHistory[0].CommitID

	_, err = s.Put(ctx, "abc", map[string]any{"value": 1234}, "main")
	require.NoError(t, err)

	restored, err := s.Restore(ctx, "abc", firstCommit, "main")
	require.NoError(t, err)
	assert.Equal(t, 123.0, restored["value"])

	got, found, err := s.Get(ctx, "abc", "main")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 123.0, got["value"])

	entries, err := s.History(ctx, "abc", "main")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, strings.Contains(entries[0].CommitMessage, "Restore"))
}

// Scenario 6: branch isolation. The same id on two branches carries
// independent values and independent single-entry histories.
func TestBranchIsolation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "x", map[string]any{"v": 1}, "main")
	require.NoError(t, err)
	_, err = s.Put(ctx, "x", map[string]any{"v": 2}, "dev")
	require.NoError(t, err)

	mainDoc, found, err := s.Get(ctx, "x", "main")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1.0, mainDoc["v"])

	devDoc, found, err := s.Get(ctx, "x", "dev")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2.0, devDoc["v"])

	mainHistory, err := s.History(ctx, "x", "main")
	require.NoError(t, err)
	assert.Len(t, mainHistory, 1)

	devHistory, err := s.History(ctx, "x", "dev")
	require.NoError(t, err)
	assert.Len(t, devHistory, 1)
}

// P7 / scenario 5: a WAL entry left "pending" (the process died between
// the WAL append and the Git commit) is rolled back on the next Recover,
// without advancing the branch ref or creating the document.
func TestCrashRecoveryBeforeGitCommit(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tipBefore, _, err := s.Repo().ResolveBranch("main")
	require.NoError(t, err)

	entry, err := s.WAL().Append(wal.OpSave, "crashed", "main", "", []byte(`{"id":"crashed"}`))
	require.NoError(t, err)
	assert.Equal(t, wal.StatePending, entry.State)

	require.NoError(t, s.Recover())

	tipAfter, _, err := s.Repo().ResolveBranch("main")
	require.NoError(t, err)
	assert.Equal(t, *tipBefore, *tipAfter, "a pending-only WAL entry must not move the branch ref")

	_, found, err := s.Get(ctx, "crashed", "main")
	require.NoError(t, err)
	assert.False(t, found)

	pending, corrupt, err := s.WAL().Pending()
	require.NoError(t, err)
	assert.Empty(t, corrupt)
	assert.Empty(t, pending, "recovery must truncate the rolled-back entry")

	// Recovery is idempotent: running it again over an already-clean log
	// is a no-op, not an error.
	require.NoError(t, s.Recover())
}

// A torn WAL entry file (invalid JSON) must not block recovery of every
// other pending entry, per spec §7's WalParseError handling.
func TestRecoverySkipsCorruptEntry(t *testing.T) {
	s, repoPath := newTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "should-still-recover", map[string]any{"v": 1}, "main")
	require.NoError(t, err)

	bad, err := s.WAL().Append(wal.OpSave, "torn", "main", "", []byte(`{"id":"torn"}`))
	require.NoError(t, err)

	// Simulate a torn write: truncate the entry's own file in place so it
	// no longer parses as JSON, without going through any wal.Log API.
	walFile := filepath.Join(repoPath, "wal", bad.ID+".wal")
	require.NoError(t, os.WriteFile(walFile, []byte(`{"id":"torn"`), 0o644))

	require.NoError(t, s.Recover())

	_, found, err := s.Get(ctx, "should-still-recover", "main")
	require.NoError(t, err)
	assert.True(t, found, "a corrupt sibling entry must not block recovery of the rest")

	pending, corrupt, err := s.WAL().Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Empty(t, corrupt, "corrupt entry should already have been quarantined by Recover")

	_, statErr := os.Stat(walFile + ".corrupt")
	assert.NoError(t, statErr, "quarantined file should exist under .corrupt suffix")
}
