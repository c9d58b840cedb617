// Package occ implements the two optimistic-concurrency primitives of
// spec §4.6 (branch lock, version tracker) and the with_occ_retry wrapper,
// grounded on docdb's RetryController (internal/errors/retry.go): same
// exponential-backoff-with-jitter shape, generalised from a fixed error
// Classifier to the two concrete retriable errors this engine has
// (VersionConflict, git2.ErrRefUpdateRejected).
package occ

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/moclojer/chrondb-sub002/internal/git2"
)

// VersionConflict is returned by VerifyVersion when the observed version
// does not match the expected one.
type VersionConflict struct {
	DocumentID string
	Branch     string
	Expected   int
	Actual     int
}

func (e *VersionConflict) Error() string {
	return fmt.Sprintf("occ: version conflict for %q on %q: expected %d, got %d", e.DocumentID, e.Branch, e.Expected, e.Actual)
}

// BranchLocks is a table of named mutual-exclusion locks keyed by branch,
// ensuring at most one writer per branch at a time. Readers never take it.
type BranchLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewBranchLocks returns an empty lock table.
func NewBranchLocks() *BranchLocks {
	return &BranchLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the branch's mutex, creating it on first use, and returns
// an unlock func.
func (b *BranchLocks) Lock(branch string) func() {
	b.mu.Lock()
	m, ok := b.locks[branch]
	if !ok {
		m = &sync.Mutex{}
		b.locks[branch] = m
	}
	b.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// VersionTracker maps (document_id, branch) to a monotonically increasing
// counter, in-memory and process-scoped per spec §5 ("durable monotonicity
// is not required across restarts"). A best-effort bbolt mirror can be
// layered on top by passing it to NewVersionTracker (see mirror.go) for operators who want
// the counts to survive a restart as a cache, not a source of truth.
type VersionTracker struct {
	mu     sync.Mutex
	counts map[string]int
	mirror *Mirror
}

// NewVersionTracker returns an empty tracker, optionally backed by mirror
// (pass nil to keep everything purely in-memory).
func NewVersionTracker(mirror *Mirror) *VersionTracker {
	vt := &VersionTracker{counts: make(map[string]int), mirror: mirror}
	if mirror != nil {
		vt.counts = mirror.LoadAll()
	}
	return vt
}

func key(documentID, branch string) string {
	return branch + "\x00" + documentID
}

// Close releases the mirror's bbolt handle, if one is configured.
func (vt *VersionTracker) Close() error {
	if vt.mirror == nil {
		return nil
	}
	return vt.mirror.Close()
}

// GetVersion returns the current version, 0 if absent.
func (vt *VersionTracker) GetVersion(documentID, branch string) int {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	return vt.counts[key(documentID, branch)]
}

// IncrementVersion atomically bumps the counter and returns the new value.
func (vt *VersionTracker) IncrementVersion(documentID, branch string) int {
	vt.mu.Lock()
	k := key(documentID, branch)
	vt.counts[k]++
	v := vt.counts[k]
	vt.mu.Unlock()

	if vt.mirror != nil {
		vt.mirror.Save(documentID, branch, v)
	}
	return v
}

// VerifyVersion returns a *VersionConflict when current != expected.
func (vt *VersionTracker) VerifyVersion(documentID, branch string, expected int) error {
	actual := vt.GetVersion(documentID, branch)
	if actual != expected {
		return &VersionConflict{DocumentID: documentID, Branch: branch, Expected: expected, Actual: actual}
	}
	return nil
}

// RetryOptions configures with_occ_retry, per spec §4.6.
type RetryOptions struct {
	MaxRetries   int
	BaseDelay    time.Duration
	OnConflict   func(err error, attempt int)
	OnRetry      func(attempt int, delay time.Duration)
}

// DefaultRetryOptions matches spec §4.6's defaults (max_retries=3,
// base_delay_ms=10).
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{MaxRetries: 3, BaseDelay: 10 * time.Millisecond}
}

// WithRetry invokes fn; on *VersionConflict or git2.ErrRefUpdateRejected it
// sleeps with exponential backoff and jitter and retries up to
// opts.MaxRetries times, then returns the last error. Any other error
// propagates immediately without retry.
func WithRetry(opts RetryOptions, fn func(attempt int) error) error {
	if opts.MaxRetries == 0 && opts.BaseDelay == 0 {
		opts = DefaultRetryOptions()
	}

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retriable(err) {
			return err
		}
		if opts.OnConflict != nil {
			opts.OnConflict(err, attempt)
		}
		if attempt >= opts.MaxRetries {
			return err
		}

		delay := backoff(opts.BaseDelay, attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, delay)
		}
		time.Sleep(delay)
	}
	return lastErr
}

func retriable(err error) bool {
	var vc *VersionConflict
	return errors.As(err, &vc) || errors.Is(err, git2.ErrRefUpdateRejected)
}

func backoff(base time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(1<<uint(attempt))
	jitter := time.Duration(float64(delay) * 0.25 * (rand.Float64()*2 - 1))
	delay += jitter
	if delay < 0 {
		delay = base
	}
	return delay
}
