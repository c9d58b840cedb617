package occ

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/moclojer/chrondb-sub002/internal/git2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBranchLocksSerializesPerBranch(t *testing.T) {
	locks := NewBranchLocks()

	var mu sync.Mutex
	var order []string
	var active, maxActive int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock := locks.Lock("main")
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			mu.Lock()
			if n > maxActive {
				maxActive = n
			}
			order = append(order, "main")
			mu.Unlock()
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}(i)
	}
	wg.Wait()

	assert.Len(t, order, 20, "every goroutine must run its critical section exactly once")
	assert.Equal(t, int32(1), maxActive, "at most one goroutine may hold the branch lock at a time")
}

func TestBranchLocksIndependentBranches(t *testing.T) {
	locks := NewBranchLocks()

	unlockA := locks.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locking branch b blocked on branch a's lock")
	}
	unlockA()
}

func TestVersionTrackerIncrementAndVerify(t *testing.T) {
	vt := NewVersionTracker(nil)
	defer vt.Close()

	require.Equal(t, 0, vt.GetVersion("doc1", "main"))

	v := vt.IncrementVersion("doc1", "main")
	assert.Equal(t, 1, v)
	v = vt.IncrementVersion("doc1", "main")
	assert.Equal(t, 2, v)

	assert.Equal(t, 0, vt.GetVersion("doc1", "other"), "versions are scoped per branch")

	err := vt.VerifyVersion("doc1", "main", 2)
	assert.NoError(t, err)

	err = vt.VerifyVersion("doc1", "main", 1)
	var conflict *VersionConflict
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "doc1", conflict.DocumentID)
	assert.Equal(t, "main", conflict.Branch)
	assert.Equal(t, 1, conflict.Expected)
	assert.Equal(t, 2, conflict.Actual)
}

func TestWithRetryRetriesVersionConflictThenSucceeds(t *testing.T) {
	attempts := 0
	err := WithRetry(RetryOptions{MaxRetries: 3, BaseDelay: time.Millisecond}, func(attempt int) error {
		attempts++
		if attempt < 2 {
			return &VersionConflict{DocumentID: "doc1", Branch: "main", Expected: 1, Actual: 2}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	err := WithRetry(RetryOptions{MaxRetries: 2, BaseDelay: time.Millisecond}, func(attempt int) error {
		attempts++
		return &VersionConflict{DocumentID: "doc1", Branch: "main", Expected: 1, Actual: 2}
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts, "initial attempt plus MaxRetries retries")
}

func TestWithRetryDoesNotRetryUnrelatedErrors(t *testing.T) {
	attempts := 0
	boom := errors.New("boom")
	err := WithRetry(RetryOptions{MaxRetries: 3, BaseDelay: time.Millisecond}, func(attempt int) error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts, "non-retriable errors propagate on the first attempt")
}

func TestWithRetryRetriesRefUpdateRejected(t *testing.T) {
	attempts := 0
	err := WithRetry(RetryOptions{MaxRetries: 1, BaseDelay: time.Millisecond}, func(attempt int) error {
		attempts++
		if attempt == 0 {
			return git2.ErrRefUpdateRejected
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
