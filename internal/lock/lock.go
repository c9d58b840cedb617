// Package lock implements the stale-lock sweep of spec §6 ("Git ref locks
// and index write-locks older than 60 seconds are removed before
// initialising handles"), using gofrs/flock the way
// untoldecay-BeadsLog guards its own on-disk state against concurrent
// processes.
package lock

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// StaleAfter is the age past which a lock file is considered abandoned
// and safe to clear, per spec §6.
const StaleAfter = 60 * time.Second

// SweepStale walks dataDir looking for *.lock files (Git's
// refs/heads/<b>.lock style and the index engine's own write locks)
// older than StaleAfter and removes them, making crash-then-restart
// robust. A lock still held by a live process (flock.TryLock fails) is
// left alone even if it looks old, since that means a process is still
// using it.
func SweepStale(dataDir string) error {
	var stale []string

	err := filepath.WalkDir(dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort: a missing subdir isn't fatal to the sweep
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".lock" {
			return nil
		}

		info, err := d.Info()
		if err != nil || time.Since(info.ModTime()) < StaleAfter {
			return nil
		}
		stale = append(stale, path)
		return nil
	})
	if err != nil {
		return err
	}

	for _, path := range stale {
		fl := flock.New(path)
		locked, err := fl.TryLock()
		if err != nil || !locked {
			continue // someone still holds it; leave it alone
		}
		_ = fl.Unlock()
		_ = os.Remove(path)
	}
	return nil
}
