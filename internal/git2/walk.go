package git2

import (
	"fmt"
	"time"

	git2go "github.com/libgit2/git2go/v31"
)

// CommitInfo is the subset of commit metadata the history/time-travel
// component (internal/durable) needs, copied out of libgit2 memory so it
// outlives the RevWalk iteration that produced it.
type CommitInfo struct {
	Oid     *Oid
	Message string
	When    time.Time
}

// WalkHistory enumerates, most-recent-first, every commit reachable from
// branch's tip whose tree entry at path differs from the entry its first
// parent has at the same path (i.e. the commit actually changed path, not
// merely reachable from a branch that happens to contain it). This is the
// "touches path" predicate spec §4.9 (get_history) requires. Iteration
// stops early if fn returns false.
func (r *Repository) WalkHistory(branch, path string, fn func(CommitInfo) (cont bool, err error)) error {
	tip, found, err := r.ResolveBranch(branch)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	walk, err := r.repo.Walk()
	if err != nil {
		return fmt.Errorf("git2: new revwalk: %w", err)
	}
	defer walk.Free()

	if err := walk.Sorting(git2go.SortTime); err != nil {
		return fmt.Errorf("git2: revwalk sorting: %w", err)
	}
	if err := walk.Push(tip); err != nil {
		return fmt.Errorf("git2: revwalk push %s: %w", tip.String(), err)
	}

	var iterErr error
	err = walk.Iterate(func(commit *git2go.Commit) bool {
		entryOid, ok := entryAt(commit.Tree, path)

		var parentEntryOid *Oid
		var parentOk bool
		if commit.ParentCount() > 0 {
			parent := commit.Parent(0)
			if parent != nil {
				parentEntryOid, parentOk = entryAt(parent.Tree, path)
				parent.Free()
			}
		}

		touched := ok != parentOk || (ok && parentOk && *entryOid != *parentEntryOid)
		if !touched {
			return true
		}

		info := CommitInfo{
			Oid:     oidClone(commit.Id()),
			Message: stringsClone(commit.Message()),
			When:    commit.Committer().When,
		}
		cont, err := fn(info)
		if err != nil {
			iterErr = err
			return false
		}
		return cont
	})
	if err != nil {
		return fmt.Errorf("git2: revwalk iterate: %w", err)
	}
	return iterErr
}

func entryAt(treeFn func() (*git2go.Tree, error), path string) (*Oid, bool) {
	tree, err := treeFn()
	if err != nil || tree == nil {
		return nil, false
	}
	defer tree.Free()
	entry, err := tree.EntryByPath(path)
	if err != nil || entry == nil {
		return nil, false
	}
	return oidClone(entry.Id), true
}

// CommitAt finds the newest commit reachable from branch's tip, at or
// before when, per spec's get_at ("point-in-time retrieval"). found is
// false if no such commit exists (e.g. when predates the branch's root).
func (r *Repository) CommitAt(branch string, when time.Time) (oid *Oid, found bool, err error) {
	tip, ok, err := r.ResolveBranch(branch)
	if err != nil || !ok {
		return nil, false, err
	}

	walk, err := r.repo.Walk()
	if err != nil {
		return nil, false, fmt.Errorf("git2: new revwalk: %w", err)
	}
	defer walk.Free()

	if err := walk.Sorting(git2go.SortTime); err != nil {
		return nil, false, fmt.Errorf("git2: revwalk sorting: %w", err)
	}
	if err := walk.Push(tip); err != nil {
		return nil, false, fmt.Errorf("git2: revwalk push: %w", err)
	}

	err = walk.Iterate(func(commit *git2go.Commit) bool {
		if !commit.Committer().When.After(when) {
			oid = oidClone(commit.Id())
			found = true
			return false
		}
		return true
	})
	if err != nil {
		return nil, false, fmt.Errorf("git2: revwalk iterate: %w", err)
	}
	return oid, found, nil
}
